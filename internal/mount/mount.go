// Package mount implements Component C of spec §4: a parameterized mount(2)
// wrapper that treats EBUSY as success, a bind-mount helper that materializes
// its target, /dev and devpts construction, the cgroup v1/v2 selector, and
// loop-mounted rootfs images. The teacher's container_linux.go drives an
// equivalent sequence (addDevMount, addKernelMount, mountGeneric) through a
// privileged RPC server; since Droidspaces assumes CAP_SYS_ADMIN in-process
// (spec §1 Non-goals: no unprivileged operation), these calls run directly,
// without the RPC indirection.
package mount

import (
	"fmt"
	"os"

	"github.com/maazm7d/droidspaces/pkg/config"
	"github.com/maazm7d/droidspaces/pkg/sylog"
	"golang.org/x/sys/unix"
)

// Log records every successful mount in order, target first, so a failed
// boot can unwind them in reverse (spec §4.H "Failure semantics", §9 "Mount
// log for rollback").
type Log struct {
	entries []logEntry
}

type logEntry struct {
	target string
	flags  int
}

// Record appends a successful mount to the log.
func (l *Log) Record(target string, detachFlags int) {
	l.entries = append(l.entries, logEntry{target: target, flags: detachFlags})
}

// Targets returns the recorded targets in mount order.
func (l *Log) Targets() []string {
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.target
	}
	return out
}

// Rollback unmounts every recorded mount in reverse order, best-effort.
func (l *Log) Rollback(sink sylog.Sink) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if err := unix.Unmount(e.target, e.flags); err != nil {
			sink.Warningf("rollback unmount %s: %v", e.target, err)
		}
	}
	l.entries = nil
}

// Domount mounts src onto tgt with the given filesystem type, flags, and
// data, treating EBUSY (already mounted) as success per spec §4.C.
func Domount(src, tgt, fstype string, flags uintptr, data string) error {
	err := unix.Mount(src, tgt, fstype, flags, data)
	if err == nil || err == unix.EBUSY {
		return nil
	}
	return config.NewMountError(tgt, fstype, err)
}

// BindMount materializes tgt to match the type of src (directory or plain
// file) and performs a recursive bind mount, optionally read-only.
func BindMount(src, tgt string, readOnly bool) error {
	fi, err := os.Stat(src)
	if err != nil {
		return config.NewMountError(tgt, "bind", fmt.Errorf("stat source %s: %w", src, err))
	}

	if fi.IsDir() {
		if err := os.MkdirAll(tgt, 0o755); err != nil {
			return config.NewMountError(tgt, "bind", err)
		}
	} else {
		if err := os.MkdirAll(parentDir(tgt), 0o755); err != nil {
			return config.NewMountError(tgt, "bind", err)
		}
		f, err := os.OpenFile(tgt, os.O_CREATE, 0o644)
		if err != nil {
			return config.NewMountError(tgt, "bind", err)
		}
		f.Close()
	}

	if err := Domount(src, tgt, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return err
	}
	if readOnly {
		if err := Domount("", tgt, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
			return err
		}
	}
	return nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
