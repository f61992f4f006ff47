package console

import (
	"fmt"

	"github.com/maazm7d/droidspaces/internal/mount"
	"golang.org/x/sys/unix"
)

// BecomeControllingTTY is run in the child, after pivot_root, before exec of
// init: it starts a new session, takes the PTY slave as its controlling
// terminal, and dup2s it onto stdin/stdout/stderr (spec §4.G, the
// "setsid+TIOCSCTTY+dup2" child-side handoff).
func BecomeControllingTTY(slaveFd int) error {
	if _, err := unix.Setsid(); err != nil {
		return fmt.Errorf("setsid: %w", err)
	}
	if err := unix.IoctlSetInt(slaveFd, unix.TIOCSCTTY, 0); err != nil {
		return fmt.Errorf("TIOCSCTTY: %w", err)
	}
	for _, fd := range []int{unix.Stdin, unix.Stdout, unix.Stderr} {
		if err := unix.Dup2(slaveFd, fd); err != nil {
			return fmt.Errorf("dup2 pty slave onto fd %d: %w", fd, err)
		}
	}
	if slaveFd > unix.Stderr {
		unix.Close(slaveFd)
	}
	return nil
}

// BindSlaveOverConsole bind-mounts the PTY slave device node over
// rootfs/dev/console (or rootfs/dev/ttyN for a secondary console), so
// programs inside the container that open /dev/console reach the real
// slave (spec §4.C setup_dev's tty1..tty4 placeholders exist for exactly
// this bind target).
func BindSlaveOverConsole(log *mount.Log, slavePath, target string) error {
	if err := mount.BindMount(slavePath, target, false); err != nil {
		return err
	}
	log.Record(target, unix.MNT_DETACH)
	return nil
}
