package hwaccess

import (
	"os"
	"syscall"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/maazm7d/droidspaces/internal/fsutil"
	"github.com/maazm7d/droidspaces/internal/hostcmd"
	"github.com/maazm7d/droidspaces/pkg/sylog"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// termuxPackage and termuxTmpPath are the well-known Termux install location
// and its app-private tmp directory (spec §4.D Termux bridging).
const (
	termuxPackage          = "com.termux"
	termuxAppDir           = "/data/data/com.termux"
	termuxTmpPath          = "/data/data/com.termux/files/usr/tmp"
	fallbackSELinuxContext = "u:object_r:app_data_file:s0"
	termuxStopGrace        = 500 * time.Millisecond
)

// EnsureTermuxBridge lays down the tmpfs bridge used to share X11/VirGL
// sockets with Termux, best-effort stopping Termux first if it still holds
// the mount point as a plain directory. It reports whether this call is the
// one that created the bridge (Instance.BridgeOwned), since only the
// creator tears it down (spec §5 stopping phase, resource ownership note).
func EnsureTermuxBridge(sink sylog.Sink, runner hostcmd.Runner, uid, gid uint32) (created bool, err error) {
	if isTmpfs(termuxTmpPath) {
		return false, nil
	}

	if isRunning(runner) {
		runner.Run("am", "force-stop", termuxPackage)
		time.Sleep(termuxStopGrace)
		runner.Run("pkill", "-9", "-f", termuxPackage)
	}

	if err := os.MkdirAll(termuxTmpPath, 0o1777); err != nil {
		return false, errors.Wrapf(err, "mkdir %s", termuxTmpPath)
	}
	if err := unix.Mount("tmpfs", termuxTmpPath, "tmpfs", 0, "mode=01777"); err != nil {
		return false, errors.Wrapf(err, "mount tmpfs at %s", termuxTmpPath)
	}
	if err := os.Chown(termuxTmpPath, int(uid), int(gid)); err != nil {
		sink.Warningf("chown %s to termux uid/gid: %v", termuxTmpPath, err)
	}

	ctx, err := fsutil.GetSELinuxContext(termuxAppDir)
	if err != nil || ctx == "" {
		ctx = fallbackSELinuxContext
	}
	if err := fsutil.SetSELinuxContext(termuxTmpPath, ctx); err != nil {
		sink.Warningf("set selinux context on %s: %v", termuxTmpPath, err)
	}

	return true, nil
}

// TeardownTermuxBridge unmounts the bridge tmpfs, but only if it is still a
// tmpfs (statfs magic check) — never blindly unmounting a directory some
// other process repurposed underneath us.
func TeardownTermuxBridge(sink sylog.Sink) {
	if !isTmpfs(termuxTmpPath) {
		return
	}
	if err := unix.Unmount(termuxTmpPath, 0); err != nil {
		sink.Warningf("unmount termux bridge %s: %v", termuxTmpPath, err)
	}
}

// ResolveTermuxOwner stats termuxAppDir to learn the real uid/gid Termux
// runs as, so the tmpfs bridge can be chowned to Termux rather than left
// root:root (spec §4.E: the bridge must be "owned by Termux's UID/GID").
// Falls back to the caller's own uid/gid if Termux isn't installed yet.
func ResolveTermuxOwner() (uid, gid uint32, err error) {
	fi, statErr := os.Stat(termuxAppDir)
	if statErr != nil {
		return safecastOrZero(os.Getuid()), safecastOrZero(os.Getgid()), nil
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return safecastOrZero(os.Getuid()), safecastOrZero(os.Getgid()), nil
	}
	uid, err = safecast.ToUint32(st.Uid)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "uid of %s does not fit in uint32", termuxAppDir)
	}
	gid, err = safecast.ToUint32(st.Gid)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "gid of %s does not fit in uint32", termuxAppDir)
	}
	return uid, gid, nil
}

func safecastOrZero(v int) uint32 {
	u, err := safecast.ToUint32(v)
	if err != nil {
		return 0
	}
	return u
}

func isTmpfs(path string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false
	}
	return st.Type == unix.TMPFS_MAGIC
}

func isRunning(runner hostcmd.Runner) bool {
	if _, err := runner.LookPath("pgrep"); err != nil {
		return false
	}
	_, err := runner.Run("pgrep", "-f", termuxPackage)
	return err == nil
}
