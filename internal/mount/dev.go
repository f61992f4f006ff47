package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/maazm7d/droidspaces/pkg/sylog"
	"golang.org/x/sys/unix"
)

type devNode struct {
	name  string
	major uint32
	minor uint32
	mode  os.FileMode
}

// minimalDevices is the device set for isolated mode (spec §4.C).
var minimalDevices = []devNode{
	{"null", 1, 3, 0o666},
	{"zero", 1, 5, 0o666},
	{"full", 1, 7, 0o666},
	{"random", 1, 8, 0o666},
	{"urandom", 1, 9, 0o666},
	{"tty", 5, 0, 0o666},
	{"console", 5, 1, 0o600},
	{"ptmx", 5, 2, 0o666},
}

// SetupDev builds /dev inside the rootfs. In shared mode (hwAccess) it
// bind-mounts the host devtmpfs; otherwise it builds an isolated 4MiB
// tmpfs with a minimal device set, falling back to bind-mounting the host
// device node when mknod is denied (no CAP_MKNOD under confined Android).
func SetupDev(log *Log, sink sylog.Sink, rootfs string, hwAccess bool) error {
	devDir := filepath.Join(rootfs, "dev")
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", devDir, err)
	}

	if hwAccess {
		if err := Domount("/dev", devDir, "", unix.MS_BIND|unix.MS_REC|unix.MS_NOSUID|unix.MS_NOEXEC, ""); err != nil {
			return err
		}
		log.Record(devDir, unix.MNT_DETACH)
		return nil
	}

	if err := Domount("tmpfs", devDir, "tmpfs", unix.MS_NOSUID, "size=4m,mode=0755"); err != nil {
		return err
	}
	log.Record(devDir, unix.MNT_DETACH)

	for _, n := range minimalDevices {
		path := filepath.Join(devDir, n.name)
		dev := int(unix.Mkdev(n.major, n.minor))
		if err := unix.Mknod(path, uint32(unix.S_IFCHR)|uint32(n.mode), dev); err != nil {
			sink.Warningf("mknod %s failed (%v), falling back to bind-mounting host device", path, err)
			hostPath := filepath.Join("/dev", n.name)
			if berr := BindMount(hostPath, path, false); berr != nil {
				sink.Warningf("bind-mount fallback for %s failed: %v", path, berr)
				continue
			}
			log.Record(path, unix.MNT_DETACH)
		}
	}

	// Four placeholder regular files for later PTY slave bind-mounts.
	for i := 1; i <= 4; i++ {
		path := filepath.Join(devDir, fmt.Sprintf("tty%d", i))
		f, err := os.OpenFile(path, os.O_CREATE, 0o620)
		if err != nil {
			return fmt.Errorf("create tty placeholder %s: %w", path, err)
		}
		f.Close()
	}

	symlinks := map[string]string{
		"fd":     "/proc/self/fd",
		"stdin":  "/proc/self/fd/0",
		"stdout": "/proc/self/fd/1",
		"stderr": "/proc/self/fd/2",
	}
	for name, target := range symlinks {
		path := filepath.Join(devDir, name)
		os.Remove(path)
		if err := os.Symlink(target, path); err != nil {
			sink.Warningf("symlink /dev/%s -> %s failed: %v", name, target, err)
		}
	}

	return nil
}

// SetupDevpts mounts a newinstance devpts filesystem at rootfs/dev/pts.
func SetupDevpts(log *Log, rootfs string) error {
	ptsDir := filepath.Join(rootfs, "dev", "pts")
	if err := os.MkdirAll(ptsDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", ptsDir, err)
	}
	if err := Domount("devpts", ptsDir, "devpts", 0, "newinstance,ptmxmode=0666,mode=0620,gid=5"); err != nil {
		return err
	}
	log.Record(ptsDir, unix.MNT_DETACH)
	return nil
}
