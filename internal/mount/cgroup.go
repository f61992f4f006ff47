package mount

import (
	"os"
	"path/filepath"

	"github.com/opencontainers/runc/libcontainer/cgroups"
	"golang.org/x/sys/unix"
)

// legacyControllers are the v1 hierarchies Droidspaces mounts individually
// when the host is not running unified cgroup v2 (spec §4.C setup_cgroups).
var legacyControllers = []string{
	"cpu,cpuacct",
	"devices",
	"memory",
	"freezer",
	"blkio",
	"pids",
	"systemd",
}

// SetupCgroups selects the v1/v2 strategy using the same
// cgroups.IsCgroup2UnifiedMode probe the teacher's cgroups manager relies
// on, then mounts either a single cgroup2 filesystem or a tmpfs holding one
// cgroup v1 mount per legacy controller at rootfs/sys/fs/cgroup. The mounts
// are nosuid/noexec/nodev but not read-only.
func SetupCgroups(log *Log, rootfs string) error {
	cgroupDir := filepath.Join(rootfs, "sys", "fs", "cgroup")
	if err := os.MkdirAll(cgroupDir, 0o755); err != nil {
		return err
	}

	if cgroups.IsCgroup2UnifiedMode() {
		if err := Domount("cgroup2", cgroupDir, "cgroup2", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, ""); err != nil {
			return err
		}
		log.Record(cgroupDir, unix.MNT_DETACH)
		return nil
	}

	if err := Domount("tmpfs", cgroupDir, "tmpfs", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, "mode=0755"); err != nil {
		return err
	}
	log.Record(cgroupDir, unix.MNT_DETACH)

	for _, controller := range legacyControllers {
		dir := filepath.Join(cgroupDir, controller)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		data := controller
		if controller == "systemd" {
			// systemd's hierarchy is a named one with no kernel controller.
			data = "none,name=systemd"
		}
		if err := Domount("cgroup", dir, "cgroup", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, data); err != nil {
			// A legacy controller absent from this kernel build is not fatal;
			// systemd itself tolerates a partial v1 hierarchy.
			continue
		}
		log.Record(dir, unix.MNT_DETACH)
	}

	return nil
}
