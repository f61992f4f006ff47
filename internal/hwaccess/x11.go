package hwaccess

import (
	"os"

	"github.com/maazm7d/droidspaces/internal/mount"
	"golang.org/x/sys/unix"
)

// BindX11 bridges X11/VirGL sockets into the container rootfs. On Android it
// bind-mounts the whole Termux tmpfs bridge onto rootfs/tmp; on desktop
// Linux it bind-mounts the host's /tmp/.X11-unix directly when present
// (spec §4.D, scenario S5).
func BindX11(log *mount.Log, rootfs string, isAndroid bool) error {
	if isAndroid {
		tgt := rootfs + "/tmp"
		if err := mount.BindMount(termuxTmpPath, tgt, false); err != nil {
			return err
		}
		log.Record(tgt, unix.MNT_DETACH)
		return nil
	}

	const hostX11 = "/tmp/.X11-unix"
	if _, err := os.Stat(hostX11); err != nil {
		return nil
	}
	tgt := rootfs + "/tmp/.X11-unix"
	if err := mount.BindMount(hostX11, tgt, false); err != nil {
		return err
	}
	log.Record(tgt, unix.MNT_DETACH)
	return nil
}
