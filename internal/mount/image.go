package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maazm7d/droidspaces/internal/hostcmd"
	"github.com/maazm7d/droidspaces/internal/loopdev"
	"github.com/maazm7d/droidspaces/pkg/config"
	"github.com/maazm7d/droidspaces/pkg/sylog"
	"golang.org/x/sys/unix"
)

// MountedImage is a loop-attached rootfs image, returned so the engine can
// unwind it on teardown or rollback.
type MountedImage struct {
	Loop       *loopdev.Device
	MountPoint string
}

// MountRootfsImg loop-attaches the image file at path, runs a non-interactive
// fsck, and mounts it ext4 under workspace/mounts/<basename> (spec §4.C
// mount_rootfs_img). The fsck is best-effort: a missing e2fsck or a failing
// check is logged and the mount goes ahead. Read-only images are not checked.
func MountRootfsImg(sink sylog.Sink, runner hostcmd.Runner, log *Log, workspace, path string, readOnly bool) (*MountedImage, error) {
	dev, err := loopdev.Attach(sink, path, readOnly)
	if err != nil {
		return nil, fmt.Errorf("attach %s to loop device: %w", path, err)
	}

	if !readOnly {
		if _, err := runner.LookPath("e2fsck"); err == nil {
			if _, err := runner.Run("e2fsck", "-f", "-y", dev.Path()); err != nil {
				sink.Warningf("e2fsck reported problems on %s (continuing): %v", path, err)
			}
		} else {
			sink.Debugf("e2fsck not found on PATH, skipping filesystem check for %s", path)
		}
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	mountPoint := filepath.Join(workspace, "mounts", base)
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		dev.Detach()
		return nil, fmt.Errorf("mkdir %s: %w", mountPoint, err)
	}

	flags := uintptr(0)
	if readOnly {
		flags |= unix.MS_RDONLY
	}
	if err := Domount(dev.Path(), mountPoint, "ext4", flags, ""); err != nil {
		dev.Detach()
		return nil, err
	}
	log.Record(mountPoint, unix.MNT_DETACH)

	return &MountedImage{Loop: dev, MountPoint: mountPoint}, nil
}

// UnmountRootfsImg unmounts the rootfs image's mount point and detaches its
// loop device, in that order (detaching a still-mounted loop device fails
// with EBUSY). A busy mount point (still in use by a just-exited init) gets
// one MNT_DETACH retry before giving up, and the mount point directory
// itself is removed after a successful unmount so repeated create/destroy
// cycles don't leave stale workspace/mounts/<basename> directories behind
// (spec §4.C teardown).
func UnmountRootfsImg(sink sylog.Sink, img *MountedImage) error {
	err := unix.Unmount(img.MountPoint, 0)
	if err == unix.EBUSY {
		sink.Debugf("unmount %s busy, retrying with MNT_DETACH", img.MountPoint)
		err = unix.Unmount(img.MountPoint, unix.MNT_DETACH)
	}
	if err != nil {
		return config.NewMountError(img.MountPoint, "ext4", err)
	}

	if err := os.RemoveAll(img.MountPoint); err != nil {
		sink.Warningf("remove mount point %s: %v", img.MountPoint, err)
	}

	if err := img.Loop.Detach(); err != nil {
		sink.Warningf("detach loop device %s: %v", img.Loop.Path(), err)
	}
	return nil
}
