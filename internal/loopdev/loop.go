// Package loopdev attaches a rootfs image file to a Linux loop device, the
// low-level half of spec §4.C's mount_rootfs_img. Adapted from the
// teacher's pkg/util/loop: same ioctl sequence (CmdSetFd, CmdSetStatus64),
// same /dev exclusive-lock-then-scan strategy to avoid two boots racing for
// the same loopN, same transient-EAGAIN/EBUSY retry. Trimmed of the
// shared-loop-device dedup path — Droidspaces mounts one rootfs image per
// container and never wants two containers sharing a loop device — and of
// the config-file-driven device cap, since there is no persistent
// apptainer.conf-style file here.
package loopdev

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
	"unsafe"

	"github.com/maazm7d/droidspaces/internal/fslock"
	"github.com/maazm7d/droidspaces/pkg/sylog"
)

// Loop device flags.
const (
	FlagsReadOnly  = 1
	FlagsAutoClear = 4
)

// Loop device IOCTL commands.
const (
	cmdSetFd       = 0x4C00
	cmdClrFd       = 0x4C01
	cmdSetStatus64 = 0x4C04
	cmdGetStatus64 = 0x4C05
)

// info64 mirrors struct loop_info64 from <linux/loop.h>.
type info64 struct {
	Device         uint64
	Inode          uint64
	Rdevice        uint64
	Offset         uint64
	SizeLimit      uint64
	Number         uint32
	EncryptType    uint32
	EncryptKeySize uint32
	Flags          uint32
	FileName       [64]byte
	CryptName      [64]byte
	EncryptKey     [32]byte
	Init           [2]uint64
}

// MaxDevices bounds how many /dev/loopN nodes Attach will probe.
const MaxDevices = 256

var errTransientAttach = errors.New("transient error, please retry")

const (
	maxRetries    = 5
	retryInterval = 250 * time.Millisecond
)

// Device represents one attached loop device.
type Device struct {
	Number   int
	ReadOnly bool
	fd       int
}

// Attach opens image read-write (or read-only) and binds it to a free
// /dev/loopN device, retrying transient EAGAIN/EBUSY failures.
func Attach(sink sylog.Sink, image string, readOnly bool) (*Device, error) {
	mode := os.O_RDWR
	if readOnly {
		mode = os.O_RDONLY
	}
	file, err := os.OpenFile(image, mode, 0)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", image, err)
	}
	defer file.Close()

	flags := uint32(0)
	if readOnly {
		flags |= FlagsReadOnly
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		dev, err := attachOnce(file, mode, flags)
		if err == nil {
			return dev, nil
		}
		if !errors.Is(err, errTransientAttach) {
			return nil, err
		}
		lastErr = err
		sink.Debugf("loop attach transient error, retrying: %v", err)
		time.Sleep(retryInterval)
	}
	return nil, fmt.Errorf("failed to attach loop device after %d retries: %w", maxRetries, lastErr)
}

func attachOnce(image *os.File, mode int, flags uint32) (*Device, error) {
	lockFd, err := fslock.Exclusive("/dev")
	if err != nil {
		return nil, fmt.Errorf("lock /dev: %w", err)
	}
	defer fslock.Release(lockFd)

	var transientErr error
	for number := 0; number < MaxDevices; number++ {
		loopFd, err := openOrCreate(number, mode)
		if err != nil {
			continue
		}

		if _, _, esys := syscall.Syscall(syscall.SYS_IOCTL, uintptr(loopFd), cmdSetFd, image.Fd()); esys != 0 {
			syscall.Close(loopFd)
			continue
		}

		if _, _, errno := syscall.Syscall(syscall.SYS_FCNTL, uintptr(loopFd), syscall.F_SETFD, syscall.FD_CLOEXEC); errno != 0 {
			syscall.Syscall(syscall.SYS_IOCTL, uintptr(loopFd), cmdClrFd, 0)
			syscall.Close(loopFd)
			return nil, fmt.Errorf("set FD_CLOEXEC on loop%d: %s", number, errno)
		}

		info := &info64{Flags: flags}
		if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(loopFd), cmdSetStatus64, uintptr(unsafe.Pointer(info))); errno != 0 {
			syscall.Syscall(syscall.SYS_IOCTL, uintptr(loopFd), cmdClrFd, 0)
			syscall.Close(loopFd)
			if errno == syscall.EAGAIN || errno == syscall.EBUSY {
				transientErr = errno
				continue
			}
			return nil, fmt.Errorf("set status on loop%d: %s", number, errno)
		}

		return &Device{Number: number, ReadOnly: flags&FlagsReadOnly != 0, fd: loopFd}, nil
	}

	if transientErr != nil {
		return nil, fmt.Errorf("%w: %v", errTransientAttach, transientErr)
	}
	return nil, fmt.Errorf("no free loop device found in /dev/loop0..%d", MaxDevices-1)
}

func openOrCreate(number, mode int) (int, error) {
	path := fmt.Sprintf("/dev/loop%d", number)
	fi, err := os.Stat(path)
	switch {
	case err == nil && fi.Mode()&os.ModeDevice == 0:
		return -1, fmt.Errorf("%s is not a device", path)
	case os.IsNotExist(err):
		dev := int((7 << 8) | (number & 0xff) | ((number & 0xfff00) << 12))
		if merr := syscall.Mknod(path, syscall.S_IFBLK|0o660, dev); merr != nil {
			if errno, ok := merr.(syscall.Errno); !ok || errno != syscall.EEXIST {
				return -1, fmt.Errorf("mknod %s: %w", path, merr)
			}
		}
	case err != nil:
		return -1, err
	}
	return syscall.Open(path, mode, 0o600)
}

// Path returns the /dev/loopN device node path.
func (d *Device) Path() string {
	return fmt.Sprintf("/dev/loop%d", d.Number)
}

// Detach disassociates the image from the loop device and closes it.
func (d *Device) Detach() error {
	syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), cmdClrFd, 0)
	return syscall.Close(d.fd)
}
