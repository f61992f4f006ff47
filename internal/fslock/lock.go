// Package fslock provides whole-file advisory locking used while scanning
// for or attaching a free loop device, so two Droidspaces boots racing to
// mount an image don't pick the same /dev/loopN.
package fslock

import (
	"os"

	"golang.org/x/sys/unix"
)

// Exclusive takes a blocking exclusive lock on path, returning the fd the
// lock is held on. The caller must pass the fd to Release.
func Exclusive(path string) (fd int, err error) {
	fd, err = unix.Open(path, os.O_RDONLY, 0)
	if err != nil {
		return fd, err
	}
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		unix.Close(fd)
		return fd, err
	}
	return fd, nil
}

// Release unlocks and closes fd.
func Release(fd int) error {
	defer unix.Close(fd)
	return unix.Flock(fd, unix.LOCK_UN)
}
