// Package console implements Component G of spec §4.G: the PTY bridge
// between the supervising process and the init running inside the
// container. Grounded on the teacher's oci_attach_linux.go, which follows
// the same shape — creack/pty for allocation, golang.org/x/term for raw
// mode, a SIGWINCH-driven resize loop — adapted here to bridge into a
// container console rather than attach to a running OCI instance.
package console

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ccoveille/go-safecast"
	"github.com/creack/pty"
	"github.com/maazm7d/droidspaces/pkg/config"
	"golang.org/x/term"
)

// Open allocates a PTY pair and marks the master FD_CLOEXEC (invariant I2:
// the master fd is never inherited across exec).
func Open() (config.ConsolePTY, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return config.ConsolePTY{}, fmt.Errorf("allocate pty: %w", err)
	}
	masterFd, err := safecast.ToInt(master.Fd())
	if err != nil {
		master.Close()
		slave.Close()
		return config.ConsolePTY{}, fmt.Errorf("pty master fd out of range: %w", err)
	}
	slaveFd, err := safecast.ToInt(slave.Fd())
	if err != nil {
		master.Close()
		slave.Close()
		return config.ConsolePTY{}, fmt.Errorf("pty slave fd out of range: %w", err)
	}
	if err := syscall.SetNonblock(masterFd, false); err != nil {
		master.Close()
		slave.Close()
		return config.ConsolePTY{}, fmt.Errorf("set pty master blocking: %w", err)
	}
	if _, err := syscall.FcntlInt(master.Fd(), syscall.F_SETFD, syscall.FD_CLOEXEC); err != nil {
		master.Close()
		slave.Close()
		return config.ConsolePTY{}, fmt.Errorf("set FD_CLOEXEC on pty master: %w", err)
	}

	return config.ConsolePTY{
		MasterFd:  masterFd,
		SlaveFd:   slaveFd,
		SlavePath: slave.Name(),
	}, nil
}

// Bridge copies bytes bidirectionally between the host's stdio and the PTY
// master, putting the host terminal into raw mode for the duration (and
// restoring it on return) and forwarding SIGWINCH as TIOCSWINSZ resizes to
// the slave. It blocks until
// either direction's copy returns (typically because init exited and the
// slave side closed).
func Bridge(masterFd int, stdin *os.File, stdout *os.File) error {
	master := os.NewFile(uintptr(masterFd), "pty-master")

	var oldState *term.State
	if term.IsTerminal(int(stdin.Fd())) {
		state, err := term.MakeRaw(int(stdin.Fd()))
		if err != nil {
			return fmt.Errorf("set host terminal raw: %w", err)
		}
		oldState = state
		defer term.Restore(int(stdin.Fd()), oldState)
	}

	resize := make(chan os.Signal, 1)
	signal.Notify(resize, syscall.SIGWINCH)
	defer signal.Stop(resize)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-resize:
				syncWinsize(stdin, master)
			case <-done:
				return
			}
		}
	}()
	syncWinsize(stdin, master)

	copied := make(chan struct{}, 2)
	go func() { io.Copy(master, stdin); copied <- struct{}{} }()
	go func() { io.Copy(stdout, master); copied <- struct{}{} }()
	<-copied
	close(done)

	return nil
}

func syncWinsize(from, to *os.File) {
	size, err := pty.GetsizeFull(from)
	if err != nil {
		return
	}
	pty.Setsize(to, size)
}
