package fslock

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExclusiveAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockfile")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("create lock file: %v", err)
	}

	fd, err := Exclusive(path)
	if err != nil {
		t.Fatalf("Exclusive: %v", err)
	}
	if err := Release(fd); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestExclusiveBlocksSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockfile")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("create lock file: %v", err)
	}

	fd1, err := Exclusive(path)
	if err != nil {
		t.Fatalf("first Exclusive: %v", err)
	}

	acquired := make(chan int, 1)
	go func() {
		fd2, err := Exclusive(path)
		if err != nil {
			return
		}
		acquired <- fd2
	}()

	select {
	case fd2 := <-acquired:
		Release(fd2)
		t.Fatal("second Exclusive should block while the first holder has the lock")
	case <-time.After(100 * time.Millisecond):
		// expected: still blocked
	}

	if err := Release(fd1); err != nil {
		t.Fatalf("Release first holder: %v", err)
	}

	select {
	case fd2 := <-acquired:
		Release(fd2)
	case <-time.After(2 * time.Second):
		t.Fatal("second Exclusive should acquire the lock once the first holder released it")
	}
}
