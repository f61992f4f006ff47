// Package fsutil implements the small filesystem primitives Component B of
// spec §4.B describes: truncating small-file read/write, recursive mkdir,
// a single-needle grep, and SELinux context get/set. Everything here is a
// thin wrapper — callers that need atomicity write a sibling temp file and
// os.Rename it into place themselves (the canonical case, the /etc/group
// rewrite, lives in internal/hwaccess).
package fsutil

import (
	"bufio"
	"fmt"
	"os"

	"github.com/opencontainers/selinux/go-selinux"
)

// ReadSmall reads an entire small file into memory.
func ReadSmall(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

// WriteSmall truncates and writes path with the given permissions. It is
// NOT atomic: a crash mid-write leaves a partial file. Callers needing
// atomicity write to a sibling temp path and os.Rename it into place.
func WriteSmall(path string, data []byte, mode os.FileMode) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// MkdirP recursively creates path with the given mode, succeeding if it
// already exists.
func MkdirP(path string, mode os.FileMode) error {
	if err := os.MkdirAll(path, mode); err != nil {
		return fmt.Errorf("mkdir -p %s: %w", path, err)
	}
	return nil
}

// GrepLine reports whether any line of the file at path contains needle as
// a substring. A missing file is treated as "not found" rather than an
// error, matching the forgiving style of /etc/group membership checks.
func GrepLine(path string, needle string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if containsSubstring(scanner.Text(), needle) {
			return true, nil
		}
	}
	return false, scanner.Err()
}

func containsSubstring(line, needle string) bool {
	return len(needle) == 0 || indexOf(line, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}

// GetSELinuxContext returns the SELinux context label of path, or "" if
// SELinux is disabled or the file carries no label.
func GetSELinuxContext(path string) (string, error) {
	if !selinux.GetEnabled() {
		return "", nil
	}
	label, err := selinux.FileLabel(path)
	if err != nil {
		return "", fmt.Errorf("get selinux context of %s: %w", path, err)
	}
	return label, nil
}

// SetSELinuxContext sets the SELinux context label of path. A no-op, not an
// error, when SELinux is disabled.
func SetSELinuxContext(path, ctx string) error {
	if !selinux.GetEnabled() || ctx == "" {
		return nil
	}
	if err := selinux.SetFileLabel(path, ctx); err != nil {
		return fmt.Errorf("set selinux context %s on %s: %w", ctx, path, err)
	}
	return nil
}
