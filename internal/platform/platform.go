// Package platform implements the host detection component (spec §4.A):
// Android-vs-desktop-Linux, and the kernel version the seccomp installer
// needs to make decisions.
//
// The teacher keeps this kind of fact as a process-global cache
// (apptainerconf.SetCurrentConfig / buildcfg). Design note §9 calls that out
// as something to migrate to an injected handle instead, so here Probe is a
// value created once by the caller and threaded through the engine rather
// than a package-level variable.
package platform

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Probe caches the answers to "is this Android" and "what kernel is this"
// for the lifetime of one engine run.
type Probe struct {
	once        sync.Once
	isAndroid   bool
	kernelMajor int
	kernelMinor int
}

// NewProbe returns a Probe. Detection is deferred to first use so tests can
// construct one without touching the filesystem unless they call a method.
func NewProbe() *Probe {
	return &Probe{}
}

func (p *Probe) ensure() {
	p.once.Do(func() {
		p.isAndroid = detectAndroid()
		p.kernelMajor, p.kernelMinor = detectKernel()
	})
}

// IsAndroid reports whether this host is Android: either ANDROID_ROOT is set
// in the environment, or /system/bin/app_process exists.
func (p *Probe) IsAndroid() bool {
	p.ensure()
	return p.isAndroid
}

// KernelVersion returns (major, minor) parsed from uname(2). On failure it
// returns (0, 0), which callers must treat as "assume modern (>=5)" per
// spec §4.A.
func (p *Probe) KernelVersion() (int, int) {
	p.ensure()
	return p.kernelMajor, p.kernelMinor
}

// KernelAtLeast reports whether the detected kernel is >= major.minor, with
// the (0,0)-means-modern rule applied.
func (p *Probe) KernelAtLeast(major, minor int) bool {
	km, kn := p.KernelVersion()
	if km == 0 && kn == 0 {
		return true
	}
	if km != major {
		return km > major
	}
	return kn >= minor
}

// DefaultWorkspace resolves DROIDSPACES_WORKSPACE's default when unset: an
// Android app-private directory on Android, a conventional /var/lib path
// otherwise (spec §6, supplemented per SPEC_FULL.md §C).
func (p *Probe) DefaultWorkspace() string {
	if p.IsAndroid() {
		return "/data/data/com.termux/files/home/.droidspaces"
	}
	return "/var/lib/droidspaces"
}

// Workspace resolves the effective workspace root: DROIDSPACES_WORKSPACE if
// set, otherwise DefaultWorkspace().
func (p *Probe) Workspace() string {
	if v := os.Getenv("DROIDSPACES_WORKSPACE"); v != "" {
		return v
	}
	return p.DefaultWorkspace()
}

func detectAndroid() bool {
	if os.Getenv("ANDROID_ROOT") != "" {
		return true
	}
	if _, err := os.Stat("/system/bin/app_process"); err == nil {
		return true
	}
	return false
}

func detectKernel() (int, int) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return 0, 0
	}
	release := cstring(uts.Release[:])
	major, minor, err := parseKernelRelease(release)
	if err != nil {
		return 0, 0
	}
	return major, minor
}

// parseKernelRelease extracts the leading "MAJOR.MINOR" from a uname
// release string such as "5.10.0-android12-9-g123abc".
func parseKernelRelease(release string) (int, int, error) {
	fields := strings.SplitN(release, ".", 3)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unparsable kernel release %q", release)
	}
	major, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("unparsable kernel major in %q: %w", release, err)
	}
	minorField := fields[1]
	// minor may itself carry trailing non-digit bytes ("10-rc1"); take the
	// leading digit run only.
	end := 0
	for end < len(minorField) && minorField[end] >= '0' && minorField[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, 0, fmt.Errorf("unparsable kernel minor in %q", release)
	}
	minor, err := strconv.Atoi(minorField[:end])
	if err != nil {
		return 0, 0, err
	}
	return major, minor, nil
}

func cstring(b []byte) string {
	n := strings.IndexByte(string(b), 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}
