package platform

import "testing"

func TestParseKernelRelease(t *testing.T) {
	cases := []struct {
		release      string
		major, minor int
		wantErr      bool
	}{
		{"5.10.0-android12-9-g123abc", 5, 10, false},
		{"4.19.157+", 4, 19, false},
		{"6.1.0", 6, 1, false},
		{"3.18", 3, 18, false},
		{"notakernel", 0, 0, true},
		{"5", 0, 0, true},
	}
	for _, tc := range cases {
		major, minor, err := parseKernelRelease(tc.release)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseKernelRelease(%q) error = %v, wantErr %v", tc.release, err, tc.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if major != tc.major || minor != tc.minor {
			t.Errorf("parseKernelRelease(%q) = (%d, %d), want (%d, %d)", tc.release, major, minor, tc.major, tc.minor)
		}
	}
}

func TestKernelAtLeastUnknownAssumesModern(t *testing.T) {
	p := &Probe{}
	p.once.Do(func() {}) // mark ensure() as already run, leaving kernelMajor/Minor at zero value

	if !p.KernelAtLeast(5, 0) {
		t.Error("KernelAtLeast with undetected kernel (0,0) should assume modern and return true")
	}
}

func TestKernelAtLeastComparesMajorMinor(t *testing.T) {
	p := &Probe{kernelMajor: 4, kernelMinor: 19}
	p.once.Do(func() {})

	cases := []struct {
		major, minor int
		want         bool
	}{
		{4, 19, true},
		{4, 18, true},
		{4, 20, false},
		{3, 99, true},
		{5, 0, false},
	}
	for _, tc := range cases {
		if got := p.KernelAtLeast(tc.major, tc.minor); got != tc.want {
			t.Errorf("KernelAtLeast(%d, %d) = %v, want %v", tc.major, tc.minor, got, tc.want)
		}
	}
}

func TestWorkspaceEnvOverride(t *testing.T) {
	t.Setenv("DROIDSPACES_WORKSPACE", "/tmp/custom-workspace")
	p := NewProbe()
	if got := p.Workspace(); got != "/tmp/custom-workspace" {
		t.Errorf("Workspace() = %q, want env override", got)
	}
}
