package config

import "testing"

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid shell",
			cfg:     Config{ContainerName: "box1", Rootfs: "/data/rootfs", InitMode: InitShell},
			wantErr: false,
		},
		{
			name:    "empty name",
			cfg:     Config{ContainerName: "", Rootfs: "/data/rootfs", InitMode: InitShell},
			wantErr: true,
		},
		{
			name:    "slash in name",
			cfg:     Config{ContainerName: "a/b", Rootfs: "/data/rootfs", InitMode: InitShell},
			wantErr: true,
		},
		{
			name:    "non-printable name",
			cfg:     Config{ContainerName: "a\x01b", Rootfs: "/data/rootfs", InitMode: InitShell},
			wantErr: true,
		},
		{
			name:    "reserved name",
			cfg:     Config{ContainerName: "run", Rootfs: "/data/rootfs", InitMode: InitShell},
			wantErr: true,
		},
		{
			name:    "relative rootfs",
			cfg:     Config{ContainerName: "box1", Rootfs: "rootfs", InitMode: InitShell},
			wantErr: true,
		},
		{
			name:    "unknown init mode",
			cfg:     Config{ContainerName: "box1", Rootfs: "/data/rootfs", InitMode: "bogus"},
			wantErr: true,
		},
		{
			name:    "custom_argv without argv",
			cfg:     Config{ContainerName: "box1", Rootfs: "/data/rootfs", InitMode: InitCustomArgv},
			wantErr: true,
		},
		{
			name: "custom_argv with argv",
			cfg: Config{
				ContainerName: "box1", Rootfs: "/data/rootfs",
				InitMode: InitCustomArgv, CustomArgv: []string{"/sbin/init", "--test"},
			},
			wantErr: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestCanAdvance(t *testing.T) {
	cases := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseCreated, PhaseMounting, true},
		{PhaseMounting, PhasePivoting, true},
		{PhasePivoting, PhaseBooting, true},
		{PhaseBooting, PhaseRunning, true},
		{PhaseRunning, PhaseStopping, true},
		{PhaseStopping, PhaseDestroyed, true},
		{PhaseCreated, PhaseBooting, false}, // skips mounting/pivoting
		{PhaseRunning, PhaseCreated, false}, // backward
		{PhaseCreated, PhaseCreated, false}, // no-op isn't an advance
		{"bogus", PhaseMounting, false},
	}
	for _, tc := range cases {
		if got := CanAdvance(tc.from, tc.to); got != tc.want {
			t.Errorf("CanAdvance(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
