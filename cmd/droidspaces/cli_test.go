package main

import (
	"reflect"
	"testing"

	"github.com/maazm7d/droidspaces/pkg/config"
)

func TestParseMountSpecs(t *testing.T) {
	cases := []struct {
		name    string
		specs   []string
		want    []config.MountSpec
		wantErr bool
	}{
		{
			name:  "single rw bind",
			specs: []string{"/sdcard:/mnt/sdcard"},
			want:  []config.MountSpec{{Source: "/sdcard", Target: "/mnt/sdcard"}},
		},
		{
			name:  "read-only bind",
			specs: []string{"/system/fonts:/usr/share/fonts:ro"},
			want:  []config.MountSpec{{Source: "/system/fonts", Target: "/usr/share/fonts", ReadOnly: true}},
		},
		{
			name:  "multiple specs",
			specs: []string{"/a:/b", "/c:/d:ro"},
			want: []config.MountSpec{
				{Source: "/a", Target: "/b"},
				{Source: "/c", Target: "/d", ReadOnly: true},
			},
		},
		{
			name:    "missing target",
			specs:   []string{"/a"},
			wantErr: true,
		},
		{
			name:    "too many fields",
			specs:   []string{"/a:/b:ro:extra"},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseMountSpecs(tc.specs)
			if (err != nil) != tc.wantErr {
				t.Fatalf("parseMountSpecs() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("parseMountSpecs() = %+v, want %+v", got, tc.want)
			}
		})
	}
}
