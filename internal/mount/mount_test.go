package mount

import (
	"reflect"
	"testing"

	"github.com/maazm7d/droidspaces/pkg/sylog"
)

func TestLogRecordsInOrder(t *testing.T) {
	var log Log
	log.Record("/dev", 0)
	log.Record("/dev/pts", 0)
	log.Record("/proc", 0)

	want := []string{"/dev", "/dev/pts", "/proc"}
	if got := log.Targets(); !reflect.DeepEqual(got, want) {
		t.Errorf("Targets() = %v, want %v", got, want)
	}
}

func TestLogRollbackClearsEntries(t *testing.T) {
	var log Log
	log.Record("/nonexistent-a", 0)
	log.Record("/nonexistent-b", 0)

	// Rollback targets don't exist on the test host, so every unmount fails
	// and is reported as a warning — Rollback must still clear the log
	// rather than leave stale entries behind.
	log.Rollback(sylog.Discard)

	if got := log.Targets(); len(got) != 0 {
		t.Errorf("Targets() after Rollback = %v, want empty", got)
	}
}

func TestParentDir(t *testing.T) {
	cases := []struct{ path, want string }{
		{"/a/b/c", "/a/b"},
		{"/a", ""},
		{"noslash", "."},
	}
	for _, tc := range cases {
		if got := parentDir(tc.path); got != tc.want {
			t.Errorf("parentDir(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
