package hwaccess

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maazm7d/droidspaces/pkg/sylog"
)

func TestParseGroupLine(t *testing.T) {
	e := parseGroupLine("video:x:44:root,shell")
	if e.name != "video" || e.passwd != "x" || !e.gidOK || e.gid != 44 || e.members != "root,shell" {
		t.Fatalf("unexpected parse: %+v", e)
	}
	if e.serialize() != "video:x:44:root,shell" {
		t.Errorf("untouched serialize = %q, want original line", e.serialize())
	}
}

func TestHasWholeWordMember(t *testing.T) {
	cases := []struct {
		members, member string
		want            bool
	}{
		{"root,shell", "root", true},
		{"root,shell", "shell", true},
		{"rootish,shell", "root", false}, // not a whole-word match
		{"", "root", false},
		{"root", "root", true},
	}
	for _, tc := range cases {
		if got := hasWholeWordMember(tc.members, tc.member); got != tc.want {
			t.Errorf("hasWholeWordMember(%q, %q) = %v, want %v", tc.members, tc.member, got, tc.want)
		}
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "group")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp group file: %v", err)
	}
	return path
}

func TestReconcileGroupsAddsRootToExistingGroup(t *testing.T) {
	path := writeTemp(t, "root:x:0:\nvideo:x:44:shell\n")

	if err := ReconcileGroups(sylog.Discard, path, []uint32{44}); err != nil {
		t.Fatalf("ReconcileGroups: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(out), "video:x:44:shell,root") {
		t.Errorf("expected root appended to video group, got %q", out)
	}
}

func TestReconcileGroupsCreatesMissingGroup(t *testing.T) {
	path := writeTemp(t, "root:x:0:\n")

	if err := ReconcileGroups(sylog.Discard, path, []uint32{3003}); err != nil {
		t.Fatalf("ReconcileGroups: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(out), "gpu_3003:x:3003:root") {
		t.Errorf("expected synthesized gpu_3003 group, got %q", out)
	}
}

func TestReconcileGroupsIsIdempotent(t *testing.T) {
	path := writeTemp(t, "root:x:0:\nvideo:x:44:root\n")

	if err := ReconcileGroups(sylog.Discard, path, []uint32{44}); err != nil {
		t.Fatalf("first ReconcileGroups: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after first pass: %v", err)
	}

	if err := ReconcileGroups(sylog.Discard, path, []uint32{44}); err != nil {
		t.Fatalf("second ReconcileGroups: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after second pass: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("reconciliation not idempotent: first=%q second=%q", first, second)
	}
	if strings.Count(string(second), "root") != strings.Count("root:x:0:\nvideo:x:44:root\n", "root") {
		t.Errorf("root member duplicated across passes: %q", second)
	}
}

func TestReconcileGroupsNoopLeavesFileUntouched(t *testing.T) {
	path := writeTemp(t, "root:x:0:\nvideo:x:44:root\n")
	before, _ := os.Stat(path)

	if err := ReconcileGroups(sylog.Discard, path, []uint32{44}); err != nil {
		t.Fatalf("ReconcileGroups: %v", err)
	}

	after, _ := os.Stat(path)
	if before.ModTime() != after.ModTime() {
		t.Errorf("file was rewritten despite no change needed")
	}
}

func TestReconcileGroupsMissingFileWarnsNotErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist")
	if err := ReconcileGroups(sylog.Discard, path, []uint32{44}); err != nil {
		t.Fatalf("ReconcileGroups on missing file should warn, not error: %v", err)
	}
}
