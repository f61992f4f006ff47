package network

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maazm7d/droidspaces/internal/hostcmd"
	"github.com/maazm7d/droidspaces/pkg/sylog"
)

func TestSysctlPath(t *testing.T) {
	cases := []struct{ key, want string }{
		{"net.ipv4.ip_forward", "/proc/sys/net/ipv4/ip_forward"},
		{" net.ipv6.conf.all.forwarding ", "/proc/sys/net/ipv6/conf/all/forwarding"},
	}
	for _, tc := range cases {
		if got := sysctlPath(tc.key); got != tc.want {
			t.Errorf("sysctlPath(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}

func TestResolveDNSPrefersAndroidProperty(t *testing.T) {
	// Recording keys output by command name, not by argument, so a custom
	// Runner is needed to simulate "first two properties empty, third set".
	runner := &firstEmptyThenValue{Recording: hostcmd.NewRecording(), value: "10.0.3.1"}

	got := resolveDNS(sylog.Discard, runner, true)
	want := "nameserver 10.0.3.1\n"
	if got != want {
		t.Errorf("resolveDNS = %q, want %q", got, want)
	}
}

func TestResolveDNSFallsBackWithoutGetprop(t *testing.T) {
	runner := hostcmd.NewRecording()
	runner.Present["getprop"] = false

	got := resolveDNS(sylog.Discard, runner, true)
	want := "nameserver 8.8.8.8\nnameserver 8.8.4.4\n"
	if got != want {
		t.Errorf("resolveDNS = %q, want %q", got, want)
	}
}

func TestResolveDNSNonAndroidSkipsGetprop(t *testing.T) {
	runner := hostcmd.NewRecording()
	got := resolveDNS(sylog.Discard, runner, false)
	if len(runner.Calls) != 0 {
		t.Errorf("expected no getprop calls on non-Android, got %v", runner.Calls)
	}
	if !strings.HasPrefix(got, "nameserver 8.8.8.8") {
		t.Errorf("resolveDNS = %q, want public resolver fallback", got)
	}
}

// firstEmptyThenValue simulates a getprop Runner where the first few
// properties return empty and a later one returns value.
type firstEmptyThenValue struct {
	*hostcmd.Recording
	value string
	calls int
}

func (f *firstEmptyThenValue) Run(name string, args ...string) (string, error) {
	f.calls++
	if f.calls < 3 {
		return "", nil
	}
	return f.value, nil
}

func TestAppendParanoidGroupsAddsMissingOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "group")
	if err := os.WriteFile(path, []byte("root:x:0:\naid_inet:x:3003:\n"), 0o644); err != nil {
		t.Fatalf("write temp group: %v", err)
	}

	if err := appendParanoidGroups(path); err != nil {
		t.Fatalf("appendParanoidGroups: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	content := string(out)
	if strings.Count(content, "aid_inet:") != 1 {
		t.Errorf("aid_inet should not be duplicated, got %q", content)
	}
	if !strings.Contains(content, "aid_net_raw:x:3004:") || !strings.Contains(content, "aid_net_admin:x:3005:") {
		t.Errorf("missing paranoid groups not appended, got %q", content)
	}
}

func TestAppendParanoidGroupsNoopWhenAllPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "group")
	initial := "root:x:0:\naid_inet:x:3003:\naid_net_raw:x:3004:\naid_net_admin:x:3005:\n"
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatalf("write temp group: %v", err)
	}

	if err := appendParanoidGroups(path); err != nil {
		t.Fatalf("appendParanoidGroups: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(out) != initial {
		t.Errorf("file changed when all groups already present: got %q, want %q", out, initial)
	}
}
