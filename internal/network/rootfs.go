package network

import (
	"fmt"
	"os"
	"strings"

	"github.com/maazm7d/droidspaces/internal/hostcmd"
	"github.com/maazm7d/droidspaces/pkg/sylog"
	"golang.org/x/sys/unix"
)

// dnsProperties is the ordered Android system-property probe list (spec
// §4.D); the first property yielding a non-empty value (including the
// literal "0.0.0.0", per Open Question (b)) wins.
var dnsProperties = []string{
	"net.dns1", "net.dns2",
	"net.eth0.dns1", "net.eth0.dns2",
	"net.wlan0.dns1", "net.wlan0.dns2",
}

// paranoidGroups are the Android paranoid-network filter GIDs (spec §4.D,
// fixed by the platform per §6's Wire/ABI note, not by this engine).
var paranoidGroups = []string{
	"aid_inet:x:3003:",
	"aid_net_raw:x:3004:",
	"aid_net_admin:x:3005:",
}

// RootfsBootstrap performs the post-pivot network setup: UTS hostname,
// /etc/hostname, /etc/hosts, /etc/resolv.conf, and (on Android) the
// paranoid-network group entries. Must run after pivot_root (ordering
// guarantee O3).
func RootfsBootstrap(sink sylog.Sink, runner hostcmd.Runner, isAndroid bool, hostname string) error {
	// An empty Hostname is a valid Config (pkg/config.Validate permits it,
	// meaning "leave the host-inherited hostname alone") — skip sethostname
	// and the hostname-bearing files entirely rather than setting them to "".
	if hostname != "" {
		if err := unix.Sethostname([]byte(hostname)); err != nil {
			return fmt.Errorf("sethostname %q: %w", hostname, err)
		}
		if err := os.WriteFile("/etc/hostname", []byte(hostname+"\n"), 0o644); err != nil {
			return fmt.Errorf("write /etc/hostname: %w", err)
		}

		hosts := fmt.Sprintf("127.0.0.1 localhost\n::1 localhost\n127.0.1.1 %s\n", hostname)
		if err := os.WriteFile("/etc/hosts", []byte(hosts), 0o644); err != nil {
			return fmt.Errorf("write /etc/hosts: %w", err)
		}
	}

	resolv := resolveDNS(sink, runner, isAndroid)
	if err := os.WriteFile("/etc/resolv.conf", []byte(resolv), 0o644); err != nil {
		return fmt.Errorf("write /etc/resolv.conf: %w", err)
	}

	if isAndroid {
		if err := appendParanoidGroups("/etc/group"); err != nil {
			sink.Warningf("append paranoid-network groups: %v", err)
		}
	}

	return nil
}

// resolveDNS probes Android system properties in order via getprop, falling
// back to the public resolvers (spec §4.D, testable property 5).
func resolveDNS(sink sylog.Sink, runner hostcmd.Runner, isAndroid bool) string {
	if isAndroid {
		if _, err := runner.LookPath("getprop"); err == nil {
			for _, prop := range dnsProperties {
				out, err := runner.Run("getprop", prop)
				if err != nil {
					continue
				}
				value := strings.TrimSpace(out)
				if value != "" {
					return "nameserver " + value + "\n"
				}
			}
			sink.Debugf("no Android DNS property yielded a value, falling back to public resolvers")
		}
	}
	return "nameserver 8.8.8.8\nnameserver 8.8.4.4\n"
}

// appendParanoidGroups ensures each of paranoidGroups is present verbatim in
// the group file at path, appending any that are missing.
func appendParanoidGroups(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	existing := string(content)
	lines := strings.Split(strings.TrimRight(existing, "\n"), "\n")
	present := make(map[string]bool, len(lines))
	for _, line := range lines {
		if colon := strings.IndexByte(line, ':'); colon >= 0 {
			present[line[:colon]] = true
		}
	}

	var toAppend strings.Builder
	for _, group := range paranoidGroups {
		name := group[:strings.IndexByte(group, ':')]
		if !present[name] {
			toAppend.WriteString(group)
			toAppend.WriteByte('\n')
		}
	}
	if toAppend.Len() == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", path, err)
	}
	defer f.Close()
	if !strings.HasSuffix(existing, "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(toAppend.String())
	return err
}
