package network

import (
	"github.com/maazm7d/droidspaces/internal/hostcmd"
	"github.com/maazm7d/droidspaces/pkg/sylog"
)

// masqueradeSubnet is the fixed NAT range Droidspaces advertises to the
// kernel on Android hosts (spec §4.D).
const masqueradeSubnet = "10.0.3.0/24"

// HostBootstrap performs the pre-namespace network setup: enabling
// forwarding and, on Android, installing NAT masquerade for the container
// subnet. It runs before mount/namespace creation (ordering guarantee O1).
func HostBootstrap(sink sylog.Sink, runner hostcmd.Runner, isAndroid, enableIPv6 bool) error {
	if err := sysctlSet("net.ipv4.ip_forward", "1"); err != nil {
		return err
	}
	if enableIPv6 {
		if err := sysctlSet("net.ipv6.conf.all.forwarding", "1"); err != nil {
			return err
		}
	}

	if !isAndroid {
		return nil
	}

	if _, err := runner.LookPath("iptables"); err != nil {
		sink.Warningf("iptables not found on PATH, skipping NAT masquerade setup")
		return nil
	}

	if _, err := runner.Run("iptables", "-t", "nat", "-C", "POSTROUTING",
		"-s", masqueradeSubnet, "!", "-d", masqueradeSubnet, "-j", "MASQUERADE"); err != nil {
		if _, err := runner.Run("iptables", "-t", "nat", "-A", "POSTROUTING",
			"-s", masqueradeSubnet, "!", "-d", masqueradeSubnet, "-j", "MASQUERADE"); err != nil {
			sink.Warningf("install MASQUERADE rule: %v", err)
		}
	}

	if _, err := runner.Run("iptables", "-C", "FORWARD", "-j", "ACCEPT"); err != nil {
		if _, err := runner.Run("iptables", "-A", "FORWARD", "-j", "ACCEPT"); err != nil {
			sink.Warningf("install FORWARD ACCEPT rule: %v", err)
		}
	}

	return nil
}
