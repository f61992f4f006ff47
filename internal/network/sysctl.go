// Package network implements Component D of spec §4: the host-phase
// IPv4/IPv6 forwarding and NAT masquerade setup performed before namespace
// creation, and the rootfs-phase hostname/hosts/resolv.conf/paranoid-GID
// writes performed after pivot_root. Grounded on the teacher's
// pkg/util/sysctl (the /proc/sys read/write helper) for the former and on
// internal/hostcmd for the iptables and getprop shell-outs the teacher's
// bin.FindBin pattern models.
package network

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const procSys = "/proc/sys"

func sysctlPath(key string) string {
	return filepath.Join(procSys, strings.ReplaceAll(strings.TrimSpace(key), ".", string(os.PathSeparator)))
}

// sysctlSet writes value to the /proc/sys node for key, mirroring the
// teacher's pkg/util/sysctl.Set.
func sysctlSet(key, value string) error {
	path := sysctlPath(key)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("sysctl key %s: %w", key, err)
	}
	if err := os.WriteFile(path, []byte(value), 0o000); err != nil {
		return fmt.Errorf("sysctl set %s: %w", key, err)
	}
	return nil
}
