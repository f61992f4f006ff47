// Package seccomp implements Component F of spec §4.F: the kernel-version-
// and init-mode-aware BPF filter installed just before exec of init. Built
// with libseccomp-golang's filter/rule/condition API, the same library the
// teacher's internal/pkg/security/seccomp wraps — CompareMaskedEqual in
// particular is exactly the primitive the teacher's scmpCompareOpMap maps
// OpMaskedEqual onto, which is what the namespace-flag mask check needs.
package seccomp

import (
	"fmt"
	"syscall"

	lseccomp "github.com/seccomp/libseccomp-golang"
)

// namespaceFlags are the individual CLONE_NEW* bits rule 3 (spec §4.F)
// denies unshare/clone for, fixed per Open Question (c). Each is checked as
// its own masked-equal condition rather than one combined mask, since the
// rule must fire when ANY of these bits is set (e.g. `unshare --mount`,
// which sets only CLONE_NEWNS), not only when all of them are set together.
var namespaceFlags = []uint64{
	0x00020000, // CLONE_NEWNS
	0x02000000, // CLONE_NEWCGROUP
	0x04000000, // CLONE_NEWUTS
	0x08000000, // CLONE_NEWIPC
	0x10000000, // CLONE_NEWUSER
	0x20000000, // CLONE_NEWPID
	0x40000000, // CLONE_NEWNET
}

// Policy captures the two decisions that change the installed program:
// whether init is systemd (only systemd triggers the namespace-flag rule)
// and the detected kernel version (only <5.0 triggers it).
type Policy struct {
	IsSystemd   bool
	KernelMajor int
}

// denyNamespaceFlags reports whether rule 3 (spec §4.F) applies: systemd
// init on a pre-5.0 kernel, working around the grab_super deadlock.
func (p Policy) denyNamespaceFlags() bool {
	return p.IsSystemd && p.KernelMajor > 0 && p.KernelMajor < 5
}

// keyringSyscalls are stubbed with ENOSYS so systemd and libc don't loop
// retrying an inaccessible Android keyring (spec §4.F rule 2).
var keyringSyscalls = []string{"keyctl", "add_key", "request_key"}

// namespaceSyscalls are the two calls rule 3 conditionally denies.
var namespaceSyscalls = []string{"unshare", "clone"}

// Install builds and loads the filter via SECCOMP_MODE_FILTER, after the
// caller has already set PR_SET_NO_NEW_PRIVS (ordering guarantee O5). A
// build or load failure is returned for the caller to log and ignore —
// spec §4.F: "failure is logged but does not abort boot."
func Install(policy Policy) error {
	filter, err := lseccomp.NewFilter(lseccomp.ActAllow)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()

	if err := filter.SetNoNewPrivsBit(false); err != nil {
		return fmt.Errorf("set no-new-privs bit on filter: %w", err)
	}

	if err := addTrapRule(filter, "reboot"); err != nil {
		return err
	}
	if err := addErrnoRules(filter, keyringSyscalls, syscall.ENOSYS); err != nil {
		return err
	}
	if policy.denyNamespaceFlags() {
		if err := addNamespaceMaskRules(filter); err != nil {
			return err
		}
	}

	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func addTrapRule(filter *lseccomp.ScmpFilter, name string) error {
	nr, err := lseccomp.GetSyscallFromName(name)
	if err != nil {
		// Not every kernel build exposes every syscall by this name; skip
		// rather than fail the whole filter.
		return nil
	}
	if err := filter.AddRule(nr, lseccomp.ActTrap); err != nil {
		return fmt.Errorf("add trap rule for %s: %w", name, err)
	}
	return nil
}

func addErrnoRules(filter *lseccomp.ScmpFilter, names []string, errno syscall.Errno) error {
	action := lseccomp.ActErrno.SetReturnCode(int16(errno))
	for _, name := range names {
		nr, err := lseccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		if err := filter.AddRule(nr, action); err != nil {
			return fmt.Errorf("add errno(%d) rule for %s: %w", errno, name, err)
		}
	}
	return nil
}

// addNamespaceMaskRules adds one conditional EPERM rule per namespace flag
// on unshare/clone's first argument, so the deny fires when any single flag
// is set rather than only when every flag is set at once (scenario S3:
// `unshare --mount` inside the container must return EPERM).
func addNamespaceMaskRules(filter *lseccomp.ScmpFilter) error {
	action := lseccomp.ActErrno.SetReturnCode(int16(syscall.EPERM))
	for _, name := range namespaceSyscalls {
		nr, err := lseccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		for _, flag := range namespaceFlags {
			cond, err := lseccomp.MakeCondition(0, lseccomp.CompareMaskedEqual, flag, flag)
			if err != nil {
				return fmt.Errorf("make namespace-flag condition for %s: %w", name, err)
			}
			if err := filter.AddRuleConditional(nr, action, []lseccomp.ScmpCondition{cond}); err != nil {
				return fmt.Errorf("add conditional rule for %s: %w", name, err)
			}
		}
	}
	return nil
}

// SetNoNewPrivs sets PR_SET_NO_NEW_PRIVS, which must precede Install
// (ordering guarantee O5).
func SetNoNewPrivs() error {
	_, _, errno := syscall.Syscall6(syscall.SYS_PRCTL, syscall.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0, 0)
	if errno != 0 {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", errno)
	}
	return nil
}
