// Package config holds the data model the rest of Droidspaces operates on:
// the immutable Config a caller hands to the engine, and the Instance state
// the engine maintains for a booted container. Neither type reaches for a
// logger or touches the filesystem — both are plain records, matching the
// teacher's EngineConfig/JSONConfig split between "what the caller asked
// for" and "what is true about the running container".
package config

import (
	"fmt"
	"strings"
)

// InitMode selects what Droidspaces execs as PID 1 inside the container.
type InitMode string

const (
	InitSystemd    InitMode = "systemd"
	InitShell      InitMode = "shell"
	InitCustomArgv InitMode = "custom_argv"
)

// MountSpec is one entry of Config.Mounts: an extra bind mount requested by
// the caller, laid down after the engine's own mount topology (§4.C, I4).
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Config is the immutable record passed by value into the engine. It is
// validated once, in Engine.Create, and never mutated afterward.
type Config struct {
	ContainerName string
	Rootfs        string
	Hostname      string
	InitMode      InitMode
	CustomArgv    []string // used only when InitMode == InitCustomArgv
	EnableIPv6    bool
	HWAccess      bool
	TermuxX11     bool
	Env           map[string]string
	Mounts        []MountSpec
}

// reservedNames are workspace subdirectories a container name must not
// collide with (spec §6's containers/ and run/ layout).
var reservedNames = map[string]bool{
	"run":        true,
	"containers": true,
}

// Validate enforces the Config invariants from spec §3: a non-empty,
// printable, slash-free container name that isn't a reserved workspace
// path, an absolute rootfs path, and a well-formed init mode.
func (c Config) Validate() error {
	if c.ContainerName == "" {
		return NewConfigError("container_name must not be empty", nil)
	}
	if strings.ContainsRune(c.ContainerName, '/') {
		return NewConfigError(fmt.Sprintf("container_name %q must not contain '/'", c.ContainerName), nil)
	}
	if !isPrintable(c.ContainerName) {
		return NewConfigError(fmt.Sprintf("container_name %q contains non-printable characters", c.ContainerName), nil)
	}
	if reservedNames[c.ContainerName] {
		return NewConfigError(fmt.Sprintf("container_name %q collides with a reserved workspace directory", c.ContainerName), nil)
	}
	if c.Rootfs == "" || c.Rootfs[0] != '/' {
		return NewConfigError(fmt.Sprintf("rootfs %q must be an absolute path", c.Rootfs), nil)
	}
	switch c.InitMode {
	case InitSystemd, InitShell, InitCustomArgv:
	default:
		return NewConfigError(fmt.Sprintf("init_mode %q is not one of systemd, shell, custom_argv", c.InitMode), nil)
	}
	if c.InitMode == InitCustomArgv && len(c.CustomArgv) == 0 {
		return NewConfigError("init_mode custom_argv requires a non-empty argv", nil)
	}
	seen := map[string]bool{}
	for k := range c.Env {
		if seen[k] {
			return NewConfigError(fmt.Sprintf("duplicate env key %q", k), nil)
		}
		seen[k] = true
	}
	return nil
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// Phase is one state in the lifecycle state machine of spec §4.H.
type Phase string

const (
	PhaseCreated   Phase = "created"
	PhaseMounting  Phase = "mounting"
	PhasePivoting  Phase = "pivoting"
	PhaseBooting   Phase = "booting"
	PhaseRunning   Phase = "running"
	PhaseStopping  Phase = "stopping"
	PhaseDestroyed Phase = "destroyed"
)

// phaseOrder gives each phase a monotonic rank so advancement can be
// checked cheaply (invariant I3: phase advances monotonically, pivoting
// always precedes booting).
var phaseOrder = map[Phase]int{
	PhaseCreated:   0,
	PhaseMounting:  1,
	PhasePivoting:  2,
	PhaseBooting:   3,
	PhaseRunning:   4,
	PhaseStopping:  5,
	PhaseDestroyed: 6,
}

// CanAdvance reports whether a transition from 'from' to 'to' is a forward,
// non-skipping move in the state machine.
func CanAdvance(from, to Phase) bool {
	fo, fok := phaseOrder[from]
	to_, tok := phaseOrder[to]
	if !fok || !tok {
		return false
	}
	return to_ == fo+1
}

// ConsolePTY is the master/slave file descriptor pair of the PTY bridge
// (spec §4.G). Master is kept FD_CLOEXEC (invariant I2).
type ConsolePTY struct {
	MasterFd  int
	SlaveFd   int
	SlavePath string
}

// Instance is the engine's runtime state for one container, mutated only by
// the orchestrator (spec §3).
type Instance struct {
	Config       Config
	InstanceID   string // per-boot tag (spec §6), used for log correlation
	PID          int
	RootfsMount  string
	Console      ConsolePTY
	TTYSlaves    []string
	GPUGids      []uint32
	KernelMajor  int
	KernelMinor  int
	Phase        Phase
	BridgeOwned  bool // true if this run created the Termux tmpfs bridge
	ImageMounted bool // true if Rootfs was a loop-mounted image
}
