// Package engine implements Component H of spec §4.H: the lifecycle
// orchestrator driving a container through
// created→mounting→pivoting→booting→running→stopping→destroyed. It is the
// thinnest possible analogue of the teacher's
// internal/pkg/runtime/engine/apptainer engine_linux.go/container_linux.go
// pair, reduced to one binary that re-execs itself as the init child, with
// no privilege-separated RPC layer
// (spec §1 Non-goals: the engine assumes CAP_SYS_ADMIN already).
package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/maazm7d/droidspaces/internal/console"
	"github.com/maazm7d/droidspaces/internal/hostcmd"
	"github.com/maazm7d/droidspaces/internal/hwaccess"
	"github.com/maazm7d/droidspaces/internal/initproto"
	"github.com/maazm7d/droidspaces/internal/mount"
	"github.com/maazm7d/droidspaces/internal/network"
	"github.com/maazm7d/droidspaces/internal/platform"
	"github.com/maazm7d/droidspaces/pkg/config"
	"github.com/maazm7d/droidspaces/pkg/sylog"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ReexecMarker is the argv[1] sentinel the droidspaces-init child checks
// for; this binary is built once and serves both as the CLI entry point and
// as its own init child, the standard Go self-reexec pattern.
const ReexecMarker = "droidspaces-init"

// stopGrace is the fixed interval between SIGTERM and SIGKILL during Stop
// (spec §5 suspension points; not configurable, matching the fixed 500ms
// Termux-stop grace in the same section).
const stopGrace = 5 * time.Second

// Engine orchestrates one container's lifecycle. Sink, Runner, and Probe
// are injected collaborators rather than package globals (design note §9).
type Engine struct {
	Sink      sylog.Sink
	Runner    hostcmd.Runner
	Probe     *platform.Probe
	Workspace string
	SelfPath  string // path to this binary, used for the self-reexec

	images map[string]*mount.MountedImage
}

// NewEngine builds an Engine. SelfPath defaults to os.Executable() if empty.
func NewEngine(sink sylog.Sink, runner hostcmd.Runner, probe *platform.Probe, workspace string) *Engine {
	return &Engine{
		Sink:      sink,
		Runner:    runner,
		Probe:     probe,
		Workspace: workspace,
		images:    map[string]*mount.MountedImage{},
	}
}

// advancePhase moves inst to the next phase, refusing any transition that
// isn't a single forward step (invariant I3: phase advances monotonically
// through every declared state, pivoting always precedes booting).
func (e *Engine) advancePhase(inst *config.Instance, to config.Phase) error {
	if !config.CanAdvance(inst.Phase, to) {
		return config.NewConfigError(fmt.Sprintf("cannot advance from phase %s to %s", inst.Phase, to), nil)
	}
	inst.Phase = to
	return nil
}

func (e *Engine) containerDir(name string) string {
	return filepath.Join(e.Workspace, "containers", name)
}

func (e *Engine) runDir() string {
	return filepath.Join(e.Workspace, "run")
}

// Create validates cfg and lays down the on-disk workspace layout (spec
// §6 persisted state layout) but does not start the container.
func (e *Engine) Create(cfg config.Config) (*config.Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dir := e.containerDir(cfg.ContainerName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, config.NewConfigError(fmt.Sprintf("create container directory %s", dir), err)
	}
	if err := os.MkdirAll(e.runDir(), 0o755); err != nil {
		return nil, config.NewConfigError("create run directory", err)
	}

	if isDirRootfs(cfg.Rootfs) {
		if err := os.MkdirAll(filepath.Join(dir, "rootfs"), 0o755); err != nil {
			return nil, config.NewConfigError("create rootfs directory", err)
		}
	}

	if err := e.persistConfig(cfg); err != nil {
		return nil, config.NewConfigError("persist container configuration", err)
	}

	return &config.Instance{Config: cfg, Phase: config.PhaseCreated}, nil
}

// persistConfig writes cfg as JSON to containers/<name>/config (spec §6
// persisted state layout), the record `start` re-reads to rebuild an
// Instance across process invocations.
func (e *Engine) persistConfig(cfg config.Config) error {
	path := filepath.Join(e.containerDir(cfg.ContainerName), "config")
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadConfig reads back the persisted Config for name, the counterpart to
// persistConfig used by start after a fresh process invocation of the CLI.
func (e *Engine) LoadConfig(name string) (config.Config, error) {
	path := filepath.Join(e.containerDir(name), "config")
	data, err := os.ReadFile(path)
	if err != nil {
		return config.Config{}, config.NewConfigError(fmt.Sprintf("read persisted config for %s", name), err)
	}
	var cfg config.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return config.Config{}, config.NewConfigError(fmt.Sprintf("parse persisted config for %s", name), err)
	}
	return cfg, nil
}

func isDirRootfs(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Boot drives an Instance from created through running: host network and
// GPU scan, optional image mount, then a self-reexec into a fresh set of
// namespaces where the child performs the rest of §4.H's table (mount
// topology, pivot_root, post-pivot hooks, seccomp, PTY handoff, exec of
// init). Boot returns once the child signals it has reached running, or
// with a typed error if any phase before running fails.
func (e *Engine) Boot(inst *config.Instance) error {
	if inst.Phase != config.PhaseCreated {
		return config.NewConfigError(fmt.Sprintf("cannot boot from phase %s", inst.Phase), nil)
	}
	inst.InstanceID = uuid.NewString()
	if err := e.advancePhase(inst, config.PhaseMounting); err != nil {
		return err
	}
	e.Sink.Debugf("booting instance %s (%s)", inst.Config.ContainerName, inst.InstanceID)

	if err := network.HostBootstrap(e.Sink, e.Runner, e.Probe.IsAndroid(), inst.Config.EnableIPv6); err != nil {
		return err
	}

	if inst.Config.HWAccess {
		inst.GPUGids = hwaccess.ScanGPUDevices(e.Sink)
	}

	rootfsMount := inst.Config.Rootfs
	if !isDirRootfs(inst.Config.Rootfs) {
		img, err := mount.MountRootfsImg(e.Sink, e.Runner, &mount.Log{}, e.Workspace, inst.Config.Rootfs, false)
		if err != nil {
			return err
		}
		e.images[inst.Config.ContainerName] = img
		rootfsMount = img.MountPoint
		inst.ImageMounted = true
	} else {
		rootfsMount = filepath.Join(e.containerDir(inst.Config.ContainerName), "rootfs")
		if err := mount.BindMount(inst.Config.Rootfs, rootfsMount, false); err != nil {
			return err
		}
	}
	inst.RootfsMount = rootfsMount

	if inst.Config.TermuxX11 && e.Probe.IsAndroid() {
		uid, gid, err := hwaccess.ResolveTermuxOwner()
		if err != nil {
			e.Sink.Warningf("resolve termux owner: %v", err)
		}
		created, err := hwaccess.EnsureTermuxBridge(e.Sink, e.Runner, uid, gid)
		if err != nil {
			e.Sink.Warningf("termux bridge setup: %v", err)
		}
		inst.BridgeOwned = created
	}

	km, kn := e.Probe.KernelVersion()
	inst.KernelMajor, inst.KernelMinor = km, kn

	pty, err := console.Open()
	if err != nil {
		return err
	}
	inst.Console = pty
	inst.TTYSlaves = []string{pty.SlavePath}

	return e.spawnInit(inst)
}

// spawnInit self-reexecs into a fresh mount/uts/pid/ipc/net namespace set
// (ordering guarantee O1: all namespace creation precedes all mounts),
// handing the child an initproto.Request over fd 3 and waiting on fd 4 for
// readiness.
func (e *Engine) spawnInit(inst *config.Instance) error {
	reqR, reqW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create request pipe: %w", err)
	}
	defer reqR.Close()

	respR, respW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create response pipe: %w", err)
	}
	defer respW.Close()

	self := e.SelfPath
	if self == "" {
		self, err = os.Executable()
		if err != nil {
			return fmt.Errorf("resolve self path: %w", err)
		}
	}

	slave := os.NewFile(uintptr(inst.Console.SlaveFd), "pty-slave")

	cmd := exec.Command(self, ReexecMarker)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	// fd 3 = init request, fd 4 = init response, fd 5 = pty slave (see
	// cmd/droidspaces's reexec.go, which reads these by fixed number).
	cmd.ExtraFiles = []*os.File{reqR, respW, slave}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS | syscall.CLONE_NEWUTS | syscall.CLONE_NEWPID |
			syscall.CLONE_NEWIPC | syscall.CLONE_NEWNET,
	}

	// Pivoting covers the child's pivot_root and post-pivot setup, which
	// start the instant the reexec'd process is scheduled.
	if err := e.advancePhase(inst, config.PhasePivoting); err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return config.NewInitError(err)
	}
	reqR.Close()
	respW.Close()
	slave.Close()

	// Booting covers everything from the child successfully launching
	// through its own seccomp/exec sequence up to the readiness signal.
	if err := e.advancePhase(inst, config.PhaseBooting); err != nil {
		return err
	}

	req := initproto.Request{
		Config:      inst.Config,
		RootfsMount: inst.RootfsMount,
		GPUGids:     inst.GPUGids,
		IsAndroid:   e.Probe.IsAndroid(),
		KernelMajor: inst.KernelMajor,
		KernelMinor: inst.KernelMinor,
		SlaveFd:     5, // see cmd.ExtraFiles above
		SlavePath:   inst.Console.SlavePath,
	}
	if err := initproto.WriteRequest(reqW, req); err != nil {
		reqW.Close()
		cmd.Process.Kill()
		return err
	}
	reqW.Close()

	resp, err := initproto.ReadResponse(bufio.NewReader(respR))
	if err != nil {
		cmd.Wait()
		return config.NewInitError(fmt.Errorf("init child exited before signaling readiness: %w", err))
	}
	if !resp.Ready {
		cmd.Wait()
		return config.NewInitError(fmt.Errorf("init child reported failure: %s", resp.Error))
	}

	inst.PID = cmd.Process.Pid
	if err := e.advancePhase(inst, config.PhaseRunning); err != nil {
		return err
	}
	if err := e.persistPID(inst.Config.ContainerName, inst.PID); err != nil {
		e.Sink.Warningf("persist pid file: %v", err)
	}
	return nil
}

// AttachConsole bridges the supervising process's stdio to the container's
// PTY master (spec §4.G), blocking until the session ends.
func (e *Engine) AttachConsole(inst *config.Instance) error {
	return console.Bridge(inst.Console.MasterFd, os.Stdin, os.Stdout)
}

// Exec enters the container's namespaces via /proc/<pid>/ns, then execs
// either a login as user (resolved by resolveUserEntry) or a bare shell when
// user is empty — the `enter --name N [user]` command surface supplemented
// from the original implementation (SPEC_FULL.md §C).
func (e *Engine) Exec(inst *config.Instance, user string) error {
	if inst.PID == 0 {
		return config.NewConfigError("container has no running init process", nil)
	}
	for _, ns := range []string{"mnt", "uts", "ipc", "net", "pid"} {
		path := fmt.Sprintf("/proc/%d/ns/%s", inst.PID, ns)
		fd, err := unix.Open(path, unix.O_RDONLY, 0)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		err = unix.Setns(fd, 0)
		unix.Close(fd)
		if err != nil {
			return fmt.Errorf("setns %s: %w", ns, err)
		}
	}

	bin, argv := resolveUserEntry(user)
	return unix.Exec(bin, argv, os.Environ())
}

// resolveUserEntry picks how to become user inside the just-entered
// namespace set: su if present on the container's PATH, /bin/login as a
// fallback, or a bare shell if neither exists (SPEC_FULL.md §C). An empty
// user always resolves to a bare shell.
func resolveUserEntry(user string) (bin string, argv []string) {
	if user == "" {
		return "/bin/sh", []string{"/bin/sh"}
	}
	if path, err := exec.LookPath("su"); err == nil {
		return path, []string{path, "-", user}
	}
	if _, err := os.Stat("/bin/login"); err == nil {
		return "/bin/login", []string{"/bin/login", "-f", user}
	}
	return "/bin/sh", []string{"/bin/sh"}
}

// Stop signals init with SIGTERM, waits up to stopGrace, then escalates to
// SIGKILL (spec §4.H running→stopping). It does not tear down mounts or
// namespaces — the kernel does that when the child's PID namespace's PID 1
// exits — it only waits for that to happen before returning.
func (e *Engine) Stop(inst *config.Instance) error {
	if err := e.advancePhase(inst, config.PhaseStopping); err != nil {
		return err
	}

	proc, err := os.FindProcess(inst.PID)
	if err != nil {
		return errors.Wrapf(err, "find init process %d", inst.PID)
	}

	if err := proc.Signal(unix.SIGTERM); err != nil && err != os.ErrProcessDone {
		e.Sink.Warningf("SIGTERM to init pid %d: %v", inst.PID, err)
	}

	done := make(chan error, 1)
	go func() { _, err := proc.Wait(); done <- err }()

	select {
	case <-done:
	case <-time.After(stopGrace):
		e.Sink.Warningf("init pid %d did not exit within grace period, sending SIGKILL", inst.PID)
		proc.Signal(unix.SIGKILL)
		<-done
	}

	return nil
}

// Destroy releases every resource the Instance owns: the Termux bridge (if
// this run created it), the loop-mounted rootfs image (if any), and the PTY
// fds (spec §4.H stopping→destroyed, §5 resource ownership).
func (e *Engine) Destroy(inst *config.Instance) error {
	if inst.BridgeOwned {
		hwaccess.TeardownTermuxBridge(e.Sink)
	}

	if inst.ImageMounted {
		if img, ok := e.images[inst.Config.ContainerName]; ok {
			if err := mount.UnmountRootfsImg(e.Sink, img); err != nil {
				e.Sink.Warningf("unmount rootfs image: %v", err)
			}
			delete(e.images, inst.Config.ContainerName)
		}
	}

	if inst.Console.MasterFd != 0 {
		unix.Close(inst.Console.MasterFd)
	}
	if inst.Console.SlaveFd != 0 {
		unix.Close(inst.Console.SlaveFd)
	}

	dir := e.containerDir(inst.Config.ContainerName)
	if err := os.RemoveAll(dir); err != nil {
		e.Sink.Warningf("remove container directory %s: %v", dir, err)
	}

	pidFile := filepath.Join(e.runDir(), inst.Config.ContainerName+".pid")
	os.Remove(pidFile)
	sockFile := filepath.Join(e.runDir(), inst.Config.ContainerName+".sock")
	os.Remove(sockFile)

	inst.Phase = config.PhaseDestroyed
	return nil
}

// persistPID writes the init PID to run/<name>.pid, the file the `enter`
// and `stop` commands read back (spec §6 persisted state layout).
func (e *Engine) persistPID(name string, pid int) error {
	path := filepath.Join(e.runDir(), name+".pid")
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// RunningPID reads back run/<name>.pid, letting a fresh CLI invocation of
// enter/stop reconstruct which process to act on.
func (e *Engine) RunningPID(name string) (int, error) {
	path := filepath.Join(e.runDir(), name+".pid")
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid in %s: %w", path, err)
	}
	return pid, nil
}
