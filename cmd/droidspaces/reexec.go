package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/maazm7d/droidspaces/internal/console"
	"github.com/maazm7d/droidspaces/internal/hostcmd"
	"github.com/maazm7d/droidspaces/internal/hwaccess"
	"github.com/maazm7d/droidspaces/internal/initproto"
	"github.com/maazm7d/droidspaces/internal/mount"
	"github.com/maazm7d/droidspaces/internal/network"
	"github.com/maazm7d/droidspaces/internal/seccomp"
	"github.com/maazm7d/droidspaces/pkg/config"
	"github.com/maazm7d/droidspaces/pkg/sylog"
	"golang.org/x/sys/unix"
)

// runInitChild is the droidspaces-init body: it runs inside the freshly
// unshared namespace set the parent created via Cloneflags (ordering
// guarantee O1), builds the mount topology, pivots root, wires the PTY, and
// execs init. It never returns on success — the final unix.Exec replaces
// this process image (spec §4.H booting→running).
func runInitChild() {
	sink := sylog.NewDefault()

	req, err := initproto.ReadRequest(os.NewFile(3, "init-request"))
	if err != nil {
		sink.Errorf("read init request: %v", err)
		os.Exit(1)
	}
	respW := os.NewFile(4, "init-response")

	if err := bootContainer(sink, req); err != nil {
		initproto.WriteResponse(respW, initproto.Response{Ready: false, Error: err.Error()})
		respW.Close()
		os.Exit(1)
	}

	initproto.WriteResponse(respW, initproto.Response{Ready: true})
	respW.Close()

	argv, env := initArgvEnv(req.Config)
	if err := unix.Exec(argv[0], argv, env); err != nil {
		sink.Errorf("exec init %v: %v", argv, err)
		os.Exit(int(config.ExitInitExecFailure))
	}
}

func bootContainer(sink sylog.Sink, req initproto.Request) error {
	log := &mount.Log{}
	rootfs := req.RootfsMount

	if err := mount.SetupDev(log, sink, rootfs, req.Config.HWAccess); err != nil {
		log.Rollback(sink)
		return err
	}
	if err := mount.SetupDevpts(log, rootfs); err != nil {
		log.Rollback(sink)
		return err
	}
	if err := mount.SetupCgroups(log, rootfs); err != nil {
		log.Rollback(sink)
		return err
	}

	procDir := filepath.Join(rootfs, "proc")
	if err := os.MkdirAll(procDir, 0o555); err != nil {
		log.Rollback(sink)
		return fmt.Errorf("mkdir %s: %w", procDir, err)
	}
	if err := mount.Domount("proc", procDir, "proc", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, ""); err != nil {
		log.Rollback(sink)
		return err
	}
	log.Record(procDir, unix.MNT_DETACH)

	sysDir := filepath.Join(rootfs, "sys")
	if err := os.MkdirAll(sysDir, 0o555); err != nil {
		log.Rollback(sink)
		return fmt.Errorf("mkdir %s: %w", sysDir, err)
	}
	if err := mount.Domount("sysfs", sysDir, "sysfs", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, ""); err != nil {
		log.Rollback(sink)
		return err
	}
	log.Record(sysDir, unix.MNT_DETACH)

	for _, m := range req.Config.Mounts {
		target := filepath.Join(rootfs, m.Target)
		if err := mount.BindMount(m.Source, target, m.ReadOnly); err != nil {
			log.Rollback(sink)
			return err
		}
		log.Record(target, unix.MNT_DETACH)
	}

	if req.Config.TermuxX11 || req.Config.HWAccess {
		if err := hwaccess.BindX11(log, rootfs, req.IsAndroid); err != nil {
			sink.Warningf("X11/VirGL bridge: %v", err)
		}
	}

	// The slave device node only resolves against the host's devpts while
	// rootfs is still bind-mounted at its pre-pivot path, so these binds
	// must happen before pivotRoot (ordering guarantee O3's mirror image:
	// host-visible paths are gone the instant pivot_root returns).
	if err := console.BindSlaveOverConsole(log, req.SlavePath, filepath.Join(rootfs, "dev", "console")); err != nil {
		sink.Warningf("bind pty slave over /dev/console: %v", err)
	}
	for i := 1; i <= 4; i++ {
		target := filepath.Join(rootfs, "dev", fmt.Sprintf("tty%d", i))
		if err := console.BindSlaveOverConsole(log, req.SlavePath, target); err != nil {
			sink.Warningf("bind pty slave over %s: %v", target, err)
		}
	}

	if err := pivotRoot(rootfs); err != nil {
		log.Rollback(sink)
		return err
	}

	if err := network.RootfsBootstrap(sink, hostcmd.Exec{}, req.IsAndroid, req.Config.Hostname); err != nil {
		sink.Warningf("rootfs network bootstrap: %v", err)
	}

	if req.Config.HWAccess && len(req.GPUGids) > 0 {
		if err := hwaccess.ReconcileGroups(sink, "/etc/group", req.GPUGids); err != nil {
			sink.Warningf("GPU group reconciliation: %v", err)
		}
	}

	// fd 5 is the PTY slave the parent opened before exec (see
	// engine.spawnInit's ExtraFiles) — inherited rather than reopened by
	// path, since the path no longer resolves post-pivot.
	if err := console.BecomeControllingTTY(5); err != nil {
		return err
	}

	if err := seccomp.SetNoNewPrivs(); err != nil {
		sink.Warningf("set no-new-privs: %v", err)
	}
	policy := seccomp.Policy{
		IsSystemd:   req.Config.InitMode == config.InitSystemd,
		KernelMajor: req.KernelMajor,
	}
	if err := seccomp.Install(policy); err != nil {
		sink.Warningf("install seccomp filter: %v", err)
	}

	return nil
}

// pivotRoot moves rootfs to be the new / and the old root to rootfs/.oldroot,
// then unmounts and removes it (spec §4.H mounting→pivoting).
func pivotRoot(rootfs string) error {
	if err := unix.Mount(rootfs, rootfs, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return config.NewPivotError(err)
	}
	oldRoot := filepath.Join(rootfs, ".oldroot")
	if err := os.MkdirAll(oldRoot, 0o700); err != nil {
		return config.NewPivotError(err)
	}
	if err := unix.PivotRoot(rootfs, oldRoot); err != nil {
		return config.NewPivotError(err)
	}
	if err := unix.Chdir("/"); err != nil {
		return config.NewPivotError(err)
	}
	if err := unix.Unmount("/.oldroot", unix.MNT_DETACH); err != nil {
		return config.NewPivotError(err)
	}
	os.Remove("/.oldroot")
	return nil
}

func initArgvEnv(cfg config.Config) (argv []string, env []string) {
	switch cfg.InitMode {
	case config.InitSystemd:
		argv = []string{"/sbin/init"}
	case config.InitCustomArgv:
		argv = cfg.CustomArgv
	default:
		argv = []string{"/bin/sh"}
	}

	env = []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	return argv, env
}
