package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/maazm7d/droidspaces/internal/engine"
	"github.com/maazm7d/droidspaces/internal/hostcmd"
	"github.com/maazm7d/droidspaces/internal/platform"
	"github.com/maazm7d/droidspaces/pkg/config"
	"github.com/maazm7d/droidspaces/pkg/sylog"
	"github.com/spf13/cobra"
)

// Execute builds and runs the droidspaces command tree (spec §6 command
// surface): create, start, enter, stop, destroy.
func Execute() {
	root := &cobra.Command{
		Use:           "droidspaces",
		Short:         "A single-binary Linux container runtime for Android hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCreateCmd(), newStartCmd(), newEnterCmd(), newStopCmd(), newDestroyCmd())

	if err := root.Execute(); err != nil {
		sylog.NewDefault().Errorf("%s", err)
		os.Exit(config.ExitCode(err))
	}
}

func newEngine() *engine.Engine {
	probe := platform.NewProbe()
	sink := sylog.NewDefault()
	return engine.NewEngine(sink, hostcmd.Exec{}, probe, probe.Workspace())
}

func newCreateCmd() *cobra.Command {
	var (
		hostname   string
		ipv6       bool
		hwAccess   bool
		termuxX11  bool
		mountSpecs []string
		initMode   string
	)
	cmd := &cobra.Command{
		Use:   "create --name N --rootfs P",
		Short: "Create a container workspace without starting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			rootfs, _ := cmd.Flags().GetString("rootfs")

			mounts, err := parseMountSpecs(mountSpecs)
			if err != nil {
				return err
			}

			cfg := config.Config{
				ContainerName: name,
				Rootfs:        rootfs,
				Hostname:      hostname,
				InitMode:      config.InitMode(initMode),
				EnableIPv6:    ipv6,
				HWAccess:      hwAccess,
				TermuxX11:     termuxX11,
				Mounts:        mounts,
			}

			e := newEngine()
			if _, err := e.Create(cfg); err != nil {
				return err
			}
			fmt.Printf("created %s\n", name)
			return nil
		},
	}
	cmd.Flags().String("name", "", "container name")
	cmd.Flags().String("rootfs", "", "rootfs directory or image path")
	cmd.Flags().StringVar(&hostname, "hostname", "", "container hostname")
	cmd.Flags().StringVar(&initMode, "init-mode", string(config.InitShell), "init mode: systemd, shell, custom_argv")
	cmd.Flags().BoolVar(&ipv6, "ipv6", false, "enable IPv6 forwarding")
	cmd.Flags().BoolVar(&hwAccess, "hw-access", false, "share host /dev and GPU groups")
	cmd.Flags().BoolVar(&termuxX11, "termux-x11", false, "bridge Termux's X11/VirGL sockets")
	cmd.Flags().StringArrayVar(&mountSpecs, "mount", nil, "extra bind mount src:tgt[:ro]")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("rootfs")
	return cmd
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start --name N",
		Short: "Boot a container and attach to its console",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			e := newEngine()
			cfg, err := e.LoadConfig(name)
			if err != nil {
				return err
			}
			inst := &config.Instance{Config: cfg, Phase: config.PhaseCreated}
			if err := e.Boot(inst); err != nil {
				return err
			}
			return e.AttachConsole(inst)
		},
	}
	cmd.Flags().String("name", "", "container name")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newEnterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enter --name N [user]",
		Short: "Open a new session inside a running container, optionally as user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			var user string
			if len(args) == 1 {
				user = args[0]
			}
			e := newEngine()
			pid, err := e.RunningPID(name)
			if err != nil {
				return err
			}
			inst := &config.Instance{Config: config.Config{ContainerName: name}, PID: pid}
			return e.Exec(inst, user)
		},
	}
	cmd.Flags().String("name", "", "container name")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop --name N",
		Short: "Signal a running container's init to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			e := newEngine()
			pid, err := e.RunningPID(name)
			if err != nil {
				return err
			}
			inst := &config.Instance{Config: config.Config{ContainerName: name}, PID: pid, Phase: config.PhaseRunning}
			return e.Stop(inst)
		},
	}
	cmd.Flags().String("name", "", "container name")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newDestroyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy --name N",
		Short: "Tear down a container's workspace and resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			e := newEngine()
			inst := &config.Instance{Config: config.Config{ContainerName: name}}
			return e.Destroy(inst)
		},
	}
	cmd.Flags().String("name", "", "container name")
	cmd.MarkFlagRequired("name")
	return cmd
}

// parseMountSpecs parses "src:tgt[:ro]" entries into config.MountSpec values.
func parseMountSpecs(specs []string) ([]config.MountSpec, error) {
	out := make([]config.MountSpec, 0, len(specs))
	for _, s := range specs {
		parts := strings.Split(s, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("malformed mount spec %q, want src:tgt[:ro]", s)
		}
		ro := len(parts) == 3 && parts[2] == "ro"
		out = append(out, config.MountSpec{Source: parts[0], Target: parts[1], ReadOnly: ro})
	}
	return out, nil
}
