package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wardend/warden/internal/engine"
	"github.com/wardend/warden/internal/install"
	"github.com/wardend/warden/internal/version"
)

func newEngine() *engine.Engine { return engine.New(cfg) }

func newAddCmd() *cobra.Command {
	var port int
	var workdir, envFile string
	cmd := &cobra.Command{
		Use:   "add <name> <command>",
		Short: "Define a new managed process",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newEngine().Add(args[0], args[1], port, workdir, envFile); err != nil {
				return err
			}
			fmt.Printf("added %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "TCP port the process binds (preflighted on start)")
	cmd.Flags().StringVar(&workdir, "workdir", "", "working directory (default: current directory)")
	cmd.Flags().StringVar(&envFile, "env-file", "", ".env file injected into the process environment")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var port int
	var workdir, envFile string
	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Change port, workdir, or env file of a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newEngine().Update(args[0], port, workdir, envFile)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "TCP port the process binds")
	cmd.Flags().StringVar(&workdir, "workdir", "", "working directory")
	cmd.Flags().StringVar(&envFile, "env-file", "", ".env file injected into the process environment")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Stop a process if running and delete its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newEngine().Remove(context.Background(), args[0])
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <name>",
		Short: "Launch a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newEngine().Start(args[0]); err != nil {
				return err
			}
			status, err := newEngine().Status(args[0])
			if err == nil {
				fmt.Printf("started %s (pid %d)\n", args[0], status.Record.PID)
			}
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a process and keep it stopped (no auto-restart)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newEngine().Stop(context.Background(), args[0])
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Stop and relaunch a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newEngine().Restart(context.Background(), args[0])
		},
	}
}

func newStartAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start-all",
		Short: "Launch every process that is not already running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newEngine().StartAll()
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show all managed processes and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := newEngine().List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATE\tPID\tPORT\tCOMMAND")
			for _, s := range statuses {
				state := "stopped"
				switch {
				case s.Running:
					state = "running"
				case s.Record.ExplicitlyStopped:
					state = "stopped (explicit)"
				}
				pid := "-"
				if s.Running {
					pid = fmt.Sprint(s.Record.PID)
				}
				port := "-"
				if s.Record.Port != 0 {
					port = fmt.Sprint(s.Record.Port)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Record.Name, state, pid, port, s.Record.Command)
			}
			return w.Flush()
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Show one process in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newEngine().Status(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("name:      %s\n", s.Record.Name)
			fmt.Printf("command:   %s\n", s.Record.Command)
			fmt.Printf("workdir:   %s\n", s.Record.Workdir)
			if s.Record.Port != 0 {
				fmt.Printf("port:      %d\n", s.Record.Port)
			}
			if s.Running {
				fmt.Printf("state:     running (pid %d, since %s)\n", s.Record.PID, s.Record.StartTime)
			} else if s.Record.ExplicitlyStopped {
				fmt.Println("state:     stopped (explicit)")
			} else {
				fmt.Println("state:     stopped")
			}
			fmt.Printf("restarts:  %d\n", s.Record.RestartAttempt)
			if s.Record.LogPath != "" {
				fmt.Printf("log:       %s\n", s.Record.LogPath)
			}
			return nil
		},
	}
}

func newLogsCmd() *cobra.Command {
	var pathOnly bool
	cmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Print the most recent log file of a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := newEngine().LatestLogPath(args[0])
			if err != nil {
				return err
			}
			if path == "" {
				return fmt.Errorf("no log files for %s yet", args[0])
			}
			if pathOnly {
				fmt.Println(path)
				return nil
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(os.Stdout, f)
			return err
		},
	}
	cmd.Flags().BoolVar(&pathOnly, "path", false, "print only the log file path")
	return cmd
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the login-launch agent and ~/bin wrapper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := install.New(cfg.WatchLogPath)
			if err != nil {
				return err
			}
			if err := inst.InstallAgent(); err != nil {
				return err
			}
			if err := inst.InstallWrapper(); err != nil {
				return err
			}
			fmt.Printf("installed launch agent %s and wrapper %s\n", inst.AgentPath(), inst.WrapperPath())
			return nil
		},
	}
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the login-launch agent and ~/bin wrapper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := install.New(cfg.WatchLogPath)
			if err != nil {
				return err
			}
			if err := inst.UninstallAgent(); err != nil {
				return err
			}
			return inst.UninstallWrapper()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("warden %s (%s)\n", version.Version, version.Commit)
		},
	}
}
