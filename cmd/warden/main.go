package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wardend/warden/internal/config"
)

var (
	cfgPath string
	verbose bool
	cfg     config.Config
)

func main() {
	root := &cobra.Command{
		Use:           "warden",
		Short:         "Supervise long-running background processes on this host",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
				Level(level).With().Timestamp().Logger()
			var err error
			cfg, err = config.Load(cfgPath)
			return err
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to warden.toml (default ~/.warden/warden.toml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newAddCmd(),
		newUpdateCmd(),
		newRemoveCmd(),
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newStartAllCmd(),
		newListCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newWatchCmd(),
		newInstallCmd(),
		newUninstallCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
