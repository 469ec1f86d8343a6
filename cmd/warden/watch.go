package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wardend/warden/internal/backoff"
	"github.com/wardend/warden/internal/metrics"
	"github.com/wardend/warden/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the supervision loop in the foreground",
		Long: "Polls every managed process, relaunching unplanned deaths with exponential\n" +
			"backoff. A termination signal stops all managed processes (without marking\n" +
			"them explicitly stopped) and exits.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The daemon logs to its own rotating file as well as stderr.
			if err := os.MkdirAll(filepath.Dir(cfg.WatchLogPath), 0o755); err != nil {
				return err
			}
			rotating := &lumberjack.Logger{
				Filename:   cfg.WatchLogPath,
				MaxSize:    20, // MB
				MaxBackups: 5,
				MaxAge:     30, // days
				Compress:   true,
			}
			writer := zerolog.MultiLevelWriter(
				zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen},
				rotating,
			)
			log.Logger = log.Output(writer)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if metricsAddr == "" {
				metricsAddr = cfg.MetricsAddr
			}
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					log.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Error().Err(err).Msg("metrics endpoint failed")
					}
				}()
				defer func() {
					shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutCtx)
				}()
			}

			eng := newEngine()
			policy := backoff.New()
			policy.StabilityWindow = cfg.StabilityWindow
			loop := watch.New(eng, policy, cfg.PollInterval)
			return loop.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose prometheus metrics on this address (e.g. 127.0.0.1:9182)")
	return cmd
}
