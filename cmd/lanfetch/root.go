package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tarun-kavipurapu/lanfetch/pkg/config"
	"tarun-kavipurapu/lanfetch/pkg/logger"
	"tarun-kavipurapu/lanfetch/pkg/monitor"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	// cfg is loaded once per invocation before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lanfetch",
	Short: "LocalSend peer discovery and download client",
	Long: `Find LocalSend devices on the local network and download the files
they offer, using the LocalSend v2 multicast discovery and HTTP download API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.LogLevel = logLevel
		}
		if err := logger.Configure(c.LogLevel, c.LogFile); err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

// startMetrics logs counters periodically when configured and returns a
// func that writes the final summary.
func startMetrics(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	if interval := cfg.MetricsInterval(); interval > 0 {
		go monitor.Global.LogPeriodic(ctx, interval)
	}
	return func() {
		cancel()
		monitor.Global.LogSummary()
	}
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Sugar.Error(err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}
