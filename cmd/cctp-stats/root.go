package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/devblac/cctp-stats/internal/config"
	"github.com/devblac/cctp-stats/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "cctp-stats",
		Short: "Fetch and analyze CCTP burn events across chains",
	}
)

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "cctp.yaml", "Path to config file (compiled-in defaults when missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides LOG_LEVEL and config)")

	rootCmd.AddCommand(
		versionCmd,
		initCmd,
		validateCmd,
		fetchCmd,
		analyzeCmd,
		stateCmd,
		exportCmd,
	)
}

// Execute runs the root command tree.
func Execute() error {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger resolves the level from the flag, then LOG_LEVEL, then the config file.
func newLogger(cfg *config.Config) *slog.Logger {
	level := logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" && cfg != nil {
		level = cfg.Global.LogLevel
	}
	return logging.NewWithLevel(level)
}
