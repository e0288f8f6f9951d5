// Package cli wires the tradewheel commands: paper trading, backtests, and
// risk inspection.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tradewheel/engine/config"
	"github.com/tradewheel/engine/journal"
	"github.com/tradewheel/engine/pkg/logger"
)

type rootOptions struct {
	ConfigPath string
	LogLevel   string
	Console    bool
}

func (ro *rootOptions) logger() zerolog.Logger {
	return logger.New(logger.Options{Level: ro.LogLevel, Console: ro.Console})
}

// loadConfig reads the configured file, or falls back to defaults when no
// path was given.
func (ro *rootOptions) loadConfig() (*config.Config, error) {
	if ro.ConfigPath == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(ro.ConfigPath)
}

// buildJournal constructs the journal sink named by the config.
func buildJournal(cfg *config.Config, log zerolog.Logger) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "csv":
		return journal.NewCSV(cfg.Journal.Dir, log)
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	default:
		return journal.Nop{}, nil
	}
}

// NewRootCmd builds the tradewheel command tree.
func NewRootCmd() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tradewheel",
		Short:         "Tradewheel — signal execution, risk control, and backtesting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&ro.ConfigPath, "config", "", "Path to config file (optional)")
	cmd.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().BoolVar(&ro.Console, "console", false, "Human-readable console logging")

	cmd.AddCommand(
		newTradeCmd(ro),
		newBacktestCmd(ro),
		newRiskCmd(ro),
		newVersionCmd(),
	)

	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
