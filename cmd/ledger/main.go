package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"ledgerwidget/internal/backend"
	"ledgerwidget/internal/cli"
	"ledgerwidget/internal/commands"
	"ledgerwidget/internal/ledger"
	"ledgerwidget/internal/log"
)

func main() {
	cli.LoadEnvFile()

	// Logs go to stderr so command output stays clean.
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	logger := cli.SetupLogger(level, os.Stderr)

	// Every command is a new process, so the default must persist.
	cfg, err := cli.LoadConfigWithBackend(string(backend.FileBackend))
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration:", err)
		os.Exit(1)
	}
	if cfg.DataBackend == string(backend.MemoryBackend) {
		logger.Warn("Memory backend keeps nothing between commands", log.FieldBackend, cfg.DataBackend)
	}

	rootCmd := commands.NewRootCommand(commands.Env{
		Currency: cfg.Currency,
		Logger:   logger,
		Open: func(ctx context.Context, now time.Time) (*ledger.Engine, func() error, error) {
			engine, res, err := cli.OpenLedger(ctx, cfg, logger, now)
			if err != nil {
				return nil, nil, err
			}
			return engine, res.Close, nil
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
