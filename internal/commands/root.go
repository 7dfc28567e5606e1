// Package commands implements the ledger command line interface.
package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"ledgerwidget/internal/core"
	"ledgerwidget/internal/ledger"
	"ledgerwidget/internal/log"
)

// Opener opens the ledger for a single command. The returned func releases
// the backend.
type Opener func(ctx context.Context, now time.Time) (*ledger.Engine, func() error, error)

// Env is what every command needs from the process.
type Env struct {
	Open     Opener
	Currency string
	Now      func() time.Time
	Logger   *log.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(env Env) *cobra.Command {
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.Currency == "" {
		env.Currency = core.DefaultCurrency
	}
	if env.Logger == nil {
		env.Logger = log.Discard()
	}
	env.Logger = env.Logger.WithComponent(log.ComponentCLI)

	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Personal income and expense ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newRecordCommand(&env),
		newBalanceCommand(&env),
		newListCommand(&env),
		newTotalsCommand(&env),
		newHistoryCommand(&env),
		newRolloverCommand(&env),
	)

	return rootCmd
}

// withLedger opens the ledger, runs the month check like opening the widget
// does, then calls fn. The rollover command skips the check so it can
// report what it did.
func (env *Env) withLedger(cmd *cobra.Command, check bool, fn func(ctx context.Context, eng *ledger.Engine, now time.Time) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	now := env.Now()

	eng, closeFn, err := env.Open(ctx, now)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			env.Logger.Warn("Failed to close backend", log.FieldError, cerr)
		}
	}()

	if check {
		rolled, err := eng.CheckAndRollover(ctx, now)
		if err != nil {
			return err
		}
		if rolled {
			env.Logger.Info("Rolled over to new month", log.FieldMonth, eng.LastMonth())
		}
	}

	return fn(ctx, eng, now)
}
