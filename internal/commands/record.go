package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ledgerwidget/internal/core"
	"ledgerwidget/internal/ledger"
)

func newRecordCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <category> <amount>",
		Short: "Record a transaction (negative amounts are expenses)",
		Example: `  ledger record Salary 2000
  ledger record Food -50`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
			if err != nil {
				return fmt.Errorf("%w: %q is not a number", core.ErrInvalidAmount, args[1])
			}

			return env.withLedger(cmd, true, func(ctx context.Context, eng *ledger.Engine, now time.Time) error {
				tx, err := eng.Record(ctx, args[0], amount, now)
				if err != nil {
					return err
				}
				kind := "Income"
				if tx.IsExpense() {
					kind = "Expense"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s recorded: %s %s\n", kind, tx.Category, core.FormatAmount(tx.Amount, env.Currency))
				fmt.Fprintf(cmd.OutOrStdout(), "Balance: %s\n", core.FormatAmount(eng.CurrentBalance(), env.Currency))
				return nil
			})
		},
	}

	// Everything after the category is positional so "-50" is not read as a flag.
	cmd.Flags().SetInterspersed(false)

	return cmd
}
