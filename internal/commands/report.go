package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"ledgerwidget/internal/core"
	"ledgerwidget/internal/ledger"
)

func newBalanceCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the balance of the current month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withLedger(cmd, true, func(_ context.Context, eng *ledger.Engine, _ time.Time) error {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", core.FormatAmount(eng.CurrentBalance(), env.Currency), eng.LastMonth())
				return nil
			})
		},
	}
}

func newListCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the transactions of the current month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withLedger(cmd, true, func(_ context.Context, eng *ledger.Engine, _ time.Time) error {
				out := cmd.OutOrStdout()
				txs := eng.Transactions()
				if len(txs) == 0 {
					fmt.Fprintln(out, "No transactions yet")
					return nil
				}
				for _, tx := range txs {
					fmt.Fprintf(out, "%s  %s: %s\n",
						tx.Date.In(eng.Location()).Format("2006-01-02 15:04"),
						tx.Category,
						core.FormatAmount(tx.Amount, env.Currency))
				}
				return nil
			})
		},
	}
}

func newTotalsCommand(env *Env) *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Show per-category totals for this week or month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := core.ParsePeriod(period)
			if err != nil {
				return err
			}
			return env.withLedger(cmd, true, func(_ context.Context, eng *ledger.Engine, now time.Time) error {
				totals, err := eng.TotalsFor(p, now)
				if err != nil {
					return err
				}
				key, err := p.Key(now, eng.Location())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Totals for %s\n", key)
				printTotals(out, totals, env.Currency)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&period, "period", "p", string(core.Month), "week or month")

	return cmd
}

func newHistoryCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the totals of past months",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withLedger(cmd, true, func(_ context.Context, eng *ledger.Engine, _ time.Time) error {
				out := cmd.OutOrStdout()
				months := eng.History().Overviews()
				if len(months) == 0 {
					fmt.Fprintln(out, "No past months yet")
					return nil
				}
				for _, m := range months {
					fmt.Fprintf(out, "%s  %s\n", m.Month, core.FormatAmount(m.Total, env.Currency))
					for _, row := range m.ByCategory {
						fmt.Fprintf(out, "  %s: %s\n", row.Name, core.FormatAmount(row.Amount, env.Currency))
					}
				}
				return nil
			})
		},
	}
}

func newRolloverCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "rollover",
		Short: "Close the accounting month if the calendar month changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withLedger(cmd, false, func(ctx context.Context, eng *ledger.Engine, now time.Time) error {
				from := eng.LastMonth()
				rolled, err := eng.CheckAndRollover(ctx, now)
				if err != nil {
					return err
				}
				if rolled {
					fmt.Fprintf(cmd.OutOrStdout(), "Rolled over %s to %s\n", from, eng.LastMonth())
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Already on %s\n", from)
				}
				return nil
			})
		},
	}
}

func printTotals(out io.Writer, totals core.Totals, currency string) {
	rows := totals.Sorted()
	if len(rows) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}
	for _, row := range rows {
		fmt.Fprintf(out, "  %s: %s\n", row.Name, core.FormatAmount(row.Amount, currency))
	}
	fmt.Fprintf(out, "  Total: %s\n", core.FormatAmount(totals.Total(), currency))
}
