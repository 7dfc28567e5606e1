// Package worker consumes ledger events and keeps a running report of what
// was recorded and which months were closed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ledgerwidget/internal/amqp"
	"ledgerwidget/internal/core"
	"ledgerwidget/internal/log"
)

var errEmptyEvent = errors.New("event without payload")

// ReportWorker aggregates ledger events per accounting month.
type ReportWorker struct {
	mu       sync.Mutex
	loc      *time.Location
	currency string
	logger   *log.Logger

	// Totals seen on transaction.recorded events, per month still open
	open map[string]core.Totals
	// Totals announced by month.rolled_over events
	closed map[string]core.Totals
	// Months that were already open when the worker started; part of their
	// transactions may have been consumed by an earlier run.
	partial map[string]bool

	events     int64
	mismatches int64
}

// Summary is a point-in-time view of the report.
type Summary struct {
	Events       int64
	Mismatches   int64
	OpenMonths   map[string]core.Totals
	ClosedMonths []string
}

func NewReportWorker(loc *time.Location, currency string, logger *log.Logger) *ReportWorker {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReportWorker{
		loc:      loc,
		currency: currency,
		logger:   logger.WithComponent(log.ComponentWorker),
		open:     make(map[string]core.Totals),
		closed:   make(map[string]core.Totals),
		partial:  make(map[string]bool),
	}
}

// Seed loads the closed months of a stored ledger snapshot. The open month
// is only marked partial: its transactions are either still queued or were
// already consumed, and counting them from the snapshot would add them twice.
func (w *ReportWorker) Seed(ctx context.Context, state core.State) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for month, totals := range state.MonthlyHistory {
		w.closed[month] = totals.Clone()
	}
	if state.LastMonth != "" {
		w.partial[state.LastMonth] = true
	}

	w.logger.InfoContext(ctx, "Report seeded from snapshot",
		log.FieldMonth, state.LastMonth,
		log.FieldCount, len(state.Transactions),
		"closed_months", len(state.MonthlyHistory))
}

// HandleEvent is the consumer callback for every delivery.
func (w *ReportWorker) HandleEvent(ctx context.Context, ev *amqp.Event) error {
	if ev == nil {
		return errEmptyEvent
	}
	switch {
	case ev.TransactionRecorded != nil:
		w.handleRecorded(ctx, ev.TransactionRecorded)
	case ev.MonthRolledOver != nil:
		w.handleRolledOver(ctx, ev.MonthRolledOver)
	default:
		return fmt.Errorf("%w: %s", errEmptyEvent, ev.Type)
	}
	atomic.AddInt64(&w.events, 1)
	return nil
}

func (w *ReportWorker) handleRecorded(ctx context.Context, msg *amqp.TransactionRecordedMessage) {
	month := core.MonthKey(msg.Date, w.loc)

	w.mu.Lock()
	totals, ok := w.open[month]
	if !ok {
		totals = core.Totals{}
		w.open[month] = totals
	}
	totals.Merge(core.Totals{msg.Category: msg.Amount})
	monthTotal := totals.Total()
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Transaction reported",
		log.FieldMonth, month,
		log.FieldCategory, msg.Category,
		log.FieldAmount, core.FormatAmount(msg.Amount, w.currency),
		"month_total", core.FormatAmount(monthTotal, w.currency))
}

func (w *ReportWorker) handleRolledOver(ctx context.Context, msg *amqp.MonthRolledOverMessage) {
	announced := core.Totals(msg.Totals).Clone()

	w.mu.Lock()
	seen, wasOpen := w.open[msg.Month]
	partial := w.partial[msg.Month]
	delete(w.open, msg.Month)
	delete(w.partial, msg.Month)
	w.closed[msg.Month] = announced
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Month closed",
		log.FieldMonth, msg.Month,
		"next_month", msg.NextMonth,
		log.FieldCount, len(announced),
		"total", core.FormatAmount(announced.Total(), w.currency))
	for _, row := range announced.Sorted() {
		w.logger.DebugContext(ctx, "Month category total",
			log.FieldMonth, msg.Month,
			log.FieldCategory, row.Name,
			log.FieldAmount, core.FormatAmount(row.Amount, w.currency))
	}

	// Only comparable when every transaction of the month was observed.
	if wasOpen && !partial && !equalTotals(seen, announced) {
		atomic.AddInt64(&w.mismatches, 1)
		w.logger.WarnContext(ctx, "Closed month differs from reported transactions",
			log.FieldMonth, msg.Month,
			"reported", core.FormatAmount(seen.Total(), w.currency),
			"closed", core.FormatAmount(announced.Total(), w.currency))
	}
}

// Summary returns a copy of the current report.
func (w *ReportWorker) Summary() Summary {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Summary{
		Events:       atomic.LoadInt64(&w.events),
		Mismatches:   atomic.LoadInt64(&w.mismatches),
		OpenMonths:   make(map[string]core.Totals, len(w.open)),
		ClosedMonths: make([]string, 0, len(w.closed)),
	}
	for month, totals := range w.open {
		s.OpenMonths[month] = totals.Clone()
	}
	for month := range w.closed {
		s.ClosedMonths = append(s.ClosedMonths, month)
	}
	sort.Strings(s.ClosedMonths)
	return s
}

// LogSummary writes the report at info level. It runs on the worker's
// periodic ticker.
func (w *ReportWorker) LogSummary(ctx context.Context) {
	s := w.Summary()
	for month, totals := range s.OpenMonths {
		w.logger.InfoContext(ctx, "Open month",
			log.FieldMonth, month,
			"total", core.FormatAmount(totals.Total(), w.currency))
	}
	w.logger.InfoContext(ctx, "Report summary",
		"events", s.Events,
		"mismatches", s.Mismatches,
		"open_months", len(s.OpenMonths),
		"closed_months", len(s.ClosedMonths))
}

func equalTotals(a, b core.Totals) bool {
	if len(a) != len(b) {
		return false
	}
	for cat, v := range a {
		other, ok := b[cat]
		if !ok || core.Sum(v, -other) != 0 {
			return false
		}
	}
	return true
}
