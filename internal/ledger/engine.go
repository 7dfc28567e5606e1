// Package ledger implements the ledger engine: an append-only list of the
// current month's transactions, rolled into a per-category history snapshot
// when the calendar month changes.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ledgerwidget/internal/core"
	"ledgerwidget/internal/log"
)

// Engine owns the ledger state. All methods are safe for concurrent use,
// but the engine assumes it is the only writer of its Store.
type Engine struct {
	mu       sync.Mutex
	store    Store
	state    core.State
	loc      *time.Location
	policy   RolloverPolicy
	notifier Notifier
	logger   *log.Logger
}

// New loads the state from store, or starts an empty ledger whose
// accounting month is the month of now. Nothing is saved until the first
// mutation.
func New(ctx context.Context, store Store, now time.Time, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("ledger: nil store")
	}
	e := &Engine{
		store:  store,
		loc:    time.Local,
		policy: RolloverSingleStep,
		logger: log.Default().WithComponent(log.ComponentLedger),
	}
	for _, opt := range opts {
		opt(e)
	}

	state, found, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		state = core.NewState(core.MonthKey(now, e.loc))
		e.logger.InfoContext(ctx, "Initialized empty ledger", log.FieldMonth, state.LastMonth)
	} else {
		state = normalize(state, core.MonthKey(now, e.loc))
		e.logger.InfoContext(ctx, "Loaded ledger",
			log.FieldMonth, state.LastMonth,
			log.FieldCount, len(state.Transactions),
			"history_months", len(state.MonthlyHistory))
	}
	e.state = state
	return e, nil
}

func normalize(s core.State, fallbackMonth string) core.State {
	if s.Transactions == nil {
		s.Transactions = []core.Transaction{}
	}
	if s.MonthlyHistory == nil {
		s.MonthlyHistory = core.History{}
	}
	if s.LastMonth == "" {
		s.LastMonth = fallbackMonth
	}
	return s
}

// CheckAndRollover folds the accounting month into history when now falls
// in a different month. It reports whether a rollover happened.
func (e *Engine) CheckAndRollover(ctx context.Context, now time.Time) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, ev, err := e.rollover(ctx, e.state, now)
	if err != nil || ev == nil {
		return false, err
	}
	if err := e.store.Save(ctx, next); err != nil {
		e.logger.ErrorContext(ctx, "Rollover not persisted",
			log.FieldOperation, log.OpRollover, log.FieldError, err)
		return false, err
	}
	e.state = next
	e.notifyRollover(ctx, ev)
	return true, nil
}

// Record appends a transaction dated now. A pending month change is rolled
// over first and saved together with the new entry.
func (e *Engine) Record(ctx context.Context, category string, amount float64, now time.Time) (core.Transaction, error) {
	if err := core.ValidateEntry(category, amount); err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{Category: category, Amount: amount, Date: now}

	e.mu.Lock()
	defer e.mu.Unlock()

	next, ev, err := e.rollover(ctx, e.state, now)
	if err != nil {
		return core.Transaction{}, err
	}
	if ev == nil {
		next = e.state.Clone()
	}
	next.Transactions = append(next.Transactions, tx)

	if err := e.store.Save(ctx, next); err != nil {
		e.logger.ErrorContext(ctx, "Transaction not persisted",
			log.FieldOperation, log.OpRecord, log.FieldError, err)
		return core.Transaction{}, err
	}
	e.state = next
	e.logger.InfoContext(ctx, "Transaction recorded",
		log.FieldOperation, log.OpRecord,
		log.FieldCategory, tx.Category,
		log.FieldAmount, tx.Amount)

	if ev != nil {
		e.notifyRollover(ctx, ev)
	}
	if e.notifier != nil {
		if err := e.notifier.TransactionRecorded(ctx, tx); err != nil {
			e.logger.WarnContext(ctx, "Failed to publish recorded transaction", log.FieldError, err)
		}
	}
	return tx, nil
}

// CurrentBalance sums the current month's transactions.
func (e *Engine) CurrentBalance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return core.Balance(e.state.Transactions)
}

// TotalsFor sums, per category, the current transactions that fall in the
// same week or month as now. Categories without transactions are absent.
func (e *Engine) TotalsFor(period core.Period, now time.Time) (core.Totals, error) {
	key, err := period.Key(now, e.loc)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return core.TotalsByCategory(e.state.Transactions, func(tx core.Transaction) bool {
		k, _ := period.Key(tx.Date, e.loc)
		return k == key
	}), nil
}

// Transactions returns the current month's transactions in insertion order.
func (e *Engine) Transactions() []core.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.Transaction, len(e.state.Transactions))
	copy(out, e.state.Transactions)
	return out
}

// History returns a copy of the rolled-over monthly totals.
func (e *Engine) History() core.History {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.MonthlyHistory.Clone()
}

// LastMonth returns the key of the accounting month.
func (e *Engine) LastMonth() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.LastMonth
}

// Snapshot returns a copy of the whole state.
func (e *Engine) Snapshot() core.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Location returns the calendar used for period keys.
func (e *Engine) Location() *time.Location {
	return e.loc
}

type rolloverEvent struct {
	month     string
	totals    core.Totals
	nextMonth string
}

// rollover computes the state after a month change without touching e.state.
// A nil event means no month change.
func (e *Engine) rollover(ctx context.Context, s core.State, now time.Time) (core.State, *rolloverEvent, error) {
	current := core.MonthKey(now, e.loc)
	if current == s.LastMonth {
		return s, nil, nil
	}

	next := s.Clone()
	last := s.LastMonth

	next.MonthlyHistory[last] = core.TotalsByCategory(s.Transactions, func(tx core.Transaction) bool {
		return core.MonthKey(tx.Date, e.loc) == last
	})

	// Entries dated in the new month or later stay current until their own
	// month is rolled over; older strays are folded into their month.
	carried := []core.Transaction{}
	strays := 0
	for _, tx := range s.Transactions {
		month := core.MonthKey(tx.Date, e.loc)
		if month == last {
			continue
		}
		if month >= current {
			carried = append(carried, tx)
			continue
		}
		strays++
		if next.MonthlyHistory[month] == nil {
			next.MonthlyHistory[month] = core.Totals{}
		}
		next.MonthlyHistory[month].Merge(core.Totals{tx.Category: tx.Amount})
	}
	if strays > 0 {
		e.logger.WarnContext(ctx, "Folded transactions outside the accounting month",
			log.FieldMonth, last, log.FieldCount, strays)
	}

	if e.policy == RolloverMonthByMonth {
		skipped, err := core.MonthsBetween(last, current)
		if err != nil {
			return s, nil, fmt.Errorf("rollover from %s: %w", last, err)
		}
		for _, m := range skipped {
			if _, ok := next.MonthlyHistory[m]; !ok {
				next.MonthlyHistory[m] = core.Totals{}
			}
		}
	}

	if len(carried) > 0 {
		e.logger.WarnContext(ctx, "Carried transactions into the new accounting month",
			log.FieldMonth, current, log.FieldCount, len(carried))
	}

	next.Transactions = carried
	next.LastMonth = current

	e.logger.InfoContext(ctx, "Month rolled over",
		log.FieldOperation, log.OpRollover,
		log.FieldMonth, last,
		"next_month", current,
		log.FieldCount, len(s.Transactions))

	return next, &rolloverEvent{
		month:     last,
		totals:    next.MonthlyHistory[last].Clone(),
		nextMonth: current,
	}, nil
}

func (e *Engine) notifyRollover(ctx context.Context, ev *rolloverEvent) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.MonthRolledOver(ctx, ev.month, ev.totals, ev.nextMonth); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish rollover", log.FieldMonth, ev.month, log.FieldError, err)
	}
}
