package ledger

import (
	"fmt"
	"strings"
	"time"

	"ledgerwidget/internal/log"
)

// RolloverPolicy decides what happens to months skipped between two sessions.
type RolloverPolicy string

const (
	// RolloverSingleStep folds only the last active month; months without
	// any session get no history entry.
	RolloverSingleStep RolloverPolicy = "single"
	// RolloverMonthByMonth also writes an empty entry for every skipped month.
	RolloverMonthByMonth RolloverPolicy = "monthly"
)

// ParseRolloverPolicy maps a configuration value to a policy.
func ParseRolloverPolicy(s string) (RolloverPolicy, error) {
	switch RolloverPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RolloverSingleStep:
		return RolloverSingleStep, nil
	case RolloverMonthByMonth:
		return RolloverMonthByMonth, nil
	default:
		return "", fmt.Errorf("unknown rollover policy %q", s)
	}
}

type Option func(*Engine)

// WithLocation sets the calendar used to derive month and week keys.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithRolloverPolicy(p RolloverPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.WithComponent(log.ComponentLedger)
		}
	}
}
