package ledger

import (
	"context"

	"ledgerwidget/internal/core"
)

// Store persists the whole ledger state under a single key.
//
// Load reports found=false when nothing has been saved yet. Failures are
// returned as *core.StorageError and propagated by the engine unchanged.
type Store interface {
	Load(ctx context.Context) (state core.State, found bool, err error)
	Save(ctx context.Context, state core.State) error
}

// Notifier is told about committed changes. Its errors are logged only.
type Notifier interface {
	TransactionRecorded(ctx context.Context, tx core.Transaction) error
	MonthRolledOver(ctx context.Context, month string, totals core.Totals, nextMonth string) error
}
