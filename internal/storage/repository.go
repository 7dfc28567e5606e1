// Package storage persists the ledger in SQLite. Transactions and history
// live in separate tables; a save rewrites them inside one SQL transaction
// so a rollover lands completely or not at all.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ledgerwidget/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer; sqlite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite schema ready", "path", dbPath, "version", version)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Load implements ledger.Store.
func (r *SQLiteRepository) Load(ctx context.Context) (core.State, bool, error) {
	var lastMonth string
	err := r.db.QueryRowContext(ctx, `SELECT last_month FROM ledger_meta WHERE id = 1`).Scan(&lastMonth)
	if errors.Is(err, sql.ErrNoRows) {
		return core.State{}, false, nil
	}
	if err != nil {
		return core.State{}, false, core.NewStorageError("load", fmt.Errorf("read ledger meta: %w", err))
	}

	state := core.NewState(lastMonth)

	txs, err := r.loadTransactions(ctx)
	if err != nil {
		return core.State{}, false, core.NewStorageError("load", err)
	}
	state.Transactions = txs

	history, err := r.loadHistory(ctx)
	if err != nil {
		return core.State{}, false, core.NewStorageError("load", err)
	}
	state.MonthlyHistory = history

	return state, true, nil
}

func (r *SQLiteRepository) loadTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, amount, occurred_at FROM transactions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		var (
			tx         core.Transaction
			occurredAt string
		)
		if err := rows.Scan(&tx.Category, &tx.Amount, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Date, err = time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse transaction date %q: %w", occurredAt, err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func (r *SQLiteRepository) loadHistory(ctx context.Context) (core.History, error) {
	history := core.History{}

	months, err := r.db.QueryContext(ctx, `SELECT month FROM history_months`)
	if err != nil {
		return nil, fmt.Errorf("query history months: %w", err)
	}
	defer months.Close()
	for months.Next() {
		var month string
		if err := months.Scan(&month); err != nil {
			return nil, fmt.Errorf("scan history month: %w", err)
		}
		history[month] = core.Totals{}
	}
	if err := months.Err(); err != nil {
		return nil, fmt.Errorf("iterate history months: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT month, category, total FROM monthly_history`)
	if err != nil {
		return nil, fmt.Errorf("query monthly history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			month, category string
			total           float64
		)
		if err := rows.Scan(&month, &category, &total); err != nil {
			return nil, fmt.Errorf("scan monthly history: %w", err)
		}
		if history[month] == nil {
			history[month] = core.Totals{}
		}
		history[month][category] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monthly history: %w", err)
	}
	return history, nil
}

// Save implements ledger.Store. The stored rows are replaced by state.
func (r *SQLiteRepository) Save(ctx context.Context, state core.State) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStorageError("save", fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := saveState(ctx, tx, state); err != nil {
		return core.NewStorageError("save", err)
	}

	if err := tx.Commit(); err != nil {
		return core.NewStorageError("save", fmt.Errorf("commit: %w", err))
	}

	slog.DebugContext(ctx, "Ledger saved to SQLite",
		"last_month", state.LastMonth,
		"transactions", len(state.Transactions),
		"history_months", len(state.MonthlyHistory))
	return nil
}

func saveState(ctx context.Context, tx *sql.Tx, state core.State) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_meta (id, last_month, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_month = excluded.last_month, updated_at = excluded.updated_at`,
		state.LastMonth, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert ledger meta: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	insertTx, err := tx.PrepareContext(ctx,
		`INSERT INTO transactions (category, amount, occurred_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare transaction insert: %w", err)
	}
	defer insertTx.Close()
	for _, t := range state.Transactions {
		if _, err := insertTx.ExecContext(ctx, t.Category, t.Amount, t.Date.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM monthly_history`); err != nil {
		return fmt.Errorf("clear monthly history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM history_months`); err != nil {
		return fmt.Errorf("clear history months: %w", err)
	}
	for month, totals := range state.MonthlyHistory {
		if _, err := tx.ExecContext(ctx, `INSERT INTO history_months (month) VALUES (?)`, month); err != nil {
			return fmt.Errorf("insert history month %s: %w", month, err)
		}
		for category, total := range totals {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO monthly_history (month, category, total) VALUES (?, ?, ?)`,
				month, category, total); err != nil {
				return fmt.Errorf("insert history %s/%s: %w", month, category, err)
			}
		}
	}
	return nil
}
