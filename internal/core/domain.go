package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type (
	// Transaction is a single income (positive) or expense (negative) entry.
	// Transactions are never modified after creation.
	Transaction struct {
		Category string    `json:"category"`
		Amount   float64   `json:"amount"`
		Date     time.Time `json:"date"`
	}

	// History maps a month key to the per-category totals folded at rollover.
	History map[string]Totals

	// State is the whole persisted ledger.
	State struct {
		Transactions   []Transaction `json:"transactions"`
		MonthlyHistory History       `json:"monthlyHistory"`
		LastMonth      string        `json:"lastMonth"`
	}
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyCategory = fmt.Errorf("%w: empty category", ErrInvalidInput)
	ErrInvalidAmount = fmt.Errorf("%w: amount must be a finite number", ErrInvalidInput)
	ErrInvalidPeriod = fmt.Errorf("%w: period must be week or month", ErrInvalidInput)

	ErrStorage = errors.New("storage error")
)

// StorageError is returned by storage adapters when loading or saving fails.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes every StorageError match ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// NewStorageError wraps err, returning nil when err is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// ValidateEntry checks the inputs of a new transaction.
func ValidateEntry(category string, amount float64) error {
	if strings.TrimSpace(category) == "" {
		return ErrEmptyCategory
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ErrInvalidAmount
	}
	return nil
}

// Validate reports whether the transaction could have been recorded.
func (t Transaction) Validate() error {
	if err := ValidateEntry(t.Category, t.Amount); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return errors.New("transaction date cannot be zero")
	}
	return nil
}

// IsExpense reports whether the amount is displayed as an expense.
func (t Transaction) IsExpense() bool {
	return t.Amount < 0
}

// NewState returns an empty ledger whose accounting month is lastMonth.
func NewState(lastMonth string) State {
	return State{
		Transactions:   []Transaction{},
		MonthlyHistory: History{},
		LastMonth:      lastMonth,
	}
}

// Clone returns a deep copy so callers can mutate it freely.
func (s State) Clone() State {
	out := State{
		Transactions:   make([]Transaction, len(s.Transactions)),
		MonthlyHistory: s.MonthlyHistory.Clone(),
		LastMonth:      s.LastMonth,
	}
	copy(out.Transactions, s.Transactions)
	return out
}

// Clone returns a deep copy of the history.
func (h History) Clone() History {
	out := make(History, len(h))
	for month, totals := range h {
		out[month] = totals.Clone()
	}
	return out
}
