// Package backend selects the ledger storage adapter and optional event
// publisher from configuration.
package backend

import (
	"context"

	"ledgerwidget/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// PingFunc reports whether a backend dependency is reachable.
type PingFunc func(ctx context.Context) error

// BackendResult contains the store, the optional notifier and the hooks
// needed to check and release them.
type BackendResult struct {
	Store    ledger.Store
	Notifier ledger.Notifier // nil when events are disabled
	Ping     PingFunc
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// File specific
	StateFilePath string

	// Events, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	FileBackend   BackendType = "file"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, FileBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// EngineOptions returns the engine options implied by the backend.
func (r *BackendResult) EngineOptions() []ledger.Option {
	if r.Notifier == nil {
		return nil
	}
	return []ledger.Option{ledger.WithNotifier(r.Notifier)}
}

// Close runs Cleanup if there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}
