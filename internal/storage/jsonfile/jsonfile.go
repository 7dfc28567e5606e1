// Package jsonfile stores the ledger as one JSON document on disk:
//
//	{"transactions": [...], "monthlyHistory": {...}, "lastMonth": "YYYY-MM"}
//
// Dates are RFC 3339 timestamps carrying their UTC offset.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"ledgerwidget/internal/core"
)

type Store struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(_ context.Context) (core.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return core.State{}, false, nil
	}
	if err != nil {
		return core.State{}, false, core.NewStorageError("load", err)
	}

	var state core.State
	if err := json.Unmarshal(data, &state); err != nil {
		return core.State{}, false, core.NewStorageError("load", fmt.Errorf("decode %s: %w", s.path, err))
	}
	return state, true, nil
}

// Save writes to a temporary file and renames it over the old one, so a
// crash leaves either the previous or the new document.
func (s *Store) Save(_ context.Context, state core.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return core.NewStorageError("save", fmt.Errorf("encode state: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewStorageError("save", fmt.Errorf("create state directory: %w", err))
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return core.NewStorageError("save", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return core.NewStorageError("save", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return core.NewStorageError("save", err)
	}
	if err := tmp.Close(); err != nil {
		return core.NewStorageError("save", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return core.NewStorageError("save", err)
	}
	return nil
}
