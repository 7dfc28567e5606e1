// Package memory keeps the ledger state in process memory. Nothing survives
// a restart; it backs the default configuration and tests.
package memory

import (
	"context"
	"sync"

	"ledgerwidget/internal/core"
)

type Store struct {
	mu    sync.Mutex
	state *core.State
	saves int
}

func New() *Store {
	return &Store{}
}

// NewWithState returns a store preloaded with s.
func NewWithState(s core.State) *Store {
	c := s.Clone()
	return &Store{state: &c}
}

// Load returns a copy of the saved state.
func (s *Store) Load(_ context.Context) (core.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return core.State{}, false, nil
	}
	return s.state.Clone(), true, nil
}

// Save replaces the saved state with a copy of state.
func (s *Store) Save(_ context.Context, state core.State) error {
	c := state.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &c
	s.saves++
	return nil
}

// Saves counts successful Save calls.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
