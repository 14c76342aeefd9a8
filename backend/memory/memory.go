// Package memory is an in-process record store for development servers and
// tests. Records live until the process exits.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/heartlink/onboardgate"
)

// Store keeps onboarding records in memory. The zero value is not usable;
// call New.
type Store struct {
	mu      sync.RWMutex
	records map[onboardgate.RecordKind]map[string]map[string]any
}

// New returns an empty store.
func New() *Store {
	return &Store{
		records: map[onboardgate.RecordKind]map[string]map[string]any{
			onboardgate.RecordPhone:   {},
			onboardgate.RecordProfile: {},
		},
	}
}

// RecordExists implements onboardgate.RecordStore.
func (s *Store) RecordExists(ctx context.Context, kind onboardgate.RecordKind, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUser, ok := s.records[kind]
	if !ok {
		return false, fmt.Errorf("%w: %q", onboardgate.ErrUnknownKind, kind)
	}
	_, exists := byUser[userID]
	return exists, nil
}

// CreateRecord implements onboardgate.RecordStore. A second record of the
// same kind for a user is refused with onboardgate.ErrRecordExists.
func (s *Store) CreateRecord(ctx context.Context, kind onboardgate.RecordKind, userID string, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.records[kind]
	if !ok {
		return fmt.Errorf("%w: %q", onboardgate.ErrUnknownKind, kind)
	}
	if _, exists := byUser[userID]; exists {
		return onboardgate.ErrRecordExists
	}

	doc := maps.Clone(payload)
	if doc == nil {
		doc = map[string]any{}
	}
	doc["userId"] = userID
	byUser[userID] = doc
	return nil
}

// Record returns a copy of the stored document.
func (s *Store) Record(kind onboardgate.RecordKind, userID string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.records[kind][userID]
	if !ok {
		return nil, false
	}
	return maps.Clone(doc), true
}

// Seed stores a record without validation. It is meant for fixtures and
// development servers.
func (s *Store) Seed(kind onboardgate.RecordKind, userID string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.records[kind]
	if !ok {
		return
	}
	doc := maps.Clone(payload)
	if doc == nil {
		doc = map[string]any{}
	}
	doc["userId"] = userID
	byUser[userID] = doc
}

// Len reports how many records of kind are stored.
func (s *Store) Len(kind onboardgate.RecordKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[kind])
}
