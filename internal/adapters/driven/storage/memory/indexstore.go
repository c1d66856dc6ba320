package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
)

// Ensure IndexStore implements the interface.
var _ driven.IndexStore = (*IndexStore)(nil)

// IndexStore is an in-memory implementation of driven.IndexStore.
type IndexStore struct {
	mu      sync.RWMutex
	entries map[string]domain.IndexEntry
	order   []string
}

// NewIndexStore creates a new in-memory index store.
func NewIndexStore() *IndexStore {
	return &IndexStore{
		entries: make(map[string]domain.IndexEntry),
	}
}

// Load returns every stored entry in insertion order.
func (s *IndexStore) Load(_ context.Context) ([]domain.IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.IndexEntry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.entries[id])
	}
	return entries, nil
}

// Upsert stores or replaces the entry with the same ID.
func (s *IndexStore) Upsert(_ context.Context, entry domain.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.ID]; !exists {
		s.order = append(s.order, entry.ID)
	}
	s.entries[entry.ID] = entry
	return nil
}

// Replace swaps the full store contents.
func (s *IndexStore) Replace(_ context.Context, entries []domain.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]domain.IndexEntry, len(entries))
	s.order = s.order[:0]
	for _, entry := range entries {
		if _, exists := s.entries[entry.ID]; !exists {
			s.order = append(s.order, entry.ID)
		}
		s.entries[entry.ID] = entry
	}
	return nil
}

// Len returns the number of stored entries.
func (s *IndexStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close releases resources.
func (s *IndexStore) Close() error {
	return nil
}
