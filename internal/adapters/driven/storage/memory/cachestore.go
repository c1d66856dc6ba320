package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
)

// Ensure CacheStore implements the interface.
var _ driven.CacheStore = (*CacheStore)(nil)

// CacheStore is an in-memory implementation of driven.CacheStore.
type CacheStore struct {
	mu      sync.RWMutex
	entries map[string]driven.CacheEntry
	now     func() time.Time
}

// NewCacheStore creates a new in-memory cache store.
func NewCacheStore() *CacheStore {
	return &CacheStore{
		entries: make(map[string]driven.CacheEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Useful for TTL tests.
func (s *CacheStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get returns the entry for key if present and younger than ttl.
// Expired entries are purged lazily.
func (s *CacheStore) Get(_ context.Context, key string, ttl time.Duration) (*driven.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if ttl > 0 && s.now().Sub(entry.StoredAt) > ttl {
		delete(s.entries, key)
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

// Put stores or replaces the payload for key. Last write wins.
func (s *CacheStore) Put(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = driven.CacheEntry{
		Key:      key,
		Payload:  append([]byte(nil), payload...),
		StoredAt: s.now(),
	}
	return nil
}

// Purge removes entries stored before the cutoff.
func (s *CacheStore) Purge(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.StoredAt.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of cached entries.
func (s *CacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close releases resources.
func (s *CacheStore) Close() error {
	return nil
}
