package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driving"
	"github.com/custodia-labs/vulnbrief/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.Retriever = (*RetrievalService)(nil)

// Per-pass result caps. The overall cap comes from pipeline settings.
const (
	taxonomyPassCap = 3
	entityPassCap   = 3
	recencyPassCap  = 2
)

// RetrievalService answers similarity lookups from an in-memory copy of
// the index, loaded once at construction. Writes go through to the store
// and update the memory copy under one lock, so readers always see a set
// no older than the durable one.
type RetrievalService struct {
	store driven.IndexStore
	cap   int

	mu      sync.RWMutex
	entries []domain.IndexEntry
	byID    map[string]int
}

// NewRetrievalService loads the persisted index and serves lookups from
// memory. Cap bounds the combined result set across all passes.
func NewRetrievalService(ctx context.Context, store driven.IndexStore, cap int) (*RetrievalService, error) {
	if cap <= 0 {
		cap = domain.DefaultRetrievalCap
	}

	entries, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}

	s := &RetrievalService{store: store, cap: cap}
	s.install(entries)
	logger.Debug("retrieval index loaded: %d entries", len(entries))
	return s, nil
}

// install replaces the in-memory set. Caller must not hold the lock.
func (s *RetrievalService) install(entries []domain.IndexEntry) {
	byID := make(map[string]int, len(entries))
	deduped := make([]domain.IndexEntry, 0, len(entries))
	for _, entry := range entries {
		if i, ok := byID[entry.ID]; ok {
			deduped[i] = entry
			continue
		}
		byID[entry.ID] = len(deduped)
		deduped = append(deduped, entry)
	}

	s.mu.Lock()
	s.entries = deduped
	s.byID = byID
	s.mu.Unlock()
}

// Retrieve runs the four ranked passes over the index: exact id match,
// shared weakness classification, product overlap, then same-severity
// recency. Passes only add entries not already found by an earlier pass,
// and the combined set never exceeds the configured cap.
func (s *RetrievalService) Retrieve(ctx context.Context, advisory *domain.Advisory) (*domain.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if advisory == nil {
		return nil, fmt.Errorf("%w: nil advisory", domain.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := &domain.RetrievalResult{}
	seen := make(map[string]struct{})

	add := func(entry domain.IndexEntry, reason domain.MatchReason) bool {
		if len(result.Refs) >= s.cap {
			return false
		}
		if _, dup := seen[entry.ID]; dup {
			return true
		}
		seen[entry.ID] = struct{}{}
		result.Refs = append(result.Refs, domain.RetrievedRef{Entry: entry, Reason: reason})
		return true
	}

	// Pass 1: the advisory itself, when a prior run indexed it.
	if i, ok := s.byID[advisory.ID]; ok {
		add(s.entries[i], domain.MatchExact)
	}

	// Pass 2: shared weakness classification, most severe first.
	if len(advisory.CWEIDs) > 0 {
		var matched []domain.IndexEntry
		for _, entry := range s.entries {
			if entry.ID != advisory.ID && entry.SharesCWE(advisory.CWEIDs) {
				matched = append(matched, entry)
			}
		}
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].SeverityScore > matched[j].SeverityScore
		})
		taken := 0
		for _, entry := range matched {
			if taken >= taxonomyPassCap {
				break
			}
			if !add(entry, domain.MatchTaxonomy) {
				break
			}
			taken++
		}
	}

	// Pass 3: overlapping product, most severe first.
	if product := advisory.PrimaryProduct(); product != "" {
		var matched []domain.IndexEntry
		for _, entry := range s.entries {
			if entry.ID == advisory.ID || !entry.MatchesProduct(product) {
				continue
			}
			if _, dup := seen[entry.ID]; dup {
				continue
			}
			matched = append(matched, entry)
		}
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].SeverityScore > matched[j].SeverityScore
		})
		taken := 0
		for _, entry := range matched {
			if taken >= entityPassCap {
				break
			}
			if !add(entry, domain.MatchEntity) {
				break
			}
			taken++
		}
	}

	// Pass 4: same severity label, most recent first.
	if advisory.SeverityLabel != "" {
		var matched []domain.IndexEntry
		for _, entry := range s.entries {
			if entry.ID != advisory.ID && entry.SeverityLabel == advisory.SeverityLabel {
				matched = append(matched, entry)
			}
		}
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].PublishedAt.After(matched[j].PublishedAt)
		})
		taken := 0
		for _, entry := range matched {
			if taken >= recencyPassCap {
				break
			}
			if _, dup := seen[entry.ID]; dup {
				continue
			}
			if !add(entry, domain.MatchRecency) {
				break
			}
			taken++
		}
	}

	logger.Debug("retrieval for %s: %d related entries", advisory.ID, len(result.Refs))
	return result, nil
}

// Upsert stores the entry durably and updates the in-memory copy.
func (s *RetrievalService) Upsert(ctx context.Context, entry domain.IndexEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("%w: index entry without id", domain.ErrInvalidInput)
	}
	if err := s.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("upsert index entry: %w", err)
	}

	s.mu.Lock()
	if i, ok := s.byID[entry.ID]; ok {
		s.entries[i] = entry
	} else {
		s.byID[entry.ID] = len(s.entries)
		s.entries = append(s.entries, entry)
	}
	s.mu.Unlock()
	return nil
}

// Rebuild atomically replaces the whole index, durable copy first.
func (s *RetrievalService) Rebuild(ctx context.Context, entries []domain.IndexEntry) error {
	if err := s.store.Replace(ctx, entries); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	s.install(entries)
	logger.Info("Index rebuilt: %d entries", len(entries))
	return nil
}

// Entries returns a copy of the current index contents, used for rebuild
// and inspection.
func (s *RetrievalService) Entries() []domain.IndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.IndexEntry(nil), s.entries...)
}

// Size returns the number of indexed advisories.
func (s *RetrievalService) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
