package driven

import (
	"context"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
)

// IndexStore is the durable backing for the similarity index. The retrieval
// service loads all entries once at startup and writes through on upsert;
// the store never serves retrieval queries directly.
type IndexStore interface {
	// Load returns every persisted entry. Unreadable rows are skipped,
	// not surfaced as errors.
	Load(ctx context.Context) ([]domain.IndexEntry, error)

	// Upsert stores or replaces the entry with the same ID.
	Upsert(ctx context.Context, entry domain.IndexEntry) error

	// Replace atomically swaps the full store contents (index rebuild).
	Replace(ctx context.Context, entries []domain.IndexEntry) error

	// Close releases resources.
	Close() error
}
