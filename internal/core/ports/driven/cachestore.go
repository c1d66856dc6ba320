package driven

import (
	"context"
	"time"
)

// CacheEntry is one persisted HTTP payload with its storage timestamp.
type CacheEntry struct {
	// Key is the deterministic request hash.
	Key string

	// Payload is the raw response body.
	Payload []byte

	// StoredAt is when the payload was cached.
	StoredAt time.Time
}

// CacheStore persists HTTP response payloads keyed by request hash.
// Entries older than their TTL are treated as absent; stores purge stale
// rows lazily on lookup. Concurrent writers to the same key are tolerated
// with last-write-wins semantics. An unreadable entry is a cache miss,
// never an error surfaced to the caller.
type CacheStore interface {
	// Get returns the entry for key if present and younger than ttl.
	// Returns domain.ErrNotFound on miss or expiry.
	Get(ctx context.Context, key string, ttl time.Duration) (*CacheEntry, error)

	// Put stores or replaces the payload for key.
	Put(ctx context.Context, key string, payload []byte) error

	// Purge removes entries stored before the cutoff. Returns the number
	// of entries removed.
	Purge(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases resources.
	Close() error
}
