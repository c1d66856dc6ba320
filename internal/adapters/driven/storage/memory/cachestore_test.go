package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
)

func TestCacheStore_PutGet(t *testing.T) {
	store := NewCacheStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k1", []byte("payload")))

	entry, err := store.Get(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), entry.Payload)
	assert.Equal(t, "k1", entry.Key)
}

func TestCacheStore_MissIsNotFound(t *testing.T) {
	store := NewCacheStore()

	_, err := store.Get(context.Background(), "absent", time.Hour)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCacheStore_ExpiryIsLazy(t *testing.T) {
	store := NewCacheStore()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })
	require.NoError(t, store.Put(ctx, "k1", []byte("old")))
	assert.Equal(t, 1, store.Len())

	// Advance past the TTL: the entry reads as absent and is purged.
	store.SetClock(func() time.Time { return now.Add(2 * time.Hour) })
	_, err := store.Get(ctx, "k1", time.Hour)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, 0, store.Len())
}

func TestCacheStore_LastWriteWins(t *testing.T) {
	store := NewCacheStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k1", []byte("first")))
	require.NoError(t, store.Put(ctx, "k1", []byte("second")))

	entry, err := store.Get(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), entry.Payload)
	assert.Equal(t, 1, store.Len())
}

func TestCacheStore_Purge(t *testing.T) {
	store := NewCacheStore()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now.Add(-2 * time.Hour) })
	require.NoError(t, store.Put(ctx, "old", []byte("x")))
	store.SetClock(func() time.Time { return now })
	require.NoError(t, store.Put(ctx, "fresh", []byte("y")))

	removed, err := store.Purge(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}
