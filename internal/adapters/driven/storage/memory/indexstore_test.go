package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
)

func TestIndexStore_UpsertIdempotent(t *testing.T) {
	store := NewIndexStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, domain.IndexEntry{ID: "CVE-2024-1", Description: "first"}))
	require.NoError(t, store.Upsert(ctx, domain.IndexEntry{ID: "CVE-2024-1", Description: "second"}))

	entries, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	// Last write wins: the second payload replaces the first.
	assert.Equal(t, "second", entries[0].Description)
}

func TestIndexStore_LoadPreservesInsertionOrder(t *testing.T) {
	store := NewIndexStore()
	ctx := context.Background()

	for _, id := range []string{"CVE-2024-3", "CVE-2024-1", "CVE-2024-2"} {
		require.NoError(t, store.Upsert(ctx, domain.IndexEntry{ID: id}))
	}

	entries, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "CVE-2024-3", entries[0].ID)
	assert.Equal(t, "CVE-2024-1", entries[1].ID)
	assert.Equal(t, "CVE-2024-2", entries[2].ID)
}

func TestIndexStore_Replace(t *testing.T) {
	store := NewIndexStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, domain.IndexEntry{ID: "CVE-2024-1"}))
	require.NoError(t, store.Replace(ctx, []domain.IndexEntry{
		{ID: "CVE-2024-10"},
		{ID: "CVE-2024-11"},
	}))

	entries, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "CVE-2024-10", entries[0].ID)
	assert.Equal(t, 2, store.Len())
}

func TestIndexStore_EmptyLoad(t *testing.T) {
	store := NewIndexStore()

	entries, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
