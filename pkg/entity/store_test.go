package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLoadAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[*Indexer]()

	got, err := store.Load(ctx, "0xmissing")
	require.NoError(t, err)
	assert.Nil(t, got, "absent ids load as nil, not as an error")
}

func TestMemoryStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[*OracleMessage]()

	msg := &OracleMessage{ID: "0xtx1", Valid: true}
	require.NoError(t, store.Save(ctx, msg))

	got, err := store.Load(ctx, "0xtx1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, msg, got)
	assert.Equal(t, 1, store.Len())
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[*Indexer]()

	created, err := GetOrCreate(ctx, store, "0xaaa", func(id string) *Indexer {
		return &Indexer{ID: id}
	})
	require.NoError(t, err)
	assert.Equal(t, "0xaaa", created.ID)

	again, err := GetOrCreate(ctx, store, "0xaaa", func(id string) *Indexer {
		t.Fatal("factory must not run for an existing id")
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, created, again, "second call returns the stored entity")
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreRange(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[*SubgraphDeployment]()

	for _, id := range []string{"QmA", "QmB", "QmC"} {
		require.NoError(t, store.Save(ctx, &SubgraphDeployment{ID: id}))
	}

	seen := map[string]bool{}
	store.Range(func(id string, d *SubgraphDeployment) bool {
		seen[id] = true
		return true
	})
	assert.Len(t, seen, 3)
}
