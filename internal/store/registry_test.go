package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/escrow/internal/engine"
)

func TestRegistry_PutAndGet(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	v := createTestVault(1, "alice", "bob", 18_446_744_073_709_551_615)
	v.RecoveryAddress = "carol"
	v.RecoveryUnlock = 500
	putVaults(t, s, v)

	got, ok, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v, got)
}

func TestRegistry_GetMissing(t *testing.T) {
	s := createTestStore(t)

	_, ok, err := s.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_PutUpdatesMutableFields(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	v := createTestVault(1, "alice", "bob", 100)
	putVaults(t, s, v)

	v.State = engine.StateDisputed
	v.EndHeight = 200
	v.Extended = 90
	putVaults(t, s, v)

	got, _, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestRegistry_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	boom := errors.New("boom")

	err := s.Atomically(ctx, func(ctx context.Context, tx engine.Tx) error {
		id, err := tx.NextID(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, tx.Put(ctx, createTestVault(id, "alice", "bob", 5)))

		_, ok, err := tx.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok, "write visible inside transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, ok, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Counter(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestRegistry_NextID(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	var ids []uint64
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Atomically(ctx, func(ctx context.Context, tx engine.Tx) error {
			id, err := tx.NextID(ctx, 100)
			ids = append(ids, id)
			return err
		}))
	}
	assert.Equal(t, []uint64{100, 101, 102}, ids)

	n, err := s.Counter(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(102), n)
}
