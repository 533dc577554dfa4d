package store

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/ledger"
)

func TestLedger_MintTransferBalance(t *testing.T) {
	ctx := context.Background()
	l := createTestStore(t).Ledger()

	require.NoError(t, l.Mint(ctx, "gold", "alice", 100))
	require.NoError(t, l.Transfer(ctx, "gold", 30, "alice", "bob"))

	a, err := l.Balance(ctx, "gold", "alice")
	require.NoError(t, err)
	b, err := l.Balance(ctx, "gold", "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(70), a)
	assert.Equal(t, uint64(30), b)
}

func TestLedger_Insufficient(t *testing.T) {
	ctx := context.Background()
	l := createTestStore(t).Ledger()
	require.NoError(t, l.Mint(ctx, "gold", "alice", 10))

	err := l.Transfer(ctx, "gold", 11, "alice", "bob")
	require.ErrorIs(t, err, ledger.ErrInsufficient)

	a, _ := l.Balance(ctx, "gold", "alice")
	assert.Equal(t, uint64(10), a)
}

func TestLedger_LargeAmounts(t *testing.T) {
	ctx := context.Background()
	l := createTestStore(t).Ledger()

	require.NoError(t, l.Mint(ctx, "gold", "alice", math.MaxUint64))
	assert.Error(t, l.Mint(ctx, "gold", "alice", 1))
	require.NoError(t, l.Transfer(ctx, "gold", math.MaxUint64, "alice", "bob"))

	b, err := l.Balance(ctx, "gold", "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), b)
}

func TestLedger_Holdings(t *testing.T) {
	ctx := context.Background()
	l := createTestStore(t).Ledger()
	require.NoError(t, l.Mint(ctx, "gold", "bob", 5))
	require.NoError(t, l.Mint(ctx, "gold", "alice", 7))
	require.NoError(t, l.Mint(ctx, "silver", "alice", 1))
	require.NoError(t, l.Transfer(ctx, "silver", 1, "alice", "carol"))

	all, err := l.Holdings(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []Holding{
		{AssetID: "gold", Owner: "alice", Amount: 7},
		{AssetID: "gold", Owner: "bob", Amount: 5},
		{AssetID: "silver", Owner: "carol", Amount: 1},
	}, all)

	gold, err := l.Holdings(ctx, "gold")
	require.NoError(t, err)
	assert.Len(t, gold, 2)
}

func TestLedger_JoinsRegistryTransaction(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	l := s.Ledger()
	require.NoError(t, l.Mint(ctx, "gold", "alice", 10))

	boom := errors.New("boom")
	err := s.Atomically(ctx, func(ctx context.Context, tx engine.Tx) error {
		require.NoError(t, l.Transfer(ctx, "gold", 10, "alice", "vault"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := l.Balance(ctx, "gold", "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), a, "transfer rolled back with the transaction")
}
