package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/ir"
	"github.com/roach88/escrow/internal/queryir"
)

func testRecord(seq int64, vaultID uint64, ev engine.Event) engine.Record {
	rec := engine.Record{
		Seq:       seq,
		FlowToken: "flow-1",
		VaultID:   vaultID,
		Height:    engine.Height(100 + seq),
		Caller:    "alice",
		Event:     ev,
	}
	rec.ID = ir.MustEventID(rec.FlowToken, string(ev.Kind()), vaultID, seq, rec.Payload())
	return rec
}

func TestEmit_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	putVaults(t, s, createTestVault(1, "alice", "bob", 50))

	rec := testRecord(1, 1, engine.VaultCreated{
		Depositor: "alice", Recipient: "bob", AssetID: "gold",
		Amount: 18_000_000_000_000_000_000, StartHeight: 10, EndHeight: 110,
	})
	require.NoError(t, s.Emit(ctx, rec))

	events, err := s.ReadEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, rec.Stored(), events[0])

	amount, ok := events[0].Payload.Amount("amount")
	require.True(t, ok)
	assert.Equal(t, uint64(18_000_000_000_000_000_000), amount)
}

func TestEmit_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	putVaults(t, s, createTestVault(1, "alice", "bob", 50))

	rec := testRecord(1, 1, engine.DisputeOpened{})
	require.NoError(t, s.Emit(ctx, rec))
	require.NoError(t, s.Emit(ctx, rec))

	events, err := s.ReadEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEmit_RequiresVault(t *testing.T) {
	s := createTestStore(t)

	err := s.Emit(context.Background(), testRecord(1, 9, engine.DisputeOpened{}))
	assert.Error(t, err, "foreign key on vault_id")
}

func TestQueryEvents(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	putVaults(t, s, createTestVault(1, "alice", "bob", 50), createTestVault(2, "alice", "bob", 50))

	require.NoError(t, s.Emit(ctx, testRecord(1, 1, engine.DisputeOpened{})))
	require.NoError(t, s.Emit(ctx, testRecord(2, 2, engine.VaultFlagged{Reason: "odd"})))
	require.NoError(t, s.Emit(ctx, testRecord(3, 1, engine.MetadataAttached{Category: "note", Value: "x"})))

	forOne, err := s.EventsForVault(ctx, 1)
	require.NoError(t, err)
	require.Len(t, forOne, 2)
	assert.Equal(t, int64(1), forOne[0].Seq)
	assert.Equal(t, int64(3), forOne[1].Seq)

	flagged, err := s.QueryEvents(ctx, queryir.Equals{Field: "kind", Value: ir.IRString(engine.KindVaultFlagged)}, 0)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "odd", flagged[0].Payload.Str("reason"))

	limited, err := s.QueryEvents(ctx, nil, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestLastSeq_Empty(t *testing.T) {
	s := createTestStore(t)

	last, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}
