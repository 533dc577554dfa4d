package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/testutil"
)

// newEngine wires an engine to s for registry, events and transfers.
func newEngine(t *testing.T, s *Store, h engine.HeightSource) *engine.Engine {
	t.Helper()
	last, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	eng, err := engine.New(engine.DefaultPolicy("admin", "vault"), s, s.Ledger(), h,
		engine.WithEventSink(s),
		engine.WithClock(engine.NewClockAt(last)),
	)
	require.NoError(t, err)
	return eng
}

func TestEngineOverStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	l := s.Ledger()
	require.NoError(t, l.Mint(ctx, "gold", "alice", 1000))
	h := testutil.NewManualHeight(10)
	eng := newEngine(t, s, h)

	a, err := eng.Create(ctx, "alice", engine.CreateRequest{Recipient: "bob", AssetID: "gold", Amount: 300})
	require.NoError(t, err)
	b, err := eng.Create(ctx, "alice", engine.CreateRequest{Recipient: "bob", AssetID: "gold", Amount: 200})
	require.NoError(t, err)

	_, err = eng.Complete(ctx, "alice", a.ID)
	require.NoError(t, err)
	_, err = eng.OpenDispute(ctx, "bob", b.ID)
	require.NoError(t, err)
	_, err = eng.ResolveDispute(ctx, "admin", b.ID, 25)
	require.NoError(t, err)

	balances := map[engine.Principal]uint64{"alice": 550, "bob": 450, "vault": 0}
	for owner, want := range balances {
		got, err := l.Balance(ctx, "gold", owner)
		require.NoError(t, err)
		assert.Equal(t, want, got, owner)
	}

	stored, ok, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.StateResolved, stored.State)

	events, err := s.ReadEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 5)
	assert.True(t, engine.Audit(events).OK())

	mismatches, err := s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestEngineOverStore_FailedCreateLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.Ledger().Mint(ctx, "gold", "alice", 10))
	eng := newEngine(t, s, engine.FixedHeight(10))

	_, err := eng.Create(ctx, "alice", engine.CreateRequest{Recipient: "bob", AssetID: "gold", Amount: 11})
	assert.Equal(t, engine.CodeTransferFailed, engine.CodeOf(err))

	n, err := s.Counter(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
	events, err := s.ReadEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEngineOverStore_ReopenResumesSequence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "escrow.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Ledger().Mint(ctx, "gold", "alice", 100))
	eng := newEngine(t, s, engine.FixedHeight(10))
	v, err := eng.Create(ctx, "alice", engine.CreateRequest{Recipient: "bob", AssetID: "gold", Amount: 10})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	eng = newEngine(t, s, engine.FixedHeight(20))

	_, err = eng.Withdraw(ctx, "alice", v.ID)
	require.NoError(t, err)
	w, err := eng.Create(ctx, "alice", engine.CreateRequest{Recipient: "bob", AssetID: "gold", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, v.ID+1, w.ID)

	events, err := s.ReadEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestReconcile_DetectsDrift(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	v := createTestVault(1, "alice", "bob", 10)
	putVaults(t, s, v, createTestVault(2, "alice", "bob", 10))
	require.NoError(t, s.Emit(ctx, testRecord(1, 1, engine.VaultCreated{Depositor: "alice", Recipient: "bob", AssetID: "gold", Amount: 10})))

	v.State = engine.StateCompleted
	putVaults(t, s, v)

	mismatches, err := s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Mismatch{
		{VaultID: 1, Stored: engine.StateCompleted, Replayed: engine.StatePending},
		{VaultID: 2, Stored: engine.StatePending, Missing: true},
	}, mismatches)
}
