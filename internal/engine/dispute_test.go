package engine_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/escrow/internal/engine"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		amount   uint64
		pct      uint
		dep, rec uint64
	}{
		{100, 0, 0, 100},
		{100, 100, 100, 0},
		{100, 50, 50, 50},
		{101, 33, 33, 68},
		{1, 50, 0, 1},
		{math.MaxUint64, 100, math.MaxUint64, 0},
		{math.MaxUint64, 50, math.MaxUint64 / 2, math.MaxUint64 - math.MaxUint64/2},
	}
	for _, tt := range tests {
		dep, rec, ok := engine.Split(tt.amount, tt.pct)
		require.True(t, ok)
		assert.Equal(t, tt.dep, dep, "amount=%d pct=%d", tt.amount, tt.pct)
		assert.Equal(t, tt.rec, rec, "amount=%d pct=%d", tt.amount, tt.pct)
	}

	_, _, ok := engine.Split(100, 101)
	assert.False(t, ok)
}

func TestDispute_OpenAndResolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 101)

	v, err := f.eng.OpenDispute(ctx, bob, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StateDisputed, v.State)

	// Disputed vaults cannot be completed or withdrawn.
	_, err = f.eng.Complete(ctx, alice, id)
	requireCode(t, err, engine.CodeAlreadyHandled)
	_, err = f.eng.Withdraw(ctx, alice, id)
	requireCode(t, err, engine.CodeAlreadyHandled)

	_, err = f.eng.ResolveDispute(ctx, alice, id, 50)
	requireCode(t, err, engine.CodeNotAllowed)

	_, err = f.eng.ResolveDispute(ctx, admin, id, 101)
	requireCode(t, err, engine.CodeBadValue)
	assert.Equal(t, engine.StateDisputed, f.state(t, id))

	v, err = f.eng.ResolveDispute(ctx, admin, id, 33)
	require.NoError(t, err)
	assert.Equal(t, engine.StateResolved, v.State)

	assert.Equal(t, uint64(1000-101+33), f.book.Balance(gold, alice))
	assert.Equal(t, uint64(1000+68), f.book.Balance(gold, bob))
	assert.Equal(t, uint64(0), f.book.Balance(gold, custodian))

	recs := f.sink.Records()
	assert.Equal(t, engine.DisputeResolved{Percentage: 33, DepositorShare: 33, RecipientShare: 68}, recs[len(recs)-1].Event)
}

func TestResolveDispute_NotDisputed(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 10)

	_, err := f.eng.ResolveDispute(context.Background(), admin, id, 50)
	requireCode(t, err, engine.CodeAlreadyHandled)
}

func TestResolveDispute_AfterWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 10)
	_, err := f.eng.OpenDispute(ctx, alice, id)
	require.NoError(t, err)
	f.height.Advance(engine.DefaultLifetime + 1)

	_, err = f.eng.ResolveDispute(ctx, admin, id, 50)
	requireCode(t, err, engine.CodeExpired)

	// A disputed vault is not live, so recover-expired does not apply either.
	_, err = f.eng.RecoverExpired(ctx, alice, id)
	requireCode(t, err, engine.CodeAlreadyHandled)
}

func TestResolveDispute_SecondLegFailureIsCompensated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 100)
	_, err := f.eng.OpenDispute(ctx, bob, id)
	require.NoError(t, err)
	events := len(f.sink.Records())

	f.book.FailTo(bob)
	_, err = f.eng.ResolveDispute(ctx, admin, id, 40)
	requireCode(t, err, engine.CodeTransferFailed)

	assert.Equal(t, engine.StateDisputed, f.state(t, id))
	assert.Equal(t, uint64(900), f.book.Balance(gold, alice))
	assert.Equal(t, uint64(1000), f.book.Balance(gold, bob))
	assert.Equal(t, uint64(100), f.book.Balance(gold, custodian))
	assert.Len(t, f.sink.Records(), events)

	f.book.Heal()
	_, err = f.eng.ResolveDispute(ctx, admin, id, 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(940), f.book.Balance(gold, alice))
	assert.Equal(t, uint64(1060), f.book.Balance(gold, bob))
}

func TestResolveDispute_ZeroLegIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 100)
	_, err := f.eng.OpenDispute(ctx, bob, id)
	require.NoError(t, err)

	f.book.FailTo(bob)
	_, err = f.eng.ResolveDispute(ctx, admin, id, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), f.book.Balance(gold, alice))
}
