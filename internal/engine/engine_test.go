package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/ledger"
	"github.com/roach88/escrow/internal/testutil"
)

const (
	admin     engine.Principal = "admin"
	custodian engine.Principal = "vault"
	alice     engine.Principal = "alice"
	bob       engine.Principal = "bob"
	carol     engine.Principal = "carol"
	gold                       = "gold"
)

type fixture struct {
	eng    *engine.Engine
	reg    *engine.MemoryRegistry
	book   *ledger.Book
	height *testutil.ManualHeight
	sink   *engine.MemorySink
}

func newFixture(t *testing.T, opts ...engine.Option) *fixture {
	t.Helper()
	return newFixtureWithPolicy(t, engine.DefaultPolicy(admin, custodian), opts...)
}

func newFixtureWithPolicy(t *testing.T, p engine.Policy, opts ...engine.Option) *fixture {
	t.Helper()
	f := &fixture{
		reg:    engine.NewMemoryRegistry(),
		book:   ledger.NewBook(),
		height: testutil.NewManualHeight(100),
		sink:   &engine.MemorySink{},
	}
	require.NoError(t, f.book.Mint(gold, alice, 1000))
	require.NoError(t, f.book.Mint(gold, bob, 1000))

	opts = append([]engine.Option{
		engine.WithEventSink(f.sink),
		engine.WithFlowGenerator(testutil.NewFixedFlowGenerator("flow-test")),
	}, opts...)
	eng, err := engine.New(p, f.reg, f.book, f.height, opts...)
	require.NoError(t, err)
	f.eng = eng
	return f
}

// create opens a vault from alice to bob and returns its id.
func (f *fixture) create(t *testing.T, amount uint64) uint64 {
	t.Helper()
	v, err := f.eng.Create(context.Background(), alice, engine.CreateRequest{
		Recipient: bob,
		AssetID:   gold,
		Amount:    amount,
	})
	require.NoError(t, err)
	return v.ID
}

func (f *fixture) state(t *testing.T, id uint64) engine.State {
	t.Helper()
	v, err := f.eng.Vault(context.Background(), id)
	require.NoError(t, err)
	return v.State
}

func requireCode(t *testing.T, err error, code engine.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, engine.CodeOf(err), "error: %v", err)
}

func TestNew_RejectsInvalidPolicy(t *testing.T) {
	p := engine.DefaultPolicy(admin, admin)
	_, err := engine.New(p, engine.NewMemoryRegistry(), ledger.NewBook(), engine.FixedHeight(0))
	assert.ErrorContains(t, err, "invalid policy")
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := engine.New(engine.DefaultPolicy(admin, custodian), nil, ledger.NewBook(), engine.FixedHeight(0))
	assert.Error(t, err)
}

func TestCreate_LocksFunds(t *testing.T) {
	f := newFixture(t)

	v, err := f.eng.Create(context.Background(), alice, engine.CreateRequest{
		Recipient: bob,
		AssetID:   gold,
		Amount:    250,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), v.ID)
	assert.Equal(t, engine.StatePending, v.State)
	assert.Equal(t, alice, v.Depositor)
	assert.Equal(t, bob, v.Recipient)
	assert.Equal(t, engine.Height(100), v.StartHeight)
	assert.Equal(t, engine.Height(100)+engine.DefaultLifetime, v.EndHeight)

	assert.Equal(t, uint64(750), f.book.Balance(gold, alice))
	assert.Equal(t, uint64(250), f.book.Balance(gold, custodian))
	assert.Equal(t, []engine.EventKind{engine.KindVaultCreated}, f.sink.Kinds())

	stored, err := f.eng.Vault(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, v, stored)
}

func TestCreate_IDsAreSequential(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, uint64(1), f.create(t, 1))
	assert.Equal(t, uint64(2), f.create(t, 1))
	assert.Equal(t, uint64(3), f.create(t, 1))

	n, err := f.eng.Counter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestCreate_IDOrigin(t *testing.T) {
	p := engine.DefaultPolicy(admin, custodian)
	p.IDOrigin = 1000
	f := newFixtureWithPolicy(t, p)

	assert.Equal(t, uint64(1000), f.create(t, 1))
	assert.Equal(t, uint64(1001), f.create(t, 1))

	_, err := f.eng.Complete(context.Background(), alice, 999)
	requireCode(t, err, engine.CodeBadID)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		caller engine.Principal
		req    engine.CreateRequest
		code   engine.Code
	}{
		{"zero amount", alice, engine.CreateRequest{Recipient: bob, AssetID: gold}, engine.CodeBadValue},
		{"self recipient", alice, engine.CreateRequest{Recipient: alice, AssetID: gold, Amount: 1}, engine.CodeBadRecipient},
		{"empty recipient", alice, engine.CreateRequest{AssetID: gold, Amount: 1}, engine.CodeBadRecipient},
		{"custodian recipient", alice, engine.CreateRequest{Recipient: custodian, AssetID: gold, Amount: 1}, engine.CodeBadRecipient},
		{"empty asset", alice, engine.CreateRequest{Recipient: bob, Amount: 1}, engine.CodeBadValue},
		{"lifetime too long", alice, engine.CreateRequest{Recipient: bob, AssetID: gold, Amount: 1, Lifetime: engine.DefaultMaxLifetime + 1}, engine.CodeBadValue},
		{"anonymous caller", "", engine.CreateRequest{Recipient: bob, AssetID: gold, Amount: 1}, engine.CodeNotAllowed},
		{"custodian caller", custodian, engine.CreateRequest{Recipient: bob, AssetID: gold, Amount: 1}, engine.CodeNotAllowed},
		{"amount checked before recipient", alice, engine.CreateRequest{Recipient: alice, AssetID: gold}, engine.CodeBadValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.eng.Create(context.Background(), tt.caller, tt.req)
			requireCode(t, err, tt.code)

			assert.Equal(t, uint64(1000), f.book.Balance(gold, alice))
			assert.Equal(t, 0, f.reg.Len())
			assert.Empty(t, f.sink.Records())
		})
	}
}

func TestCreate_TransferFailureRecordsNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Create(context.Background(), alice, engine.CreateRequest{Recipient: bob, AssetID: gold, Amount: 5000})
	requireCode(t, err, engine.CodeTransferFailed)
	assert.ErrorIs(t, err, ledger.ErrInsufficient)

	n, err := f.eng.Counter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
	assert.Empty(t, f.sink.Records())

	// The id was not consumed.
	assert.Equal(t, uint64(1), f.create(t, 10))
}

func TestCreate_LifetimeOverride(t *testing.T) {
	f := newFixture(t)

	v, err := f.eng.Create(context.Background(), alice, engine.CreateRequest{
		Recipient: bob,
		AssetID:   gold,
		Amount:    1,
		Lifetime:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, engine.Height(110), v.EndHeight)
}

func TestComplete_PaysRecipient(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 300)

	v, err := f.eng.Complete(context.Background(), alice, id)
	require.NoError(t, err)

	assert.Equal(t, engine.StateCompleted, v.State)
	assert.Equal(t, uint64(700), f.book.Balance(gold, alice))
	assert.Equal(t, uint64(1300), f.book.Balance(gold, bob))
	assert.Equal(t, uint64(0), f.book.Balance(gold, custodian))
	assert.Equal(t, []engine.EventKind{engine.KindVaultCreated, engine.KindTransferCompleted}, f.sink.Kinds())
}

func TestComplete_ByAdmin(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 300)

	_, err := f.eng.Complete(context.Background(), admin, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StateCompleted, f.state(t, id))
}

func TestComplete_RecipientCannotReleaseToSelf(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 300)

	_, err := f.eng.Complete(context.Background(), bob, id)
	requireCode(t, err, engine.CodeNotAllowed)
	assert.Equal(t, engine.StatePending, f.state(t, id))
	assert.Equal(t, uint64(300), f.book.Balance(gold, custodian))
}

func TestComplete_TransferFailureLeavesVaultPending(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 300)
	f.book.FailTo(bob)

	_, err := f.eng.Complete(context.Background(), alice, id)
	requireCode(t, err, engine.CodeTransferFailed)
	assert.ErrorIs(t, err, ledger.ErrInjected)

	assert.Equal(t, engine.StatePending, f.state(t, id))
	assert.Equal(t, uint64(300), f.book.Balance(gold, custodian))
	assert.Len(t, f.sink.Records(), 1)

	f.book.Heal()
	_, err = f.eng.Complete(context.Background(), alice, id)
	require.NoError(t, err)
}

// switchSink records like MemorySink but refuses every record while down.
type switchSink struct {
	engine.MemorySink
	down bool
}

var errSinkDown = errors.New("sink down")

func (s *switchSink) Emit(ctx context.Context, rec engine.Record) error {
	if s.down {
		return errSinkDown
	}
	return s.MemorySink.Emit(ctx, rec)
}

func TestComplete_EmitFailureReversesPayout(t *testing.T) {
	ctx := context.Background()
	sink := &switchSink{}
	f := newFixture(t, engine.WithEventSink(sink))
	id := f.create(t, 1500)
	sink.down = true

	_, err := f.eng.Complete(ctx, alice, id)
	requireCode(t, err, engine.CodeInternal)
	assert.ErrorIs(t, err, errSinkDown)

	assert.Equal(t, engine.StatePending, f.state(t, id))
	assert.Equal(t, uint64(1500), f.book.Balance(gold, custodian))
	assert.Equal(t, uint64(1000), f.book.Balance(gold, bob))
	assert.Len(t, sink.Records(), 1)

	sink.down = false
	_, err = f.eng.Complete(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), f.book.Balance(gold, custodian))
	assert.Equal(t, uint64(2500), f.book.Balance(gold, bob))
}

func TestResolveDispute_EmitFailureReversesBothLegs(t *testing.T) {
	ctx := context.Background()
	sink := &switchSink{}
	f := newFixture(t, engine.WithEventSink(sink))
	id := f.create(t, 100)
	_, err := f.eng.OpenDispute(ctx, alice, id)
	require.NoError(t, err)
	sink.down = true

	_, err = f.eng.ResolveDispute(ctx, admin, id, 40)
	requireCode(t, err, engine.CodeInternal)

	assert.Equal(t, engine.StateDisputed, f.state(t, id))
	assert.Equal(t, uint64(100), f.book.Balance(gold, custodian))
	assert.Equal(t, uint64(900), f.book.Balance(gold, alice))
	assert.Equal(t, uint64(1000), f.book.Balance(gold, bob))
	assert.Equal(t, uint64(2000), f.book.Total(gold))
}

func TestCreate_EmitFailureReturnsDeposit(t *testing.T) {
	ctx := context.Background()
	sink := &switchSink{down: true}
	f := newFixture(t, engine.WithEventSink(sink))

	_, err := f.eng.Create(ctx, alice, engine.CreateRequest{Recipient: bob, AssetID: gold, Amount: 10})
	requireCode(t, err, engine.CodeInternal)

	assert.Equal(t, uint64(1000), f.book.Balance(gold, alice))
	assert.Equal(t, uint64(0), f.book.Balance(gold, custodian))
	n, err := f.eng.Counter(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	sink.down = false
	assert.Equal(t, uint64(1), f.create(t, 10))
	assert.Equal(t, uint64(990), f.book.Balance(gold, alice))
}

func TestReturn_AdminOnlyAndNotTimeGated(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 300)
	f.height.Advance(10_000)

	_, err := f.eng.Return(context.Background(), alice, id)
	requireCode(t, err, engine.CodeNotAllowed)

	v, err := f.eng.Return(context.Background(), admin, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StateReturned, v.State)
	assert.Equal(t, uint64(1000), f.book.Balance(gold, alice))
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 300)

	_, err := f.eng.Withdraw(context.Background(), bob, id)
	requireCode(t, err, engine.CodeNotAllowed)

	v, err := f.eng.Withdraw(context.Background(), alice, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StateWithdrawn, v.State)
	assert.Equal(t, uint64(1000), f.book.Balance(gold, alice))
}

func TestLookup_BadIDAndNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.Complete(ctx, alice, 0)
	requireCode(t, err, engine.CodeBadID)

	_, err = f.eng.Complete(ctx, alice, 99)
	requireCode(t, err, engine.CodeNotFound)

	_, err = f.eng.Vault(ctx, 0)
	requireCode(t, err, engine.CodeBadID)

	_, err = f.eng.Vault(ctx, 99)
	requireCode(t, err, engine.CodeNotFound)
}

func TestPrecedence(t *testing.T) {
	ctx := context.Background()

	t.Run("existence before authorization", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.eng.Complete(ctx, carol, 5)
		requireCode(t, err, engine.CodeNotFound)
	})

	t.Run("authorization before state", func(t *testing.T) {
		f := newFixture(t)
		id := f.create(t, 10)
		_, err := f.eng.Complete(ctx, alice, id)
		require.NoError(t, err)

		_, err = f.eng.Complete(ctx, carol, id)
		requireCode(t, err, engine.CodeNotAllowed)
	})

	t.Run("state before window", func(t *testing.T) {
		f := newFixture(t)
		id := f.create(t, 10)
		_, err := f.eng.Withdraw(ctx, alice, id)
		require.NoError(t, err)
		f.height.Advance(10_000)

		_, err = f.eng.Complete(ctx, alice, id)
		requireCode(t, err, engine.CodeAlreadyHandled)
	})

	t.Run("window before parameters", func(t *testing.T) {
		f := newFixture(t)
		id := f.create(t, 10)
		_, err := f.eng.OpenDispute(ctx, bob, id)
		require.NoError(t, err)
		f.height.Advance(10_000)

		_, err = f.eng.ResolveDispute(ctx, admin, id, 500)
		requireCode(t, err, engine.CodeExpired)
	})
}

func TestExpiryWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 10)
	v, err := f.eng.Vault(ctx, id)
	require.NoError(t, err)

	_, err = f.eng.RecoverExpired(ctx, alice, id)
	requireCode(t, err, engine.CodeNotExpired)

	// The end height itself is still inside the window.
	f.height.Set(v.EndHeight)
	_, err = f.eng.RecoverExpired(ctx, alice, id)
	requireCode(t, err, engine.CodeNotExpired)

	f.height.Set(v.EndHeight + 1)
	_, err = f.eng.Complete(ctx, alice, id)
	requireCode(t, err, engine.CodeExpired)
	_, err = f.eng.Withdraw(ctx, alice, id)
	requireCode(t, err, engine.CodeExpired)
	_, err = f.eng.OpenDispute(ctx, bob, id)
	requireCode(t, err, engine.CodeExpired)

	_, err = f.eng.RecoverExpired(ctx, bob, id)
	requireCode(t, err, engine.CodeNotAllowed)

	v, err = f.eng.RecoverExpired(ctx, admin, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StateExpired, v.State)
	assert.Equal(t, uint64(1000), f.book.Balance(gold, alice))
}

func TestCompleteAtEndHeight(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 10)
	v, err := f.eng.Vault(context.Background(), id)
	require.NoError(t, err)

	f.height.Set(v.EndHeight)
	_, err = f.eng.Complete(context.Background(), alice, id)
	require.NoError(t, err)
}

func TestTerminalStatesAbsorb(t *testing.T) {
	ctx := context.Background()

	settle := map[string]func(f *fixture, id uint64) error{
		"completed": func(f *fixture, id uint64) error { _, err := f.eng.Complete(ctx, alice, id); return err },
		"returned":  func(f *fixture, id uint64) error { _, err := f.eng.Return(ctx, admin, id); return err },
		"withdrawn": func(f *fixture, id uint64) error { _, err := f.eng.Withdraw(ctx, alice, id); return err },
		"resolved": func(f *fixture, id uint64) error {
			if _, err := f.eng.OpenDispute(ctx, bob, id); err != nil {
				return err
			}
			_, err := f.eng.ResolveDispute(ctx, admin, id, 50)
			return err
		},
		"expired": func(f *fixture, id uint64) error {
			f.height.Advance(engine.DefaultLifetime + 1)
			_, err := f.eng.RecoverExpired(ctx, alice, id)
			return err
		},
	}

	for name, fn := range settle {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			id := f.create(t, 100)
			require.NoError(t, fn(f, id))
			before := f.state(t, id)
			custody := f.book.Balance(gold, custodian)

			for op, call := range allOps(f, id) {
				err := call(f.callerFor(op))
				if op == engine.OpAttachMetadata && (before == engine.StateWithdrawn || before == engine.StateResolved) {
					continue
				}
				require.Error(t, err, "op %s", op)
				assert.True(t, errors.Is(err, engine.ErrAlreadyHandled), "op %s: %v", op, err)
			}
			assert.Equal(t, before, f.state(t, id))
			assert.Equal(t, custody, f.book.Balance(gold, custodian))
		})
	}
}

func TestEventsAreSequencedAndAddressed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 100)
	_, err := f.eng.Extend(ctx, bob, id, 10)
	require.NoError(t, err)
	_, err = f.eng.Complete(ctx, admin, id)
	require.NoError(t, err)

	recs := f.sink.Records()
	require.Len(t, recs, 3)
	seen := make(map[string]bool)
	for i, rec := range recs {
		assert.Equal(t, int64(i+1), rec.Seq)
		assert.Equal(t, "flow-test", rec.FlowToken)
		assert.Len(t, rec.ID, 64)
		assert.False(t, seen[rec.ID])
		seen[rec.ID] = true
	}
	assert.Equal(t, bob, recs[1].Caller)
	assert.Equal(t, "admin", recs[2].Payload().Str("by"))
}

func TestWithClockResumesSequence(t *testing.T) {
	f := newFixture(t, engine.WithClock(engine.NewClockAt(41)))
	f.create(t, 1)

	recs := f.sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, int64(42), recs[0].Seq)
}
