package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/escrow/internal/ir"
)

// Transferer is the asset-transfer primitive. Each call is synchronous and
// atomic: it either moves amount of asset from one principal to another or
// fails without effect.
type Transferer interface {
	Transfer(ctx context.Context, asset string, amount uint64, from, to Principal) error
}

// ProofRecoverer recovers the principal that signed a 32-byte message hash.
type ProofRecoverer interface {
	RecoverPrincipal(msgHash, sig []byte) (Principal, error)
}

// Engine is the vault engine.
//
// Thread-safety model:
//   - every exported operation is safe from any goroutine
//   - operations are serialized by one engine-wide mutex, so each runs its
//     checks, registry mutation, transfers and event emission to completion
//     before the next begins
type Engine struct {
	mu sync.Mutex

	policy    Policy
	registry  Registry
	transfers Transferer
	heights   HeightSource
	proofs    ProofRecoverer
	sink      EventSink
	clock     *Clock
	flowGen   FlowTokenGenerator
	logger    *slog.Logger

	// moved holds the transfers applied by the operation in progress.
	moved []leg
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithEventSink sets where emitted records go. Default: DiscardSink.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithProofRecoverer enables AddVerification and VerifyWithCrypto.
func WithProofRecoverer(p ProofRecoverer) Option {
	return func(e *Engine) { e.proofs = p }
}

// WithClock resumes event sequencing from an existing clock.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithFlowGenerator overrides the UUIDv7 flow token generator.
func WithFlowGenerator(g FlowTokenGenerator) Option {
	return func(e *Engine) { e.flowGen = g }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over the given registry and collaborators.
// The policy is validated and copied; later changes to the caller's value
// have no effect.
func New(policy Policy, reg Registry, transfers Transferer, heights HeightSource, opts ...Option) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if reg == nil || transfers == nil || heights == nil {
		return nil, errors.New("registry, transferer and height source are required")
	}

	e := &Engine{
		policy:    policy,
		registry:  reg,
		transfers: transfers,
		heights:   heights,
		sink:      DiscardSink{},
		clock:     NewClock(),
		flowGen:   UUIDv7Generator{},
		logger:    slog.Default(),
	}
	e.policy.MetadataCategories = append([]string(nil), policy.MetadataCategories...)

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Policy returns a copy of the engine's policy.
func (e *Engine) Policy() Policy {
	p := e.policy
	p.MetadataCategories = append([]string(nil), e.policy.MetadataCategories...)
	return p
}

// Vault reads one vault record.
func (e *Engine) Vault(ctx context.Context, id uint64) (Vault, error) {
	if id < e.policy.IDOrigin {
		return Vault{}, newError(CodeBadID, "", id, "vault ids start at %d", e.policy.IDOrigin)
	}
	v, ok, err := e.registry.Get(ctx, id)
	if err != nil {
		return Vault{}, wrapError(CodeInternal, "", id, err, "read vault")
	}
	if !ok {
		return Vault{}, newError(CodeNotFound, "", id, "vault %d does not exist", id)
	}
	return v, nil
}

// Counter returns the highest vault id issued so far.
func (e *Engine) Counter(ctx context.Context) (uint64, error) {
	return e.registry.Counter(ctx)
}

// effect applies a transition to v, which has already passed the
// authorization, state and window checks. It may move value and must return
// the event to emit.
type effect func(ctx context.Context, v *Vault, now Height) (Event, error)

// transition runs one vault-scoped operation under the rule for op.
// Checks run in precedence order: id, existence, authorization, state,
// window; parameters and effects are left to fn.
func (e *Engine) transition(ctx context.Context, op Op, caller Principal, id uint64, fn effect) (Vault, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := rules[op]
	if !ok {
		return Vault{}, newError(CodeInternal, op, id, "no transition rule")
	}
	if id < e.policy.IDOrigin {
		return Vault{}, e.reject(op, caller, newError(CodeBadID, op, id, "vault ids start at %d", e.policy.IDOrigin))
	}

	now := e.heights.Height()
	var out Vault
	err := e.registry.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		v, found, err := tx.Get(ctx, id)
		if err != nil {
			return wrapError(CodeInternal, op, id, err, "read vault")
		}
		if !found {
			return newError(CodeNotFound, op, id, "vault %d does not exist", id)
		}
		if e.policy.roles(caller, v)&r.who == 0 {
			return newError(CodeNotAllowed, op, id, "caller %q is not permitted", caller)
		}
		if !r.from.has(v.State) {
			return newError(CodeAlreadyHandled, op, id, "vault is %s", v.State)
		}
		switch r.window {
		case windowOpen:
			if v.Expired(now) {
				return newError(CodeExpired, op, id, "window closed at %d, now %d", v.EndHeight, now)
			}
		case windowElapsed:
			if !v.Expired(now) {
				return newError(CodeNotExpired, op, id, "window open until %d, now %d", v.EndHeight, now)
			}
		}

		e.moved = e.moved[:0]
		before := v
		ev, err := fn(ctx, &v, now)
		if err != nil {
			return err
		}
		if err := e.commit(ctx, tx, op, caller, before, v, now, ev); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return Vault{}, e.reject(op, caller, err)
	}

	e.logger.Info("vault transition",
		"op", op,
		"vault", out.ID,
		"caller", caller,
		"state", out.State,
		"height", now,
	)
	return out, nil
}

// emit stamps and hands one event to the sink. Called inside the registry
// transaction so a sink failure rolls the transition back.
func (e *Engine) emit(ctx context.Context, op Op, caller Principal, vaultID uint64, now Height, ev Event) error {
	rec := Record{
		Seq:       e.clock.Next(),
		FlowToken: e.flowGen.Generate(),
		VaultID:   vaultID,
		Height:    now,
		Caller:    caller,
		Event:     ev,
	}
	id, err := ir.EventID(rec.FlowToken, string(ev.Kind()), vaultID, rec.Seq, rec.Payload())
	if err != nil {
		return wrapError(CodeInternal, op, vaultID, err, "event id")
	}
	rec.ID = id
	if err := e.sink.Emit(ctx, rec); err != nil {
		return wrapError(CodeInternal, op, vaultID, err, "emit %s", ev.Kind())
	}
	return nil
}

// reject logs a failed operation and normalizes err to *Error.
func (e *Engine) reject(op Op, caller Principal, err error) error {
	var ee *Error
	if !errors.As(err, &ee) {
		err = wrapError(CodeInternal, op, 0, err, "registry")
		ee = err.(*Error)
	}
	level := slog.LevelDebug
	if ee.Code == CodeInternal || ee.Code == CodeTransferFailed {
		level = slog.LevelError
	}
	e.logger.Log(context.Background(), level, "vault operation rejected",
		"op", op,
		"vault", ee.VaultID,
		"caller", caller,
		"code", ee.Code,
		"error", err,
	)
	return err
}

// leg is one transfer of the vault's asset.
type leg struct {
	from   Principal
	to     Principal
	amount uint64
}

// pay moves each leg from the custodian and records it as moved. If a leg
// fails, the legs this call applied are reversed so no value is created or
// lost, and the error is returned for the registry transaction to roll back.
func (e *Engine) pay(ctx context.Context, op Op, v Vault, legs ...leg) error {
	mark := len(e.moved)
	for _, l := range legs {
		if l.amount == 0 {
			continue
		}
		l.from = e.policy.Custodian
		if err := e.transfers.Transfer(ctx, v.AssetID, l.amount, l.from, l.to); err != nil {
			if rerr := e.unwind(ctx, op, v, mark); rerr != nil {
				return wrapError(CodeTransferFailed, op, v.ID, errors.Join(err, rerr), "payout to %s failed and reversal failed", l.to)
			}
			return wrapError(CodeTransferFailed, op, v.ID, err, "payout of %d to %s", l.amount, l.to)
		}
		e.moved = append(e.moved, l)
	}
	return nil
}

// unwind reverses, newest first, every transfer moved since mark.
func (e *Engine) unwind(ctx context.Context, op Op, v Vault, mark int) error {
	var errs []error
	for i := len(e.moved) - 1; i >= mark; i-- {
		l := e.moved[i]
		if err := e.transfers.Transfer(ctx, v.AssetID, l.amount, l.to, l.from); err != nil {
			e.logger.Error("transfer reversal failed",
				"op", op,
				"vault", v.ID,
				"from", l.to,
				"to", l.from,
				"amount", l.amount,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	e.moved = e.moved[:mark]
	return errors.Join(errs...)
}

// commit writes v when it changed and emits ev. On failure every transfer
// moved by the current operation is reversed before the error is returned.
func (e *Engine) commit(ctx context.Context, tx Tx, op Op, caller Principal, before, v Vault, now Height, ev Event) error {
	err := func() error {
		if v != before {
			if err := tx.Put(ctx, v); err != nil {
				return wrapError(CodeInternal, op, v.ID, err, "write vault")
			}
		}
		return e.emit(ctx, op, caller, v.ID, now, ev)
	}()
	if err == nil {
		return nil
	}
	if rerr := e.unwind(ctx, op, v, 0); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}
