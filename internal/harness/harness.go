package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/identity"
	"github.com/roach88/escrow/internal/ir"
	"github.com/roach88/escrow/internal/ledger"
	"github.com/roach88/escrow/internal/policy"
	"github.com/roach88/escrow/internal/testutil"
)

// Default identities used when a scenario carries no policy.
const (
	DefaultAdmin     engine.Principal = "admin"
	DefaultCustodian engine.Principal = "vault"
)

// Harness is the test execution engine.
// It runs scenarios with deterministic clock, height and flow tokens.
type Harness struct {
	engine *engine.Engine
	book   *ledger.Book
	height *testutil.ManualHeight
	sink   *engine.MemorySink
	logger *slog.Logger

	// minted is the opening supply per asset, for the conserved assertion.
	minted map[string]uint64
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory registry and ledger.
// Execution flow:
// 1. Compile the policy and mint opening balances
// 2. Execute steps, checking expect clauses
// 3. Evaluate assertions
//
// An error return means the scenario itself is broken (bad policy, bad
// arguments); failed expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	pol := engine.DefaultPolicy(DefaultAdmin, DefaultCustodian)
	if scenario.Policy != "" {
		var err error
		pol, err = policy.Compile(scenario.Name+".cue", []byte(scenario.Policy))
		if err != nil {
			return nil, fmt.Errorf("scenario policy: %w", err)
		}
	}

	h := &Harness{
		book:   ledger.NewBook(),
		height: testutil.NewManualHeight(engine.Height(scenario.Height)),
		sink:   &engine.MemorySink{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		minted: make(map[string]uint64),
	}

	eng, err := engine.New(pol, engine.NewMemoryRegistry(), h.book, h.height,
		engine.WithEventSink(h.sink),
		engine.WithFlowGenerator(testutil.NewFixedFlowGenerator(scenario.FlowToken)),
		engine.WithProofRecoverer(identity.Secp256k1{}),
		engine.WithLogger(h.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	h.engine = eng

	for i, b := range scenario.Balances {
		if err := h.book.Mint(b.Asset, engine.Principal(b.Owner), b.Amount); err != nil {
			return nil, fmt.Errorf("balances[%d]: %w", i, err)
		}
		h.minted[b.Asset] += b.Amount
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Engine:    eng,
		Book:      h.book,
		Events:    h.sink.Stored(),
		Minted:    h.minted,
		Custodian: pol.Custodian,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step, records it in the trace and checks its
// expect clause.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	bind := operations[step.Op]
	call, err := bind(h, engine.Principal(step.Caller), argMap(step.Args))
	if err != nil {
		return err
	}

	if step.At != 0 {
		h.height.Set(engine.Height(step.At))
	}
	if step.Advance != 0 {
		h.height.Advance(engine.Height(step.Advance))
	}
	if step.FailAfter != nil {
		h.book.FailAfter(*step.FailAfter)
	}
	if step.FailTo != "" {
		h.book.FailTo(engine.Principal(step.FailTo))
	}
	defer h.book.Heal()

	before := len(h.sink.Records())
	v, callErr := call(ctx)

	outcome := OutcomeOK
	if callErr != nil {
		code := engine.CodeOf(callErr)
		if code == "" {
			return callErr
		}
		outcome = string(code)
	}

	ev := TraceEvent{
		Step:    i,
		Op:      step.Op,
		Caller:  step.Caller,
		Height:  uint64(h.height.Height()),
		Args:    step.Args,
		Outcome: outcome,
	}
	if callErr == nil {
		ev.VaultID = v.ID
		ev.State = v.State.String()
	}
	for _, rec := range h.sink.Records()[before:] {
		ev.Events = append(ev.Events, EmittedEvent{Seq: rec.Seq, Kind: string(rec.Event.Kind())})
	}
	result.AddStep(ev)

	h.logger.Info("step completed",
		"step", i,
		"op", step.Op,
		"caller", step.Caller,
		"outcome", outcome,
	)

	for _, msg := range checkExpect(step, outcome, v) {
		result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Op, msg))
	}
	return nil
}

func checkExpect(step Step, outcome string, v engine.Vault) []string {
	want := Expect{}
	if step.Expect != nil {
		want = *step.Expect
	}
	if want.Error != "" {
		if outcome != want.Error {
			return []string{fmt.Sprintf("expected error %s, got %s", want.Error, outcome)}
		}
		return nil
	}
	if outcome != OutcomeOK {
		return []string{fmt.Sprintf("expected success, got %s", outcome)}
	}

	var msgs []string
	if want.State != "" && v.State.String() != want.State {
		msgs = append(msgs, fmt.Sprintf("expected state %s, got %s", want.State, v.State))
	}
	if len(want.Vault) > 0 {
		if msg := matchFields(vaultFields(v), want.Vault); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// vaultFields flattens a vault for subset matching. Keys follow the
// vault's JSON names.
func vaultFields(v engine.Vault) map[string]any {
	return map[string]any{
		"id":               v.ID,
		"depositor":        string(v.Depositor),
		"recipient":        string(v.Recipient),
		"asset_id":         v.AssetID,
		"amount":           v.Amount,
		"state":            v.State.String(),
		"start_height":     uint64(v.StartHeight),
		"end_height":       uint64(v.EndHeight),
		"extended":         uint64(v.Extended),
		"recovery_address": string(v.RecoveryAddress),
		"recovery_unlock":  uint64(v.RecoveryUnlock),
	}
}

// matchFields checks that actual contains every expected key with an equal
// value. Values compare by their printed form so YAML ints match uint64s.
func matchFields(actual, expected map[string]any) string {
	for _, key := range slices.Sorted(maps.Keys(expected)) {
		got, ok := actual[key]
		if !ok {
			return fmt.Sprintf("field %q is not a vault field", key)
		}
		if fmt.Sprint(got) != fmt.Sprint(expected[key]) {
			return fmt.Sprintf("field %q = %v, expected %v", key, got, expected[key])
		}
	}
	return ""
}

// proof signs the digest for (id, op) with the hex key in args["key"].
func proof(args argMap, id uint64, op engine.Op) (engine.Proof, error) {
	hexKey, err := args.str("key")
	if err != nil {
		return engine.Proof{}, err
	}
	key, err := identity.ParsePrivateKey(hexKey)
	if err != nil {
		return engine.Proof{}, err
	}
	digest := ir.ProofDigest(id, string(op))
	sig, err := identity.Sign(key, digest)
	if err != nil {
		return engine.Proof{}, err
	}
	return engine.Proof{Hash: digest, Signature: sig}, nil
}
