package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/ledger"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s by %s at %d: %s\n", ev.Step, ev.Op, ev.Caller, ev.Height, ev.Outcome)
		}
	}
	return buf.String()
}

// AssertionContext provides the final run state to assertions.
type AssertionContext struct {
	Ctx       context.Context
	Engine    *engine.Engine
	Book      *ledger.Book
	Events    []engine.StoredEvent
	Minted    map[string]uint64
	Custodian engine.Principal
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertVaultState:
			err = assertVaultState(actx, a)
		case AssertVaultFields:
			err = assertVaultFields(actx, a)
		case AssertBalance:
			err = assertBalance(actx, a)
		case AssertEventCount:
			err = assertEventCount(actx.Events, a)
		case AssertEventOrder:
			err = assertEventOrder(actx.Events, a)
		case AssertConserved:
			err = assertConserved(actx)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			var ae *AssertionError
			if errors.As(err, &ae) {
				ae.Trace = result.Trace
			}
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func assertVaultState(actx *AssertionContext, a Assertion) error {
	v, err := actx.Engine.Vault(actx.Ctx, a.Vault)
	if err != nil {
		return &AssertionError{
			Type:     AssertVaultState,
			Expected: fmt.Sprintf("vault %d in state %s", a.Vault, a.State),
			Actual:   err.Error(),
		}
	}
	if v.State.String() != a.State {
		return &AssertionError{
			Type:     AssertVaultState,
			Expected: fmt.Sprintf("vault %d in state %s", a.Vault, a.State),
			Actual:   v.State.String(),
		}
	}
	return nil
}

func assertVaultFields(actx *AssertionContext, a Assertion) error {
	v, err := actx.Engine.Vault(actx.Ctx, a.Vault)
	if err != nil {
		return &AssertionError{
			Type:     AssertVaultFields,
			Expected: fmt.Sprintf("vault %d", a.Vault),
			Actual:   err.Error(),
		}
	}
	if msg := matchFields(vaultFields(v), a.Fields); msg != "" {
		return &AssertionError{
			Type:     AssertVaultFields,
			Expected: fmt.Sprintf("vault %d fields %v", a.Vault, a.Fields),
			Actual:   msg,
		}
	}
	return nil
}

func assertBalance(actx *AssertionContext, a Assertion) error {
	got := actx.Book.Balance(a.Asset, engine.Principal(a.Owner))
	if got != a.Amount {
		return &AssertionError{
			Type:     AssertBalance,
			Expected: fmt.Sprintf("%s holds %d %s", a.Owner, a.Amount, a.Asset),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

func assertEventCount(events []engine.StoredEvent, a Assertion) error {
	count := 0
	for _, ev := range events {
		if string(ev.Kind) == a.Kind {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d occurrences", count),
		}
	}
	return nil
}

// assertEventOrder checks that kinds appear in the given relative order.
// Intervening events are allowed.
func assertEventOrder(events []engine.StoredEvent, a Assertion) error {
	next := 0
	for _, ev := range events {
		if next < len(a.Kinds) && string(ev.Kind) == a.Kinds[next] {
			next++
		}
	}
	if next < len(a.Kinds) {
		seen := make([]string, len(events))
		for i, ev := range events {
			seen[i] = string(ev.Kind)
		}
		return &AssertionError{
			Type:     AssertEventOrder,
			Expected: fmt.Sprintf("events in order: %v", a.Kinds),
			Actual:   fmt.Sprintf("missing %s after %v in %v", a.Kinds[next], a.Kinds[:next], seen),
		}
	}
	return nil
}

// assertConserved audits the event log and checks the ledger against it:
// supply per asset is unchanged and the custodian holds exactly what is
// still locked.
func assertConserved(actx *AssertionContext) error {
	report := engine.Audit(actx.Events)
	if !report.OK() {
		return &AssertionError{
			Type:     AssertConserved,
			Expected: "clean audit",
			Actual:   fmt.Sprintf("%v", report.Findings),
		}
	}

	var held uint64
	for _, asset := range slices.Sorted(maps.Keys(actx.Minted)) {
		if total := actx.Book.Total(asset); total != actx.Minted[asset] {
			return &AssertionError{
				Type:     AssertConserved,
				Expected: fmt.Sprintf("supply of %s = %d", asset, actx.Minted[asset]),
				Actual:   fmt.Sprintf("%d", total),
			}
		}
		held += actx.Book.Balance(asset, actx.Custodian)
	}
	if held != report.Locked {
		return &AssertionError{
			Type:     AssertConserved,
			Expected: fmt.Sprintf("custodian holds %d locked", report.Locked),
			Actual:   fmt.Sprintf("%d", held),
		}
	}
	return nil
}
