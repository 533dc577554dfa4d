package engine

import (
	"fmt"
	"math/bits"
	"slices"
)

// Finding is one conservation discrepancy found by Audit.
type Finding struct {
	VaultID uint64 `json:"vault_id"`
	Locked  uint64 `json:"locked"`
	Paid    uint64 `json:"paid"`
	Reason  string `json:"reason"`
}

// AuditReport summarizes a replay of the event log.
type AuditReport struct {
	Vaults   int       `json:"vaults"`
	Settled  int       `json:"settled"`
	Locked   uint64    `json:"locked"`
	Findings []Finding `json:"findings,omitempty"`
}

// OK reports whether the log conserves value.
func (r AuditReport) OK() bool { return len(r.Findings) == 0 }

type ledgerEntry struct {
	created     int
	locked      uint64
	paid        uint64
	overflow    bool
	settlements int
}

var settlementKinds = map[EventKind]bool{
	KindTransferCompleted: true,
	KindFundsReturned:     true,
	KindFundsWithdrawn:    true,
	KindExpiredRecovered:  true,
	KindDisputeResolved:   true,
}

// Audit replays stored events and checks that every vault paid out exactly
// what it locked, at most once. Vaults still holding value are counted in
// Locked and are not findings.
func Audit(events []StoredEvent) AuditReport {
	entries := make(map[uint64]*ledgerEntry)
	for _, ev := range events {
		e := entries[ev.VaultID]
		if e == nil {
			e = &ledgerEntry{}
			entries[ev.VaultID] = e
		}
		switch {
		case ev.Kind == KindVaultCreated:
			e.created++
			e.locked, _ = ev.Payload.Amount("amount")
		case settlementKinds[ev.Kind]:
			e.settlements++
			dep, _ := ev.Payload.Amount("paid_depositor")
			rec, _ := ev.Payload.Amount("paid_recipient")
			var c1, c2 uint64
			e.paid, c1 = bits.Add64(e.paid, dep, 0)
			e.paid, c2 = bits.Add64(e.paid, rec, 0)
			e.overflow = e.overflow || c1 != 0 || c2 != 0
		}
	}

	ids := make([]uint64, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var report AuditReport
	for _, id := range ids {
		e := entries[id]
		find := func(format string, args ...any) {
			report.Findings = append(report.Findings, Finding{
				VaultID: id,
				Locked:  e.locked,
				Paid:    e.paid,
				Reason:  fmt.Sprintf(format, args...),
			})
		}
		if e.created == 0 {
			find("events without creation")
			continue
		}
		report.Vaults++
		if e.created > 1 {
			find("created %d times", e.created)
		}
		switch {
		case e.settlements == 0:
			report.Locked += e.locked
		case e.settlements > 1:
			report.Settled++
			find("settled %d times", e.settlements)
		case e.overflow || e.paid != e.locked:
			report.Settled++
			find("paid %d of %d locked", e.paid, e.locked)
		default:
			report.Settled++
		}
	}
	return report
}

// ReplayStates derives each vault's state from the event log alone.
func ReplayStates(events []StoredEvent) map[uint64]State {
	out := make(map[uint64]State)
	for _, ev := range events {
		if s, ok := ev.Kind.Target(); ok {
			out[ev.VaultID] = s
		}
	}
	return out
}
