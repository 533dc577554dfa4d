package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/ir"
)

// formatAmount renders an amount as decimal TEXT.
func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// parseAmount reads an amount stored as decimal TEXT.
func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

// toInt64 converts an id or height for an INTEGER column.
func toInt64[T ~uint64](v T) (int64, error) {
	if uint64(v) > math.MaxInt64 {
		return 0, fmt.Errorf("value %d exceeds INTEGER range", uint64(v))
	}
	return int64(v), nil
}

// marshalPayload converts an event payload to canonical JSON TEXT.
// Uses RFC 8785 canonical JSON so the stored text hashes to the event id.
func marshalPayload(p ir.IRObject) (string, error) {
	data, err := ir.MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses canonical JSON TEXT to IRObject.
// ir.IRObject.UnmarshalJSON reads numbers via json.Number, so large integers
// survive.
func unmarshalPayload(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return obj, nil
}

// vaultColumns is the column order read by scanVault.
var vaultColumns = []string{
	"id", "depositor", "recipient", "asset_id", "amount", "state",
	"start_height", "end_height", "extended", "recovery_address", "recovery_unlock",
}

const selectVault = `
	SELECT id, depositor, recipient, asset_id, amount, state,
	       start_height, end_height, extended, recovery_address, recovery_unlock
	FROM vaults`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanVault scans one row in vaultColumns order.
func scanVault(row scanner) (engine.Vault, error) {
	var (
		v                      engine.Vault
		id                     int64
		depositor, recipient   string
		amount, state, recovery string
		start, end, extended   int64
		unlock                 int64
	)
	if err := row.Scan(&id, &depositor, &recipient, &v.AssetID, &amount, &state,
		&start, &end, &extended, &recovery, &unlock); err != nil {
		return engine.Vault{}, err
	}

	amt, err := parseAmount(amount)
	if err != nil {
		return engine.Vault{}, err
	}
	st, err := engine.ParseState(state)
	if err != nil {
		return engine.Vault{}, fmt.Errorf("vault %d: %w", id, err)
	}

	v.ID = uint64(id)
	v.Depositor = engine.Principal(depositor)
	v.Recipient = engine.Principal(recipient)
	v.Amount = amt
	v.State = st
	v.StartHeight = engine.Height(start)
	v.EndHeight = engine.Height(end)
	v.Extended = engine.Height(extended)
	v.RecoveryAddress = engine.Principal(recovery)
	v.RecoveryUnlock = engine.Height(unlock)
	return v, nil
}

// vaultArgs returns the INSERT parameters for v in vaultColumns order.
func vaultArgs(v engine.Vault) ([]any, error) {
	ints := make([]int64, 0, 5)
	for _, n := range []uint64{v.ID, uint64(v.StartHeight), uint64(v.EndHeight), uint64(v.Extended), uint64(v.RecoveryUnlock)} {
		i, err := toInt64(n)
		if err != nil {
			return nil, fmt.Errorf("vault %d: %w", v.ID, err)
		}
		ints = append(ints, i)
	}
	return []any{
		ints[0], string(v.Depositor), string(v.Recipient), v.AssetID, formatAmount(v.Amount), v.State.String(),
		ints[1], ints[2], ints[3], string(v.RecoveryAddress), ints[4],
	}, nil
}

const selectEvent = `
	SELECT id, seq, flow_token, vault_id, kind, height, payload
	FROM events`

var eventColumns = []string{"id", "seq", "flow_token", "vault_id", "kind", "height", "payload"}

// scanEvent scans one row in eventColumns order.
func scanEvent(row scanner) (engine.StoredEvent, error) {
	var (
		ev              engine.StoredEvent
		kind, payload   string
		vaultID, height int64
	)
	if err := row.Scan(&ev.ID, &ev.Seq, &ev.FlowToken, &vaultID, &kind, &height, &payload); err != nil {
		return engine.StoredEvent{}, fmt.Errorf("scan event: %w", err)
	}
	p, err := unmarshalPayload(payload)
	if err != nil {
		return engine.StoredEvent{}, err
	}
	ev.VaultID = uint64(vaultID)
	ev.Kind = engine.EventKind(kind)
	ev.Height = engine.Height(height)
	ev.Payload = p
	return ev, nil
}

func collectEvents(rows *sql.Rows) ([]engine.StoredEvent, error) {
	defer rows.Close()

	events := []engine.StoredEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
