package store

import (
	"context"
	"fmt"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/ir"
	"github.com/roach88/escrow/internal/queryir"
)

// Emit implements engine.EventSink. It joins the transaction in ctx when
// called from inside Atomically.
//
// Uses ON CONFLICT(id) DO NOTHING: the id is content-addressed, so writing
// the same record twice is a no-op.
func (s *Store) Emit(ctx context.Context, rec engine.Record) error {
	ev := rec.Stored()
	payload, err := marshalPayload(ev.Payload)
	if err != nil {
		return fmt.Errorf("emit %s: %w", ev.Kind, err)
	}
	vaultID, err := toInt64(ev.VaultID)
	if err != nil {
		return fmt.Errorf("emit %s: %w", ev.Kind, err)
	}
	height, err := toInt64(ev.Height)
	if err != nil {
		return fmt.Errorf("emit %s: %w", ev.Kind, err)
	}

	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO events
		(id, seq, flow_token, vault_id, kind, height, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.Seq,
		ev.FlowToken,
		vaultID,
		string(ev.Kind),
		height,
		payload,
	)
	if err != nil {
		return fmt.Errorf("emit %s: %w", ev.Kind, err)
	}
	return nil
}

// ReadEvents returns the whole log in seq order.
func (s *Store) ReadEvents(ctx context.Context) ([]engine.StoredEvent, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, selectEvent+` ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return collectEvents(rows)
}

// EventsForVault returns one vault's events in seq order.
func (s *Store) EventsForVault(ctx context.Context, id uint64) ([]engine.StoredEvent, error) {
	n, err := toInt64(id)
	if err != nil {
		return []engine.StoredEvent{}, nil
	}
	return s.QueryEvents(ctx, queryir.Equals{Field: "vault_id", Value: ir.IRInt(n)}, 0)
}

// QueryEvents returns events matching filter in seq order, at most limit
// when limit > 0.
func (s *Store) QueryEvents(ctx context.Context, filter queryir.Predicate, limit int) ([]engine.StoredEvent, error) {
	query, params, err := compiler.Compile(queryir.Select{
		From:    "events",
		Columns: eventColumns,
		Filter:  filter,
		OrderBy: "seq",
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	rows, err := s.conn(ctx).QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return collectEvents(rows)
}

// LastSeq returns the highest seq in the log, zero when empty.
// Used to resume the engine clock when reopening a database.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.conn(ctx).QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

var _ engine.EventSink = (*Store)(nil)
