package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/escrow/internal/engine"
)

const vaultCounter = "vault"

// Atomically implements engine.Registry. The transaction is carried in the
// ctx passed to fn, so Emit and Ledger calls made with that ctx join it.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, registryTx{tx: tx})
	})
}

// Get implements engine.Registry.
func (s *Store) Get(ctx context.Context, id uint64) (engine.Vault, bool, error) {
	return getVault(ctx, s.conn(ctx), id)
}

// Counter implements engine.Registry.
func (s *Store) Counter(ctx context.Context) (uint64, error) {
	return readCounter(ctx, s.conn(ctx))
}

type registryTx struct {
	tx *sql.Tx
}

func (r registryTx) Get(ctx context.Context, id uint64) (engine.Vault, bool, error) {
	return getVault(ctx, r.tx, id)
}

func (r registryTx) Put(ctx context.Context, v engine.Vault) error {
	args, err := vaultArgs(v)
	if err != nil {
		return fmt.Errorf("put vault: %w", err)
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO vaults
		(id, depositor, recipient, asset_id, amount, state,
		 start_height, end_height, extended, recovery_address, recovery_unlock)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			end_height = excluded.end_height,
			extended = excluded.extended,
			recovery_address = excluded.recovery_address,
			recovery_unlock = excluded.recovery_unlock
	`, args...)
	if err != nil {
		return fmt.Errorf("put vault %d: %w", v.ID, err)
	}
	return nil
}

func (r registryTx) NextID(ctx context.Context, origin uint64) (uint64, error) {
	current, err := readCounter(ctx, r.tx)
	if err != nil {
		return 0, err
	}
	next := max(current+1, origin)
	n, err := toInt64(next)
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, vaultCounter, n)
	if err != nil {
		return 0, fmt.Errorf("advance counter: %w", err)
	}
	return next, nil
}

func getVault(ctx context.Context, q queryer, id uint64) (engine.Vault, bool, error) {
	n, err := toInt64(id)
	if err != nil {
		return engine.Vault{}, false, nil
	}
	v, err := scanVault(q.QueryRowContext(ctx, selectVault+` WHERE id = ?`, n))
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Vault{}, false, nil
	}
	if err != nil {
		return engine.Vault{}, false, fmt.Errorf("get vault %d: %w", id, err)
	}
	return v, true, nil
}

func readCounter(ctx context.Context, q queryer) (uint64, error) {
	var value int64
	err := q.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = ?`, vaultCounter).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return uint64(value), nil
}

var _ engine.Registry = (*Store)(nil)
