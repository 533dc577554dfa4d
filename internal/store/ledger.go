package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/bits"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/ledger"
)

// Ledger is a persistent asset book in the balances table. It implements
// engine.Transferer and joins the registry transaction carried by ctx, so
// a rolled-back vault operation also rolls back its transfers.
type Ledger struct {
	s *Store
}

// Ledger returns the store's asset book.
func (s *Store) Ledger() *Ledger {
	return &Ledger{s: s}
}

// Holding is one (asset, owner) balance.
type Holding struct {
	AssetID string           `json:"asset_id"`
	Owner   engine.Principal `json:"owner"`
	Amount  uint64           `json:"amount"`
}

// Transfer implements engine.Transferer. Insufficient balances fail with
// ledger.ErrInsufficient.
func (l *Ledger) Transfer(ctx context.Context, asset string, amount uint64, from, to engine.Principal) error {
	return l.s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		src, err := readBalance(ctx, tx, asset, from)
		if err != nil {
			return err
		}
		if src < amount {
			return fmt.Errorf("transfer %d %s from %s (has %d): %w", amount, asset, from, src, ledger.ErrInsufficient)
		}
		if err := writeBalance(ctx, tx, asset, from, src-amount); err != nil {
			return err
		}

		dst, err := readBalance(ctx, tx, asset, to)
		if err != nil {
			return err
		}
		sum, carry := bits.Add64(dst, amount, 0)
		if carry != 0 {
			return fmt.Errorf("transfer %d %s to %s: balance overflows", amount, asset, to)
		}
		return writeBalance(ctx, tx, asset, to, sum)
	})
}

// Mint credits amount of asset to owner.
func (l *Ledger) Mint(ctx context.Context, asset string, owner engine.Principal, amount uint64) error {
	if asset == "" || owner == "" {
		return errors.New("mint: asset and owner are required")
	}
	return l.s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := readBalance(ctx, tx, asset, owner)
		if err != nil {
			return err
		}
		sum, carry := bits.Add64(cur, amount, 0)
		if carry != 0 {
			return fmt.Errorf("mint %d %s to %s: balance overflows", amount, asset, owner)
		}
		return writeBalance(ctx, tx, asset, owner, sum)
	})
}

// Balance returns owner's holding of asset.
func (l *Ledger) Balance(ctx context.Context, asset string, owner engine.Principal) (uint64, error) {
	return readBalance(ctx, l.s.conn(ctx), asset, owner)
}

// Holdings returns every non-zero balance, optionally restricted to one
// asset, ordered by asset then owner.
func (l *Ledger) Holdings(ctx context.Context, asset string) ([]Holding, error) {
	query := `SELECT asset_id, owner, amount FROM balances WHERE amount != '0'`
	var args []any
	if asset != "" {
		query += ` AND asset_id = ?`
		args = append(args, asset)
	}
	query += ` ORDER BY asset_id ASC, owner ASC`

	rows, err := l.s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read holdings: %w", err)
	}
	defer rows.Close()

	out := []Holding{}
	for rows.Next() {
		var h Holding
		var owner, amount string
		if err := rows.Scan(&h.AssetID, &owner, &amount); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		if h.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		h.Owner = engine.Principal(owner)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holdings: %w", err)
	}
	return out, nil
}

func readBalance(ctx context.Context, q queryer, asset string, owner engine.Principal) (uint64, error) {
	var amount string
	err := q.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE asset_id = ? AND owner = ?`,
		asset, string(owner),
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance %s/%s: %w", asset, owner, err)
	}
	return parseAmount(amount)
}

func writeBalance(ctx context.Context, tx *sql.Tx, asset string, owner engine.Principal, amount uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balances (asset_id, owner, amount) VALUES (?, ?, ?)
		ON CONFLICT(asset_id, owner) DO UPDATE SET amount = excluded.amount
	`, asset, string(owner), formatAmount(amount))
	if err != nil {
		return fmt.Errorf("write balance %s/%s: %w", asset, owner, err)
	}
	return nil
}

var _ engine.Transferer = (*Ledger)(nil)
