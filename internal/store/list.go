package store

import (
	"context"
	"fmt"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/ir"
	"github.com/roach88/escrow/internal/queryir"
	"github.com/roach88/escrow/internal/querysql"
)

// Catalog describes the tables listings may filter on.
var Catalog = queryir.Catalog{
	"vaults": {
		Key: "id",
		Columns: map[string]queryir.ColumnKind{
			"id":               queryir.KindInt,
			"depositor":        queryir.KindText,
			"recipient":        queryir.KindText,
			"asset_id":         queryir.KindText,
			"amount":           queryir.KindText,
			"state":            queryir.KindText,
			"start_height":     queryir.KindInt,
			"end_height":       queryir.KindInt,
			"extended":         queryir.KindInt,
			"recovery_address": queryir.KindText,
			"recovery_unlock":  queryir.KindInt,
		},
	},
	"events": {
		Key: "seq",
		Columns: map[string]queryir.ColumnKind{
			"id":         queryir.KindText,
			"seq":        queryir.KindInt,
			"flow_token": queryir.KindText,
			"vault_id":   queryir.KindInt,
			"kind":       queryir.KindText,
			"height":     queryir.KindInt,
			"payload":    queryir.KindText,
		},
	},
}

var compiler = querysql.NewSQLCompiler(Catalog)

// VaultFilter selects vaults for listing. Zero fields match everything.
type VaultFilter struct {
	States    []engine.State
	Depositor engine.Principal
	Recipient engine.Principal
	AssetID   string

	// EndingBy keeps vaults whose end height is at most this value.
	EndingBy *engine.Height
}

// Predicate converts the filter to queryir.
func (f VaultFilter) Predicate() queryir.Predicate {
	var preds []queryir.Predicate
	if len(f.States) > 0 {
		values := make([]ir.IRValue, len(f.States))
		for i, s := range f.States {
			values[i] = ir.IRString(s.String())
		}
		preds = append(preds, queryir.In{Field: "state", Values: values})
	}
	if f.Depositor != "" {
		preds = append(preds, queryir.Equals{Field: "depositor", Value: ir.IRString(f.Depositor)})
	}
	if f.Recipient != "" {
		preds = append(preds, queryir.Equals{Field: "recipient", Value: ir.IRString(f.Recipient)})
	}
	if f.AssetID != "" {
		preds = append(preds, queryir.Equals{Field: "asset_id", Value: ir.IRString(f.AssetID)})
	}
	if f.EndingBy != nil {
		preds = append(preds, queryir.Compare{Field: "end_height", Op: queryir.LessEqual, Value: ir.IRInt(*f.EndingBy)})
	}
	return queryir.All(preds...)
}

// ListVaults returns vaults matching filter in id order, at most limit when
// limit > 0.
func (s *Store) ListVaults(ctx context.Context, filter VaultFilter, limit int) ([]engine.Vault, error) {
	query, params, err := compiler.Compile(queryir.Select{
		From:    "vaults",
		Columns: vaultColumns,
		Filter:  filter.Predicate(),
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}

	rows, err := s.conn(ctx).QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}
	defer rows.Close()

	vaults := []engine.Vault{}
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, fmt.Errorf("list vaults: %w", err)
		}
		vaults = append(vaults, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vaults: %w", err)
	}
	return vaults, nil
}
