package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/escrow/internal/ir"
	"github.com/roach88/escrow/internal/queryir"
)

var catalog = queryir.Catalog{
	"vaults": {
		Key: "id",
		Columns: map[string]queryir.ColumnKind{
			"id":         queryir.KindInt,
			"state":      queryir.KindText,
			"depositor":  queryir.KindText,
			"end_height": queryir.KindInt,
		},
	},
}

func TestCompile_SelectWithoutFilter(t *testing.T) {
	c := NewSQLCompiler(catalog)

	sql, params, err := c.Compile(queryir.Select{From: "vaults", Columns: []string{"id", "state"}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, state FROM vaults ORDER BY id ASC", sql)
	assert.Empty(t, params)
}

func TestCompile_Equals(t *testing.T) {
	c := NewSQLCompiler(catalog)

	sql, params, err := c.Compile(&queryir.Select{
		From:    "vaults",
		Columns: []string{"id"},
		Filter:  queryir.Equals{Field: "state", Value: ir.IRString("pending")},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM vaults WHERE state = ? ORDER BY id ASC", sql)
	assert.NotContains(t, sql, "pending")
	assert.Equal(t, []any{"pending"}, params)
}

func TestCompile_AndInCompareLimit(t *testing.T) {
	c := NewSQLCompiler(catalog)

	sql, params, err := c.Compile(queryir.Select{
		From:    "vaults",
		Columns: []string{"id", "end_height"},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.In{Field: "state", Values: []ir.IRValue{ir.IRString("pending"), ir.IRString("disputed")}},
			queryir.Compare{Field: "end_height", Op: queryir.LessEqual, Value: 900},
			queryir.And{Predicates: []queryir.Predicate{
				queryir.Equals{Field: "depositor", Value: ir.IRString("alice")},
			}},
		}},
		OrderBy: "end_height",
		Limit:   10,
	})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, end_height FROM vaults WHERE state IN (?, ?) AND end_height <= ? AND (depositor = ?) ORDER BY end_height ASC, id ASC LIMIT ?",
		sql)
	assert.Equal(t, []any{"pending", "disputed", int64(900), "alice", 10}, params)
}

func TestCompile_EmptyInMatchesNothing(t *testing.T) {
	c := NewSQLCompiler(catalog)

	sql, params, err := c.Compile(queryir.Select{
		From:    "vaults",
		Columns: []string{"id"},
		Filter:  queryir.In{Field: "state"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM vaults WHERE 1 = 0 ORDER BY id ASC", sql)
	assert.Empty(t, params)
}

func TestCompile_EmptyAnd(t *testing.T) {
	c := NewSQLCompiler(catalog)

	sql, _, err := c.Compile(queryir.Select{From: "vaults", Columns: []string{"id"}, Filter: queryir.And{}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM vaults WHERE 1 = 1 ORDER BY id ASC", sql)
}

func TestCompile_RejectsInvalidQuery(t *testing.T) {
	c := NewSQLCompiler(catalog)

	_, _, err := c.Compile(queryir.Select{
		From:    "vaults",
		Columns: []string{"id"},
		Filter:  queryir.Equals{Field: "1=1 OR state", Value: ir.IRString("x")},
	})
	assert.ErrorContains(t, err, "invalid query")

	_, _, err = c.Compile(nil)
	assert.Error(t, err)
}

func TestCompile_Deterministic(t *testing.T) {
	c := NewSQLCompiler(catalog)
	q := queryir.Select{
		From:    "vaults",
		Columns: []string{"id"},
		Filter: queryir.All(
			queryir.Equals{Field: "state", Value: ir.IRString("pending")},
			queryir.Compare{Field: "id", Op: queryir.Greater, Value: 3},
		),
	}

	first, _, err := c.Compile(q)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, _, err := c.Compile(q)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
