package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/escrow/internal/ir"
)

var testCatalog = Catalog{
	"vaults": {
		Key: "id",
		Columns: map[string]ColumnKind{
			"id":         KindInt,
			"state":      KindText,
			"amount":     KindText,
			"end_height": KindInt,
		},
	},
}

func sel(filter Predicate) Select {
	return Select{From: "vaults", Columns: []string{"id", "state"}, Filter: filter}
}

func TestValidate_Valid(t *testing.T) {
	q := sel(And{Predicates: []Predicate{
		Equals{Field: "state", Value: ir.IRString("pending")},
		In{Field: "id", Values: []ir.IRValue{ir.IRInt(1), ir.IRInt(2)}},
		Compare{Field: "end_height", Op: LessEqual, Value: 500},
	}})

	r := Validate(q, testCatalog)
	assert.True(t, r.OK(), "problems: %v", r.Problems)
	assert.NoError(t, r.Err())
}

func TestValidate_PointerNodes(t *testing.T) {
	q := &Select{From: "vaults", Columns: []string{"id"}, Filter: &And{Predicates: []Predicate{
		&Equals{Field: "state", Value: ir.IRString("pending")},
		&Compare{Field: "id", Op: Greater, Value: 3},
	}}}
	assert.True(t, Validate(q, testCatalog).OK())
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"nil query", nil, "nil query"},
		{"unknown table", Select{From: "users", Columns: []string{"id"}}, `unknown table "users"`},
		{"no columns", Select{From: "vaults"}, "lists no columns"},
		{"unknown column", sel(Equals{Field: "owner", Value: ir.IRString("x")}), `unknown column "owner"`},
		{"injection", Select{From: "vaults", Columns: []string{"id; DROP TABLE vaults"}}, "unknown column"},
		{"text vs int", sel(Equals{Field: "id", Value: ir.IRString("1")}), "compared to text"},
		{"int vs text", sel(Equals{Field: "state", Value: ir.IRInt(1)}), "compared to integer"},
		{"compare text", sel(Compare{Field: "amount", Op: Less, Value: 5}), "not ordered"},
		{"bad op", sel(Compare{Field: "id", Op: "!=", Value: 5}), "unknown comparison"},
		{"bool value", sel(Equals{Field: "state", Value: ir.IRBool(true)}), "compared to ir.IRBool"},
		{"negative limit", Select{From: "vaults", Columns: []string{"id"}, Limit: -1}, "negative limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Validate(tt.query, testCatalog)
			assert.False(t, r.OK())
			assert.ErrorContains(t, r.Err(), tt.want)
		})
	}
}

func TestAll(t *testing.T) {
	assert.Nil(t, All())
	assert.Nil(t, All(nil, nil))

	eq := Equals{Field: "state", Value: ir.IRString("pending")}
	assert.Equal(t, eq, All(nil, eq))
	assert.Equal(t, And{Predicates: []Predicate{eq, eq}}, All(eq, nil, eq))
}
