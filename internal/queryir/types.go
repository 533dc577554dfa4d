package queryir

import "github.com/roach88/escrow/internal/ir"

// Query is a sealed interface for query nodes.
type Query interface {
	queryNode()
}

// Predicate is a sealed interface for filter conditions.
type Predicate interface {
	predicateNode()
}

// Select reads rows from one table.
type Select struct {
	From    string    // table name
	Columns []string  // explicit column list, in output order
	Filter  Predicate // nil = no filter
	OrderBy string    // column; empty means the table's key
	Limit   int       // 0 = unlimited
}

func (Select) queryNode() {}

// Equals matches rows where Field equals Value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// In matches rows where Field equals any of Values. An empty list matches
// nothing.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// CompareOp is an ordering comparison.
type CompareOp string

const (
	Less         CompareOp = "<"
	LessEqual    CompareOp = "<="
	Greater      CompareOp = ">"
	GreaterEqual CompareOp = ">="
)

// Compare matches rows where Field Op Value. Only integer columns can be
// compared; amounts are stored as decimal text and cannot be ordered in SQL.
type Compare struct {
	Field string
	Op    CompareOp
	Value ir.IRInt
}

func (Compare) predicateNode() {}

// And is a conjunction. Empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// All builds an And from the non-nil predicates, returning nil when there
// are none.
func All(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return And{Predicates: out}
	}
}
