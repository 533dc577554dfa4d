package queryir

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/escrow/internal/ir"
)

// validIdentifier matches table and column names. Identifiers are
// interpolated into SQL, so anything else is rejected.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ColumnKind is the storage class of a column.
type ColumnKind int

const (
	KindText ColumnKind = iota + 1
	KindInt
)

// Table describes one queryable table.
type Table struct {
	Key     string                // default order column
	Columns map[string]ColumnKind // every filterable column
}

// Catalog maps table names to their descriptions.
type Catalog map[string]Table

// ValidationResult lists every problem found in a query.
type ValidationResult struct {
	Problems []string
}

// OK reports whether the query may be compiled.
func (r ValidationResult) OK() bool { return len(r.Problems) == 0 }

// Err joins the problems into one error, or nil.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, len(r.Problems))
	for i, p := range r.Problems {
		errs[i] = errors.New(p)
	}
	return errors.Join(errs...)
}

// Validate checks q against cat: known table and columns, valid
// identifiers, value types matching column kinds.
//
// Validate is a pure function with no side effects.
func Validate(q Query, cat Catalog) ValidationResult {
	v := &validator{cat: cat}
	v.validateQuery(q)
	return ValidationResult{Problems: v.problems}
}

type validator struct {
	cat      Catalog
	table    Table
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case nil:
		v.addProblem("nil query")
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	table, ok := v.cat[sel.From]
	if !ok || !validIdentifier.MatchString(sel.From) {
		v.addProblem("unknown table %q", sel.From)
		return
	}
	v.table = table

	if len(sel.Columns) == 0 {
		v.addProblem("select on %s lists no columns", sel.From)
	}
	for _, c := range sel.Columns {
		v.column(c)
	}
	if sel.OrderBy != "" {
		v.column(sel.OrderBy)
	}
	if sel.Limit < 0 {
		v.addProblem("negative limit %d", sel.Limit)
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) column(name string) (ColumnKind, bool) {
	kind, ok := v.table.Columns[name]
	if !ok || !validIdentifier.MatchString(name) {
		v.addProblem("unknown column %q", name)
		return 0, false
	}
	return kind, true
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.validateValue(pred.Field, pred.Value)
	case *Equals:
		v.validateValue(pred.Field, pred.Value)
	case In:
		v.validateIn(pred)
	case *In:
		v.validateIn(*pred)
	case Compare:
		v.validateCompare(pred)
	case *Compare:
		v.validateCompare(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

func (v *validator) validateIn(in In) {
	for _, val := range in.Values {
		v.validateValue(in.Field, val)
	}
	if len(in.Values) == 0 {
		v.column(in.Field)
	}
}

func (v *validator) validateCompare(c Compare) {
	kind, ok := v.column(c.Field)
	if !ok {
		return
	}
	if kind != KindInt {
		v.addProblem("column %q is not ordered", c.Field)
	}
	switch c.Op {
	case Less, LessEqual, Greater, GreaterEqual:
	default:
		v.addProblem("unknown comparison %q", c.Op)
	}
}

func (v *validator) validateValue(field string, val ir.IRValue) {
	kind, ok := v.column(field)
	if !ok {
		return
	}
	switch val.(type) {
	case ir.IRString:
		if kind != KindText {
			v.addProblem("column %q compared to text", field)
		}
	case ir.IRInt:
		if kind != KindInt {
			v.addProblem("column %q compared to integer", field)
		}
	case nil:
		v.addProblem("column %q compared to nil", field)
	default:
		v.addProblem("column %q compared to %T", field, val)
	}
}
