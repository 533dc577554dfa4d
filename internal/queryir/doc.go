// Package queryir is the filter representation behind vault and event
// listings.
//
// Callers build a Select over one table with a Predicate tree; backends
// (querysql for SQLite) compile it. Values are ir.IRValue literals only, so
// filters hash and print the same way events do.
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, which keeps backend type
// switches exhaustive:
//
//	switch p := pred.(type) {
//	case Equals:
//	case In:
//	case Compare:
//	case And:
//	}
//
// Supported fragment:
//   - Select(from, columns, filter, order, limit)
//   - Predicates: Equals, In, Compare (integer columns only), And
//
// Not supported: joins, OR, NULL comparisons, aggregations. Validate checks a
// query against a Catalog of known tables and column kinds before any SQL is
// built.
package queryir
