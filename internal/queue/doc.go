// Package queue persists candidates, published items, the admission
// settings record and the decision log in SQLite.
//
// The Store is the concrete backing for every port the admission core
// consumes. State changes that must be race free across processes (the
// daily counter, failure counting, the day roll) are single statements
// using UPDATE ... RETURNING or guarded WHERE clauses rather than
// read-modify-write pairs. Decision records are append-only; schema
// triggers reject updates and deletes.
//
// Schema changes bump the version in schema.go.
package queue
