// Package store defines interfaces for persistence dependencies (sync state,
// the case reconciler's relational tables and the audit trail).
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
