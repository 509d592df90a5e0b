// Package store provides the SQLite-backed database driver used by module
// handlers.
//
// Store implements txn.Driver: module code never touches it directly but
// goes through the per-call txn.DB facade, which decides whether an
// operation runs on the pool or on the call chain's transaction.
//
// # Database Configuration
//
// Pragmas are passed in the DSN so that every pooled connection gets them:
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// The pool keeps more than one connection so that direct operations (Ping,
// Stats, reads outside a transaction) do not wait behind an open chain
// transaction.
//
// # Key/Value Helpers
//
// PutValue, GetValue and DeleteValue operate on the module-scoped kv table
// through any Execer / RowQuerier, which lets handlers pass their txn.DB.
package store
