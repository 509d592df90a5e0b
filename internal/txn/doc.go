// Package txn threads one database transaction through a chain of nested
// module calls.
//
// Every call context owns a Meta. A top-level call starts as the chain
// master; when it begins a transaction, nested calls inherit the Meta's
// connection cell by reference (Meta.Inherit) and stop being master.
//
// DB is the per-call facade over a Driver. Operations are split by type at
// interface-definition time:
//
//   - Querier operations (ExecContext, QueryContext, QueryRowContext) are
//     transactional: inside a transaction they run on the chain's shared
//     connection, which is begun lazily on first use.
//   - Ping and Stats are direct: they always go to the pooled driver.
//
// The first transactional operation of a chain begins the transaction and
// stores the connection in the shared ConnCell; every later operation in
// the chain, from any participant, reuses that connection. Acquisition is
// serialized by the cell, so concurrent first uses in one chain still call
// Driver.Begin exactly once. A failed Begin leaves the cell empty and the
// next operation retries.
//
// DB never commits, rolls back or closes the connection. The chain master
// settles it through Meta.Settle.
package txn
