// Package store owns the SQLite connections used by the generator and the
// runtime interpreter.
//
// # Transactions
//
// Every mutating call tree follows one protocol, implemented by InTx: a
// callee handed an open *sqlx.Tx joins it and never commits or rolls back;
// a callee handed nil opens the transaction, commits only at the outermost
// call and rolls back on any error in the nested chain. Reads never open
// transactions (see Reader).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - MaxOpenConns=1: single writer
//
// # Run History
//
// The erpgen_runs table records each migration applied to a live database,
// keyed by a UUIDv7 and ordered by seq. The migration planner never touches
// it because it is not a schema entity.
package store
