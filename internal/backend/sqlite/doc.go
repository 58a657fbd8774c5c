// Package sqlite provides a SQLite-backed facetdb backend.
//
// All logical tables share one physical `records` table keyed by
// (tbl, record_key, sort_key), where sort_key is record.StorageSort. The
// state or payload bytes are stored verbatim in `data`, the other fields as
// JSON in `body`, and the state version is mirrored into `version` for the
// condition check.
//
// # Transactions
//
// TransactWrite runs every op inside one immediate transaction. The state
// condition is checked by reading the stored version inside that transaction,
// so concurrent writers serialize on SQLite's write lock and only one of them
// can observe a matching version.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - _txlock=immediate: Take the write lock at BEGIN
//
// SQLITE_BUSY and SQLITE_LOCKED surface as backend.ErrUnavailable.
package sqlite
