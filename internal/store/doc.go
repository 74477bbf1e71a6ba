// Package store provides SQLite-backed durable storage for task records.
//
// The store keeps tasks as flat rows keyed by id. Parent/child links are
// plain id columns; the tree shape is reconstructed on read by package tree.
//
// # Critical Patterns
//
// Guarded writes:
//   - Every mutation runs in one transaction
//   - The moved/deleted row must still carry the version the engine read
//   - Every ScopeGuard fingerprint is recomputed in the transaction and must
//     match the engine's read-time fingerprint
//   - A move re-walks the destination parent's ancestor chain inside the
//     transaction, so two crossing moves cannot both commit
//   - Any mismatch aborts with a conflict error and changes nothing
//
// Deterministic reads:
//   - Sibling queries use ORDER BY sequence ASC, id ASC COLLATE BINARY
//
// Audit ledger:
//   - Each accepted write appends to task_events in the same transaction
//   - Ordered by seq (logical clock), never by wall time
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: parent_task_id must reference an existing row
package store
