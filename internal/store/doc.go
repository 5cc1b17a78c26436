// Package store provides SQLite-backed storage for taskmarket collections.
//
// The store is a versioned key/value table of JSON documents plus an
// append-only change log:
//   - kv: one row per collection ("tasks", "users", "transactions") and the
//     session pointer ("user"); version increments on every write
//   - changes: one row per write or delete, tagged with the writing origin
//
// # Origins
//
// Every write names an origin, the process-level analogue of a browser tab.
// A Watcher delivers changes made by other origins only, so a process never
// reloads in response to its own writes.
//
// # Optimistic Concurrency
//
// CompareAndPut rejects a write whose expected version differs from the
// stored one with ErrVersionConflict. Callers reload and retry.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - _txlock=immediate: read-modify-write transactions take the write lock
//     up front instead of failing on lock upgrade
package store
