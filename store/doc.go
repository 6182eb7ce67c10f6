// Package store implements the per-server persisted replica of chat state
// on SQLite. Writes are two-phase: Prepare* methods read the current row,
// compare it against the proposed values, and return a pending Op (or nil
// when the row is already up to date); Commit applies a Batch of pending
// ops in a single transaction and notifies observers of the touched tables.
package store
