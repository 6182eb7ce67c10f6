// Package reconcile computes the minimal local write set needed to match
// authoritative server state. Every operation here is two-phase: a plan
// step reads local rows, compares them with fetched data, and returns
// prepared store operations; the caller commits them in one atomic batch.
// Prepared operations for unchanged rows are nil and dropped by the
// batch, so a no-op sync commits nothing and observers stay quiet.
package reconcile
