// Package entry bootstraps a consistent team/channel/post snapshot after
// login, cold start, or reconnect. The orchestrator runs the remote
// fetches in parallel, resolves the initial team through a fixed
// precedence order, detects teams and channels the user has lost, and
// returns a prepared-but-uncommitted write set so callers can compose it
// with their own startup writes before one atomic commit. The deferred
// loader then enriches lower-priority data in the background.
package entry
