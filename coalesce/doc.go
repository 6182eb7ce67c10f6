// Package coalesce batches bursts of per-user work into single calls.
// Presence events arrive one user at a time over the push channel; the
// queue here collects the user ids for a short window and hands the
// deduplicated batch to a single flush function, turning N status
// fetches into one.
package coalesce
