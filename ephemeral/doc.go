// Package ephemeral tracks short-lived client intent so the event
// dispatcher can tell its own actions apart from remote ones. When the
// client performs an action (joins a channel, follows a thread, creates
// a group conversation) it marks the intent here; when the matching
// server event echoes back over the push channel, the handler consumes
// the mark and skips redundant work. Marks expire on a TTL so a lost
// echo can never suppress a later genuine event.
package ephemeral
