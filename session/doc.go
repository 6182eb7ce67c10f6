// Package session manages per-server client sessions. Each server the
// user logs into gets its own credential token, REST client, and SQLite
// database; the registry tracks them all and which one is active.
// Logging out of a server revokes the token and deletes its database,
// leaving no local trace of that server's data.
package session
