// Package model defines the domain entities synchronized between a remote
// chat server and the local per-server replica: teams, channels, posts,
// threads, users, preferences, and the websocket event envelope.
package model
