// Package ws maintains the persistent push channel to a chat server. It
// dials the server's websocket endpoint, authenticates, keeps the
// connection alive with pings, reconnects with jittered exponential
// backoff, and surfaces lifecycle transitions (first connect, reconnect,
// close) and typed server events to registered callbacks.
package ws
