// Package client is the typed REST gateway to the chat server. Every call
// returns parsed domain objects or a classified *TransportError carrying
// the HTTP status code. A 401 outside the login route triggers the
// registered auth-expiry hook.
package client
