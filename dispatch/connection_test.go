// ABOUTME: Tests for disconnect watermarks and stale reconcile discard

package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatsync/client"
	"github.com/2389/chatsync/entry"
	"github.com/2389/chatsync/ephemeral"
	"github.com/2389/chatsync/session"
	"github.com/2389/chatsync/store"
)

// newTestConnection wires a connection without opening a push channel, so
// the watermark and reconcile paths can be driven directly.
func newTestConnection(t *testing.T, handler http.Handler) (*Connection, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	serverURL := "http://unused.invalid"
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		serverURL = srv.URL
	}

	cl := client.New(serverURL, "test-token")
	sess := &session.Session{ServerURL: serverURL, UserID: "me", Token: "test-token", Store: st, Client: cl}

	guard := ephemeral.NewGuard(time.Minute, 128)
	t.Cleanup(guard.Close)
	d := NewDispatcher(serverURL, st, cl, guard)
	t.Cleanup(d.Close)

	return &Connection{
		sess:         sess,
		dispatcher:   d,
		orchestrator: entry.NewOrchestrator(st, cl),
		logger:       d.logger,
	}, st
}

func TestOnClose_FirstDisconnectRecordsWatermark(t *testing.T) {
	c, st := newTestConnection(t, nil)
	ctx := context.Background()

	c.onClose(12345)

	ts, err := st.GetWebSocketLastDisconnected(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), ts)
}

func TestOnClose_ExistingOlderWatermarkWins(t *testing.T) {
	c, st := newTestConnection(t, nil)
	ctx := context.Background()

	// A flapping connection closes repeatedly before any reconcile
	// succeeds; the gap starts at the first close, not the last.
	require.NoError(t, st.SetWebSocketLastDisconnected(ctx, 100))
	c.onClose(99999)

	ts, err := st.GetWebSocketLastDisconnected(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), ts)
}

// entryHandler answers the entry fetch endpoints with empty state.
// onRequest runs on every request, letting a test interleave with an
// in-flight reconcile.
func entryHandler(onRequest func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if onRequest != nil {
			onRequest()
		}
		switch r.URL.Path {
		case "/api/v4/users/me":
			fmt.Fprint(w, `{"id":"me","username":"sam","update_at":1}`)
		default:
			fmt.Fprint(w, `[]`)
		}
	})
}

func TestReconcile_SuccessClearsWatermark(t *testing.T) {
	c, st := newTestConnection(t, entryHandler(nil))
	ctx := context.Background()

	require.NoError(t, st.SetWebSocketLastDisconnected(ctx, 500))
	c.reconcile(ctx, 500)

	ts, err := st.GetWebSocketLastDisconnected(ctx)
	require.NoError(t, err)
	assert.Zero(t, ts)
}

func TestReconcile_SupersededAttemptDiscarded(t *testing.T) {
	var c *Connection
	var st *store.SQLiteStore
	c, st = newTestConnection(t, entryHandler(func() {
		// A newer reconnect starts while this fetch is in flight.
		c.attempt.Add(1)
	}))
	ctx := context.Background()

	require.NoError(t, st.SetWebSocketLastDisconnected(ctx, 500))
	c.reconcile(ctx, 500)

	// The stale result must not commit or clear the watermark.
	ts, err := st.GetWebSocketLastDisconnected(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(500), ts)

	userID, err := st.GetCurrentUserID(ctx)
	require.NoError(t, err)
	assert.Empty(t, userID)
}
