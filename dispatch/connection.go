// ABOUTME: Push-channel lifecycle: disconnect watermarks and reconnect reconciliation
// ABOUTME: A monotonic attempt token discards reconcile results superseded by a newer flap

package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/2389/chatsync/entry"
	"github.com/2389/chatsync/model"
	"github.com/2389/chatsync/session"
	"github.com/2389/chatsync/ws"
)

// Connection binds a server session's push channel to its dispatcher and
// entry orchestrator, implementing the disconnected/connecting/connected
// transitions.
type Connection struct {
	sess         *session.Session
	dispatcher   *Dispatcher
	orchestrator *entry.Orchestrator
	push         *ws.Client
	logger       *slog.Logger

	// attempt is the staleness token: each reconnect reconciliation
	// captures it before fetching and discards its result if a newer
	// attempt started meanwhile.
	attempt atomic.Int64
}

// Connect opens the push channel for a session and starts routing its
// events. A nil settings uses the channel's defaults. The returned
// connection owns the channel until Close.
func Connect(sess *session.Session, d *Dispatcher, settings *ws.Settings) *Connection {
	c := &Connection{
		sess:         sess,
		dispatcher:   d,
		orchestrator: entry.NewOrchestrator(sess.Store, sess.Client),
		logger:       slog.Default().With("component", "connection", "server", sess.ServerURL),
	}

	c.push = ws.NewClient(sess.ServerURL, sess.Token, ws.Callbacks{
		OnFirstConnect: c.onFirstConnect,
		OnReconnect:    c.onReconnect,
		OnClose:        c.onClose,
		OnEvent:        c.onEvent,
	}, settings)
	sess.Push = c.push

	go c.push.Run()
	return c
}

// IsConnected reports whether the push channel is up.
func (c *Connection) IsConnected() bool {
	return c.push.IsConnected()
}

// Close tears down the push channel and the dispatcher's background
// resources.
func (c *Connection) Close() {
	c.push.Close()
	c.dispatcher.Close()
}

// onFirstConnect handles the first successful connect of this process.
// A durable disconnect watermark left by a previous process means events
// were missed across the restart, so the gap reconciliation runs as if
// this were a reconnect; otherwise a lightweight presence refresh is
// enough because entry just synced everything.
func (c *Connection) onFirstConnect() {
	ctx, cancel := c.taskContext()
	defer cancel()

	lastDisconnect, err := c.sess.Store.GetWebSocketLastDisconnected(ctx)
	if err != nil {
		c.logger.Warn("reading disconnect watermark", "error", err)
		return
	}
	if lastDisconnect > 0 {
		c.reconcile(ctx, lastDisconnect)
		return
	}
	c.refreshPresence(ctx)
}

// onReconnect runs the gap reconciliation seeded with the durable
// disconnect watermark.
func (c *Connection) onReconnect() {
	ctx, cancel := c.taskContext()
	defer cancel()

	lastDisconnect, err := c.sess.Store.GetWebSocketLastDisconnected(ctx)
	if err != nil {
		c.logger.Warn("reading disconnect watermark", "error", err)
		return
	}
	if lastDisconnect == 0 {
		// Reconnected before the close was recorded; no gap to fill.
		c.refreshPresence(ctx)
		return
	}
	c.reconcile(ctx, lastDisconnect)
}

// onClose records the disconnect time durably so the next reconnect
// knows the true gap start. An existing watermark is older and wins.
func (c *Connection) onClose(lastDisconnectAt int64) {
	ctx, cancel := c.taskContext()
	defer cancel()

	existing, err := c.sess.Store.GetWebSocketLastDisconnected(ctx)
	if err != nil {
		c.logger.Warn("reading disconnect watermark", "error", err)
		return
	}
	if existing > 0 {
		return
	}
	if err := c.sess.Store.SetWebSocketLastDisconnected(ctx, lastDisconnectAt); err != nil {
		c.logger.Warn("recording disconnect watermark", "error", err)
	}
}

func (c *Connection) onEvent(ev *model.Event) {
	ctx, cancel := c.taskContext()
	defer cancel()
	c.dispatcher.Dispatch(ctx, ev)
}

// reconcile runs the entry flow with the given since watermark and
// clears the watermark on success. Results superseded by a newer
// reconnect are discarded uncommitted.
func (c *Connection) reconcile(ctx context.Context, since int64) {
	token := c.attempt.Add(1)

	res, err := c.orchestrator.Fetch(ctx, since)
	if err != nil {
		c.logger.Warn("reconnect reconciliation failed", "error", err)
		return
	}
	if c.attempt.Load() != token {
		c.logger.Info("discarding stale reconnect reconciliation", "attempt", token)
		return
	}

	if err := c.orchestrator.Commit(ctx, res); err != nil {
		c.logger.Warn("committing reconnect reconciliation", "error", err)
		return
	}
	if err := c.sess.Store.ResetWebSocketLastDisconnected(ctx); err != nil {
		c.logger.Warn("clearing disconnect watermark", "error", err)
	}

	go c.orchestrator.RunDeferred(context.Background(), res)
}

// refreshPresence fetches the current user's own status so the UI shows
// fresh presence immediately after connecting.
func (c *Connection) refreshPresence(ctx context.Context) {
	statuses, err := c.sess.Client.GetStatusesByIDs(ctx, []string{c.sess.UserID})
	if err != nil {
		c.logger.Debug("presence refresh failed", "error", err)
		return
	}
	if err := c.dispatcher.commit(ctx, c.dispatcher.engine.PlanStatuses(statuses)...); err != nil {
		c.logger.Debug("committing presence refresh", "error", err)
	}
}

func (c *Connection) taskContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Minute)
}
