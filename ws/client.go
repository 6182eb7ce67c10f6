// ABOUTME: Websocket push-channel client with reconnect backoff and lifecycle callbacks
// ABOUTME: Distinguishes first connect from reconnect so the engine can seed a since watermark

package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/chatsync/model"
)

// Callbacks surface connection lifecycle and server events. All callbacks
// are invoked from the client's run goroutine; long work should be handed
// off by the callee.
type Callbacks struct {
	// OnFirstConnect fires the first time this client reaches the server.
	OnFirstConnect func()

	// OnReconnect fires on every subsequent successful connect.
	OnReconnect func()

	// OnClose fires when the connection drops, with the disconnect
	// timestamp in Unix milliseconds.
	OnClose func(lastDisconnectAt int64)

	// OnEvent fires for every decoded server-push event.
	OnEvent func(ev *model.Event)
}

// Settings holds the connection timing knobs.
type Settings struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	BackoffMin       time.Duration
	BackoffMax       time.Duration
}

// DefaultSettings returns the production timing defaults.
func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 5 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      90 * time.Second,
		BackoffMin:       time.Second,
		BackoffMax:       30 * time.Second,
	}
}

// Client is the push channel for one server session.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	endpoint  string
	token     string
	callbacks Callbacks
	settings  *Settings
	logger    *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	seq       int64
	connected atomic.Bool

	everConnected bool
}

// NewClient creates a push-channel client for the given server URL and
// bearer token. The connection loop starts when Run is called.
func NewClient(serverURL, token string, callbacks Callbacks, settings *Settings) *Client {
	if settings == nil {
		settings = DefaultSettings()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ctx:       ctx,
		cancel:    cancel,
		endpoint:  websocketEndpoint(serverURL),
		token:     token,
		callbacks: callbacks,
		settings:  settings,
		logger:    slog.Default().With("component", "ws", "server", serverURL),
	}
}

// websocketEndpoint converts the server's base URL to its websocket URL.
func websocketEndpoint(serverURL string) string {
	endpoint := strings.TrimRight(serverURL, "/")
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint + "/api/v4/websocket"
}

// Run connects and keeps the channel alive until Close is called. It
// blocks; callers run it on its own goroutine.
func (c *Client) Run() {
	backoff := c.settings.BackoffMin

	for {
		conn, err := c.dial()
		if err != nil {
			c.logger.Debug("dial failed", "error", err)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(jitter(backoff)):
			}
			backoff = min(backoff*2, c.settings.BackoffMax)
			continue
		}
		backoff = c.settings.BackoffMin

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.connected.Store(true)

		if c.everConnected {
			c.logger.Info("reconnected")
			if c.callbacks.OnReconnect != nil {
				c.callbacks.OnReconnect()
			}
		} else {
			c.everConnected = true
			c.logger.Info("connected")
			if c.callbacks.OnFirstConnect != nil {
				c.callbacks.OnFirstConnect()
			}
		}

		c.readLoop(conn)

		c.connected.Store(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		disconnectedAt := time.Now().UnixMilli()
		c.logger.Info("disconnected", "at", disconnectedAt)
		if c.callbacks.OnClose != nil {
			c.callbacks.OnClose(disconnectedAt)
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(jitter(backoff)):
		}
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.settings.HandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, _, err := dialer.DialContext(c.ctx, c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", c.endpoint, err)
	}

	// Authentication challenge, in case the server ignored the header.
	challenge := map[string]any{
		"seq":    1,
		"action": "authentication_challenge",
		"data":   map[string]string{"token": c.token},
	}
	conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
	if err := conn.WriteJSON(challenge); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending auth challenge: %w", err)
	}

	return conn, nil
}

// readLoop pumps events until the connection fails. A ping goroutine keeps
// the connection alive; pong receipt extends the read deadline.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	pingCtx, cancelPing := context.WithCancel(c.ctx)
	defer cancelPing()

	conn.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(c.settings.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.settings.WriteTimeout))
				c.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug("read failed", "error", err)
			return
		}

		var ev model.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.logger.Debug("dropping undecodable message", "error", err)
			continue
		}
		if ev.Type == "" {
			// Acknowledgement of a sent action, not a push event.
			continue
		}
		if c.callbacks.OnEvent != nil {
			c.callbacks.OnEvent(&ev)
		}
	}
}

// IsConnected reports whether the channel is currently up.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Send writes an action message to the server. Fails when disconnected.
func (c *Client) Send(action string, data map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("push channel not connected")
	}

	c.seq++
	msg := map[string]any{
		"seq":    c.seq,
		"action": action,
		"data":   data,
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("sending %s: %w", action, err)
	}
	return nil
}

// Close stops the connection loop and closes any live connection.
func (c *Client) Close() {
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
}

// jitter spreads reconnect attempts over [d/2, d).
func jitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
