// ABOUTME: Registry of per-server sessions: token, REST client, database
// ABOUTME: Logout revokes the server token and removes the local database

package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/chatsync/client"
	"github.com/2389/chatsync/store"
	"github.com/2389/chatsync/ws"
)

// Session bundles everything the engine holds for one server.
type Session struct {
	ServerURL string
	UserID    string
	Token     string

	// ExpiresAt is the token expiry in Unix milliseconds, or 0 when the
	// token carries no readable expiry claim.
	ExpiresAt int64

	Store  *store.SQLiteStore
	Client *client.Client

	// Push is attached by the dispatch layer once the live channel is up.
	Push *ws.Client
}

// Registry tracks the sessions for every logged-in server.
type Registry struct {
	mu             sync.Mutex
	baseDir        string
	requestTimeout time.Duration
	sessions       map[string]*Session
	active         string
	logger         *slog.Logger

	// OnAuthExpired is invoked with the server URL when a session token
	// is rejected by the server outside the login route.
	OnAuthExpired func(serverURL string)
}

// Option customizes a Registry.
type Option func(*Registry)

// WithRequestTimeout sets the per-request timeout on every REST client
// the registry creates. Zero keeps the client default.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.requestTimeout = d
	}
}

// NewRegistry creates a registry storing databases under baseDir.
func NewRegistry(baseDir string, opts ...Option) *Registry {
	r := &Registry{
		baseDir:  baseDir,
		sessions: make(map[string]*Session),
		logger:   slog.Default().With("component", "session"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// clientOptions assembles the registry-wide client options plus any
// per-client extras.
func (r *Registry) clientOptions(extra ...client.Option) []client.Option {
	opts := make([]client.Option, 0, len(extra)+1)
	if r.requestTimeout > 0 {
		opts = append(opts, client.WithTimeout(r.requestTimeout))
	}
	return append(opts, extra...)
}

// Login authenticates against serverURL, opens the server's database,
// and registers the session. The first session becomes active.
func (r *Registry) Login(ctx context.Context, serverURL, loginID, password string) (*Session, error) {
	serverURL = strings.TrimRight(serverURL, "/")

	r.mu.Lock()
	if _, exists := r.sessions[serverURL]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("already logged in to %s", serverURL)
	}
	r.mu.Unlock()

	user, token, err := client.New(serverURL, "", r.clientOptions()...).Login(ctx, loginID, password)
	if err != nil {
		return nil, fmt.Errorf("logging in to %s: %w", serverURL, err)
	}

	st, err := store.NewSQLiteStore(filepath.Join(r.baseDir, databaseName(serverURL)))
	if err != nil {
		return nil, fmt.Errorf("opening database for %s: %w", serverURL, err)
	}

	authed := client.New(serverURL, token, r.clientOptions(client.WithAuthExpiredHook(func() {
		if r.OnAuthExpired != nil {
			r.OnAuthExpired(serverURL)
		}
	}))...)

	sess := &Session{
		ServerURL: serverURL,
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: tokenExpiry(token),
		Store:     st,
		Client:    authed,
	}

	r.mu.Lock()
	r.sessions[serverURL] = sess
	if r.active == "" {
		r.active = serverURL
	}
	r.mu.Unlock()

	r.logger.Info("logged in", "server", serverURL, "user", user.ID)
	return sess, nil
}

// Logout revokes the session on the server, tears down the push channel,
// and deletes the server's local database. Revocation failures are
// logged and do not block local teardown.
func (r *Registry) Logout(ctx context.Context, serverURL string) error {
	serverURL = strings.TrimRight(serverURL, "/")

	r.mu.Lock()
	sess, ok := r.sessions[serverURL]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("no session for %s", serverURL)
	}
	delete(r.sessions, serverURL)
	if r.active == serverURL {
		r.active = ""
		for url := range r.sessions {
			r.active = url
			break
		}
	}
	r.mu.Unlock()

	if err := sess.Client.Logout(ctx); err != nil {
		r.logger.Warn("server-side logout failed, continuing local teardown",
			"server", serverURL, "error", err)
	}
	if sess.Push != nil {
		sess.Push.Close()
	}
	if err := sess.Store.Delete(); err != nil {
		return fmt.Errorf("deleting database for %s: %w", serverURL, err)
	}

	r.logger.Info("logged out", "server", serverURL)
	return nil
}

// Activate switches the active server.
func (r *Registry) Activate(serverURL string) error {
	serverURL = strings.TrimRight(serverURL, "/")

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[serverURL]; !ok {
		return fmt.Errorf("no session for %s", serverURL)
	}
	r.active = serverURL
	return nil
}

// Active returns the active session, or nil when no server is logged in.
func (r *Registry) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[r.active]
}

// Get returns the session for serverURL, or nil.
func (r *Registry) Get(serverURL string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[strings.TrimRight(serverURL, "/")]
}

// Servers lists the logged-in server URLs.
func (r *Registry) Servers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	urls := make([]string, 0, len(r.sessions))
	for url := range r.sessions {
		urls = append(urls, url)
	}
	return urls
}

// Close shuts down every session without deleting databases, for
// process exit rather than logout.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sess := range r.sessions {
		if sess.Push != nil {
			sess.Push.Close()
		}
		if err := sess.Store.Close(); err != nil {
			r.logger.Warn("closing database", "server", sess.ServerURL, "error", err)
		}
	}
	r.sessions = make(map[string]*Session)
	r.active = ""
}

// databaseName derives a filesystem-safe database filename from a
// server URL, so two servers never share a file.
func databaseName(serverURL string) string {
	name := serverURL
	name = strings.TrimPrefix(name, "https://")
	name = strings.TrimPrefix(name, "http://")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, name)
	return name + ".db"
}

// tokenExpiry reads the exp claim from a JWT-shaped token without
// verifying it. Opaque tokens yield 0.
func tokenExpiry(token string) int64 {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.UnixMilli()
}
