// ABOUTME: REST client core: request plumbing, auth header, error classification
// ABOUTME: One client per server session; safe for concurrent use

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiPrefix = "/api/v4"

// Client issues typed REST calls against one chat server.
type Client struct {
	serverURL  string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	// onAuthExpired is invoked when a call outside the login route gets a
	// 401, meaning the session token is no longer valid.
	onAuthExpired func()
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithAuthExpiredHook registers the session-expiry callback.
func WithAuthExpiredHook(fn func()) Option {
	return func(c *Client) {
		c.onAuthExpired = fn
	}
}

// New creates a client for the given server URL and bearer token.
func New(serverURL, token string, opts ...Option) *Client {
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default().With("component", "client", "server", serverURL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServerURL returns the base server URL this client talks to.
func (c *Client) ServerURL() string {
	return c.serverURL
}

// doGet issues a GET and decodes the JSON response into out.
func (c *Client) doGet(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// doPost issues a POST with a JSON body and decodes the response into out.
// A nil out discards the response body.
func (c *Client) doPost(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// doPut issues a PUT with a JSON body and decodes the response into out.
func (c *Client) doPut(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.doURL(ctx, method, c.serverURL+apiPrefix+path, body, out)
}

// doURL issues a request against a fully qualified URL, for the few
// routes that live outside the v4 prefix.
func (c *Client) doURL(ctx context.Context, method, fullURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		te := &TransportError{
			StatusCode: resp.StatusCode,
			URL:        fullURL,
			Message:    readErrorMessage(resp.Body),
		}
		if resp.StatusCode == http.StatusUnauthorized && !isLoginRoute(fullURL) && c.onAuthExpired != nil {
			c.logger.Info("session token expired, invoking logout hook")
			c.onAuthExpired()
		}
		return te
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", fullURL, err)
	}
	return nil
}

// readErrorMessage extracts the server's error message field, falling back
// to the raw body.
func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(raw))
}

func isLoginRoute(fullURL string) bool {
	u, err := url.Parse(fullURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Path, "/users/login")
}
