// ABOUTME: Credential login; the only call that reads a response header

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/2389/chatsync/model"
)

// Login exchanges credentials for a session token. The token arrives in
// the Token response header rather than the body. The client itself is
// not mutated; callers build an authenticated client from the result.
func (c *Client) Login(ctx context.Context, loginID, password string) (*model.User, string, error) {
	fullURL := c.serverURL + apiPrefix + "/users/login"

	encoded, err := json.Marshal(map[string]string{
		"login_id": loginID,
		"password": password,
	})
	if err != nil {
		return nil, "", fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, "", fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &TransportError{URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", &TransportError{
			StatusCode: resp.StatusCode,
			URL:        fullURL,
			Message:    readErrorMessage(resp.Body),
		}
	}

	token := resp.Header.Get("Token")
	if token == "" {
		return nil, "", fmt.Errorf("login response missing session token")
	}

	var user model.User
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return nil, "", fmt.Errorf("decoding login response: %w", err)
	}
	return &user, token, nil
}

// Logout revokes the current session token on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.doPost(ctx, "/users/logout", nil, nil)
}
