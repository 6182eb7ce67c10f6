// ABOUTME: Tests for session registry: login, logout, database naming

package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatsync/model"
)

// loginHandler serves the login and logout routes of one fake server.
func loginHandler(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v4/users/login", func(w http.ResponseWriter, r *http.Request) {
		var creds struct {
			LoginID  string `json:"login_id"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Password != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Token", token)
		json.NewEncoder(w).Encode(model.User{ID: "me", Username: creds.LoginID})
	})
	mux.HandleFunc("POST /api/v4/users/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func TestLoginLogout_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(loginHandler("opaque-token"))
	defer srv.Close()

	baseDir := t.TempDir()
	reg := NewRegistry(baseDir)
	ctx := context.Background()

	sess, err := reg.Login(ctx, srv.URL, "sam", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "me", sess.UserID)
	assert.Equal(t, "opaque-token", sess.Token)
	assert.Zero(t, sess.ExpiresAt)
	assert.Same(t, sess, reg.Active())

	dbPath := filepath.Join(baseDir, databaseName(srv.URL))
	_, err = os.Stat(dbPath)
	require.NoError(t, err)

	require.NoError(t, reg.Logout(ctx, srv.URL))
	assert.Nil(t, reg.Active())
	_, err = os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err))
}

func TestLogin_BadCredentials(t *testing.T) {
	srv := httptest.NewServer(loginHandler("opaque-token"))
	defer srv.Close()

	reg := NewRegistry(t.TempDir())
	_, err := reg.Login(context.Background(), srv.URL, "sam", "wrong")
	assert.Error(t, err)
	assert.Empty(t, reg.Servers())
}

func TestLogin_RequestTimeoutOption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Token", "opaque-token")
		json.NewEncoder(w).Encode(model.User{ID: "me", Username: "sam"})
	}))
	defer srv.Close()

	reg := NewRegistry(t.TempDir(), WithRequestTimeout(20*time.Millisecond))
	_, err := reg.Login(context.Background(), srv.URL, "sam", "hunter2")
	assert.Error(t, err)
	assert.Empty(t, reg.Servers())
}

func TestLogin_DuplicateServerRejected(t *testing.T) {
	srv := httptest.NewServer(loginHandler("opaque-token"))
	defer srv.Close()

	reg := NewRegistry(t.TempDir())
	ctx := context.Background()

	_, err := reg.Login(ctx, srv.URL, "sam", "hunter2")
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	_, err = reg.Login(ctx, srv.URL+"/", "sam", "hunter2")
	assert.Error(t, err)
}

func TestActivate_SwitchesActiveSession(t *testing.T) {
	srvA := httptest.NewServer(loginHandler("token-a"))
	defer srvA.Close()
	srvB := httptest.NewServer(loginHandler("token-b"))
	defer srvB.Close()

	reg := NewRegistry(t.TempDir())
	ctx := context.Background()

	first, err := reg.Login(ctx, srvA.URL, "sam", "hunter2")
	require.NoError(t, err)
	second, err := reg.Login(ctx, srvB.URL, "sam", "hunter2")
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	assert.Same(t, first, reg.Active())
	require.NoError(t, reg.Activate(srvB.URL))
	assert.Same(t, second, reg.Active())

	assert.Error(t, reg.Activate("https://never-added.example.com"))
}

func TestDatabaseName_SafeAndDistinct(t *testing.T) {
	a := databaseName("https://chat.example.com:8065")
	b := databaseName("https://chat.example.com")
	assert.Equal(t, "chat-example-com-8065.db", a)
	assert.Equal(t, "chat-example-com.db", b)
	assert.NotEqual(t, a, b)
}

func TestTokenExpiry(t *testing.T) {
	assert.Zero(t, tokenExpiry("not-a-jwt"))

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, exp.UnixMilli(), tokenExpiry(signed))
}

func TestLoginJWT_RecordsExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	srv := httptest.NewServer(loginHandler(signed))
	defer srv.Close()

	reg := NewRegistry(t.TempDir())
	sess, err := reg.Login(context.Background(), srv.URL, "sam", "hunter2")
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	assert.Equal(t, exp.UnixMilli(), sess.ExpiresAt)
}
