// ABOUTME: Tests for request plumbing, error classification, auth expiry

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatsync/model"
)

func TestDoGet_SendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v4/users/me", r.URL.Path)
		json.NewEncoder(w).Encode(model.User{ID: "me"})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token")
	user, err := c.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me", user.ID)
}

func TestDo_ClassifiesStatusCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"message": "no access"})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token")
	_, err := c.GetMe(context.Background())
	require.Error(t, err)
	assert.True(t, IsForbidden(err))
	assert.False(t, IsUnauthorized(err))
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
	assert.Contains(t, err.Error(), "no access")
}

func TestDo_NetworkErrorHasZeroStatus(t *testing.T) {
	c := New("http://127.0.0.1:1", "test-token", WithTimeout(0))
	_, err := c.GetMe(context.Background())
	require.Error(t, err)
	assert.Zero(t, StatusCode(err))
}

func TestDo_AuthExpiredHookFiresOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var expired int
	c := New(srv.URL, "stale-token", WithAuthExpiredHook(func() { expired++ }))
	_, err := c.GetMe(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, 1, expired)
}

func TestLogin_401DoesNotFireAuthExpiredHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var expired int
	c := New(srv.URL, "", WithAuthExpiredHook(func() { expired++ }))
	_, _, err := c.Login(context.Background(), "sam", "wrong")
	require.Error(t, err)
	assert.Zero(t, expired)
}

func TestLogin_ReadsTokenHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v4/users/login", r.URL.Path)
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "sam", creds["login_id"])
		w.Header().Set("Token", "session-token")
		json.NewEncoder(w).Encode(model.User{ID: "me", Username: "sam"})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	user, token, err := c.Login(context.Background(), "sam", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "me", user.ID)
	assert.Equal(t, "session-token", token)
}

func TestLogin_MissingTokenHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.User{ID: "me"})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, _, err := c.Login(context.Background(), "sam", "hunter2")
	assert.Error(t, err)
}

func TestPostList_OrderedPosts(t *testing.T) {
	list := &PostList{
		Order: []string{"post-2", "post-1", "post-missing"},
		Posts: map[string]*model.Post{
			"post-1": {ID: "post-1", CreateAt: 100},
			"post-2": {ID: "post-2", CreateAt: 200},
		},
	}
	posts := list.OrderedPosts()
	require.Len(t, posts, 2)
	assert.Equal(t, "post-2", posts[0].ID)
	assert.Equal(t, "post-1", posts[1].ID)
}

func TestGetPostsSince_BuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/channels/ch-1/posts", r.URL.Path)
		assert.Equal(t, "12345", r.URL.Query().Get("since"))
		fmt.Fprint(w, `{"order":[],"posts":{}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token")
	list, err := c.GetPostsSince(context.Background(), "ch-1", 12345)
	require.NoError(t, err)
	assert.Empty(t, list.OrderedPosts())
}
