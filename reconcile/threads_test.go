// ABOUTME: Tests for per-team thread sync and its watermark lifecycle

package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatsync/client"
	"github.com/2389/chatsync/model"
	"github.com/2389/chatsync/store"
)

// threadListHandler serves threads filtered by the request's unread and
// since parameters, the way the server splits bootstrap and delta fetches.
func threadListHandler(calls *atomic.Int64, unread, all, delta []*model.Thread) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		threads := all
		if r.URL.Query().Get("unread") == "true" {
			threads = unread
		} else if r.URL.Query().Get("since") != "" {
			threads = delta
		}
		json.NewEncoder(w).Encode(client.ThreadList{Total: int64(len(threads)), Threads: threads})
	})
}

func TestSyncTeamThreads_BootstrapSeedsWatermark(t *testing.T) {
	var calls atomic.Int64
	unread := []*model.Thread{
		{ID: "root-1", ReplyCount: 2, LastReplyAt: 300, UnreadReplies: 1, IsFollowing: true},
	}
	all := []*model.Thread{
		unread[0],
		{ID: "root-2", ReplyCount: 5, LastReplyAt: 900, IsFollowing: true,
			Participants: []model.User{{ID: "user-1", Username: "sam", UpdateAt: 10}},
			Post:         &model.Post{ID: "root-2", ChannelID: "ch-1", CreateAt: 100, UpdateAt: 100}},
	}
	e, st := newTestEngine(t, threadListHandler(&calls, unread, all, nil))
	ctx := context.Background()

	ops, err := e.SyncTeamThreads(ctx, "me", "team-1")
	require.NoError(t, err)
	commitOps(t, st, ops)

	// One unread page plus the latest page.
	assert.Equal(t, int64(2), calls.Load())

	sync, err := st.GetTeamThreadsSync(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), sync.Earliest)
	assert.Equal(t, int64(900), sync.Latest)

	_, err = st.GetThread(ctx, "root-2")
	assert.NoError(t, err)
	_, err = st.GetUser(ctx, "user-1")
	assert.NoError(t, err)
	_, err = st.GetPost(ctx, "root-2")
	assert.NoError(t, err)
}

func TestSyncTeamThreads_DeltaAdvancesLatestEdge(t *testing.T) {
	var calls atomic.Int64
	delta := []*model.Thread{
		{ID: "root-3", ReplyCount: 1, LastReplyAt: 1500, IsFollowing: true},
	}
	e, st := newTestEngine(t, threadListHandler(&calls, nil, nil, delta))
	ctx := context.Background()

	op, err := st.PrepareSetTeamThreadsSync(ctx, &model.TeamThreadsSync{TeamID: "team-1", Earliest: 300, Latest: 900})
	require.NoError(t, err)
	commitOps(t, st, []*store.Op{op})

	ops, err := e.SyncTeamThreads(ctx, "me", "team-1")
	require.NoError(t, err)
	commitOps(t, st, ops)

	assert.Equal(t, int64(1), calls.Load())

	sync, err := st.GetTeamThreadsSync(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), sync.Earliest)
	assert.Equal(t, int64(1500), sync.Latest)
}

func TestLoadEarlierThreads_LowersEarliestEdge(t *testing.T) {
	earlier := []*model.Thread{
		{ID: "root-0", ReplyCount: 1, LastReplyAt: 100, IsFollowing: true},
	}
	e, st := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "root-1", r.URL.Query().Get("before"))
		json.NewEncoder(w).Encode(client.ThreadList{Total: 1, Threads: earlier})
	}))
	ctx := context.Background()

	op, err := st.PrepareSetTeamThreadsSync(ctx, &model.TeamThreadsSync{TeamID: "team-1", Earliest: 300, Latest: 900})
	require.NoError(t, err)
	commitOps(t, st, []*store.Op{op})

	ops, err := e.LoadEarlierThreads(ctx, "me", "team-1", "root-1")
	require.NoError(t, err)
	commitOps(t, st, ops)

	sync, err := st.GetTeamThreadsSync(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), sync.Earliest)
	assert.Equal(t, int64(900), sync.Latest)

	_, err = st.GetThread(ctx, "root-0")
	assert.NoError(t, err)
}

func TestLoadEarlierThreads_EmptyPageKeepsWatermark(t *testing.T) {
	e, st := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(client.ThreadList{})
	}))
	ctx := context.Background()

	op, err := st.PrepareSetTeamThreadsSync(ctx, &model.TeamThreadsSync{TeamID: "team-1", Earliest: 300, Latest: 900})
	require.NoError(t, err)
	commitOps(t, st, []*store.Op{op})

	ops, err := e.LoadEarlierThreads(ctx, "me", "team-1", "root-9")
	require.NoError(t, err)
	assert.Empty(t, ops)

	sync, err := st.GetTeamThreadsSync(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), sync.Earliest)
}

func TestFillThreadGap_CoveredRangeSkipsFetch(t *testing.T) {
	e, st := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected fetch: %s", r.URL.Path)
	}))
	ctx := context.Background()

	op, err := st.PrepareMergeThreadWindow(ctx, "root-1", 100, 500)
	require.NoError(t, err)
	commitOps(t, st, []*store.Op{op})

	ops, fetched, err := e.FillThreadGap(ctx, "root-1", 200, 400)
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.Empty(t, ops)
}
