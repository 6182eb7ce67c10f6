// ABOUTME: Tests for event dispatch: idempotent handlers and echo suppression

package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatsync/client"
	"github.com/2389/chatsync/ephemeral"
	"github.com/2389/chatsync/model"
	"github.com/2389/chatsync/store"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	guard := ephemeral.NewGuard(time.Minute, 128)
	t.Cleanup(guard.Close)

	d := NewDispatcher("https://chat.example.com", st, client.New("http://unused.invalid", "test-token"), guard)
	t.Cleanup(d.Close)
	return d, st
}

// embed encodes an entity the way the server does: a JSON object wrapped
// in a JSON string inside the event data.
func embed(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func seedCurrentUser(t *testing.T, st *store.SQLiteStore, userID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SetSystemValue(ctx, model.SystemCurrentUserID, userID))
	op, err := st.PrepareUpsertUser(ctx, &model.User{ID: userID, Username: "me", UpdateAt: 1})
	require.NoError(t, err)
	b := store.NewBatch()
	b.Add(op)
	require.NoError(t, st.Commit(ctx, b))
}

func seedMyChannel(t *testing.T, st *store.SQLiteStore, my *model.MyChannel) {
	t.Helper()
	ctx := context.Background()
	op, err := st.PrepareUpsertMyChannel(ctx, my)
	require.NoError(t, err)
	b := store.NewBatch()
	b.Add(op)
	require.NoError(t, st.Commit(ctx, b))
}

func TestDispatch_UnknownEventTypeIgnored(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Dispatch(context.Background(), &model.Event{Type: "some_future_event"})
}

func TestHandlePosted_StoresPostAndBumpsUnread(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	seedCurrentUser(t, st, "me")
	seedMyChannel(t, st, &model.MyChannel{ChannelID: "ch-1", LastPostAt: 100, MessageCount: 1})

	// Author must be cached or the handler reaches for the network.
	authorOp, err := st.PrepareUpsertUser(ctx, &model.User{ID: "user-2", Username: "alex", UpdateAt: 1})
	require.NoError(t, err)
	b := store.NewBatch()
	b.Add(authorOp)
	require.NoError(t, st.Commit(ctx, b))

	post := model.Post{ID: "post-1", ChannelID: "ch-1", UserID: "user-2", CreateAt: 500, UpdateAt: 500, Message: "hi"}
	d.Dispatch(ctx, &model.Event{
		Type: model.EventPosted,
		Data: map[string]any{"post": embed(t, post), "mentions": embed(t, []string{"me"})},
	})

	got, err := st.GetPost(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Message)

	my, err := st.GetMyChannel(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), my.LastPostAt)
	assert.Equal(t, int64(2), my.MessageCount)
	assert.Equal(t, int64(1), my.MentionCount)
	assert.True(t, my.IsUnread)

	window, err := st.GetChannelWindow(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), window.Latest)
}

func TestHandlePosted_MentionRecordedInRecentList(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	seedCurrentUser(t, st, "me")
	seedMyChannel(t, st, &model.MyChannel{ChannelID: "ch-1"})
	authorOp, err := st.PrepareUpsertUser(ctx, &model.User{ID: "user-2", Username: "alex", UpdateAt: 1})
	require.NoError(t, err)
	b := store.NewBatch()
	b.Add(authorOp)
	require.NoError(t, st.Commit(ctx, b))

	post := model.Post{ID: "post-9", ChannelID: "ch-1", UserID: "user-2", CreateAt: 500, UpdateAt: 500, Message: "@me ping"}
	d.Dispatch(ctx, &model.Event{
		Type: model.EventPosted,
		Data: map[string]any{"post": embed(t, post), "mentions": embed(t, []string{"me"})},
	})

	ids, err := st.GetRecentMentions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"post-9"}, ids)
}

func TestWithStatusDelay_CoalescesBareStatusEvents(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v4/users/status/ids", r.URL.Path)
		fetches.Add(1)
		json.NewEncoder(w).Encode([]model.UserStatus{{UserID: "user-1", Status: model.StatusOnline}})
	}))
	defer srv.Close()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	guard := ephemeral.NewGuard(time.Minute, 128)
	t.Cleanup(guard.Close)

	d := NewDispatcher(srv.URL, st, client.New(srv.URL, "test-token"), guard,
		WithStatusDelay(20*time.Millisecond))
	t.Cleanup(d.Close)

	ctx := context.Background()
	op, err := st.PrepareUpsertUser(ctx, &model.User{ID: "user-1", Username: "sam", UpdateAt: 1})
	require.NoError(t, err)
	b := store.NewBatch()
	b.Add(op)
	require.NoError(t, st.Commit(ctx, b))

	// A burst of bare notifications inside the window becomes one fetch.
	d.Dispatch(ctx, &model.Event{Type: model.EventStatusChanged, Data: map[string]any{"user_id": "user-1"}})
	d.Dispatch(ctx, &model.Event{Type: model.EventStatusChanged, Data: map[string]any{"user_id": "user-1"}})

	require.Eventually(t, func() bool {
		u, err := st.GetUser(ctx, "user-1")
		return err == nil && u.Status == model.StatusOnline
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), fetches.Load())
}

func TestHandlePosted_OwnPostNeverUnread(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	seedCurrentUser(t, st, "me")
	seedMyChannel(t, st, &model.MyChannel{ChannelID: "ch-1"})

	post := model.Post{ID: "post-1", ChannelID: "ch-1", UserID: "me", CreateAt: 500, UpdateAt: 500}
	d.Dispatch(ctx, &model.Event{
		Type: model.EventPosted,
		Data: map[string]any{"post": embed(t, post)},
	})

	my, err := st.GetMyChannel(ctx, "ch-1")
	require.NoError(t, err)
	assert.Zero(t, my.MessageCount)
	assert.False(t, my.IsUnread)
	assert.Equal(t, int64(500), my.LastPostAt)
}

func TestHandlePostDeleted_UnknownPostIsNoop(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Dispatch(context.Background(), &model.Event{
		Type: model.EventPostDeleted,
		Data: map[string]any{"post": embed(t, model.Post{ID: "never-seen"})},
	})
}

func TestHandleUserRemoved_SelfEchoSuppressedOnce(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	seedCurrentUser(t, st, "me")
	seedMyChannel(t, st, &model.MyChannel{ChannelID: "ch-1"})

	var kicked []string
	d.OnKickedFromChannel = func(channelID string) { kicked = append(kicked, channelID) }

	// The session itself left the channel: the echo must not double-purge.
	d.MarkIntent("ch-1", ephemeral.ActionLeavingChannel)
	d.Dispatch(ctx, &model.Event{
		Type:      model.EventUserRemoved,
		Data:      map[string]any{"user_id": "me", "channel_id": "ch-1"},
		Broadcast: model.EventBroadcast{ChannelID: "ch-1"},
	})

	_, err := st.GetMyChannel(ctx, "ch-1")
	assert.NoError(t, err)
	assert.Empty(t, kicked)

	// A second removal without a pending intent is a real server-side kick.
	require.NoError(t, st.SetSystemValue(ctx, model.SystemCurrentChannelID, "ch-1"))
	d.Dispatch(ctx, &model.Event{
		Type:      model.EventUserRemoved,
		Data:      map[string]any{"user_id": "me", "channel_id": "ch-1"},
		Broadcast: model.EventBroadcast{ChannelID: "ch-1"},
	})

	_, err = st.GetMyChannel(ctx, "ch-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []string{"ch-1"}, kicked)
}

func TestHandleUserRemoved_OtherUserDropsMembershipOnly(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	seedCurrentUser(t, st, "me")
	seedMyChannel(t, st, &model.MyChannel{ChannelID: "ch-1"})
	memberOp, err := st.PrepareUpsertChannelMembership(ctx, "ch-1", "user-2", "channel_user")
	require.NoError(t, err)
	b := store.NewBatch()
	b.Add(memberOp)
	require.NoError(t, st.Commit(ctx, b))

	d.Dispatch(ctx, &model.Event{
		Type: model.EventUserRemoved,
		Data: map[string]any{"user_id": "user-2", "channel_id": "ch-1"},
	})

	_, err = st.GetMyChannel(ctx, "ch-1")
	assert.NoError(t, err)
}

func TestHandleChannelDeleted_ArchivesAndKicksCurrent(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	seedCurrentUser(t, st, "me")
	chOp, err := st.PrepareUpsertChannel(ctx, &model.Channel{ID: "ch-1", TeamID: "team-1", Type: model.ChannelTypeOpen, UpdateAt: 1})
	require.NoError(t, err)
	b := store.NewBatch()
	b.Add(chOp)
	require.NoError(t, st.Commit(ctx, b))
	require.NoError(t, st.SetSystemValue(ctx, model.SystemCurrentChannelID, "ch-1"))

	var kicked []string
	d.OnKickedFromChannel = func(channelID string) { kicked = append(kicked, channelID) }

	d.Dispatch(ctx, &model.Event{
		Type: model.EventChannelDeleted,
		Data: map[string]any{"channel_id": "ch-1", "delete_at": float64(777)},
	})

	ch, err := st.GetChannel(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(777), ch.DeleteAt)
	assert.Equal(t, []string{"ch-1"}, kicked)
}

func TestHandleChannelViewed_ClearsUnreadState(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	seedMyChannel(t, st, &model.MyChannel{ChannelID: "ch-1", MessageCount: 4, MentionCount: 2, IsUnread: true})

	d.Dispatch(ctx, &model.Event{
		Type:      model.EventChannelViewed,
		Broadcast: model.EventBroadcast{ChannelID: "ch-1"},
	})

	my, err := st.GetMyChannel(ctx, "ch-1")
	require.NoError(t, err)
	assert.False(t, my.IsUnread)
	assert.Zero(t, my.MessageCount)
	assert.Zero(t, my.MentionCount)
	assert.Positive(t, my.LastViewedAt)
}

func TestHandleChannelDeleted_SelfEchoSkipsArchive(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	seedCurrentUser(t, st, "me")
	chOp, err := st.PrepareUpsertChannel(ctx, &model.Channel{ID: "ch-1", TeamID: "team-1", Type: model.ChannelTypeOpen, UpdateAt: 1})
	require.NoError(t, err)
	b := store.NewBatch()
	b.Add(chOp)
	require.NoError(t, st.Commit(ctx, b))

	d.MarkIntent("ch-1", ephemeral.ActionArchivingChannel)
	d.Dispatch(ctx, &model.Event{
		Type: model.EventChannelDeleted,
		Data: map[string]any{"channel_id": "ch-1", "delete_at": float64(777)},
	})

	ch, err := st.GetChannel(ctx, "ch-1")
	require.NoError(t, err)
	assert.Zero(t, ch.DeleteAt)
}
