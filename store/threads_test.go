// ABOUTME: Tests for thread records and the team thread-sync watermark

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatsync/model"
)

func TestPrepareUpsertThread_DedupsUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	thread := &model.Thread{ID: "root-1", ReplyCount: 3, LastReplyAt: 500, IsFollowing: true}
	op, err := s.PrepareUpsertThread(ctx, thread)
	require.NoError(t, err)
	commitOps(t, s, op)

	op, err = s.PrepareUpsertThread(ctx, thread)
	require.NoError(t, err)
	assert.Nil(t, op)

	replied := *thread
	replied.ReplyCount = 4
	replied.LastReplyAt = 600
	op, err = s.PrepareUpsertThread(ctx, &replied)
	require.NoError(t, err)
	assert.NotNil(t, op)
}

func TestPrepareUpdateThreadViewed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	thread := &model.Thread{ID: "root-1", UnreadReplies: 5, UnreadMentions: 2}
	op, err := s.PrepareUpsertThread(ctx, thread)
	require.NoError(t, err)
	commitOps(t, s, op)

	commitOps(t, s, s.PrepareUpdateThreadViewed("root-1", 700, 0, 0))

	got, err := s.GetThread(ctx, "root-1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), got.LastViewedAt)
	assert.Zero(t, got.UnreadReplies)
	assert.Zero(t, got.UnreadMentions)
}

func TestPrepareSetThreadFollowing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	thread := &model.Thread{ID: "root-1", IsFollowing: true}
	op, err := s.PrepareUpsertThread(ctx, thread)
	require.NoError(t, err)
	commitOps(t, s, op)

	commitOps(t, s, s.PrepareSetThreadFollowing("root-1", false))

	got, err := s.GetThread(ctx, "root-1")
	require.NoError(t, err)
	assert.False(t, got.IsFollowing)
}

func TestPrepareSetTeamThreadsSync_ZeroPreservesStoredEdge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op, err := s.PrepareSetTeamThreadsSync(ctx, &model.TeamThreadsSync{TeamID: "team-1", Earliest: 100, Latest: 500})
	require.NoError(t, err)
	commitOps(t, s, op)

	// Advancing only the latest edge keeps the stored earliest.
	op, err = s.PrepareSetTeamThreadsSync(ctx, &model.TeamThreadsSync{TeamID: "team-1", Latest: 900})
	require.NoError(t, err)
	require.NotNil(t, op)
	commitOps(t, s, op)

	sync, err := s.GetTeamThreadsSync(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), sync.Earliest)
	assert.Equal(t, int64(900), sync.Latest)
}

func TestPrepareSetTeamThreadsSync_DedupsUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op, err := s.PrepareSetTeamThreadsSync(ctx, &model.TeamThreadsSync{TeamID: "team-1", Earliest: 100, Latest: 500})
	require.NoError(t, err)
	commitOps(t, s, op)

	op, err = s.PrepareSetTeamThreadsSync(ctx, &model.TeamThreadsSync{TeamID: "team-1", Earliest: 100, Latest: 500})
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestPrepareUpsertThreadParticipant_DedupsExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op, err := s.PrepareUpsertThreadParticipant(ctx, "root-1", "user-1")
	require.NoError(t, err)
	require.NotNil(t, op)
	commitOps(t, s, op)

	op, err = s.PrepareUpsertThreadParticipant(ctx, "root-1", "user-1")
	require.NoError(t, err)
	assert.Nil(t, op)
}
