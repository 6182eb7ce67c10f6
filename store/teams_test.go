// ABOUTME: Tests for team records, membership dedup, and the team purge cascade

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatsync/model"
)

func TestPrepareUpsertTeam_DedupsUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	team := &model.Team{ID: "team-1", DisplayName: "Engineering", Name: "eng", UpdateAt: 100}
	op, err := s.PrepareUpsertTeam(ctx, team)
	require.NoError(t, err)
	require.NotNil(t, op)
	commitOps(t, s, op)

	op, err = s.PrepareUpsertTeam(ctx, team)
	require.NoError(t, err)
	assert.Nil(t, op)

	renamed := *team
	renamed.DisplayName = "Platform Engineering"
	op, err = s.PrepareUpsertTeam(ctx, &renamed)
	require.NoError(t, err)
	assert.NotNil(t, op)
}

func TestQueryMyTeamIDs_SkipsDeletedMemberships(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := NewBatch()
	for _, team := range []model.Team{
		{ID: "team-b", DisplayName: "Bravo"},
		{ID: "team-a", DisplayName: "alpha"},
		{ID: "team-c", DisplayName: "Charlie"},
	} {
		op, err := s.PrepareUpsertTeam(ctx, &team)
		require.NoError(t, err)
		b.Add(op)
	}
	for _, m := range []model.TeamMembership{
		{TeamID: "team-b", UserID: "me"},
		{TeamID: "team-a", UserID: "me"},
		{TeamID: "team-c", UserID: "me", DeleteAt: 99},
	} {
		op, err := s.PrepareUpsertTeamMembership(ctx, &m)
		require.NoError(t, err)
		b.Add(op)
	}
	require.NoError(t, s.Commit(ctx, b))

	ids, err := s.QueryMyTeamIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"team-a", "team-b"}, ids)
}

func TestPrepareDeleteTeam_CascadesThroughChannels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := NewBatch()
	teamOp, err := s.PrepareUpsertTeam(ctx, &model.Team{ID: "team-1", DisplayName: "Engineering"})
	require.NoError(t, err)
	b.Add(teamOp)
	chOp, err := s.PrepareUpsertChannel(ctx, &model.Channel{ID: "ch-1", TeamID: "team-1", Type: model.ChannelTypeOpen, DisplayName: "General"})
	require.NoError(t, err)
	b.Add(chOp)
	postOp, err := s.PrepareUpsertPost(ctx, &model.Post{ID: "post-1", ChannelID: "ch-1", CreateAt: 10, UpdateAt: 10})
	require.NoError(t, err)
	b.Add(postOp)
	require.NoError(t, s.Commit(ctx, b))

	ops, err := s.PrepareDeleteTeam(ctx, "team-1")
	require.NoError(t, err)
	commitOps(t, s, ops...)

	_, err = s.GetTeam(ctx, "team-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetChannel(ctx, "ch-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetPost(ctx, "post-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddTeamSearchTerm_DedupsAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddTeamSearchTerm(ctx, "team-1", "deploy", 100))
	require.NoError(t, s.AddTeamSearchTerm(ctx, "team-1", "incident", 200))
	require.NoError(t, s.AddTeamSearchTerm(ctx, "team-1", "deploy", 300))

	history, err := s.QueryTeamSearchHistory(ctx, "team-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "deploy", history[0].Term)
	assert.Equal(t, int64(300), history[0].CreatedAt)
	assert.Equal(t, "incident", history[1].Term)
}
