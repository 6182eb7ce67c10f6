// ABOUTME: Tests for system key/value rows and the disconnect watermark

package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatsync/model"
)

func TestSystemValue_AbsentMeansEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	value, err := s.GetSystemValue(ctx, "unset-key")
	require.NoError(t, err)
	assert.Equal(t, "", value)
}

func TestSystemValue_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSystemValue(ctx, model.SystemCurrentTeamID, "team-1"))

	teamID, err := s.GetCurrentTeamID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "team-1", teamID)
}

func TestPrepareSetSystemValue_DedupsUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op, err := s.PrepareSetSystemValue(ctx, model.SystemCurrentChannelID, "ch-1")
	require.NoError(t, err)
	require.NotNil(t, op)
	commitOps(t, s, op)

	op, err = s.PrepareSetSystemValue(ctx, model.SystemCurrentChannelID, "ch-1")
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestPrepareForceSetSystemValue_WritesUnchangedValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSystemValue(ctx, model.SystemCurrentUserID, "me"))

	// The forced variant never dedups: the op exists even when the stored
	// value already matches.
	op := s.PrepareForceSetSystemValue(model.SystemCurrentUserID, "me")
	require.NotNil(t, op)
	commitOps(t, s, op)

	userID, err := s.GetCurrentUserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "me", userID)
}

func TestRecentMentions_NewestFirstAndDeduped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, postID := range []string{"post-1", "post-2", "post-1"} {
		op, err := s.PrepareAddRecentMention(ctx, postID)
		require.NoError(t, err)
		commitOps(t, s, op)
	}

	ids, err := s.GetRecentMentions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"post-1", "post-2"}, ids)
}

func TestRecentMentions_BoundedAtLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < recentMentionsLimit+5; i++ {
		op, err := s.PrepareAddRecentMention(ctx, fmt.Sprintf("post-%d", i))
		require.NoError(t, err)
		commitOps(t, s, op)
	}

	ids, err := s.GetRecentMentions(ctx)
	require.NoError(t, err)
	require.Len(t, ids, recentMentionsLimit)
	assert.Equal(t, fmt.Sprintf("post-%d", recentMentionsLimit+4), ids[0])
}

func TestPrepareAddRecentMention_FrontEntryDedups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op, err := s.PrepareAddRecentMention(ctx, "post-1")
	require.NoError(t, err)
	commitOps(t, s, op)

	op, err = s.PrepareAddRecentMention(ctx, "post-1")
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestWebSocketDisconnectWatermark(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts, err := s.GetWebSocketLastDisconnected(ctx)
	require.NoError(t, err)
	assert.Zero(t, ts)

	require.NoError(t, s.SetWebSocketLastDisconnected(ctx, 98765))
	ts, err = s.GetWebSocketLastDisconnected(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(98765), ts)

	require.NoError(t, s.ResetWebSocketLastDisconnected(ctx))
	ts, err = s.GetWebSocketLastDisconnected(ctx)
	require.NoError(t, err)
	assert.Zero(t, ts)
}

func TestConfigAndLicense_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := model.Config{"ExperimentalPrimaryTeam": "eng", "Version": "9.5.0"}
	op, err := s.PrepareSetConfig(ctx, cfg)
	require.NoError(t, err)
	commitOps(t, s, op)

	got, err := s.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	license := model.License{"IsLicensed": "true"}
	op, err = s.PrepareSetLicense(ctx, license)
	require.NoError(t, err)
	commitOps(t, s, op)

	gotLicense, err := s.GetLicense(ctx)
	require.NoError(t, err)
	assert.Equal(t, license, gotLicense)
}

func TestTeamHistory_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	history, err := s.GetTeamHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, s.SetTeamHistory(ctx, []string{"team-2", "team-1"}))

	history, err = s.GetTeamHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"team-2", "team-1"}, history)
}
