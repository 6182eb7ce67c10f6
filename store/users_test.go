// ABOUTME: Tests for user profile dedup, presence, preferences, and reactions

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatsync/model"
)

func TestPrepareUpsertUser_DedupsUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &model.User{ID: "user-1", Username: "sam", UpdateAt: 100}
	op, err := s.PrepareUpsertUser(ctx, user)
	require.NoError(t, err)
	commitOps(t, s, op)

	op, err = s.PrepareUpsertUser(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestPrepareUpsertUser_StatusChangeWritesDespiteSameUpdateAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Presence changes do not bump update_at on the server.
	user := &model.User{ID: "user-1", Username: "sam", UpdateAt: 100, Status: model.StatusOnline}
	op, err := s.PrepareUpsertUser(ctx, user)
	require.NoError(t, err)
	commitOps(t, s, op)

	away := *user
	away.Status = model.StatusAway
	op, err = s.PrepareUpsertUser(ctx, &away)
	require.NoError(t, err)
	require.NotNil(t, op)
	commitOps(t, s, op)

	got, err := s.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAway, got.Status)
}

func TestPrepareSetUserStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op, err := s.PrepareUpsertUser(ctx, &model.User{ID: "user-1", Username: "sam", UpdateAt: 100})
	require.NoError(t, err)
	commitOps(t, s, op)

	commitOps(t, s, s.PrepareSetUserStatus("user-1", model.StatusDND))

	got, err := s.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDND, got.Status)
}

func TestQueryMissingUserIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op, err := s.PrepareUpsertUser(ctx, &model.User{ID: "user-1", Username: "sam", UpdateAt: 100})
	require.NoError(t, err)
	commitOps(t, s, op)

	missing, err := s.QueryMissingUserIDs(ctx, []string{"user-1", "user-2", "user-3"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user-2", "user-3"}, missing)

	missing, err = s.QueryMissingUserIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestPreferences_UpsertDedupAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pref := &model.Preference{UserID: "user-1", Category: "display_settings", Name: "use_military_time", Value: "true"}
	op, err := s.PrepareUpsertPreference(ctx, pref)
	require.NoError(t, err)
	commitOps(t, s, op)

	op, err = s.PrepareUpsertPreference(ctx, pref)
	require.NoError(t, err)
	assert.Nil(t, op)

	commitOps(t, s, s.PrepareDeletePreference(pref))
	_, err = s.GetPreference(ctx, "user-1", "display_settings", "use_military_time")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrepareUpsertReaction_DedupsExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reaction := &model.Reaction{UserID: "user-1", PostID: "post-1", EmojiName: "+1", CreateAt: 10}
	op, err := s.PrepareUpsertReaction(ctx, reaction)
	require.NoError(t, err)
	require.NotNil(t, op)
	commitOps(t, s, op)

	// Composite natural key already present: replayed event is a no-op.
	op, err = s.PrepareUpsertReaction(ctx, reaction)
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestPrepareUpsertRole_DedupsOnPermissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	role := &model.Role{ID: "role-1", Name: "channel_user", Permissions: []string{"read_channel", "create_post"}}
	op, err := s.PrepareUpsertRole(ctx, role)
	require.NoError(t, err)
	commitOps(t, s, op)

	op, err = s.PrepareUpsertRole(ctx, role)
	require.NoError(t, err)
	assert.Nil(t, op)

	wider := *role
	wider.Permissions = append([]string{}, role.Permissions...)
	wider.Permissions = append(wider.Permissions, "manage_channel_roles")
	op, err = s.PrepareUpsertRole(ctx, &wider)
	require.NoError(t, err)
	assert.NotNil(t, op)
}
