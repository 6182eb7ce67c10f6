// ABOUTME: Channel, MyChannel, settings and membership record access
// ABOUTME: Channel deletion cascades to posts, member state, and thread indexes

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/chatsync/model"
)

// GetChannel returns the cached channel or ErrNotFound.
func (s *SQLiteStore) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, create_at, update_at, delete_at, team_id, type, display_name, name,
			header, purpose, creator_id, shared, total_msg_count, last_post_at
		FROM channels WHERE id = ?`, id)

	var c model.Channel
	err := row.Scan(&c.ID, &c.CreateAt, &c.UpdateAt, &c.DeleteAt, &c.TeamID, &c.Type, &c.DisplayName,
		&c.Name, &c.Header, &c.Purpose, &c.CreatorID, &c.Shared, &c.TotalMsgCount, &c.LastPostAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying channel: %w", err)
	}
	return &c, nil
}

// GetMyChannel returns the current user's per-channel state or ErrNotFound.
func (s *SQLiteStore) GetMyChannel(ctx context.Context, channelID string) (*model.MyChannel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT channel_id, last_post_at, last_viewed_at, last_fetched_at, message_count,
			mention_count, is_unread, manually_unread, roles, viewed_at
		FROM my_channels WHERE channel_id = ?`, channelID)

	var m model.MyChannel
	err := row.Scan(&m.ChannelID, &m.LastPostAt, &m.LastViewedAt, &m.LastFetchedAt, &m.MessageCount,
		&m.MentionCount, &m.IsUnread, &m.ManuallyUnread, &m.Roles, &m.ViewedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying my channel: %w", err)
	}
	return &m, nil
}

// QueryChannelIDsForTeam returns all locally-cached channel ids for a team.
func (s *SQLiteStore) QueryChannelIDsForTeam(ctx context.Context, teamID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM channels WHERE team_id = ?`, teamID)
	if err != nil {
		return nil, fmt.Errorf("querying channels for team: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning channel id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// QueryDirectChannelIDs returns all cached DM and GM channel ids.
func (s *SQLiteStore) QueryDirectChannelIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM channels WHERE type IN (?, ?)`,
		model.ChannelTypeDirect, model.ChannelTypeGroup)
	if err != nil {
		return nil, fmt.Errorf("querying direct channels: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning channel id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PrepareUpsertChannel returns a pending upsert, or nil when unchanged.
func (s *SQLiteStore) PrepareUpsertChannel(ctx context.Context, c *model.Channel) (*Op, error) {
	existing, err := s.GetChannel(ctx, c.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && *existing == *c {
		return nil, nil
	}

	return upsertOp("channels", `
		INSERT INTO channels (id, create_at, update_at, delete_at, team_id, type, display_name,
			name, header, purpose, creator_id, shared, total_msg_count, last_post_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			create_at = excluded.create_at,
			update_at = excluded.update_at,
			delete_at = excluded.delete_at,
			team_id = excluded.team_id,
			type = excluded.type,
			display_name = excluded.display_name,
			name = excluded.name,
			header = excluded.header,
			purpose = excluded.purpose,
			creator_id = excluded.creator_id,
			shared = excluded.shared,
			total_msg_count = excluded.total_msg_count,
			last_post_at = excluded.last_post_at`,
		c.ID, c.CreateAt, c.UpdateAt, c.DeleteAt, c.TeamID, c.Type, c.DisplayName,
		c.Name, c.Header, c.Purpose, c.CreatorID, c.Shared, c.TotalMsgCount, c.LastPostAt), nil
}

// PrepareUpsertMyChannel returns a pending upsert, or nil when unchanged.
func (s *SQLiteStore) PrepareUpsertMyChannel(ctx context.Context, m *model.MyChannel) (*Op, error) {
	existing, err := s.GetMyChannel(ctx, m.ChannelID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && *existing == *m {
		return nil, nil
	}

	return upsertOp("my_channels", `
		INSERT INTO my_channels (channel_id, last_post_at, last_viewed_at, last_fetched_at,
			message_count, mention_count, is_unread, manually_unread, roles, viewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			last_post_at = excluded.last_post_at,
			last_viewed_at = excluded.last_viewed_at,
			last_fetched_at = excluded.last_fetched_at,
			message_count = excluded.message_count,
			mention_count = excluded.mention_count,
			is_unread = excluded.is_unread,
			manually_unread = excluded.manually_unread,
			roles = excluded.roles,
			viewed_at = excluded.viewed_at`,
		m.ChannelID, m.LastPostAt, m.LastViewedAt, m.LastFetchedAt, m.MessageCount,
		m.MentionCount, m.IsUnread, m.ManuallyUnread, m.Roles, m.ViewedAt), nil
}

// PrepareUpsertMyChannelSettings returns a pending upsert, or nil when the
// stored notify props already match.
func (s *SQLiteStore) PrepareUpsertMyChannelSettings(ctx context.Context, settings *model.MyChannelSettings) (*Op, error) {
	props, err := json.Marshal(settings.NotifyProps)
	if err != nil {
		return nil, fmt.Errorf("encoding notify props: %w", err)
	}

	var existing string
	err = s.db.QueryRowContext(ctx,
		`SELECT notify_props FROM my_channel_settings WHERE channel_id = ?`,
		settings.ChannelID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying channel settings: %w", err)
	}
	if err == nil && existing == string(props) {
		return nil, nil
	}

	return upsertOp("my_channel_settings", `
		INSERT INTO my_channel_settings (channel_id, notify_props)
		VALUES (?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET notify_props = excluded.notify_props`,
		settings.ChannelID, string(props)), nil
}

// PrepareUpsertChannelMembership returns a pending upsert for another
// user's membership row, or nil when unchanged.
func (s *SQLiteStore) PrepareUpsertChannelMembership(ctx context.Context, channelID, userID, roles string) (*Op, error) {
	var existingRoles string
	err := s.db.QueryRowContext(ctx,
		`SELECT roles FROM channel_memberships WHERE channel_id = ? AND user_id = ?`,
		channelID, userID).Scan(&existingRoles)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying channel membership: %w", err)
	}
	if err == nil && existingRoles == roles {
		return nil, nil
	}

	return upsertOp("channel_memberships", `
		INSERT INTO channel_memberships (channel_id, user_id, roles)
		VALUES (?, ?, ?)
		ON CONFLICT(channel_id, user_id) DO UPDATE SET roles = excluded.roles`,
		channelID, userID, roles), nil
}

// PrepareDeleteChannelMembership removes another user's membership row.
func (s *SQLiteStore) PrepareDeleteChannelMembership(channelID, userID string) *Op {
	return deleteOp("channel_memberships",
		`DELETE FROM channel_memberships WHERE channel_id = ? AND user_id = ?`,
		channelID, userID)
}

// PrepareDeleteMyChannel purges the current user's state for a channel
// while leaving the channel row cached (shared DM/GM rows stay visible).
func (s *SQLiteStore) PrepareDeleteMyChannel(channelID string) []*Op {
	return []*Op{
		deleteOp("my_channels", `DELETE FROM my_channels WHERE channel_id = ?`, channelID),
		deleteOp("my_channel_settings", `DELETE FROM my_channel_settings WHERE channel_id = ?`, channelID),
		deleteOp("drafts", `DELETE FROM drafts WHERE channel_id = ?`, channelID),
	}
}

// PrepareSetChannelDeleteAt marks a channel archived (or restored with 0).
func (s *SQLiteStore) PrepareSetChannelDeleteAt(channelID string, deleteAt int64) *Op {
	return upsertOp("channels", `UPDATE channels SET delete_at = ? WHERE id = ?`, deleteAt, channelID)
}

// PrepareDeleteChannel returns the destroy set for a channel that is gone:
// the channel itself, the user's state, memberships, drafts, every post in
// the channel with its dependents, and the channel's chunk window.
func (s *SQLiteStore) PrepareDeleteChannel(channelID string) []*Op {
	return []*Op{
		deleteOp("reactions", `DELETE FROM reactions WHERE post_id IN (SELECT id FROM posts WHERE channel_id = ?)`, channelID),
		deleteOp("files", `DELETE FROM files WHERE post_id IN (SELECT id FROM posts WHERE channel_id = ?)`, channelID),
		deleteOp("thread_participants", `DELETE FROM thread_participants WHERE thread_id IN (SELECT id FROM posts WHERE channel_id = ?)`, channelID),
		deleteOp("threads_in_team", `DELETE FROM threads_in_team WHERE thread_id IN (SELECT id FROM posts WHERE channel_id = ?)`, channelID),
		deleteOp("threads", `DELETE FROM threads WHERE id IN (SELECT id FROM posts WHERE channel_id = ?)`, channelID),
		deleteOp("posts_in_thread", `DELETE FROM posts_in_thread WHERE root_id IN (SELECT id FROM posts WHERE channel_id = ?)`, channelID),
		deleteOp("posts", `DELETE FROM posts WHERE channel_id = ?`, channelID),
		deleteOp("posts_in_channel", `DELETE FROM posts_in_channel WHERE channel_id = ?`, channelID),
		deleteOp("drafts", `DELETE FROM drafts WHERE channel_id = ?`, channelID),
		deleteOp("my_channels", `DELETE FROM my_channels WHERE channel_id = ?`, channelID),
		deleteOp("my_channel_settings", `DELETE FROM my_channel_settings WHERE channel_id = ?`, channelID),
		deleteOp("channel_memberships", `DELETE FROM channel_memberships WHERE channel_id = ?`, channelID),
		deleteOp("channels", `DELETE FROM channels WHERE id = ?`, channelID),
	}
}

// GetTeamChannelHistory returns the ordered channel-visit history for a team.
func (s *SQLiteStore) GetTeamChannelHistory(ctx context.Context, teamID string) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_ids FROM team_channel_history WHERE team_id = ?`, teamID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying channel history: %w", err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decoding channel history: %w", err)
	}
	return ids, nil
}

// SetTeamChannelHistory replaces the ordered channel-visit history for a team.
func (s *SQLiteStore) SetTeamChannelHistory(ctx context.Context, teamID string, channelIDs []string) error {
	raw, err := json.Marshal(channelIDs)
	if err != nil {
		return fmt.Errorf("encoding channel history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO team_channel_history (team_id, channel_ids) VALUES (?, ?)
		ON CONFLICT(team_id) DO UPDATE SET channel_ids = excluded.channel_ids`,
		teamID, string(raw))
	if err != nil {
		return fmt.Errorf("saving channel history: %w", err)
	}
	return nil
}
