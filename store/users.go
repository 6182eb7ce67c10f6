// ABOUTME: User, preference, role, group and reaction record access
// ABOUTME: All preparers equality-dedup so a no-op sync emits no change event

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/chatsync/model"
)

// GetUser returns the cached user or ErrNotFound.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, create_at, update_at, delete_at, username, first_name, last_name, nickname,
			email, locale, position, roles, status, is_bot, notify_props, timezone, last_picture_update
		FROM users WHERE id = ?`, id)

	var u model.User
	var notifyProps, timezone string
	err := row.Scan(&u.ID, &u.CreateAt, &u.UpdateAt, &u.DeleteAt, &u.Username, &u.FirstName,
		&u.LastName, &u.Nickname, &u.Email, &u.Locale, &u.Position, &u.Roles, &u.Status,
		&u.IsBot, &notifyProps, &timezone, &u.LastPictureUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if err := json.Unmarshal([]byte(notifyProps), &u.NotifyProps); err != nil {
		return nil, fmt.Errorf("decoding notify props: %w", err)
	}
	if err := json.Unmarshal([]byte(timezone), &u.Timezone); err != nil {
		return nil, fmt.Errorf("decoding timezone: %w", err)
	}
	return &u, nil
}

// QueryMissingUserIDs filters ids down to those with no local user row.
func (s *SQLiteStore) QueryMissingUserIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM users WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	present := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		present[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// PrepareUpsertUser returns a pending upsert, or nil when the profile is
// unchanged. update_at covers profile edits; status is compared separately
// because presence changes do not bump update_at.
func (s *SQLiteStore) PrepareUpsertUser(ctx context.Context, u *model.User) (*Op, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.UpdateAt == u.UpdateAt && existing.DeleteAt == u.DeleteAt &&
		(u.Status == "" || existing.Status == u.Status) {
		return nil, nil
	}

	notifyProps, err := json.Marshal(u.NotifyProps)
	if err != nil {
		return nil, fmt.Errorf("encoding notify props: %w", err)
	}
	timezone, err := json.Marshal(u.Timezone)
	if err != nil {
		return nil, fmt.Errorf("encoding timezone: %w", err)
	}

	status := u.Status
	if status == "" && existing != nil {
		status = existing.Status
	}

	return upsertOp("users", `
		INSERT INTO users (id, create_at, update_at, delete_at, username, first_name, last_name,
			nickname, email, locale, position, roles, status, is_bot, notify_props, timezone,
			last_picture_update)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			create_at = excluded.create_at,
			update_at = excluded.update_at,
			delete_at = excluded.delete_at,
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			nickname = excluded.nickname,
			email = excluded.email,
			locale = excluded.locale,
			position = excluded.position,
			roles = excluded.roles,
			status = excluded.status,
			is_bot = excluded.is_bot,
			notify_props = excluded.notify_props,
			timezone = excluded.timezone,
			last_picture_update = excluded.last_picture_update`,
		u.ID, u.CreateAt, u.UpdateAt, u.DeleteAt, u.Username, u.FirstName, u.LastName,
		u.Nickname, u.Email, u.Locale, u.Position, u.Roles, status, u.IsBot,
		string(notifyProps), string(timezone), u.LastPictureUpdate), nil
}

// PrepareSetUserStatus updates only a user's presence.
func (s *SQLiteStore) PrepareSetUserStatus(userID, status string) *Op {
	return upsertOp("users", `UPDATE users SET status = ? WHERE id = ?`, status, userID)
}

// GetPreference returns a single preference row or ErrNotFound.
func (s *SQLiteStore) GetPreference(ctx context.Context, userID, category, name string) (*model.Preference, error) {
	var p model.Preference
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, category, name, value FROM preferences
		WHERE user_id = ? AND category = ? AND name = ?`,
		userID, category, name).Scan(&p.UserID, &p.Category, &p.Name, &p.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying preference: %w", err)
	}
	return &p, nil
}

// QueryPreferencesByCategory returns all preferences in a category.
func (s *SQLiteStore) QueryPreferencesByCategory(ctx context.Context, userID, category string) ([]model.Preference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, category, name, value FROM preferences
		WHERE user_id = ? AND category = ?`, userID, category)
	if err != nil {
		return nil, fmt.Errorf("querying preferences: %w", err)
	}
	defer rows.Close()

	var prefs []model.Preference
	for rows.Next() {
		var p model.Preference
		if err := rows.Scan(&p.UserID, &p.Category, &p.Name, &p.Value); err != nil {
			return nil, fmt.Errorf("scanning preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// PrepareUpsertPreference returns a pending upsert, or nil when unchanged.
func (s *SQLiteStore) PrepareUpsertPreference(ctx context.Context, p *model.Preference) (*Op, error) {
	existing, err := s.GetPreference(ctx, p.UserID, p.Category, p.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && *existing == *p {
		return nil, nil
	}

	return upsertOp("preferences", `
		INSERT INTO preferences (user_id, category, name, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, category, name) DO UPDATE SET value = excluded.value`,
		p.UserID, p.Category, p.Name, p.Value), nil
}

// PrepareDeletePreference removes a preference row.
func (s *SQLiteStore) PrepareDeletePreference(p *model.Preference) *Op {
	return deleteOp("preferences",
		`DELETE FROM preferences WHERE user_id = ? AND category = ? AND name = ?`,
		p.UserID, p.Category, p.Name)
}

// QueryExistingRoleNames returns which of the given role names are cached.
func (s *SQLiteStore) QueryExistingRoleNames(ctx context.Context, names []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(names) == 0 {
		return existing, nil
	}

	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT name FROM roles WHERE name IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("querying roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning role name: %w", err)
		}
		existing[name] = struct{}{}
	}
	return existing, rows.Err()
}

// PrepareUpsertRole returns a pending upsert, or nil when the cached role's
// permissions already match.
func (s *SQLiteStore) PrepareUpsertRole(ctx context.Context, r *model.Role) (*Op, error) {
	permissions, err := json.Marshal(r.Permissions)
	if err != nil {
		return nil, fmt.Errorf("encoding permissions: %w", err)
	}

	var existing string
	err = s.db.QueryRowContext(ctx, `SELECT permissions FROM roles WHERE id = ?`, r.ID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying role: %w", err)
	}
	if err == nil && existing == string(permissions) {
		return nil, nil
	}

	return upsertOp("roles", `
		INSERT INTO roles (id, name, permissions) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, permissions = excluded.permissions`,
		r.ID, r.Name, string(permissions)), nil
}

// PrepareUpsertGroup returns a pending upsert, or nil when unchanged.
func (s *SQLiteStore) PrepareUpsertGroup(ctx context.Context, g *model.Group) (*Op, error) {
	var existingUpdateAt, existingDeleteAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT update_at, delete_at FROM user_groups WHERE id = ?`, g.ID).Scan(&existingUpdateAt, &existingDeleteAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying group: %w", err)
	}
	if err == nil && existingUpdateAt == g.UpdateAt && existingDeleteAt == g.DeleteAt {
		return nil, nil
	}

	return upsertOp("user_groups", `
		INSERT INTO user_groups (id, name, display_name, source, remote_id, member_count,
			create_at, update_at, delete_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			display_name = excluded.display_name,
			source = excluded.source,
			remote_id = excluded.remote_id,
			member_count = excluded.member_count,
			create_at = excluded.create_at,
			update_at = excluded.update_at,
			delete_at = excluded.delete_at`,
		g.ID, g.Name, g.DisplayName, g.Source, g.RemoteID, g.MemberCount,
		g.CreateAt, g.UpdateAt, g.DeleteAt), nil
}

// PrepareUpsertGroupMembership inserts a group-member link.
func (s *SQLiteStore) PrepareUpsertGroupMembership(m *model.GroupMembership) *Op {
	return upsertOp("group_memberships", `
		INSERT INTO group_memberships (group_id, user_id) VALUES (?, ?)
		ON CONFLICT(group_id, user_id) DO NOTHING`,
		m.GroupID, m.UserID)
}

// PrepareDeleteGroupMembership removes a group-member link.
func (s *SQLiteStore) PrepareDeleteGroupMembership(m *model.GroupMembership) *Op {
	return deleteOp("group_memberships",
		`DELETE FROM group_memberships WHERE group_id = ? AND user_id = ?`,
		m.GroupID, m.UserID)
}

// PrepareUpsertReaction returns a pending insert, or nil when the reaction
// already exists (reactions are keyed by user, post and emoji and never
// change once recorded).
func (s *SQLiteStore) PrepareUpsertReaction(ctx context.Context, r *model.Reaction) (*Op, error) {
	var existing int64
	err := s.db.QueryRowContext(ctx, `
		SELECT create_at FROM reactions
		WHERE user_id = ? AND post_id = ? AND emoji_name = ?`,
		r.UserID, r.PostID, r.EmojiName).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying reaction: %w", err)
	}
	if err == nil {
		return nil, nil
	}

	return upsertOp("reactions", `
		INSERT INTO reactions (user_id, post_id, emoji_name, create_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, post_id, emoji_name) DO NOTHING`,
		r.UserID, r.PostID, r.EmojiName, r.CreateAt), nil
}

// PrepareDeleteReaction removes a reaction row.
func (s *SQLiteStore) PrepareDeleteReaction(r *model.Reaction) *Op {
	return deleteOp("reactions",
		`DELETE FROM reactions WHERE user_id = ? AND post_id = ? AND emoji_name = ?`,
		r.UserID, r.PostID, r.EmojiName)
}
