// ABOUTME: Team and team-membership record access with equality-dedup preparers
// ABOUTME: Team deletion cascades to the team's channels and thread indexes

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/2389/chatsync/model"
)

// GetTeam returns the cached team or ErrNotFound.
func (s *SQLiteStore) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, create_at, update_at, delete_at, display_name, name, description, type, allowed_domains
		FROM teams WHERE id = ?`, id)

	var t model.Team
	err := row.Scan(&t.ID, &t.CreateAt, &t.UpdateAt, &t.DeleteAt, &t.DisplayName, &t.Name, &t.Description, &t.Type, &t.AllowedDomains)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying team: %w", err)
	}
	return &t, nil
}

// QueryMyTeamIDs returns the ids of teams with a non-deleted local
// membership row, in display-name order.
func (s *SQLiteStore) QueryMyTeamIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id FROM teams t
		JOIN team_memberships m ON m.team_id = t.id
		WHERE m.delete_at = 0
		ORDER BY t.display_name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("querying my teams: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning team id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetTeamMembership returns the local membership row for a team.
func (s *SQLiteStore) GetTeamMembership(ctx context.Context, teamID, userID string) (*model.TeamMembership, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT team_id, user_id, roles, delete_at, scheme_user, scheme_admin
		FROM team_memberships WHERE team_id = ? AND user_id = ?`, teamID, userID)

	var m model.TeamMembership
	err := row.Scan(&m.TeamID, &m.UserID, &m.Roles, &m.DeleteAt, &m.SchemeUser, &m.SchemeAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying team membership: %w", err)
	}
	return &m, nil
}

// PrepareUpsertTeam returns a pending upsert, or nil when the local row
// already matches the proposed values.
func (s *SQLiteStore) PrepareUpsertTeam(ctx context.Context, t *model.Team) (*Op, error) {
	existing, err := s.GetTeam(ctx, t.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && *existing == *t {
		return nil, nil
	}

	return upsertOp("teams", `
		INSERT INTO teams (id, create_at, update_at, delete_at, display_name, name, description, type, allowed_domains)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			create_at = excluded.create_at,
			update_at = excluded.update_at,
			delete_at = excluded.delete_at,
			display_name = excluded.display_name,
			name = excluded.name,
			description = excluded.description,
			type = excluded.type,
			allowed_domains = excluded.allowed_domains`,
		t.ID, t.CreateAt, t.UpdateAt, t.DeleteAt, t.DisplayName, t.Name, t.Description, t.Type, t.AllowedDomains), nil
}

// PrepareUpsertTeamMembership returns a pending upsert, or nil when the row
// is unchanged.
func (s *SQLiteStore) PrepareUpsertTeamMembership(ctx context.Context, m *model.TeamMembership) (*Op, error) {
	existing, err := s.GetTeamMembership(ctx, m.TeamID, m.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && *existing == *m {
		return nil, nil
	}

	return upsertOp("team_memberships", `
		INSERT INTO team_memberships (team_id, user_id, roles, delete_at, scheme_user, scheme_admin)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(team_id, user_id) DO UPDATE SET
			roles = excluded.roles,
			delete_at = excluded.delete_at,
			scheme_user = excluded.scheme_user,
			scheme_admin = excluded.scheme_admin`,
		m.TeamID, m.UserID, m.Roles, m.DeleteAt, m.SchemeUser, m.SchemeAdmin), nil
}

/// PrepareDeleteTeam returns the destroy set for a team the user has left:
// the team, its memberships, every channel belonging to it (with their
// member state and posts), and the team's thread and history indexes.
func (s *SQLiteStore) PrepareDeleteTeam(ctx context.Context, teamID string) ([]*Op, error) {
	channelIDs, err := s.QueryChannelIDsForTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	var ops []*Op
	for _, channelID := range channelIDs {
		ops = append(ops, s.PrepareDeleteChannel(channelID)...)
	}

	ops = append(ops,
		deleteOp("threads_in_team", `DELETE FROM threads_in_team WHERE team_id = ?`, teamID),
		deleteOp("team_threads_sync", `DELETE FROM team_threads_sync WHERE team_id = ?`, teamID),
		deleteOp("team_search_history", `DELETE FROM team_search_history WHERE team_id = ?`, teamID),
		deleteOp("team_channel_history", `DELETE FROM team_channel_history WHERE team_id = ?`, teamID),
		deleteOp("team_memberships", `DELETE FROM team_memberships WHERE team_id = ?`, teamID),
		deleteOp("teams", `DELETE FROM teams WHERE id = ?`, teamID),
	)
	return ops, nil
}

// AddTeamSearchTerm records a search term for a team, keeping the most
// recent occurrence and pruning the history beyond the newest 50 terms.
func (s *SQLiteStore) AddTeamSearchTerm(ctx context.Context, teamID, term string, createdAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_search_history (team_id, term, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(team_id, term) DO UPDATE SET created_at = excluded.created_at`,
		teamID, term, createdAt)
	if err != nil {
		return fmt.Errorf("inserting search term: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM team_search_history
		WHERE team_id = ? AND term NOT IN (
			SELECT term FROM team_search_history
			WHERE team_id = ?
			ORDER BY created_at DESC LIMIT 50
		)`, teamID, teamID)
	if err != nil {
		return fmt.Errorf("pruning search history: %w", err)
	}
	return nil
}

// QueryTeamSearchHistory returns a team's saved search terms, newest first.
func (s *SQLiteStore) QueryTeamSearchHistory(ctx context.Context, teamID string) ([]model.TeamSearchHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT team_id, term, created_at FROM team_search_history
		WHERE team_id = ? ORDER BY created_at DESC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("querying search history: %w", err)
	}
	defer rows.Close()

	var history []model.TeamSearchHistory
	for rows.Next() {
		var h model.TeamSearchHistory
		if err := rows.Scan(&h.TeamID, &h.Term, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning search history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
