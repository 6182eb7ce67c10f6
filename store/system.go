// ABOUTME: Single-row System key/value records: current ids, config, license, watermarks
// ABOUTME: Absence of a row means unset, never zero

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/2389/chatsync/model"
)

// GetSystemValue returns the raw value for a system identifier, or "" when
// the row is absent.
func (s *SQLiteStore) GetSystemValue(ctx context.Context, id string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system WHERE id = ?`, id).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying system value %q: %w", id, err)
	}
	return value, nil
}

// SetSystemValue writes a system row immediately, outside any batch. Used
// for durable watermarks that must survive even when no batch is in flight.
func (s *SQLiteStore) SetSystemValue(ctx context.Context, id, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system (id, value) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value`, id, value)
	if err != nil {
		return fmt.Errorf("saving system value %q: %w", id, err)
	}
	return nil
}

// PrepareSetSystemValue returns a pending system-row upsert, or nil when
// the stored value already matches.
func (s *SQLiteStore) PrepareSetSystemValue(ctx context.Context, id, value string) (*Op, error) {
	existing, err := s.GetSystemValue(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == value {
		return nil, nil
	}
	return upsertOp("system", `
		INSERT INTO system (id, value) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value`, id, value), nil
}

// PrepareForceSetSystemValue returns an unconditional system-row upsert,
// for backfills where the stored value cannot be trusted.
func (s *SQLiteStore) PrepareForceSetSystemValue(id, value string) *Op {
	return upsertOp("system", `
		INSERT INTO system (id, value) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value`, id, value)
}

// GetCurrentTeamID returns the remembered current team id, or "".
func (s *SQLiteStore) GetCurrentTeamID(ctx context.Context) (string, error) {
	return s.GetSystemValue(ctx, model.SystemCurrentTeamID)
}

// GetCurrentChannelID returns the remembered current channel id, or "".
func (s *SQLiteStore) GetCurrentChannelID(ctx context.Context) (string, error) {
	return s.GetSystemValue(ctx, model.SystemCurrentChannelID)
}

// GetCurrentUserID returns the logged-in user's id, or "".
func (s *SQLiteStore) GetCurrentUserID(ctx context.Context) (string, error) {
	return s.GetSystemValue(ctx, model.SystemCurrentUserID)
}

// GetWebSocketLastDisconnected returns the durable disconnect watermark,
// or 0 when the client has never disconnected (or the watermark was reset).
func (s *SQLiteStore) GetWebSocketLastDisconnected(ctx context.Context) (int64, error) {
	value, err := s.GetSystemValue(ctx, model.SystemWebSocketLastDisconnect)
	if err != nil || value == "" {
		return 0, err
	}
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing disconnect watermark: %w", err)
	}
	return ts, nil
}

// SetWebSocketLastDisconnected durably records the disconnect timestamp.
func (s *SQLiteStore) SetWebSocketLastDisconnected(ctx context.Context, ts int64) error {
	return s.SetSystemValue(ctx, model.SystemWebSocketLastDisconnect, strconv.FormatInt(ts, 10))
}

// ResetWebSocketLastDisconnected clears the disconnect watermark.
func (s *SQLiteStore) ResetWebSocketLastDisconnected(ctx context.Context) error {
	return s.SetSystemValue(ctx, model.SystemWebSocketLastDisconnect, "0")
}

// GetConfig returns the cached server configuration, or an empty map.
func (s *SQLiteStore) GetConfig(ctx context.Context) (model.Config, error) {
	return s.getStringMap(ctx, model.SystemConfig)
}

// GetLicense returns the cached server license, or an empty map.
func (s *SQLiteStore) GetLicense(ctx context.Context) (model.License, error) {
	return s.getStringMap(ctx, model.SystemLicense)
}

func (s *SQLiteStore) getStringMap(ctx context.Context, id string) (map[string]string, error) {
	value, err := s.GetSystemValue(ctx, id)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(value), &m); err != nil {
		return nil, fmt.Errorf("decoding system value %q: %w", id, err)
	}
	return m, nil
}

// PrepareSetConfig stores the server configuration snapshot.
func (s *SQLiteStore) PrepareSetConfig(ctx context.Context, cfg model.Config) (*Op, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return s.PrepareSetSystemValue(ctx, model.SystemConfig, string(raw))
}

// PrepareSetLicense stores the server license snapshot.
func (s *SQLiteStore) PrepareSetLicense(ctx context.Context, license model.License) (*Op, error) {
	raw, err := json.Marshal(license)
	if err != nil {
		return nil, fmt.Errorf("encoding license: %w", err)
	}
	return s.PrepareSetSystemValue(ctx, model.SystemLicense, string(raw))
}

// recentMentionsLimit bounds the recent-mentions list.
const recentMentionsLimit = 20

// GetRecentMentions returns the post ids of the latest mention hits,
// newest first.
func (s *SQLiteStore) GetRecentMentions(ctx context.Context) ([]string, error) {
	value, err := s.GetSystemValue(ctx, model.SystemRecentMentions)
	if err != nil || value == "" {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(value), &ids); err != nil {
		return nil, fmt.Errorf("decoding recent mentions: %w", err)
	}
	return ids, nil
}

// PrepareAddRecentMention prepends a post id to the recent-mentions
// list, dropping an earlier occurrence of the same id and trimming the
// tail past the limit. A post already at the front dedups to nil.
func (s *SQLiteStore) PrepareAddRecentMention(ctx context.Context, postID string) (*Op, error) {
	ids, err := s.GetRecentMentions(ctx)
	if err != nil {
		return nil, err
	}

	next := make([]string, 0, len(ids)+1)
	next = append(next, postID)
	for _, id := range ids {
		if id != postID {
			next = append(next, id)
		}
	}
	if len(next) > recentMentionsLimit {
		next = next[:recentMentionsLimit]
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encoding recent mentions: %w", err)
	}
	return s.PrepareSetSystemValue(ctx, model.SystemRecentMentions, string(raw))
}

// GetTeamHistory returns the ordered list of recently-visited team ids,
// most recent first.
func (s *SQLiteStore) GetTeamHistory(ctx context.Context) ([]string, error) {
	value, err := s.GetSystemValue(ctx, model.SystemTeamHistory)
	if err != nil || value == "" {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(value), &ids); err != nil {
		return nil, fmt.Errorf("decoding team history: %w", err)
	}
	return ids, nil
}

// SetTeamHistory replaces the team-visit history.
func (s *SQLiteStore) SetTeamHistory(ctx context.Context, teamIDs []string) error {
	raw, err := json.Marshal(teamIDs)
	if err != nil {
		return fmt.Errorf("encoding team history: %w", err)
	}
	return s.SetSystemValue(ctx, model.SystemTeamHistory, string(raw))
}
