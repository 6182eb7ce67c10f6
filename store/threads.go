// ABOUTME: Thread, participant, team-thread index and thread watermark access
// ABOUTME: The watermark bounds the last_reply_at range known complete per team

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/2389/chatsync/model"
)

// GetThread returns the cached thread or ErrNotFound.
func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*model.Thread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, reply_count, last_reply_at, last_viewed_at, unread_replies, unread_mentions,
			is_following, delete_at
		FROM threads WHERE id = ?`, id)

	var t model.Thread
	err := row.Scan(&t.ID, &t.ReplyCount, &t.LastReplyAt, &t.LastViewedAt, &t.UnreadReplies,
		&t.UnreadMentions, &t.IsFollowing, &t.DeleteAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}
	return &t, nil
}

// PrepareUpsertThread returns a pending upsert, or nil when the stored
// thread state already matches. Participants and posts embedded in the
// payload are prepared separately.
func (s *SQLiteStore) PrepareUpsertThread(ctx context.Context, t *model.Thread) (*Op, error) {
	existing, err := s.GetThread(ctx, t.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil &&
		existing.ReplyCount == t.ReplyCount &&
		existing.LastReplyAt == t.LastReplyAt &&
		existing.LastViewedAt == t.LastViewedAt &&
		existing.UnreadReplies == t.UnreadReplies &&
		existing.UnreadMentions == t.UnreadMentions &&
		existing.IsFollowing == t.IsFollowing &&
		existing.DeleteAt == t.DeleteAt {
		return nil, nil
	}

	return upsertOp("threads", `
		INSERT INTO threads (id, reply_count, last_reply_at, last_viewed_at, unread_replies,
			unread_mentions, is_following, delete_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			reply_count = excluded.reply_count,
			last_reply_at = excluded.last_reply_at,
			last_viewed_at = excluded.last_viewed_at,
			unread_replies = excluded.unread_replies,
			unread_mentions = excluded.unread_mentions,
			is_following = excluded.is_following,
			delete_at = excluded.delete_at`,
		t.ID, t.ReplyCount, t.LastReplyAt, t.LastViewedAt, t.UnreadReplies,
		t.UnreadMentions, t.IsFollowing, t.DeleteAt), nil
}

// PrepareUpdateThreadViewed updates only the thread's read-state fields,
// leaving the server-owned counters untouched.
func (s *SQLiteStore) PrepareUpdateThreadViewed(threadID string, lastViewedAt, unreadReplies, unreadMentions int64) *Op {
	return upsertOp("threads", `
		UPDATE threads SET last_viewed_at = ?, unread_replies = ?, unread_mentions = ?
		WHERE id = ?`,
		lastViewedAt, unreadReplies, unreadMentions, threadID)
}

// PrepareSetThreadFollowing flips the follow state of a thread.
func (s *SQLiteStore) PrepareSetThreadFollowing(threadID string, following bool) *Op {
	return upsertOp("threads", `UPDATE threads SET is_following = ? WHERE id = ?`, following, threadID)
}

// PrepareUpsertThreadParticipant returns a pending insert, or nil when the
// participant row already exists.
func (s *SQLiteStore) PrepareUpsertThreadParticipant(ctx context.Context, threadID, userID string) (*Op, error) {
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM thread_participants WHERE thread_id = ? AND user_id = ?`,
		threadID, userID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying thread participant: %w", err)
	}
	if err == nil {
		return nil, nil
	}

	return upsertOp("thread_participants", `
		INSERT INTO thread_participants (thread_id, user_id) VALUES (?, ?)
		ON CONFLICT(thread_id, user_id) DO NOTHING`,
		threadID, userID), nil
}

// PrepareUpsertThreadInTeam returns a pending insert of the team index row,
// or nil when it already exists.
func (s *SQLiteStore) PrepareUpsertThreadInTeam(ctx context.Context, teamID, threadID string) (*Op, error) {
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT thread_id FROM threads_in_team WHERE team_id = ? AND thread_id = ?`,
		teamID, threadID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying threads in team: %w", err)
	}
	if err == nil {
		return nil, nil
	}

	return upsertOp("threads_in_team", `
		INSERT INTO threads_in_team (team_id, thread_id) VALUES (?, ?)
		ON CONFLICT(team_id, thread_id) DO NOTHING`,
		teamID, threadID), nil
}

// GetTeamThreadsSync returns the team's thread watermark or ErrNotFound.
func (s *SQLiteStore) GetTeamThreadsSync(ctx context.Context, teamID string) (*model.TeamThreadsSync, error) {
	var sync model.TeamThreadsSync
	err := s.db.QueryRowContext(ctx,
		`SELECT team_id, earliest, latest FROM team_threads_sync WHERE team_id = ?`,
		teamID).Scan(&sync.TeamID, &sync.Earliest, &sync.Latest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying team threads sync: %w", err)
	}
	return &sync, nil
}

// PrepareSetTeamThreadsSync upserts the watermark. A zero Earliest or
// Latest leaves the stored value in place, so callers can advance one edge
// without knowing the other.
func (s *SQLiteStore) PrepareSetTeamThreadsSync(ctx context.Context, sync *model.TeamThreadsSync) (*Op, error) {
	existing, err := s.GetTeamThreadsSync(ctx, sync.TeamID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	next := *sync
	if existing != nil {
		if next.Earliest == 0 {
			next.Earliest = existing.Earliest
		}
		if next.Latest == 0 {
			next.Latest = existing.Latest
		}
		if *existing == next {
			return nil, nil
		}
	}

	return upsertOp("team_threads_sync", `
		INSERT INTO team_threads_sync (team_id, earliest, latest) VALUES (?, ?, ?)
		ON CONFLICT(team_id) DO UPDATE SET earliest = excluded.earliest, latest = excluded.latest`,
		next.TeamID, next.Earliest, next.Latest), nil
}
