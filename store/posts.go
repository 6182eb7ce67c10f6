// ABOUTME: Post records, chunk-window index access, and the post delete cascade
// ABOUTME: Windows track [earliest, latest] create_at ranges known fully synced

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/chatsync/model"
)

// GetPost returns the cached post or ErrNotFound.
func (s *SQLiteStore) GetPost(ctx context.Context, id string) (*model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, create_at, update_at, edit_at, delete_at, user_id, channel_id, root_id,
			original_id, message, type, pending_post_id, reply_count, is_pinned, last_reply_at, metadata
		FROM posts WHERE id = ?`, id)
	return scanPost(row)
}

// GetLastPostInThread returns the newest reply in a thread, or ErrNotFound
// when the thread has no local replies.
func (s *SQLiteStore) GetLastPostInThread(ctx context.Context, rootID string) (*model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, create_at, update_at, edit_at, delete_at, user_id, channel_id, root_id,
			original_id, message, type, pending_post_id, reply_count, is_pinned, last_reply_at, metadata
		FROM posts WHERE root_id = ? ORDER BY create_at DESC LIMIT 1`, rootID)
	return scanPost(row)
}

func scanPost(row *sql.Row) (*model.Post, error) {
	var p model.Post
	var metadata string
	err := row.Scan(&p.ID, &p.CreateAt, &p.UpdateAt, &p.EditAt, &p.DeleteAt, &p.UserID, &p.ChannelID,
		&p.RootID, &p.OriginalID, &p.Message, &p.Type, &p.PendingPostID, &p.ReplyCount, &p.IsPinned,
		&p.LastReplyAt, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying post: %w", err)
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &p.Metadata); err != nil {
			return nil, fmt.Errorf("decoding post metadata: %w", err)
		}
	}
	return &p, nil
}

// PrepareUpsertPost returns a pending upsert, or nil when the local copy is
// current. Posts are immutable except for their edit and delete timestamps,
// so matching update_at and delete_at means nothing changed.
func (s *SQLiteStore) PrepareUpsertPost(ctx context.Context, p *model.Post) (*Op, error) {
	existing, err := s.GetPost(ctx, p.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.UpdateAt == p.UpdateAt && existing.DeleteAt == p.DeleteAt {
		return nil, nil
	}

	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding post metadata: %w", err)
	}

	return upsertOp("posts", `
		INSERT INTO posts (id, create_at, update_at, edit_at, delete_at, user_id, channel_id,
			root_id, original_id, message, type, pending_post_id, reply_count, is_pinned,
			last_reply_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			create_at = excluded.create_at,
			update_at = excluded.update_at,
			edit_at = excluded.edit_at,
			delete_at = excluded.delete_at,
			user_id = excluded.user_id,
			channel_id = excluded.channel_id,
			root_id = excluded.root_id,
			original_id = excluded.original_id,
			message = excluded.message,
			type = excluded.type,
			pending_post_id = excluded.pending_post_id,
			reply_count = excluded.reply_count,
			is_pinned = excluded.is_pinned,
			last_reply_at = excluded.last_reply_at,
			metadata = excluded.metadata`,
		p.ID, p.CreateAt, p.UpdateAt, p.EditAt, p.DeleteAt, p.UserID, p.ChannelID,
		p.RootID, p.OriginalID, p.Message, p.Type, p.PendingPostID, p.ReplyCount, p.IsPinned,
		p.LastReplyAt, string(metadata)), nil
}

// GetChannelWindow returns the channel's synced post window or ErrNotFound.
func (s *SQLiteStore) GetChannelWindow(ctx context.Context, channelID string) (*model.PostWindow, error) {
	return s.getWindow(ctx, `SELECT channel_id, earliest, latest FROM posts_in_channel WHERE channel_id = ?`, channelID)
}

// GetThreadWindow returns the thread's synced reply window or ErrNotFound.
func (s *SQLiteStore) GetThreadWindow(ctx context.Context, rootID string) (*model.PostWindow, error) {
	return s.getWindow(ctx, `SELECT root_id, earliest, latest FROM posts_in_thread WHERE root_id = ?`, rootID)
}

func (s *SQLiteStore) getWindow(ctx context.Context, query, ownerID string) (*model.PostWindow, error) {
	var w model.PostWindow
	err := s.db.QueryRowContext(ctx, query, ownerID).Scan(&w.OwnerID, &w.Earliest, &w.Latest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying post window: %w", err)
	}
	return &w, nil
}

// PrepareMergeChannelWindow extends a channel's window to cover
// [earliest, latest]. Returns nil when the window already covers the range.
func (s *SQLiteStore) PrepareMergeChannelWindow(ctx context.Context, channelID string, earliest, latest int64) (*Op, error) {
	return s.prepareMergeWindow(ctx, "posts_in_channel", "channel_id", channelID, earliest, latest)
}

// PrepareMergeThreadWindow extends a thread's window to cover
// [earliest, latest]. Returns nil when the window already covers the range.
func (s *SQLiteStore) PrepareMergeThreadWindow(ctx context.Context, rootID string, earliest, latest int64) (*Op, error) {
	return s.prepareMergeWindow(ctx, "posts_in_thread", "root_id", rootID, earliest, latest)
}

func (s *SQLiteStore) prepareMergeWindow(ctx context.Context, table, keyColumn, ownerID string, earliest, latest int64) (*Op, error) {
	var w model.PostWindow
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s, earliest, latest FROM %s WHERE %s = ?`, keyColumn, table, keyColumn),
		ownerID).Scan(&w.OwnerID, &w.Earliest, &w.Latest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying post window: %w", err)
	}

	merged := model.PostWindow{OwnerID: ownerID, Earliest: earliest, Latest: latest}
	if err == nil {
		if w.Covers(earliest, latest) {
			return nil, nil
		}
		merged = w.Merge(earliest, latest)
	}

	return upsertOp(table, fmt.Sprintf(`
		INSERT INTO %s (%s, earliest, latest) VALUES (?, ?, ?)
		ON CONFLICT(%s) DO UPDATE SET earliest = excluded.earliest, latest = excluded.latest`,
		table, keyColumn, keyColumn),
		ownerID, merged.Earliest, merged.Latest), nil
}

// PrepareDeletePost returns the destroy set for a post: its drafts, files,
// reactions, and — when the post is a thread root — the thread row, its
// participants, its team index rows and its reply window, then the post
// itself. Each dependent row becomes its own destroy op so a partial
// cascade is impossible once the batch commits.
func (s *SQLiteStore) PrepareDeletePost(ctx context.Context, post *model.Post) ([]*Op, error) {
	var ops []*Op

	draftRows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, root_id FROM drafts WHERE root_id = ?`, post.ID)
	if err != nil {
		return nil, fmt.Errorf("querying post drafts: %w", err)
	}
	defer draftRows.Close()
	for draftRows.Next() {
		var channelID, rootID string
		if err := draftRows.Scan(&channelID, &rootID); err != nil {
			return nil, fmt.Errorf("scanning draft: %w", err)
		}
		ops = append(ops, deleteOp("drafts",
			`DELETE FROM drafts WHERE channel_id = ? AND root_id = ?`, channelID, rootID))
	}
	if err := draftRows.Err(); err != nil {
		return nil, err
	}

	fileRows, err := s.db.QueryContext(ctx, `SELECT id FROM files WHERE post_id = ?`, post.ID)
	if err != nil {
		return nil, fmt.Errorf("querying post files: %w", err)
	}
	defer fileRows.Close()
	for fileRows.Next() {
		var id string
		if err := fileRows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		ops = append(ops, deleteOp("files", `DELETE FROM files WHERE id = ?`, id))
	}
	if err := fileRows.Err(); err != nil {
		return nil, err
	}

	reactionRows, err := s.db.QueryContext(ctx,
		`SELECT user_id, emoji_name FROM reactions WHERE post_id = ?`, post.ID)
	if err != nil {
		return nil, fmt.Errorf("querying post reactions: %w", err)
	}
	defer reactionRows.Close()
	for reactionRows.Next() {
		var userID, emoji string
		if err := reactionRows.Scan(&userID, &emoji); err != nil {
			return nil, fmt.Errorf("scanning reaction: %w", err)
		}
		ops = append(ops, deleteOp("reactions",
			`DELETE FROM reactions WHERE user_id = ? AND post_id = ? AND emoji_name = ?`,
			userID, post.ID, emoji))
	}
	if err := reactionRows.Err(); err != nil {
		return nil, err
	}

	if post.RootID == "" {
		threadOps, err := s.prepareDeleteThreadRows(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		ops = append(ops, threadOps...)
	}

	ops = append(ops, deleteOp("posts", `DELETE FROM posts WHERE id = ?`, post.ID))
	return ops, nil
}

func (s *SQLiteStore) prepareDeleteThreadRows(ctx context.Context, rootID string) ([]*Op, error) {
	var ops []*Op

	var threadID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM threads WHERE id = ?`, rootID).Scan(&threadID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying thread: %w", err)
	}
	if err == nil {
		ops = append(ops, deleteOp("threads", `DELETE FROM threads WHERE id = ?`, rootID))
	}

	participantRows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM thread_participants WHERE thread_id = ?`, rootID)
	if err != nil {
		return nil, fmt.Errorf("querying thread participants: %w", err)
	}
	defer participantRows.Close()
	for participantRows.Next() {
		var userID string
		if err := participantRows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		ops = append(ops, deleteOp("thread_participants",
			`DELETE FROM thread_participants WHERE thread_id = ? AND user_id = ?`, rootID, userID))
	}
	if err := participantRows.Err(); err != nil {
		return nil, err
	}

	teamRows, err := s.db.QueryContext(ctx,
		`SELECT team_id FROM threads_in_team WHERE thread_id = ?`, rootID)
	if err != nil {
		return nil, fmt.Errorf("querying threads in team: %w", err)
	}
	defer teamRows.Close()
	for teamRows.Next() {
		var teamID string
		if err := teamRows.Scan(&teamID); err != nil {
			return nil, fmt.Errorf("scanning threads in team: %w", err)
		}
		ops = append(ops, deleteOp("threads_in_team",
			`DELETE FROM threads_in_team WHERE team_id = ? AND thread_id = ?`, teamID, rootID))
	}
	if err := teamRows.Err(); err != nil {
		return nil, err
	}

	var windowID string
	err = s.db.QueryRowContext(ctx,
		`SELECT root_id FROM posts_in_thread WHERE root_id = ?`, rootID).Scan(&windowID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying thread window: %w", err)
	}
	if err == nil {
		ops = append(ops, deleteOp("posts_in_thread",
			`DELETE FROM posts_in_thread WHERE root_id = ?`, rootID))
	}

	return ops, nil
}

// PrepareUpsertDraft returns a pending upsert for a draft row, or nil when
// the stored draft already matches.
func (s *SQLiteStore) PrepareUpsertDraft(ctx context.Context, d *model.Draft) (*Op, error) {
	var existing model.Draft
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id, root_id, message, update_at FROM drafts WHERE channel_id = ? AND root_id = ?`,
		d.ChannelID, d.RootID).Scan(&existing.ChannelID, &existing.RootID, &existing.Message, &existing.UpdateAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying draft: %w", err)
	}
	if err == nil && existing == *d {
		return nil, nil
	}

	return upsertOp("drafts", `
		INSERT INTO drafts (channel_id, root_id, message, update_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(channel_id, root_id) DO UPDATE SET
			message = excluded.message,
			update_at = excluded.update_at`,
		d.ChannelID, d.RootID, d.Message, d.UpdateAt), nil
}

// PrepareUpsertFileInfo returns a pending upsert for a file row.
func (s *SQLiteStore) PrepareUpsertFileInfo(f *model.FileInfo) *Op {
	return upsertOp("files", `
		INSERT INTO files (id, post_id, name, extension, mime_type, size, width, height, create_at, delete_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			post_id = excluded.post_id,
			name = excluded.name,
			extension = excluded.extension,
			mime_type = excluded.mime_type,
			size = excluded.size,
			width = excluded.width,
			height = excluded.height,
			create_at = excluded.create_at,
			delete_at = excluded.delete_at`,
		f.ID, f.PostID, f.Name, f.Extension, f.MimeType, f.Size, f.Width, f.Height, f.CreateAt, f.DeleteAt)
}
