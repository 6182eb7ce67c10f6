// ABOUTME: Handlers for post lifecycle events: posted, edited, deleted, unread
// ABOUTME: New posts extend the channel window and bump unread counters

package dispatch

import (
	"context"
	"fmt"

	"github.com/2389/chatsync/model"
	"github.com/2389/chatsync/store"
)

// handlePosted applies a new post: upsert the post, extend the channel
// window to include it, bump the channel's unread state, and fetch the
// author if unknown locally.
func (d *Dispatcher) handlePosted(ctx context.Context, ev *model.Event) error {
	var post model.Post
	if err := ev.UnmarshalData("post", &post); err != nil {
		return err
	}

	var ops []*store.Op
	postOp, err := d.store.PrepareUpsertPost(ctx, &post)
	if err != nil {
		return fmt.Errorf("preparing post %s: %w", post.ID, err)
	}
	ops = append(ops, postOp)

	// A freshly delivered post is by definition the channel's newest;
	// extending the window keeps "fully synced through latest" true.
	windowOp, err := d.store.PrepareMergeChannelWindow(ctx, post.ChannelID, post.CreateAt, post.CreateAt)
	if err != nil {
		return fmt.Errorf("extending window for %s: %w", post.ChannelID, err)
	}
	ops = append(ops, windowOp)

	unreadOps, err := d.bumpChannelUnread(ctx, &post, ev)
	if err != nil {
		return err
	}
	ops = append(ops, unreadOps...)

	userOps, err := d.engine.FetchMissingUsers(ctx, []string{post.UserID})
	if err != nil {
		d.logger.Debug("fetching post author", "post", post.ID, "error", err)
	} else {
		ops = append(ops, userOps...)
	}

	return d.commit(ctx, ops...)
}

// bumpChannelUnread advances last-post and unread counters on the
// channel the post landed in. Own posts never count as unread.
func (d *Dispatcher) bumpChannelUnread(ctx context.Context, post *model.Post, ev *model.Event) ([]*store.Op, error) {
	my, err := d.store.GetMyChannel(ctx, post.ChannelID)
	switch {
	case err == store.ErrNotFound:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("loading my-channel %s: %w", post.ChannelID, err)
	}

	currentUserID, err := d.store.GetCurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	var ops []*store.Op
	updated := *my
	if post.CreateAt > updated.LastPostAt {
		updated.LastPostAt = post.CreateAt
	}
	if post.UserID != currentUserID {
		updated.MessageCount++
		updated.IsUnread = true
		if mentionsUser(ev) {
			updated.MentionCount++
			mentionOp, err := d.store.PrepareAddRecentMention(ctx, post.ID)
			if err != nil {
				return nil, fmt.Errorf("recording mention %s: %w", post.ID, err)
			}
			ops = append(ops, mentionOp)
		}
	}

	op, err := d.store.PrepareUpsertMyChannel(ctx, &updated)
	if err != nil {
		return nil, fmt.Errorf("preparing my-channel %s: %w", post.ChannelID, err)
	}
	return append(ops, op), nil
}

// mentionsUser reports whether the posted event flagged the current user
// in its mentions payload.
func mentionsUser(ev *model.Event) bool {
	return ev.DataString("mentions") != ""
}

// handlePostEdited replaces the post body. The equality dedup on
// update_at makes duplicate delivery a no-op.
func (d *Dispatcher) handlePostEdited(ctx context.Context, ev *model.Event) error {
	var post model.Post
	if err := ev.UnmarshalData("post", &post); err != nil {
		return err
	}
	op, err := d.store.PrepareUpsertPost(ctx, &post)
	if err != nil {
		return fmt.Errorf("preparing edited post %s: %w", post.ID, err)
	}
	return d.commit(ctx, op)
}

// handlePostDeleted cascades through the post's dependent rows. A post
// already gone locally is a no-op.
func (d *Dispatcher) handlePostDeleted(ctx context.Context, ev *model.Event) error {
	var post model.Post
	if err := ev.UnmarshalData("post", &post); err != nil {
		return err
	}
	ops, err := d.engine.PlanDeletePost(ctx, post.ID)
	if err != nil {
		return err
	}
	return d.commit(ctx, ops...)
}

// handlePostUnread applies a server-side "mark unread from here": the
// server recomputes counts and pushes them.
func (d *Dispatcher) handlePostUnread(ctx context.Context, ev *model.Event) error {
	channelID := eventChannelID(ev)
	if channelID == "" {
		return fmt.Errorf("post_unread event missing channel id")
	}

	my, err := d.store.GetMyChannel(ctx, channelID)
	switch {
	case err == store.ErrNotFound:
		return nil
	case err != nil:
		return err
	}

	updated := *my
	updated.MessageCount = ev.DataInt64("msg_count")
	updated.MentionCount = ev.DataInt64("mention_count")
	updated.IsUnread = updated.MessageCount > 0
	updated.ManuallyUnread = true
	if viewedAt := ev.DataInt64("last_viewed_at"); viewedAt > 0 {
		updated.LastViewedAt = viewedAt
	}

	op, err := d.store.PrepareUpsertMyChannel(ctx, &updated)
	if err != nil {
		return err
	}
	return d.commit(ctx, op)
}
