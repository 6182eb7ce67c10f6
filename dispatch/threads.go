// ABOUTME: Handlers for thread update, read-state, and follow-state events

package dispatch

import (
	"context"
	"fmt"

	"github.com/2389/chatsync/ephemeral"
	"github.com/2389/chatsync/model"
)

// handleThreadUpdated applies a pushed thread snapshot, including its
// participants and embedded root post.
func (d *Dispatcher) handleThreadUpdated(ctx context.Context, ev *model.Event) error {
	var thread model.Thread
	if err := ev.UnmarshalData("thread", &thread); err != nil {
		return err
	}
	teamID := eventTeamID(ev)
	if teamID == "" {
		return fmt.Errorf("thread_updated event missing team id")
	}

	ops, _, err := d.engine.PlanThreads(ctx, teamID, []*model.Thread{&thread})
	if err != nil {
		return err
	}
	return d.commit(ctx, ops...)
}

// handleThreadReadChanged applies read-state pushed from another device.
// A missing thread id means the whole team was marked read.
func (d *Dispatcher) handleThreadReadChanged(ctx context.Context, ev *model.Event) error {
	threadID := ev.DataString("thread_id")
	timestamp := ev.DataInt64("timestamp")

	if threadID != "" {
		op := d.store.PrepareUpdateThreadViewed(threadID, timestamp,
			ev.DataInt64("unread_replies"), ev.DataInt64("unread_mentions"))
		return d.commit(ctx, op)
	}

	// Team-wide mark-read arrives without a thread id.
	teamID := eventTeamID(ev)
	if teamID == "" {
		return fmt.Errorf("thread_read_changed event missing ids")
	}
	currentUserID, err := d.store.GetCurrentUserID(ctx)
	if err != nil {
		return err
	}
	ops, err := d.engine.SyncTeamThreads(ctx, currentUserID, teamID)
	if err != nil {
		return err
	}
	return d.commit(ctx, ops...)
}

// handleThreadFollowChanged toggles the follow flag, skipping the echo
// of this session's own follow/unfollow call.
func (d *Dispatcher) handleThreadFollowChanged(ctx context.Context, ev *model.Event) error {
	threadID := ev.DataString("thread_id")
	if threadID == "" {
		return fmt.Errorf("thread_follow_changed event missing thread id")
	}
	if d.selfEcho(threadID, ephemeral.ActionFollowingThread) {
		return nil
	}

	state, _ := ev.Data["state"].(bool)
	return d.commit(ctx, d.store.PrepareSetThreadFollowing(threadID, state))
}
