// ABOUTME: Handlers for channel lifecycle and membership events
// ABOUTME: Intent guard suppresses echoes of the session's own channel actions

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/chatsync/ephemeral"
	"github.com/2389/chatsync/model"
	"github.com/2389/chatsync/store"
)

// handleChannelCreated materializes a channel the user just gained. When
// the session itself created it, the REST response already wrote the
// rows and the echo is skipped.
func (d *Dispatcher) handleChannelCreated(ctx context.Context, ev *model.Event) error {
	channelID := eventChannelID(ev)
	if channelID == "" {
		return fmt.Errorf("channel_created event missing channel id")
	}
	if d.selfEcho(channelID, ephemeral.ActionAddingChannel) {
		return nil
	}
	return d.fetchAndStoreChannel(ctx, channelID)
}

// fetchAndStoreChannel pulls the channel and the user's member state and
// plans both.
func (d *Dispatcher) fetchAndStoreChannel(ctx context.Context, channelID string) error {
	channel, err := d.client.GetChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("fetching channel %s: %w", channelID, err)
	}
	member, err := d.client.GetMyChannelMember(ctx, channelID)
	if err != nil {
		return fmt.Errorf("fetching channel member %s: %w", channelID, err)
	}

	ops, _, err := d.engine.PlanChannels(ctx, channel.TeamID,
		[]model.Channel{*channel}, []model.ChannelMembership{*member})
	if err != nil {
		return err
	}
	return d.commit(ctx, ops...)
}

// handleChannelUpdated applies an edited channel (rename, header change,
// type conversion). Equality dedup on update_at absorbs duplicates.
func (d *Dispatcher) handleChannelUpdated(ctx context.Context, ev *model.Event) error {
	var channel model.Channel
	if err := ev.UnmarshalData("channel", &channel); err != nil {
		return err
	}
	op, err := d.store.PrepareUpsertChannel(ctx, &channel)
	if err != nil {
		return err
	}
	return d.commit(ctx, op)
}

// handleChannelDeleted marks the channel archived. When the archived
// channel is the one currently open, the kick callback moves the UI off
// it. Guests lose archived channels entirely; regular members keep the
// read-only row until a reconcile purges it.
func (d *Dispatcher) handleChannelDeleted(ctx context.Context, ev *model.Event) error {
	channelID := eventChannelID(ev)
	if channelID == "" {
		return fmt.Errorf("channel_deleted event missing channel id")
	}
	if d.selfEcho(channelID, ephemeral.ActionArchivingChannel) {
		return nil
	}

	deleteAt := ev.DataInt64("delete_at")
	if deleteAt == 0 {
		deleteAt = time.Now().UnixMilli()
	}

	ops := []*store.Op{d.store.PrepareSetChannelDeleteAt(channelID, deleteAt)}

	guest, err := d.currentUserIsGuest(ctx)
	if err != nil {
		return err
	}
	if guest {
		ops = append(ops, d.store.PrepareDeleteMyChannel(channelID)...)
	}

	if err := d.commit(ctx, ops...); err != nil {
		return err
	}
	return d.kickIfCurrent(ctx, channelID)
}

// handleChannelUnarchived restores an archived channel.
func (d *Dispatcher) handleChannelUnarchived(ctx context.Context, ev *model.Event) error {
	channelID := eventChannelID(ev)
	if channelID == "" {
		return fmt.Errorf("channel_restored event missing channel id")
	}
	return d.commit(ctx, d.store.PrepareSetChannelDeleteAt(channelID, 0))
}

// handleChannelViewed clears unread state after the user viewed the
// channel on another device.
func (d *Dispatcher) handleChannelViewed(ctx context.Context, ev *model.Event) error {
	channelID := eventChannelID(ev)
	if channelID == "" {
		return fmt.Errorf("channel_viewed event missing channel id")
	}

	my, err := d.store.GetMyChannel(ctx, channelID)
	switch {
	case err == store.ErrNotFound:
		return nil
	case err != nil:
		return err
	}

	updated := *my
	updated.IsUnread = false
	updated.ManuallyUnread = false
	updated.MessageCount = 0
	updated.MentionCount = 0
	updated.LastViewedAt = time.Now().UnixMilli()
	updated.ViewedAt = updated.LastViewedAt

	op, err := d.store.PrepareUpsertMyChannel(ctx, &updated)
	if err != nil {
		return err
	}
	return d.commit(ctx, op)
}

// handleChannelMemberUpdated applies membership changes (roles, notify
// props) pushed for the current user.
func (d *Dispatcher) handleChannelMemberUpdated(ctx context.Context, ev *model.Event) error {
	var member model.ChannelMembership
	if err := ev.UnmarshalData("channelMember", &member); err != nil {
		return err
	}

	var ops []*store.Op
	memberOp, err := d.store.PrepareUpsertChannelMembership(ctx, member.ChannelID, member.UserID, member.Roles)
	if err != nil {
		return err
	}
	ops = append(ops, memberOp)

	if len(member.NotifyProps) > 0 {
		settingsOp, err := d.store.PrepareUpsertMyChannelSettings(ctx, &model.MyChannelSettings{
			ChannelID:   member.ChannelID,
			NotifyProps: member.NotifyProps,
		})
		if err != nil {
			return err
		}
		ops = append(ops, settingsOp)
	}

	roleOps, err := d.engine.FetchMissingRoles(ctx, splitRoles(member.Roles))
	if err != nil {
		d.logger.Debug("fetching member roles", "channel", member.ChannelID, "error", err)
	} else {
		ops = append(ops, roleOps...)
	}

	return d.commit(ctx, ops...)
}

// handleDirectAdded materializes a DM or GM conversation the user was
// added to, including the counterpart profiles for display names.
func (d *Dispatcher) handleDirectAdded(ctx context.Context, ev *model.Event) error {
	channelID := eventChannelID(ev)
	if channelID == "" {
		return fmt.Errorf("direct_added event missing channel id")
	}
	if d.selfEcho(channelID, ephemeral.ActionAddingChannel) {
		return nil
	}

	if err := d.fetchAndStoreChannel(ctx, channelID); err != nil {
		return err
	}

	users, err := d.client.GetProfilesInChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("fetching direct profiles %s: %w", channelID, err)
	}
	ops, err := d.engine.PlanUsers(ctx, users)
	if err != nil {
		return err
	}
	return d.commit(ctx, ops...)
}

// handleUserAdded covers both "someone joined a channel I'm in" and "I
// was added to a channel".
func (d *Dispatcher) handleUserAdded(ctx context.Context, ev *model.Event) error {
	userID := eventUserID(ev)
	channelID := eventChannelID(ev)
	if userID == "" || channelID == "" {
		return fmt.Errorf("user_added event missing ids")
	}

	currentUserID, err := d.store.GetCurrentUserID(ctx)
	if err != nil {
		return err
	}

	if userID == currentUserID {
		if d.selfEcho(channelID, ephemeral.ActionJoiningChannel) {
			return nil
		}
		return d.fetchAndStoreChannel(ctx, channelID)
	}

	ops, err := d.engine.FetchMissingUsers(ctx, []string{userID})
	if err != nil {
		return err
	}
	return d.commit(ctx, ops...)
}

// handleUserRemoved purges the user's channel state when the current
// user was removed, kicking the UI off the channel if it was open.
func (d *Dispatcher) handleUserRemoved(ctx context.Context, ev *model.Event) error {
	userID := eventUserID(ev)
	channelID := eventChannelID(ev)
	if userID == "" || channelID == "" {
		return fmt.Errorf("user_removed event missing ids")
	}

	currentUserID, err := d.store.GetCurrentUserID(ctx)
	if err != nil {
		return err
	}
	if userID != currentUserID {
		return d.commit(ctx, d.store.PrepareDeleteChannelMembership(channelID, userID))
	}

	if d.selfEcho(channelID, ephemeral.ActionLeavingChannel) {
		return nil
	}

	if err := d.commit(ctx, d.store.PrepareDeleteMyChannel(channelID)...); err != nil {
		return err
	}
	return d.kickIfCurrent(ctx, channelID)
}

// kickIfCurrent invokes the kick callback when the affected channel is
// the one currently open.
func (d *Dispatcher) kickIfCurrent(ctx context.Context, channelID string) error {
	current, err := d.store.GetCurrentChannelID(ctx)
	if err != nil {
		return err
	}
	if current == channelID && d.OnKickedFromChannel != nil {
		d.OnKickedFromChannel(channelID)
	}
	return nil
}

func (d *Dispatcher) currentUserIsGuest(ctx context.Context) (bool, error) {
	currentUserID, err := d.store.GetCurrentUserID(ctx)
	if err != nil || currentUserID == "" {
		return false, err
	}
	user, err := d.store.GetUser(ctx, currentUserID)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsGuest(), nil
}
