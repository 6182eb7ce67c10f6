// ABOUTME: Channel and channel-membership fetchers
// ABOUTME: Team-scoped fetches accept a since watermark for incremental sync

package client

import (
	"context"
	"fmt"

	"github.com/2389/chatsync/model"
)

// MyChannels bundles the channel rows and the current user's membership
// rows returned by a team-scoped channel fetch.
type MyChannels struct {
	Channels    []model.Channel
	Memberships []model.ChannelMembership
}

// GetMyChannelsForTeam returns the user's channels in a team along with the
// matching membership rows. includeDeleted keeps archived channels in the
// result; since limits changed rows to those updated after the watermark.
func (c *Client) GetMyChannelsForTeam(ctx context.Context, teamID string, includeDeleted bool, since int64) (*MyChannels, error) {
	path := fmt.Sprintf("/users/me/teams/%s/channels?include_deleted=%t&last_delete_at=%d",
		teamID, includeDeleted, since)

	var channels []model.Channel
	if err := c.doGet(ctx, path, &channels); err != nil {
		return nil, err
	}

	var memberships []model.ChannelMembership
	if err := c.doGet(ctx, fmt.Sprintf("/users/me/teams/%s/channels/members", teamID), &memberships); err != nil {
		return nil, err
	}

	return &MyChannels{Channels: channels, Memberships: memberships}, nil
}

// GetChannel returns a single channel by id.
func (c *Client) GetChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	var channel model.Channel
	if err := c.doGet(ctx, "/channels/"+channelID, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

// GetMyChannelMember returns the current user's membership for a channel.
func (c *Client) GetMyChannelMember(ctx context.Context, channelID string) (*model.ChannelMembership, error) {
	var member model.ChannelMembership
	if err := c.doGet(ctx, "/channels/"+channelID+"/members/me", &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// GetChannelStats returns member and message counts for a channel.
func (c *Client) GetChannelStats(ctx context.Context, channelID string) (*ChannelStats, error) {
	var stats ChannelStats
	if err := c.doGet(ctx, "/channels/"+channelID+"/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ChannelStats is the server's channel statistics payload.
type ChannelStats struct {
	ChannelID   string `json:"channel_id"`
	MemberCount int64  `json:"member_count"`
}

// ViewChannel reports to the server that the user viewed a channel,
// clearing its unread state server-side.
func (c *Client) ViewChannel(ctx context.Context, channelID, prevChannelID string) error {
	body := map[string]string{
		"channel_id":      channelID,
		"prev_channel_id": prevChannelID,
	}
	return c.doPost(ctx, "/channels/members/me/view", body, nil)
}
