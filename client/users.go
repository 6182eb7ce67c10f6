// ABOUTME: User profile, presence, preference, role and group fetchers

package client

import (
	"context"

	"github.com/2389/chatsync/model"
)

// GetMe returns the logged-in user's profile.
func (c *Client) GetMe(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.doGet(ctx, "/users/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs returns profiles for the given user ids.
func (c *Client) GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	var users []model.User
	if err := c.doPost(ctx, "/users/ids", ids, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetProfilesInChannel returns the member profiles of a channel, used to
// resolve DM/GM display names for the sidebar.
func (c *Client) GetProfilesInChannel(ctx context.Context, channelID string) ([]model.User, error) {
	var users []model.User
	if err := c.doGet(ctx, "/users?in_channel="+channelID+"&per_page=8", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetStatusesByIDs returns presence snapshots for the given user ids.
func (c *Client) GetStatusesByIDs(ctx context.Context, ids []string) ([]model.UserStatus, error) {
	var statuses []model.UserStatus
	if err := c.doPost(ctx, "/users/status/ids", ids, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// GetMyPreferences returns all of the current user's preferences.
func (c *Client) GetMyPreferences(ctx context.Context) ([]model.Preference, error) {
	var prefs []model.Preference
	if err := c.doGet(ctx, "/users/me/preferences", &prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// GetRolesByNames returns role definitions for the given role names.
func (c *Client) GetRolesByNames(ctx context.Context, names []string) ([]model.Role, error) {
	var roles []model.Role
	if err := c.doPost(ctx, "/roles/names", names, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetGroupsForTeam returns the groups associated with a team.
func (c *Client) GetGroupsForTeam(ctx context.Context, teamID string) ([]model.Group, error) {
	var groups []model.Group
	if err := c.doGet(ctx, "/groups?in_team="+teamID, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// GetGroupMemberships returns the current user's memberships across groups.
func (c *Client) GetGroupMemberships(ctx context.Context, userID string) ([]model.GroupMembership, error) {
	var memberships []model.GroupMembership
	if err := c.doGet(ctx, "/users/"+userID+"/groups", &memberships); err != nil {
		return nil, err
	}
	return memberships, nil
}
