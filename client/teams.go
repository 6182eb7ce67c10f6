// ABOUTME: Team and team-membership fetchers for the current user

package client

import (
	"context"

	"github.com/2389/chatsync/model"
)

// GetMyTeams returns every team the current user belongs to.
func (c *Client) GetMyTeams(ctx context.Context) ([]model.Team, error) {
	var teams []model.Team
	if err := c.doGet(ctx, "/users/me/teams", &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// GetTeam returns a single team by id.
func (c *Client) GetTeam(ctx context.Context, teamID string) (*model.Team, error) {
	var team model.Team
	if err := c.doGet(ctx, "/teams/"+teamID, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

// GetTeamMember returns one user's membership in a team.
func (c *Client) GetTeamMember(ctx context.Context, teamID, userID string) (*model.TeamMembership, error) {
	var membership model.TeamMembership
	if err := c.doGet(ctx, "/teams/"+teamID+"/members/"+userID, &membership); err != nil {
		return nil, err
	}
	return &membership, nil
}

// GetMyTeamMemberships returns the current user's team memberships,
// including soft-deleted ones (delete_at > 0 marks a team the user left).
func (c *Client) GetMyTeamMemberships(ctx context.Context) ([]model.TeamMembership, error) {
	var memberships []model.TeamMembership
	if err := c.doGet(ctx, "/users/me/teams/members", &memberships); err != nil {
		return nil, err
	}
	return memberships, nil
}
