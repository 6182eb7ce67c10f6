// ABOUTME: Single-round-trip entry fetch over the server's query endpoint
// ABOUTME: Only available when the server advertises the query feature flag

package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/2389/chatsync/model"
)

const queryEndpoint = "/api/v5/graphql"

// entryQuery asks for everything the entry snapshot needs in one round
// trip. Servers without the query endpoint answer 404.
const entryQuery = `query entry {
  user(id: "me") { id username nickname first_name last_name update_at delete_at }
  teams(userId: "me") { id name display_name update_at delete_at }
  teamMembers(userId: "me") { team_id user_id delete_at roles scheme_user scheme_admin }
  preferences(userId: "me") { user_id category name value }
}`

// EntryBatch is the combined payload of the single-round-trip entry
// fetch.
type EntryBatch struct {
	Me          *model.User
	Teams       []model.Team
	Memberships []model.TeamMembership
	Preferences []model.Preference
}

type entryQueryResponse struct {
	Data struct {
		User        *model.User            `json:"user"`
		Teams       []model.Team           `json:"teams"`
		TeamMembers []model.TeamMembership `json:"teamMembers"`
		Preferences []model.Preference     `json:"preferences"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GetEntryBatch fetches the profile, teams, team memberships, and
// preferences in one query round trip. Servers that do not expose the
// query endpoint answer 404; callers fall back to the field-parallel
// fetches.
func (c *Client) GetEntryBatch(ctx context.Context) (*EntryBatch, error) {
	body := map[string]string{
		"query":         entryQuery,
		"operationName": "entry",
	}

	var resp entryQueryResponse
	if err := c.doURL(ctx, http.MethodPost, c.serverURL+queryEndpoint, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("entry query failed: %s", resp.Errors[0].Message)
	}

	return &EntryBatch{
		Me:          resp.Data.User,
		Teams:       resp.Data.Teams,
		Memberships: resp.Data.TeamMembers,
		Preferences: resp.Data.Preferences,
	}, nil
}
