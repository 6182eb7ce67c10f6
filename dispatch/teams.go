// ABOUTME: Handlers for team membership and lifecycle events
// ABOUTME: Losing a team cascades through its channels, threads, and history

package dispatch

import (
	"context"
	"fmt"

	"github.com/2389/chatsync/ephemeral"
	"github.com/2389/chatsync/model"
)

// handleLeaveTeam purges a team the current user left. Another user's
// departure only drops their membership row server-side; nothing is
// cached locally for it.
func (d *Dispatcher) handleLeaveTeam(ctx context.Context, ev *model.Event) error {
	userID := eventUserID(ev)
	teamID := eventTeamID(ev)
	if teamID == "" {
		return fmt.Errorf("leave_team event missing team id")
	}

	currentUserID, err := d.store.GetCurrentUserID(ctx)
	if err != nil {
		return err
	}
	if userID != currentUserID {
		return nil
	}
	if d.selfEcho(teamID, ephemeral.ActionLeavingTeam) {
		return nil
	}

	ops, err := d.engine.PlanRemoveTeams(ctx, []string{teamID})
	if err != nil {
		return err
	}
	return d.commit(ctx, ops...)
}

// handleUpdateTeam applies team edits and restores.
func (d *Dispatcher) handleUpdateTeam(ctx context.Context, ev *model.Event) error {
	var team model.Team
	if err := ev.UnmarshalData("team", &team); err != nil {
		return err
	}
	op, err := d.store.PrepareUpsertTeam(ctx, &team)
	if err != nil {
		return err
	}
	return d.commit(ctx, op)
}

// handleAddedToTeam fetches and stores a team the current user joined.
func (d *Dispatcher) handleAddedToTeam(ctx context.Context, ev *model.Event) error {
	teamID := eventTeamID(ev)
	userID := eventUserID(ev)
	if teamID == "" {
		return fmt.Errorf("added_to_team event missing team id")
	}

	currentUserID, err := d.store.GetCurrentUserID(ctx)
	if err != nil {
		return err
	}
	if userID != "" && userID != currentUserID {
		return nil
	}

	team, err := d.client.GetTeam(ctx, teamID)
	if err != nil {
		return fmt.Errorf("fetching team %s: %w", teamID, err)
	}
	member, err := d.client.GetTeamMember(ctx, teamID, currentUserID)
	if err != nil {
		return fmt.Errorf("fetching team member %s: %w", teamID, err)
	}

	ops, _, err := d.engine.PlanTeams(ctx, []model.Team{*team}, []model.TeamMembership{*member})
	if err != nil {
		return err
	}
	return d.commit(ctx, ops...)
}

// handleDeleteTeam purges a team the server deleted outright.
func (d *Dispatcher) handleDeleteTeam(ctx context.Context, ev *model.Event) error {
	teamID := eventTeamID(ev)
	if teamID == "" {
		var team model.Team
		if err := ev.UnmarshalData("team", &team); err != nil {
			return fmt.Errorf("delete_team event missing team id")
		}
		teamID = team.ID
	}

	ops, err := d.engine.PlanRemoveTeams(ctx, []string{teamID})
	if err != nil {
		return err
	}
	return d.commit(ctx, ops...)
}
