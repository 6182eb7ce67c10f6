// ABOUTME: Set-difference sync for teams, channels, preferences, users
// ABOUTME: Plan methods return prepared ops; callers commit one atomic batch

package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/chatsync/client"
	"github.com/2389/chatsync/model"
	"github.com/2389/chatsync/store"
)

// Engine plans local writes from fetched server state.
type Engine struct {
	store  *store.SQLiteStore
	client *client.Client
	logger *slog.Logger
}

// NewEngine creates a reconciliation engine over one server's store and
// REST client.
func NewEngine(st *store.SQLiteStore, cl *client.Client) *Engine {
	return &Engine{
		store:  st,
		client: cl,
		logger: slog.Default().With("component", "reconcile"),
	}
}

// PlanTeams prepares upserts for teams with live memberships and returns
// the ids of teams whose membership was soft-deleted. Teams in the
// removal set are not upserted.
func (e *Engine) PlanTeams(ctx context.Context, teams []model.Team, memberships []model.TeamMembership) ([]*store.Op, []string, error) {
	removed := make(map[string]struct{})
	var removeIDs []string
	for _, m := range memberships {
		if m.DeleteAt > 0 {
			removed[m.TeamID] = struct{}{}
			removeIDs = append(removeIDs, m.TeamID)
		}
	}

	var ops []*store.Op
	for i := range teams {
		t := &teams[i]
		if _, gone := removed[t.ID]; gone {
			continue
		}
		op, err := e.store.PrepareUpsertTeam(ctx, t)
		if err != nil {
			return nil, nil, fmt.Errorf("planning team %s: %w", t.ID, err)
		}
		ops = append(ops, op)
	}
	for i := range memberships {
		m := &memberships[i]
		if m.DeleteAt > 0 {
			continue
		}
		op, err := e.store.PrepareUpsertTeamMembership(ctx, m)
		if err != nil {
			return nil, nil, fmt.Errorf("planning team membership %s: %w", m.TeamID, err)
		}
		ops = append(ops, op)
	}
	return ops, removeIDs, nil
}

// PlanRemoveTeams prepares the full local purge for each team id,
// cascading through its channels, threads, and history rows.
func (e *Engine) PlanRemoveTeams(ctx context.Context, teamIDs []string) ([]*store.Op, error) {
	var ops []*store.Op
	for _, id := range teamIDs {
		teamOps, err := e.store.PrepareDeleteTeam(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("planning removal of team %s: %w", id, err)
		}
		ops = append(ops, teamOps...)
	}
	return ops, nil
}

// PlanChannels prepares upserts for a team's fetched channels and the
// current user's membership state, and returns the ids of locally-cached
// channels for that team missing from the fetched set. Missing channels
// were deleted, archived, or the user lost access.
func (e *Engine) PlanChannels(ctx context.Context, teamID string, channels []model.Channel, memberships []model.ChannelMembership) ([]*store.Op, []string, error) {
	byID := make(map[string]*model.Channel, len(channels))
	var ops []*store.Op
	for i := range channels {
		c := &channels[i]
		byID[c.ID] = c
		op, err := e.store.PrepareUpsertChannel(ctx, c)
		if err != nil {
			return nil, nil, fmt.Errorf("planning channel %s: %w", c.ID, err)
		}
		ops = append(ops, op)
	}

	for i := range memberships {
		m := &memberships[i]
		ch := byID[m.ChannelID]
		if ch == nil {
			continue
		}
		myOps, err := e.planMyChannel(ctx, ch, m)
		if err != nil {
			return nil, nil, err
		}
		ops = append(ops, myOps...)
	}

	localIDs, err := e.store.QueryChannelIDsForTeam(ctx, teamID)
	if err != nil {
		return nil, nil, fmt.Errorf("querying local channels for team %s: %w", teamID, err)
	}
	var removeIDs []string
	for _, id := range localIDs {
		if _, present := byID[id]; !present {
			removeIDs = append(removeIDs, id)
		}
	}
	return ops, removeIDs, nil
}

// planMyChannel derives the user's per-channel unread state from the
// channel totals and the membership counters.
func (e *Engine) planMyChannel(ctx context.Context, ch *model.Channel, m *model.ChannelMembership) ([]*store.Op, error) {
	unread := ch.TotalMsgCount - m.MsgCount
	if unread < 0 {
		unread = 0
	}
	my := &model.MyChannel{
		ChannelID:    ch.ID,
		LastPostAt:   ch.LastPostAt,
		LastViewedAt: m.LastViewedAt,
		MessageCount: unread,
		MentionCount: m.MentionCount,
		IsUnread:     unread > 0,
		Roles:        m.Roles,
	}

	var ops []*store.Op
	op, err := e.store.PrepareUpsertMyChannel(ctx, my)
	if err != nil {
		return nil, fmt.Errorf("planning my-channel %s: %w", ch.ID, err)
	}
	ops = append(ops, op)

	if len(m.NotifyProps) > 0 {
		settingsOp, err := e.store.PrepareUpsertMyChannelSettings(ctx, &model.MyChannelSettings{
			ChannelID:   ch.ID,
			NotifyProps: m.NotifyProps,
		})
		if err != nil {
			return nil, fmt.Errorf("planning channel settings %s: %w", ch.ID, err)
		}
		ops = append(ops, settingsOp)
	}

	memberOp, err := e.store.PrepareUpsertChannelMembership(ctx, m.ChannelID, m.UserID, m.Roles)
	if err != nil {
		return nil, fmt.Errorf("planning channel membership %s: %w", ch.ID, err)
	}
	ops = append(ops, memberOp)
	return ops, nil
}

// PlanRemoveChannels prepares local purges for channels the user can no
// longer see. Direct channels keep their channel row so shared DM/GM
// history stays queryable; team channels are removed entirely.
func (e *Engine) PlanRemoveChannels(ctx context.Context, channelIDs []string) ([]*store.Op, error) {
	var ops []*store.Op
	for _, id := range channelIDs {
		ch, err := e.store.GetChannel(ctx, id)
		switch {
		case err == store.ErrNotFound:
			continue
		case err != nil:
			return nil, fmt.Errorf("loading channel %s for removal: %w", id, err)
		}
		if ch.IsDirect() {
			ops = append(ops, e.store.PrepareDeleteMyChannel(id)...)
		} else {
			ops = append(ops, e.store.PrepareDeleteChannel(id)...)
		}
	}
	return ops, nil
}

// PlanPreferences prepares upserts for fetched preferences. Unchanged
// rows plan to nil and drop out of the batch.
func (e *Engine) PlanPreferences(ctx context.Context, prefs []model.Preference) ([]*store.Op, error) {
	var ops []*store.Op
	for i := range prefs {
		op, err := e.store.PrepareUpsertPreference(ctx, &prefs[i])
		if err != nil {
			return nil, fmt.Errorf("planning preference %s/%s: %w", prefs[i].Category, prefs[i].Name, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// PlanUsers prepares upserts for fetched profiles.
func (e *Engine) PlanUsers(ctx context.Context, users []model.User) ([]*store.Op, error) {
	var ops []*store.Op
	for i := range users {
		op, err := e.store.PrepareUpsertUser(ctx, &users[i])
		if err != nil {
			return nil, fmt.Errorf("planning user %s: %w", users[i].ID, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// PlanStatuses prepares presence updates for fetched status snapshots.
func (e *Engine) PlanStatuses(statuses []model.UserStatus) []*store.Op {
	ops := make([]*store.Op, 0, len(statuses))
	for _, st := range statuses {
		ops = append(ops, e.store.PrepareSetUserStatus(st.UserID, st.Status))
	}
	return ops
}

// FetchMissingUsers fetches and plans profiles for any of the given user
// ids not already cached locally. Returns nil ops when all are known.
func (e *Engine) FetchMissingUsers(ctx context.Context, userIDs []string) ([]*store.Op, error) {
	missing, err := e.store.QueryMissingUserIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("querying missing users: %w", err)
	}
	if len(missing) == 0 {
		return nil, nil
	}
	users, err := e.client.GetUsersByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("fetching %d missing users: %w", len(missing), err)
	}
	return e.PlanUsers(ctx, users)
}

// FetchMissingRoles fetches and plans role definitions referenced by the
// given space-separated roles strings that are not cached locally.
func (e *Engine) FetchMissingRoles(ctx context.Context, roleNames []string) ([]*store.Op, error) {
	if len(roleNames) == 0 {
		return nil, nil
	}
	existing, err := e.store.QueryExistingRoleNames(ctx, roleNames)
	if err != nil {
		return nil, fmt.Errorf("querying existing roles: %w", err)
	}
	var missing []string
	for _, name := range roleNames {
		if _, ok := existing[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	roles, err := e.client.GetRolesByNames(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("fetching roles: %w", err)
	}
	var ops []*store.Op
	for i := range roles {
		op, err := e.store.PrepareUpsertRole(ctx, &roles[i])
		if err != nil {
			return nil, fmt.Errorf("planning role %s: %w", roles[i].Name, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}
