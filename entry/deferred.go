// ABOUTME: Best-effort background enrichment after the entry snapshot renders
// ABOUTME: Each task fails independently; errors are logged, never propagated

package entry

import (
	"context"
	"fmt"
	"sync"

	"github.com/2389/chatsync/model"
	"github.com/2389/chatsync/store"
)

// RunDeferred enriches lower-priority data after the entry result has
// been committed: posts for the initial channel, profiles for direct
// conversations, group state for the initial team, and channel/unread
// state for every other team. It blocks until all tasks finish; callers
// run it on its own goroutine.
func (o *Orchestrator) RunDeferred(ctx context.Context, res *Result) {
	var wg sync.WaitGroup

	if res.InitialChannelID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.deferredTask(ctx, "initial channel posts", func() error {
				return o.loadInitialChannelPosts(ctx, res.InitialChannelID)
			})
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.deferredTask(ctx, "direct profiles", func() error {
			return o.loadDirectProfiles(ctx, res)
		})
	}()

	if res.InitialTeamID != "" && res.Me != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.deferredTask(ctx, "groups", func() error {
				return o.loadGroups(ctx, res.InitialTeamID, res.Me.ID)
			})
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			o.deferredTask(ctx, "team threads", func() error {
				return o.loadTeamThreads(ctx, res.InitialTeamID, res.Me.ID)
			})
		}()
	}

	// Other teams load sequentially to bound concurrent server load.
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.loadOtherTeams(ctx, res)
	}()

	wg.Wait()
}

func (o *Orchestrator) deferredTask(ctx context.Context, name string, task func() error) {
	if ctx.Err() != nil {
		return
	}
	if err := task(); err != nil {
		o.logger.Warn("deferred task failed", "task", name, "error", err)
	}
}

func (o *Orchestrator) loadInitialChannelPosts(ctx context.Context, channelID string) error {
	ops, err := o.engine.FetchChannelPostsLatest(ctx, channelID)
	if err != nil {
		return err
	}
	batch := store.NewBatch()
	batch.Add(ops...)
	return o.store.Commit(ctx, batch)
}

// loadTeamThreads seeds or advances the initial team's thread watermark
// so followed threads are warm before any push event arrives.
func (o *Orchestrator) loadTeamThreads(ctx context.Context, teamID, userID string) error {
	ops, err := o.engine.SyncTeamThreads(ctx, userID, teamID)
	if err != nil {
		return err
	}
	batch := store.NewBatch()
	batch.Add(ops...)
	return o.store.Commit(ctx, batch)
}

// loadDirectProfiles fetches the member profiles of DM/GM channels so the
// sidebar can render names and avatars.
func (o *Orchestrator) loadDirectProfiles(ctx context.Context, res *Result) error {
	directIDs, err := o.store.QueryDirectChannelIDs(ctx)
	if err != nil {
		return fmt.Errorf("querying direct channels: %w", err)
	}

	batch := store.NewBatch()
	for _, channelID := range directIDs {
		users, err := o.client.GetProfilesInChannel(ctx, channelID)
		if err != nil {
			o.logger.Warn("fetching direct profiles", "channel", channelID, "error", err)
			continue
		}
		ops, err := o.engine.PlanUsers(ctx, users)
		if err != nil {
			return err
		}
		batch.Add(ops...)
	}
	return o.store.Commit(ctx, batch)
}

func (o *Orchestrator) loadGroups(ctx context.Context, teamID, userID string) error {
	batch := store.NewBatch()

	groups, err := o.client.GetGroupsForTeam(ctx, teamID)
	if err != nil {
		return fmt.Errorf("fetching team groups: %w", err)
	}
	for i := range groups {
		op, err := o.store.PrepareUpsertGroup(ctx, &groups[i])
		if err != nil {
			return err
		}
		batch.Add(op)
	}

	memberships, err := o.client.GetGroupMemberships(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetching group memberships: %w", err)
	}
	for i := range memberships {
		batch.Add(o.store.PrepareUpsertGroupMembership(&memberships[i]))
	}

	return o.store.Commit(ctx, batch)
}

// loadOtherTeams syncs channel and unread state for every fetched team
// except the initial one, one team at a time.
func (o *Orchestrator) loadOtherTeams(ctx context.Context, res *Result) {
	for i := range res.Teams {
		team := &res.Teams[i]
		if team.ID == res.InitialTeamID {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := o.loadTeamChannels(ctx, team); err != nil {
			o.logger.Warn("deferred team sync failed", "team", team.ID, "error", err)
		}
	}
}

func (o *Orchestrator) loadTeamChannels(ctx context.Context, team *model.Team) error {
	channels, err := o.client.GetMyChannelsForTeam(ctx, team.ID, false, 0)
	if err != nil {
		return err
	}
	ops, removeIDs, err := o.engine.PlanChannels(ctx, team.ID, channels.Channels, channels.Memberships)
	if err != nil {
		return err
	}
	removeOps, err := o.engine.PlanRemoveChannels(ctx, removeIDs)
	if err != nil {
		return err
	}

	batch := store.NewBatch()
	batch.Add(ops...)
	batch.Add(removeOps...)
	return o.store.Commit(ctx, batch)
}
