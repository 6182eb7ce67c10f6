// ABOUTME: Per-team thread sync: unread bootstrap, then since-watermark deltas
// ABOUTME: The watermark bounds the last_reply_at range known complete locally

package reconcile

import (
	"context"
	"fmt"

	"github.com/2389/chatsync/client"
	"github.com/2389/chatsync/model"
	"github.com/2389/chatsync/store"
)

const threadPageSize = 60

// SyncTeamThreads reconciles a team's followed threads. On the first
// sync for a team it seeds both the unread set (paged, newest chunk
// first) and the single latest page of all threads, recording the
// resulting range as the team's watermark. Later syncs fetch only
// threads changed since the watermark, including soft-deleted ones, and
// advance the watermark's latest edge.
func (e *Engine) SyncTeamThreads(ctx context.Context, userID, teamID string) ([]*store.Op, error) {
	sync, err := e.store.GetTeamThreadsSync(ctx, teamID)
	if err != nil && err != store.ErrNotFound {
		return nil, fmt.Errorf("loading thread watermark for team %s: %w", teamID, err)
	}

	if sync == nil || sync.Latest == 0 {
		return e.bootstrapTeamThreads(ctx, userID, teamID)
	}

	list, err := e.client.GetThreads(ctx, userID, teamID, client.ThreadsOptions{
		Since:   sync.Latest,
		Deleted: true,
		PerPage: threadPageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching threads for team %s since %d: %w", teamID, sync.Latest, err)
	}

	ops, latest, err := e.PlanThreads(ctx, teamID, list.Threads)
	if err != nil {
		return nil, err
	}
	if latest > sync.Latest {
		watermarkOp, err := e.store.PrepareSetTeamThreadsSync(ctx, &model.TeamThreadsSync{
			TeamID: teamID,
			Latest: latest,
		})
		if err != nil {
			return nil, fmt.Errorf("advancing thread watermark for team %s: %w", teamID, err)
		}
		ops = append(ops, watermarkOp)
	}
	return ops, nil
}

// LoadEarlierThreads fetches the page of threads older than the given
// cursor and lowers the team watermark's earliest edge to cover it. The
// latest edge is untouched.
func (e *Engine) LoadEarlierThreads(ctx context.Context, userID, teamID, beforeThreadID string) ([]*store.Op, error) {
	list, err := e.client.GetThreads(ctx, userID, teamID, client.ThreadsOptions{
		Before:  beforeThreadID,
		PerPage: threadPageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching earlier threads for team %s: %w", teamID, err)
	}

	ops, _, err := e.PlanThreads(ctx, teamID, list.Threads)
	if err != nil {
		return nil, err
	}

	var earliest int64
	for _, th := range list.Threads {
		if earliest == 0 || th.LastReplyAt < earliest {
			earliest = th.LastReplyAt
		}
	}
	if earliest == 0 {
		return ops, nil
	}

	sync, err := e.store.GetTeamThreadsSync(ctx, teamID)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}
	if sync == nil || earliest < sync.Earliest {
		watermarkOp, err := e.store.PrepareSetTeamThreadsSync(ctx, &model.TeamThreadsSync{
			TeamID:   teamID,
			Earliest: earliest,
		})
		if err != nil {
			return nil, fmt.Errorf("lowering thread watermark for team %s: %w", teamID, err)
		}
		ops = append(ops, watermarkOp)
	}
	return ops, nil
}

// bootstrapTeamThreads seeds the unread badge and the recent list without
// a full history fetch.
func (e *Engine) bootstrapTeamThreads(ctx context.Context, userID, teamID string) ([]*store.Op, error) {
	var ops []*store.Op
	var earliest, latest int64

	cursor := ""
	for {
		list, err := e.client.GetThreads(ctx, userID, teamID, client.ThreadsOptions{
			Unread:  true,
			Before:  cursor,
			PerPage: threadPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("fetching unread threads for team %s: %w", teamID, err)
		}
		pageOps, pageLatest, err := e.PlanThreads(ctx, teamID, list.Threads)
		if err != nil {
			return nil, err
		}
		ops = append(ops, pageOps...)
		if pageLatest > latest {
			latest = pageLatest
		}
		if len(list.Threads) < threadPageSize {
			break
		}
		cursor = list.Threads[len(list.Threads)-1].ID
	}

	recent, err := e.client.GetThreads(ctx, userID, teamID, client.ThreadsOptions{PerPage: threadPageSize})
	if err != nil {
		return nil, fmt.Errorf("fetching recent threads for team %s: %w", teamID, err)
	}
	recentOps, recentLatest, err := e.PlanThreads(ctx, teamID, recent.Threads)
	if err != nil {
		return nil, err
	}
	ops = append(ops, recentOps...)
	if recentLatest > latest {
		latest = recentLatest
	}
	for _, th := range recent.Threads {
		if earliest == 0 || th.LastReplyAt < earliest {
			earliest = th.LastReplyAt
		}
	}

	if latest > 0 {
		watermarkOp, err := e.store.PrepareSetTeamThreadsSync(ctx, &model.TeamThreadsSync{
			TeamID:   teamID,
			Earliest: earliest,
			Latest:   latest,
		})
		if err != nil {
			return nil, fmt.Errorf("seeding thread watermark for team %s: %w", teamID, err)
		}
		ops = append(ops, watermarkOp)
	}
	return ops, nil
}

// PlanThreads prepares the write set for fetched threads: thread rows,
// team membership rows, participants with their profiles, and embedded
// root posts. Returns the newest last_reply_at seen.
func (e *Engine) PlanThreads(ctx context.Context, teamID string, threads []*model.Thread) ([]*store.Op, int64, error) {
	var ops []*store.Op
	var latest int64

	for _, th := range threads {
		op, err := e.store.PrepareUpsertThread(ctx, th)
		if err != nil {
			return nil, 0, fmt.Errorf("planning thread %s: %w", th.ID, err)
		}
		ops = append(ops, op)

		teamOp, err := e.store.PrepareUpsertThreadInTeam(ctx, teamID, th.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("planning thread team row %s: %w", th.ID, err)
		}
		ops = append(ops, teamOp)

		for i := range th.Participants {
			u := &th.Participants[i]
			userOp, err := e.store.PrepareUpsertUser(ctx, u)
			if err != nil {
				return nil, 0, fmt.Errorf("planning thread participant %s: %w", u.ID, err)
			}
			ops = append(ops, userOp)

			partOp, err := e.store.PrepareUpsertThreadParticipant(ctx, th.ID, u.ID)
			if err != nil {
				return nil, 0, fmt.Errorf("planning thread participant row %s: %w", u.ID, err)
			}
			ops = append(ops, partOp)
		}

		if th.Post != nil {
			postOp, err := e.store.PrepareUpsertPost(ctx, th.Post)
			if err != nil {
				return nil, 0, fmt.Errorf("planning thread root post %s: %w", th.ID, err)
			}
			ops = append(ops, postOp)
		}

		if th.LastReplyAt > latest {
			latest = th.LastReplyAt
		}
	}
	return ops, latest, nil
}
