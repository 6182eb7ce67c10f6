// ABOUTME: Chunk-window gap-fill for channel and thread post history
// ABOUTME: Covered ranges skip the remote fetch entirely; windows only grow

package reconcile

import (
	"context"
	"fmt"

	"github.com/2389/chatsync/client"
	"github.com/2389/chatsync/model"
	"github.com/2389/chatsync/store"
)

const postPageSize = 60

// PlanPosts prepares upserts for the given posts plus the thread rows
// replies imply, without touching any chunk window. Used by callers that
// manage windows themselves or that write posts outside any window.
func (e *Engine) PlanPosts(ctx context.Context, posts []*model.Post) ([]*store.Op, error) {
	var ops []*store.Op
	for _, p := range posts {
		op, err := e.store.PrepareUpsertPost(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("planning post %s: %w", p.ID, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// PlanChannelPosts prepares upserts for a contiguous page of channel
// posts and merges the channel's chunk window over [earliest, latest].
// The caller asserts the posts fully cover that range.
func (e *Engine) PlanChannelPosts(ctx context.Context, channelID string, posts []*model.Post, earliest, latest int64) ([]*store.Op, error) {
	ops, err := e.PlanPosts(ctx, posts)
	if err != nil {
		return nil, err
	}
	windowOp, err := e.store.PrepareMergeChannelWindow(ctx, channelID, earliest, latest)
	if err != nil {
		return nil, fmt.Errorf("merging channel window %s: %w", channelID, err)
	}
	ops = append(ops, windowOp)
	return ops, nil
}

// FillChannelGap brings the channel's post window up to cover
// [earliest, latest]. When the existing window already covers the range
// no remote fetch happens and no ops are returned. Otherwise exactly one
// fetch retrieves the uncovered portion and the window is extended over
// the full requested range. Returns the ops and whether a fetch ran.
func (e *Engine) FillChannelGap(ctx context.Context, channelID string, earliest, latest int64) ([]*store.Op, bool, error) {
	window, err := e.store.GetChannelWindow(ctx, channelID)
	if err != nil && err != store.ErrNotFound {
		return nil, false, fmt.Errorf("loading channel window %s: %w", channelID, err)
	}
	if window != nil && window.Covers(earliest, latest) {
		return nil, false, nil
	}

	// Fetch from the edge of known history when the ranges touch, so the
	// merged window stays contiguous.
	since := earliest
	if window != nil && window.Latest >= earliest && window.Latest < latest {
		since = window.Latest
	}

	list, err := e.client.GetPostsSince(ctx, channelID, since)
	if err != nil {
		return nil, false, fmt.Errorf("fetching posts for %s since %d: %w", channelID, since, err)
	}

	ops, err := e.PlanChannelPosts(ctx, channelID, list.OrderedPosts(), earliest, latest)
	if err != nil {
		return nil, false, err
	}
	return ops, true, nil
}

// FetchChannelPostsSince fetches posts changed after the watermark and
// plans their writes. Deleted posts in the response cascade to their
// dependent rows. The window's latest edge advances to the newest
// fetched create_at.
func (e *Engine) FetchChannelPostsSince(ctx context.Context, channelID string, since int64) ([]*store.Op, error) {
	list, err := e.client.GetPostsSince(ctx, channelID, since)
	if err != nil {
		return nil, fmt.Errorf("fetching posts for %s since %d: %w", channelID, since, err)
	}

	var ops []*store.Op
	var latest int64
	for _, p := range list.OrderedPosts() {
		if p.DeleteAt > 0 {
			deleteOps, err := e.PlanDeletePost(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			ops = append(ops, deleteOps...)
			continue
		}
		op, err := e.store.PrepareUpsertPost(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("planning post %s: %w", p.ID, err)
		}
		ops = append(ops, op)
		if p.CreateAt > latest {
			latest = p.CreateAt
		}
	}

	if latest > 0 {
		windowOp, err := e.store.PrepareMergeChannelWindow(ctx, channelID, since, latest)
		if err != nil {
			return nil, fmt.Errorf("merging channel window %s: %w", channelID, err)
		}
		ops = append(ops, windowOp)
	}
	return ops, nil
}

// FetchChannelPostsLatest fetches the newest page of a channel's posts
// and seeds or extends the window over the fetched range.
func (e *Engine) FetchChannelPostsLatest(ctx context.Context, channelID string) ([]*store.Op, error) {
	list, err := e.client.GetPostsForChannel(ctx, channelID, 0, postPageSize)
	if err != nil {
		return nil, fmt.Errorf("fetching latest posts for %s: %w", channelID, err)
	}
	posts := list.OrderedPosts()
	if len(posts) == 0 {
		return nil, nil
	}

	earliest, latest := postRange(posts)
	return e.PlanChannelPosts(ctx, channelID, posts, earliest, latest)
}

// FillThreadGap is the thread-rooted analogue of FillChannelGap, keyed by
// the thread's root post id.
func (e *Engine) FillThreadGap(ctx context.Context, rootID string, earliest, latest int64) ([]*store.Op, bool, error) {
	window, err := e.store.GetThreadWindow(ctx, rootID)
	if err != nil && err != store.ErrNotFound {
		return nil, false, fmt.Errorf("loading thread window %s: %w", rootID, err)
	}
	if window != nil && window.Covers(earliest, latest) {
		return nil, false, nil
	}

	// Anchor the fetch at the known edge nearest the gap: extend forward
	// from the window's latest when the ranges touch, otherwise walk
	// backward from the requested latest.
	from, direction := latest, client.DirectionUp
	if window != nil && window.Latest >= earliest && window.Latest < latest {
		from, direction = window.Latest, client.DirectionDown
	}

	list, err := e.client.GetPostThread(ctx, rootID, from, "", direction)
	if err != nil {
		return nil, false, fmt.Errorf("fetching thread %s: %w", rootID, err)
	}

	ops, err := e.PlanPosts(ctx, list.OrderedPosts())
	if err != nil {
		return nil, false, err
	}
	windowOp, err := e.store.PrepareMergeThreadWindow(ctx, rootID, earliest, latest)
	if err != nil {
		return nil, false, fmt.Errorf("merging thread window %s: %w", rootID, err)
	}
	ops = append(ops, windowOp)
	return ops, true, nil
}

// PlanDeletePost prepares the full cascade for a post: drafts, files,
// reactions, thread rows when it is a root, then the post itself. A post
// unknown locally plans to nothing.
func (e *Engine) PlanDeletePost(ctx context.Context, postID string) ([]*store.Op, error) {
	post, err := e.store.GetPost(ctx, postID)
	switch {
	case err == store.ErrNotFound:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("loading post %s for deletion: %w", postID, err)
	}

	ops, err := e.store.PrepareDeletePost(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("planning post cascade %s: %w", postID, err)
	}
	return ops, nil
}

// postRange returns the min and max create_at over posts.
func postRange(posts []*model.Post) (earliest, latest int64) {
	for _, p := range posts {
		if earliest == 0 || p.CreateAt < earliest {
			earliest = p.CreateAt
		}
		if p.CreateAt > latest {
			latest = p.CreateAt
		}
	}
	return earliest, latest
}
