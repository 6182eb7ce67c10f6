// ABOUTME: Thread list fetchers and thread read/follow mutations
// ABOUTME: List calls page by before/after cursors and honor a since watermark

package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/2389/chatsync/model"
)

// ThreadsOptions narrows a thread list fetch.
type ThreadsOptions struct {
	Before  string
	After   string
	PerPage int
	Deleted bool
	Unread  bool
	Since   int64
}

// ThreadList is the server's thread collection payload.
type ThreadList struct {
	Total   int64           `json:"total"`
	Threads []*model.Thread `json:"threads"`
}

// GetThreads returns one page of the user's followed threads in a team.
func (c *Client) GetThreads(ctx context.Context, userID, teamID string, opts ThreadsOptions) (*ThreadList, error) {
	query := url.Values{}
	query.Set("extended", "false")
	if opts.Before != "" {
		query.Set("before", opts.Before)
	}
	if opts.After != "" {
		query.Set("after", opts.After)
	}
	if opts.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	if opts.Deleted {
		query.Set("deleted", "true")
	}
	if opts.Unread {
		query.Set("unread", "true")
	}
	if opts.Since > 0 {
		query.Set("since", strconv.FormatInt(opts.Since, 10))
	}

	var list ThreadList
	path := fmt.Sprintf("/users/%s/teams/%s/threads?%s", userID, teamID, query.Encode())
	if err := c.doGet(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// MarkThreadAsRead sets the thread's viewed timestamp on the server.
func (c *Client) MarkThreadAsRead(ctx context.Context, userID, teamID, threadID string, timestamp int64) error {
	path := fmt.Sprintf("/users/%s/teams/%s/threads/%s/read/%d", userID, teamID, threadID, timestamp)
	return c.doPut(ctx, path, nil, nil)
}

// MarkThreadAsUnread marks the thread unread from the given post onward.
func (c *Client) MarkThreadAsUnread(ctx context.Context, userID, teamID, threadID, postID string) error {
	path := fmt.Sprintf("/users/%s/teams/%s/threads/%s/set_unread/%s", userID, teamID, threadID, postID)
	return c.doPost(ctx, path, nil, nil)
}

// UpdateThreadFollow follows or unfollows a thread.
func (c *Client) UpdateThreadFollow(ctx context.Context, userID, teamID, threadID string, state bool) error {
	path := fmt.Sprintf("/users/%s/teams/%s/threads/%s/following", userID, teamID, threadID)
	if state {
		return c.doPut(ctx, path, nil, nil)
	}
	return c.do(ctx, "DELETE", path, nil, nil)
}

// MarkAllThreadsAsRead marks every thread in a team read.
func (c *Client) MarkAllThreadsAsRead(ctx context.Context, userID, teamID string) error {
	path := fmt.Sprintf("/users/%s/teams/%s/threads/read", userID, teamID)
	return c.doPut(ctx, path, nil, nil)
}
