// ABOUTME: Post fetchers: pages, since-watermark deltas, and thread replies
// ABOUTME: The server returns posts as an id-keyed map plus a display order

package client

import (
	"context"
	"fmt"

	"github.com/2389/chatsync/model"
)

// Thread fetch directions relative to the anchor point.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// PostList is the server's post collection payload. Order lists post ids
// newest first; PrevPostID anchors pagination.
type PostList struct {
	Order      []string               `json:"order"`
	Posts      map[string]*model.Post `json:"posts"`
	PrevPostID string                 `json:"prev_post_id"`
}

// OrderedPosts flattens the list into display order.
func (pl *PostList) OrderedPosts() []*model.Post {
	posts := make([]*model.Post, 0, len(pl.Order))
	for _, id := range pl.Order {
		if p, ok := pl.Posts[id]; ok {
			posts = append(posts, p)
		}
	}
	return posts
}

// GetPostsForChannel returns one page of a channel's newest posts.
func (c *Client) GetPostsForChannel(ctx context.Context, channelID string, page, perPage int) (*PostList, error) {
	var list PostList
	path := fmt.Sprintf("/channels/%s/posts?page=%d&per_page=%d", channelID, page, perPage)
	if err := c.doGet(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetPostsSince returns all posts in a channel changed after the watermark,
// including deleted ones so local copies can be purged.
func (c *Client) GetPostsSince(ctx context.Context, channelID string, since int64) (*PostList, error) {
	var list PostList
	path := fmt.Sprintf("/channels/%s/posts?since=%d", channelID, since)
	if err := c.doGet(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetPostsBefore returns one page of posts older than the given post.
func (c *Client) GetPostsBefore(ctx context.Context, channelID, beforePostID string, perPage int) (*PostList, error) {
	var list PostList
	path := fmt.Sprintf("/channels/%s/posts?before=%s&per_page=%d", channelID, beforePostID, perPage)
	if err := c.doGet(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetPostThread returns the reply chain for a root post. fromCreateAt and
// fromPost anchor incremental fetches in the given direction.
func (c *Client) GetPostThread(ctx context.Context, rootID string, fromCreateAt int64, fromPost, direction string) (*PostList, error) {
	var list PostList
	path := fmt.Sprintf("/posts/%s/thread?fromCreateAt=%d&fromPost=%s&direction=%s&perPage=60",
		rootID, fromCreateAt, fromPost, direction)
	if err := c.doGet(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}
