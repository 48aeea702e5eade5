package atproto

import (
	"context"

	"atproto-mcp/internal/domain"
	"atproto-mcp/internal/tool"
)

const (
	defaultFeedLimit   = 10
	defaultSearchLimit = 20
)

type replyArgs struct {
	URI  string `json:"uri" validate:"required" jsonschema_description:"The post URI to reply to (at://... format)"`
	Text string `json:"text" validate:"required" jsonschema_description:"The reply text content"`
}

type feedArgs struct {
	Limit int `json:"limit,omitempty" validate:"omitempty,min=1,max=100" jsonschema:"default=10,minimum=1,maximum=100" jsonschema_description:"Number of posts to retrieve (default: 10)"`
}

type feedResult struct {
	Success bool   `json:"success"`
	Feed    string `json:"feed"`
}

func (ts *Toolset) readFeed(ctx context.Context, in feedArgs) (feedResult, error) {
	limit := in.Limit
	if limit == 0 {
		limit = defaultFeedLimit
	}
	out, err := ts.client.Feed(ctx, limit)
	if err != nil {
		return feedResult{}, err
	}
	return feedResult{Success: true, Feed: out}, nil
}

func (ts *Toolset) createPost(ctx context.Context, in postArgs) (Message, error) {
	return message(ts.client.Post(ctx, in.Text, in.Image))
}

func (ts *Toolset) contentGroup() tool.Group {
	return tool.Group{Name: GroupContent, Tools: []domain.Tool{
		tool.New("post_create", "Create a new post on Bluesky", ts.createPost),
		tool.New("user_follow", "Follow a user on Bluesky",
			func(ctx context.Context, in handleArgs) (Message, error) {
				return message(ts.client.Follow(ctx, in.Handle))
			}),
		tool.New("user_unfollow", "Unfollow a user on Bluesky",
			func(ctx context.Context, in handleArgs) (Message, error) {
				return message(ts.client.Unfollow(ctx, in.Handle))
			}),
	}}
}

func (ts *Toolset) feedGroup() tool.Group {
	return tool.Group{Name: GroupFeed, Tools: []domain.Tool{
		tool.New("feed_read", "Read the user timeline/feed", ts.readFeed),
	}}
}

func (ts *Toolset) engagementGroup() tool.Group {
	return tool.Group{Name: GroupEngagement, Tools: []domain.Tool{
		tool.New("post_like", "Like a post on Bluesky",
			func(ctx context.Context, in uriArgs) (Message, error) {
				return message(ts.client.Like(ctx, in.URI))
			}),
		tool.New("post_repost", "Repost a post on Bluesky",
			func(ctx context.Context, in uriArgs) (Message, error) {
				return message(ts.client.Repost(ctx, in.URI))
			}),
		tool.New("post_reply", "Reply to a post on Bluesky",
			func(ctx context.Context, in replyArgs) (Message, error) {
				return message(ts.client.Reply(ctx, in.URI, in.Text))
			}),
		tool.New("post_delete", "Delete a post from Bluesky (must be your own post)",
			func(ctx context.Context, in uriArgs) (Message, error) {
				return message(ts.client.Delete(ctx, in.URI))
			}),
	}}
}
