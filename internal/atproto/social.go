package atproto

import (
	"context"

	"atproto-mcp/internal/domain"
	"atproto-mcp/internal/tool"
)

type connectionsArgs struct {
	Handle string `json:"handle,omitempty" jsonschema_description:"The user handle (optional, defaults to current user)"`
	Limit  int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100" jsonschema:"minimum=1,maximum=100" jsonschema_description:"Number of accounts to retrieve (default: 50, max: 100)"`
}

type followersResult struct {
	Success   bool   `json:"success"`
	Followers string `json:"followers"`
}

type followingResult struct {
	Success   bool   `json:"success"`
	Following string `json:"following"`
}

func (ts *Toolset) socialGroup() tool.Group {
	return tool.Group{Name: GroupSocial, Tools: []domain.Tool{
		tool.New("follow_user", "Follow a user on Bluesky",
			func(ctx context.Context, in handleArgs) (Message, error) {
				return message(ts.client.Follow(ctx, in.Handle))
			}),
		tool.New("unfollow_user", "Unfollow a user on Bluesky",
			func(ctx context.Context, in handleArgs) (Message, error) {
				return message(ts.client.Unfollow(ctx, in.Handle))
			}),
		tool.New("get_followers", "Get the list of followers for a user",
			func(ctx context.Context, in connectionsArgs) (followersResult, error) {
				out, err := ts.client.Followers(ctx, in.Handle, in.Limit)
				if err != nil {
					return followersResult{}, err
				}
				return followersResult{Success: true, Followers: out}, nil
			}),
		tool.New("get_following", "Get the list of users that a user is following",
			func(ctx context.Context, in connectionsArgs) (followingResult, error) {
				out, err := ts.client.Following(ctx, in.Handle, in.Limit)
				if err != nil {
					return followingResult{}, err
				}
				return followingResult{Success: true, Following: out}, nil
			}),
		tool.New("block_user", "Block a user on Bluesky",
			func(ctx context.Context, in handleArgs) (Message, error) {
				return message(ts.client.Block(ctx, in.Handle))
			}),
		tool.New("unblock_user", "Unblock a user on Bluesky",
			func(ctx context.Context, in handleArgs) (Message, error) {
				return message(ts.client.Unblock(ctx, in.Handle))
			}),
	}}
}
