package atproto

import (
	"context"

	"atproto-mcp/internal/domain"
	"atproto-mcp/internal/tool"
)

type searchArgs struct {
	Query string `json:"query" validate:"required" jsonschema_description:"The search query string"`
	Limit int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100" jsonschema:"default=20,minimum=1,maximum=100" jsonschema_description:"Number of results to retrieve (default: 20, max: 100)"`
}

type searchResult struct {
	Success bool   `json:"success"`
	Results string `json:"results"`
}

type userQueryArgs struct {
	Query string `json:"query" validate:"required" jsonschema_description:"The search query string (handle or display name)"`
}

func (ts *Toolset) searchGroup() tool.Group {
	return tool.Group{Name: GroupSearch, Tools: []domain.Tool{
		tool.New("search_posts", "Search for posts on Bluesky matching a query",
			func(ctx context.Context, in searchArgs) (searchResult, error) {
				limit := in.Limit
				if limit == 0 {
					limit = defaultSearchLimit
				}
				out, err := ts.client.Search(ctx, in.Query, limit)
				if err != nil {
					return searchResult{}, err
				}
				return searchResult{Success: true, Results: out}, nil
			}),
		tool.New("read_feed", "Read the user timeline/feed with optional limit", ts.readFeed),
		// The atproto program has no user search subcommand yet.
		tool.New("search_users", "Search for users on Bluesky",
			func(_ context.Context, in userQueryArgs) (Message, error) {
				return Message{
					Success: true,
					Message: "Searching for users matching: " + in.Query,
					Note:    "User search is not supported by the atproto CLI yet",
				}, nil
			}),
	}}
}
