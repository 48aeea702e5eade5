package atproto

import (
	"context"

	"atproto-mcp/internal/domain"
	"atproto-mcp/internal/tool"
)

type loginArgs struct {
	Handle   string `json:"handle" validate:"required" jsonschema_description:"Bluesky handle (e.g., user.bsky.social)"`
	Password string `json:"password" validate:"required" jsonschema_description:"Bluesky app password"`
}

type whoamiResult struct {
	Success bool   `json:"success"`
	User    string `json:"user"`
}

type authStatus struct {
	Authenticated bool `json:"authenticated"`
}

func (ts *Toolset) authGroup() tool.Group {
	return tool.Group{Name: GroupAuth, Tools: []domain.Tool{
		tool.New("auth_login",
			"Login to Bluesky using credentials. Requires handle and password (app password recommended).",
			func(ctx context.Context, in loginArgs) (Message, error) {
				return message(ts.client.Login(ctx, in.Handle, in.Password))
			}),
		tool.New("auth_logout", "Logout from Bluesky and clear session",
			func(ctx context.Context, _ tool.NoArgs) (Message, error) {
				return message(ts.client.Logout(ctx))
			}),
		tool.New("auth_whoami", "Get information about the currently authenticated user",
			func(ctx context.Context, _ tool.NoArgs) (whoamiResult, error) {
				out, err := ts.client.Whoami(ctx)
				if err != nil {
					return whoamiResult{}, err
				}
				return whoamiResult{Success: true, User: out}, nil
			}),
		// A failed whoami means "not authenticated", not a tool failure.
		tool.New("auth_is_authenticated", "Check if currently authenticated to Bluesky",
			func(ctx context.Context, _ tool.NoArgs) (authStatus, error) {
				_, err := ts.client.Whoami(ctx)
				return authStatus{Authenticated: err == nil}, nil
			}),
	}}
}
