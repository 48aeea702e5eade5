// Package atproto maps Bluesky operations onto subcommands of the atproto
// program and exposes them as tools.
package atproto

import (
	"context"
	"strconv"

	"atproto-mcp/internal/domain"
	"atproto-mcp/internal/runner"
)

// Credential variables read by `atproto login`.
const (
	EnvHandle   = "BLUESKY_HANDLE"
	EnvPassword = "BLUESKY_PASSWORD"
)

// Client issues atproto subcommands through a domain.Runner. Every
// caller-supplied value is quoted as a single shell word.
type Client struct {
	runner domain.Runner
}

func NewClient(r domain.Runner) *Client {
	return &Client{runner: r}
}

func (c *Client) run(ctx context.Context, sub string, args ...string) (string, error) {
	return c.runner.Run(ctx, domain.Command{Subcommand: sub, Args: args})
}

// Login authenticates with the credentials visible to the child process only.
func (c *Client) Login(ctx context.Context, handle, password string) (string, error) {
	return c.runner.Run(ctx, domain.Command{
		Subcommand: "login",
		Env: map[string]string{
			EnvHandle:   handle,
			EnvPassword: password,
		},
	})
}

func (c *Client) Logout(ctx context.Context) (string, error) { return c.run(ctx, "logout") }
func (c *Client) Whoami(ctx context.Context) (string, error) { return c.run(ctx, "whoami") }

// Post creates a post, attaching image when it is not empty.
func (c *Client) Post(ctx context.Context, text, image string) (string, error) {
	var args []string
	if image != "" {
		args = append(args, "--image", runner.Quote(image))
	}
	args = append(args, runner.Quote(text))
	return c.run(ctx, "post", args...)
}

func (c *Client) Reply(ctx context.Context, uri, text string) (string, error) {
	return c.run(ctx, "reply", runner.Quote(uri), runner.Quote(text))
}

func (c *Client) Like(ctx context.Context, uri string) (string, error) {
	return c.run(ctx, "like", runner.Quote(uri))
}

func (c *Client) Repost(ctx context.Context, uri string) (string, error) {
	return c.run(ctx, "repost", runner.Quote(uri))
}

func (c *Client) Delete(ctx context.Context, uri string) (string, error) {
	return c.run(ctx, "delete", runner.Quote(uri))
}

func (c *Client) Follow(ctx context.Context, handle string) (string, error) {
	return c.run(ctx, "follow", runner.Quote(handle))
}

func (c *Client) Unfollow(ctx context.Context, handle string) (string, error) {
	return c.run(ctx, "unfollow", runner.Quote(handle))
}

func (c *Client) Block(ctx context.Context, handle string) (string, error) {
	return c.run(ctx, "block", runner.Quote(handle))
}

func (c *Client) Unblock(ctx context.Context, handle string) (string, error) {
	return c.run(ctx, "unblock", runner.Quote(handle))
}

// Followers lists followers of handle, or of the current user when handle
// is empty. A zero limit leaves the program's default in place.
func (c *Client) Followers(ctx context.Context, handle string, limit int) (string, error) {
	return c.run(ctx, "followers", listArgs(handle, limit)...)
}

func (c *Client) Following(ctx context.Context, handle string, limit int) (string, error) {
	return c.run(ctx, "following", listArgs(handle, limit)...)
}

func (c *Client) Feed(ctx context.Context, limit int) (string, error) {
	return c.run(ctx, "feed", strconv.Itoa(limit))
}

func (c *Client) Search(ctx context.Context, query string, limit int) (string, error) {
	return c.run(ctx, "search", runner.Quote(query), strconv.Itoa(limit))
}

func listArgs(handle string, limit int) []string {
	var args []string
	if handle != "" {
		args = append(args, runner.Quote(handle))
	}
	if limit > 0 {
		args = append(args, strconv.Itoa(limit))
	}
	return args
}
