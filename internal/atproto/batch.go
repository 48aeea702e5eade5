package atproto

import (
	"context"
	"fmt"

	"atproto-mcp/internal/batch"
	"atproto-mcp/internal/domain"
	"atproto-mcp/internal/tool"
)

type batchPostArgs struct {
	Posts []batch.PostSpec `json:"posts" validate:"required" jsonschema_description:"Array of posts to create"`
}

type batchHandlesArgs struct {
	Handles []string `json:"handles" validate:"required" jsonschema_description:"Array of user handles (e.g., user.bsky.social)"`
}

type batchURIsArgs struct {
	URIs []string `json:"uris" validate:"required" jsonschema_description:"Array of post URIs (at://... format)"`
}

type batchFileArgs struct {
	Filepath string `json:"filepath" validate:"required" jsonschema_description:"Path to a JSON or YAML file containing posts, follows, and/or likes arrays"`
}

// FileReport is the result of batch_from_file. Only categories present in
// the file appear in Summary and Details.
type FileReport struct {
	Success  bool                    `json:"success"`
	Filepath string                  `json:"filepath"`
	Summary  map[string]string       `json:"summary"`
	Details  map[string]batch.Report `json:"details"`
}

func (ts *Toolset) batchGroup() tool.Group {
	return tool.Group{Name: GroupBatch, Tools: []domain.Tool{
		tool.New("batch_post", "Create multiple posts in batch. Useful for scheduling content or bulk posting.",
			func(ctx context.Context, in batchPostArgs) (batch.Report, error) {
				return ts.postAll(ctx, in.Posts), nil
			}),
		tool.New("batch_follow", "Follow multiple users in batch. Useful for bulk relationship management.",
			func(ctx context.Context, in batchHandlesArgs) (batch.Report, error) {
				return ts.followAll(ctx, in.Handles), nil
			}),
		tool.New("batch_unfollow", "Unfollow multiple users in batch.",
			func(ctx context.Context, in batchHandlesArgs) (batch.Report, error) {
				return ts.engine.Run(ctx, "batch_unfollow", batch.KindHandle, ts.handleItems(in.Handles, ts.client.Unfollow)), nil
			}),
		tool.New("batch_like", "Like multiple posts in batch.",
			func(ctx context.Context, in batchURIsArgs) (batch.Report, error) {
				return ts.likeAll(ctx, in.URIs), nil
			}),
		tool.New("batch_from_file",
			"Execute batch operations from a JSON or YAML file. The file may contain posts, follows, and/or likes arrays.",
			ts.runFile),
	}}
}

func (ts *Toolset) postAll(ctx context.Context, posts []batch.PostSpec) batch.Report {
	items := make([]batch.Item, len(posts))
	for i, p := range posts {
		items[i] = batch.Item{Key: p.Text, Do: func(ctx context.Context) (string, error) {
			if p.Text == "" {
				return "", domain.Validationf("missing required argument: text")
			}
			return ts.client.Post(ctx, p.Text, p.Image)
		}}
	}
	return ts.engine.Run(ctx, "batch_post", batch.KindText, items)
}

func (ts *Toolset) followAll(ctx context.Context, handles []string) batch.Report {
	return ts.engine.Run(ctx, "batch_follow", batch.KindHandle, ts.handleItems(handles, ts.client.Follow))
}

func (ts *Toolset) likeAll(ctx context.Context, uris []string) batch.Report {
	return ts.engine.Run(ctx, "batch_like", batch.KindURI, ts.handleItems(uris, ts.client.Like))
}

func (ts *Toolset) handleItems(keys []string, op func(context.Context, string) (string, error)) []batch.Item {
	items := make([]batch.Item, len(keys))
	for i, k := range keys {
		items[i] = batch.Item{Key: k, Do: func(ctx context.Context) (string, error) {
			return op(ctx, k)
		}}
	}
	return items
}

func (ts *Toolset) runFile(ctx context.Context, in batchFileArgs) (FileReport, error) {
	b, err := batch.LoadBundle(in.Filepath)
	if err != nil {
		return FileReport{}, err
	}

	rep := FileReport{
		Success:  true,
		Filepath: in.Filepath,
		Summary:  make(map[string]string),
		Details:  make(map[string]batch.Report),
	}
	for _, cat := range b.Categories() {
		var r batch.Report
		switch cat {
		case batch.CategoryPosts:
			r = ts.postAll(ctx, b.Posts)
		case batch.CategoryFollows:
			r = ts.followAll(ctx, b.Follows)
		case batch.CategoryLikes:
			r = ts.likeAll(ctx, b.Likes)
		}
		rep.Details[cat] = r
		rep.Summary[cat] = fmt.Sprintf("%d/%d", r.Successful, r.Total)
	}
	return rep, nil
}
