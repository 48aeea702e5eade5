package atproto

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"atproto-mcp/internal/batch"
	"atproto-mcp/internal/domain"
	"atproto-mcp/internal/tool"
)

// fakeRunner records commands and answers them from a callback.
type fakeRunner struct {
	mu    sync.Mutex
	calls []domain.Command
	reply func(cmd domain.Command) (string, error)
}

func (f *fakeRunner) Run(_ context.Context, cmd domain.Command) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	if f.reply == nil {
		return "ok", nil
	}
	return f.reply(cmd)
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRunner) last() domain.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newCatalog(t *testing.T, r domain.Runner) *tool.Catalog {
	t.Helper()
	ts := NewToolset(NewClient(r), batch.NewEngine(testLogger(), nil))
	cat, err := tool.NewCatalog(testLogger(), ts.Groups()...)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return cat
}

func call(t *testing.T, cat *tool.Catalog, name string, args map[string]any) (any, error) {
	t.Helper()
	tl, ok := cat.Lookup(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	return tl.Execute(context.Background(), args)
}

// roundTrip decodes a payload the way a client sees it.
func roundTrip(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestGroups_CatalogIsComplete(t *testing.T) {
	cat := newCatalog(t, &fakeRunner{})
	want := []string{
		"auth_login", "auth_logout", "auth_whoami", "auth_is_authenticated",
		"post_create", "user_follow", "user_unfollow",
		"feed_read",
		"post_like", "post_repost", "post_reply", "post_delete",
		"follow_user", "unfollow_user", "get_followers", "get_following", "block_user", "unblock_user",
		"search_posts", "read_feed", "search_users",
		"post_with_image", "upload_media", "post_with_gallery", "post_with_video",
		"batch_post", "batch_follow", "batch_unfollow", "batch_like", "batch_from_file",
	}
	if got := strings.Join(cat.Names(), ","); got != strings.Join(want, ",") {
		t.Fatalf("catalog mismatch:\n got %s\nwant %s", got, strings.Join(want, ","))
	}
	for _, d := range cat.Definitions() {
		var schema map[string]any
		if err := json.Unmarshal(d.InputSchema, &schema); err != nil || schema["type"] != "object" {
			t.Fatalf("%s: bad schema %s", d.Name, d.InputSchema)
		}
	}
}

func TestLogin_CredentialsScopedToChild(t *testing.T) {
	r := &fakeRunner{}
	cat := newCatalog(t, r)
	if _, err := call(t, cat, "auth_login", map[string]any{"handle": "me.bsky.social", "password": "hunter2"}); err != nil {
		t.Fatalf("auth_login: %v", err)
	}
	cmd := r.last()
	if cmd.Subcommand != "login" || len(cmd.Args) != 0 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if cmd.Env[EnvHandle] != "me.bsky.social" || cmd.Env[EnvPassword] != "hunter2" {
		t.Fatalf("credentials not passed to child: %+v", cmd.Env)
	}
	if _, set := os.LookupEnv(EnvPassword); set {
		t.Fatal("password leaked into the process environment")
	}
}

func TestLogin_FailureLeavesEnvironmentClean(t *testing.T) {
	r := &fakeRunner{reply: func(domain.Command) (string, error) {
		return "", domain.CommandFailure("invalid credentials", nil)
	}}
	cat := newCatalog(t, r)
	_, err := call(t, cat, "auth_login", map[string]any{"handle": "me.bsky.social", "password": "wrong"})
	if domain.CodeOf(err) != domain.CodeCommandFailure {
		t.Fatalf("expected command failure, got %v", err)
	}
	for _, k := range []string{EnvHandle, EnvPassword} {
		if _, set := os.LookupEnv(k); set {
			t.Fatalf("%s present in process environment", k)
		}
	}
}

func TestIsAuthenticated_NeverFails(t *testing.T) {
	r := &fakeRunner{reply: func(domain.Command) (string, error) { return "", errors.New("not logged in") }}
	got, err := call(t, newCatalog(t, r), "auth_is_authenticated", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m := roundTrip(t, got); m["authenticated"] != false {
		t.Fatalf("unexpected payload: %v", m)
	}
}

func TestPostCreate_QuotesText(t *testing.T) {
	r := &fakeRunner{}
	_, err := call(t, newCatalog(t, r), "post_create", map[string]any{"text": "it's $HOME", "image": "/tmp/cat.png"})
	if err != nil {
		t.Fatal(err)
	}
	cmd := r.last()
	want := []string{"--image", "'/tmp/cat.png'", `'it'"'"'s $HOME'`}
	if strings.Join(cmd.Args, " ") != strings.Join(want, " ") {
		t.Fatalf("args: got %q", cmd.Args)
	}
}

func TestFeedAndSearch_Defaults(t *testing.T) {
	r := &fakeRunner{}
	cat := newCatalog(t, r)

	got, err := call(t, cat, "feed_read", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cmd := r.last(); cmd.Subcommand != "feed" || cmd.Args[0] != "10" {
		t.Fatalf("unexpected feed command: %+v", cmd)
	}
	if m := roundTrip(t, got); m["feed"] != "ok" || m["success"] != true {
		t.Fatalf("unexpected payload: %v", m)
	}

	if _, err := call(t, cat, "search_posts", map[string]any{"query": "go"}); err != nil {
		t.Fatal(err)
	}
	if cmd := r.last(); cmd.Subcommand != "search" || cmd.Args[1] != "20" {
		t.Fatalf("unexpected search command: %+v", cmd)
	}

	if _, err := call(t, cat, "read_feed", map[string]any{"limit": 500}); domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("expected validation error for limit, got %v", err)
	}
}

func TestFollowers_OptionalArguments(t *testing.T) {
	r := &fakeRunner{}
	cat := newCatalog(t, r)
	if _, err := call(t, cat, "get_followers", nil); err != nil {
		t.Fatal(err)
	}
	if cmd := r.last(); cmd.Subcommand != "followers" || len(cmd.Args) != 0 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	got, err := call(t, cat, "get_following", map[string]any{"handle": "a.bsky.social", "limit": 5})
	if err != nil {
		t.Fatal(err)
	}
	if cmd := r.last(); strings.Join(cmd.Args, " ") != "'a.bsky.social' 5" {
		t.Fatalf("unexpected args: %q", cmd.Args)
	}
	if m := roundTrip(t, got); m["following"] != "ok" {
		t.Fatalf("unexpected payload: %v", m)
	}
}

func TestMissingArgumentMakesNoCall(t *testing.T) {
	r := &fakeRunner{}
	_, err := call(t, newCatalog(t, r), "post_reply", map[string]any{"uri": "at://x"})
	if domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if r.count() != 0 {
		t.Fatalf("expected no external call, got %d", r.count())
	}
}

func TestGallery_Bounds(t *testing.T) {
	imgs := func(n int) []any {
		out := make([]any, n)
		for i := range out {
			out[i] = "/tmp/img.png"
		}
		return out
	}
	for _, n := range []int{0, 5} {
		r := &fakeRunner{}
		_, err := call(t, newCatalog(t, r), "post_with_gallery", map[string]any{"text": "hi", "images": imgs(n)})
		if domain.CodeOf(err) != domain.CodeValidation {
			t.Fatalf("%d images: expected validation error, got %v", n, err)
		}
		if r.count() != 0 {
			t.Fatalf("%d images: expected no external call, got %d", n, r.count())
		}
	}
	for n := 1; n <= 4; n++ {
		r := &fakeRunner{}
		got, err := call(t, newCatalog(t, r), "post_with_gallery", map[string]any{"text": "hi", "images": imgs(n)})
		if err != nil {
			t.Fatalf("%d images: %v", n, err)
		}
		if r.count() != 1 {
			t.Fatalf("%d images: expected exactly one call, got %d", n, r.count())
		}
		note, _ := roundTrip(t, got)["note"].(string)
		if (n > 1) != (note != "") {
			t.Fatalf("%d images: unexpected note %q", n, note)
		}
	}
}

func TestUploadMedia(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.png")
	big := filepath.Join(dir, "big.jpg")
	other := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(small, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(big, make([]byte, maxImageBytes+1), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(other, []byte("pdf"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &fakeRunner{}
	cat := newCatalog(t, r)

	got, err := call(t, cat, "upload_media", map[string]any{"filepath": small})
	if err != nil {
		t.Fatal(err)
	}
	if m := roundTrip(t, got); m["kind"] != "image" || m["size"] != float64(3) {
		t.Fatalf("unexpected payload: %v", m)
	}
	if _, err := call(t, cat, "upload_media", map[string]any{"filepath": big}); domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("oversized image: got %v", err)
	}
	if _, err := call(t, cat, "upload_media", map[string]any{"filepath": other}); domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("unsupported type: got %v", err)
	}
	if _, err := call(t, cat, "upload_media", map[string]any{"filepath": filepath.Join(dir, "missing.png")}); domain.CodeOf(err) != domain.CodeIOFailure {
		t.Fatalf("missing file: got %v", err)
	}
	if r.count() != 0 {
		t.Fatal("upload_media must not invoke the program")
	}
}

func failFor(key string) func(domain.Command) (string, error) {
	return func(cmd domain.Command) (string, error) {
		for _, a := range cmd.Args {
			if strings.Contains(a, key) {
				return "", domain.CommandFailure("could not resolve "+key, nil)
			}
		}
		return cmd.Subcommand + " done", nil
	}
}

func TestBatchFollow_PartialFailure(t *testing.T) {
	r := &fakeRunner{reply: failFor("b.bsky.social")}
	got, err := call(t, newCatalog(t, r), "batch_follow", map[string]any{
		"handles": []any{"a.bsky.social", "b.bsky.social"},
	})
	if err != nil {
		t.Fatalf("batch_follow: %v", err)
	}

	m := roundTrip(t, got)
	if m["total"] != float64(2) || m["successful"] != float64(1) || m["failed"] != float64(1) {
		t.Fatalf("unexpected counts: %v", m)
	}
	results := m["results"].([]any)
	first := results[0].(map[string]any)
	second := results[1].(map[string]any)
	if first["success"] != true || first["handle"] != "a.bsky.social" || first["output"] != "follow done" {
		t.Fatalf("unexpected first result: %v", first)
	}
	if second["success"] != false || second["handle"] != "b.bsky.social" {
		t.Fatalf("unexpected second result: %v", second)
	}
	if !strings.Contains(second["error"].(string), "could not resolve b.bsky.social") {
		t.Fatalf("error should carry the diagnostic: %v", second["error"])
	}
}

func TestBatchPost_EmptyTextFailsItemOnly(t *testing.T) {
	r := &fakeRunner{}
	got, err := call(t, newCatalog(t, r), "batch_post", map[string]any{
		"posts": []any{map[string]any{"text": ""}, map[string]any{"text": "hello"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	rep := got.(batch.Report)
	if rep.Successful != 1 || rep.Failed != 1 || r.count() != 1 {
		t.Fatalf("unexpected report: %+v (calls=%d)", rep, r.count())
	}
}

func TestBatchFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.json")
	content := `{"posts":[{"text":"one"},{"text":"two"}],"likes":["at://ok","at://bad"]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	r := &fakeRunner{reply: failFor("at://bad")}
	got, err := call(t, newCatalog(t, r), "batch_from_file", map[string]any{"filepath": path})
	if err != nil {
		t.Fatalf("batch_from_file: %v", err)
	}
	rep := got.(FileReport)
	if rep.Summary["posts"] != "2/2" || rep.Summary["likes"] != "1/2" {
		t.Fatalf("unexpected summary: %v", rep.Summary)
	}
	if _, has := rep.Summary["follows"]; has {
		t.Fatal("absent category must not be reported")
	}
	if rep.Details["likes"].Results[1].Key != "at://bad" {
		t.Fatalf("unexpected details: %+v", rep.Details["likes"])
	}
}

func TestBatchFromFile_Unreadable(t *testing.T) {
	r := &fakeRunner{}
	_, err := call(t, newCatalog(t, r), "batch_from_file", map[string]any{"filepath": filepath.Join(t.TempDir(), "none.json")})
	if domain.CodeOf(err) != domain.CodeIOFailure {
		t.Fatalf("expected io failure, got %v", err)
	}
	if r.count() != 0 {
		t.Fatal("no command should run")
	}
}
