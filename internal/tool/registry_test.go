package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	"atproto-mcp/internal/domain"
)

// stubTool is a minimal tool for testing the catalog.
type stubTool struct {
	name   string
	result any
	err    error
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub: " + s.name }
func (s *stubTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return s.result, s.err
}

var _ domain.Tool = (*stubTool)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCatalog_LookupAndList(t *testing.T) {
	cat, err := NewCatalog(testLogger(),
		Group{Name: "auth", Tools: []domain.Tool{&stubTool{name: "auth_login"}, &stubTool{name: "auth_logout"}}},
		Group{Name: "feed", Tools: []domain.Tool{&stubTool{name: "feed_read"}}},
	)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	got, ok := cat.Lookup("auth_logout")
	if !ok || got.Name() != "auth_logout" {
		t.Fatalf("lookup failed: %v %v", got, ok)
	}
	if _, ok := cat.Lookup("nonexistent"); ok {
		t.Fatal("expected miss for unknown tool")
	}

	names := cat.Names()
	want := []string{"auth_login", "auth_logout", "feed_read"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("expected registration order %v, got %v", want, names)
	}
	if cat.Len() != 3 || len(cat.List()) != 3 {
		t.Fatalf("expected 3 tools, got %d", cat.Len())
	}
}

func TestCatalog_DuplicateNameRejected(t *testing.T) {
	_, err := NewCatalog(testLogger(),
		Group{Name: "content", Tools: []domain.Tool{&stubTool{name: "post_create", result: "v1"}}},
		Group{Name: "engagement", Tools: []domain.Tool{&stubTool{name: "post_create", result: "v2"}}},
	)
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if domain.CodeOf(err) != domain.CodeConfig {
		t.Fatalf("code: got %q", domain.CodeOf(err))
	}
	for _, s := range []string{"post_create", "content", "engagement"} {
		if !strings.Contains(err.Error(), s) {
			t.Fatalf("error should mention %q: %v", s, err)
		}
	}
}

func TestCatalog_EmptyNameRejected(t *testing.T) {
	_, err := NewCatalog(testLogger(), Group{Name: "broken", Tools: []domain.Tool{&stubTool{}}})
	if err == nil {
		t.Fatal("expected error for empty tool name")
	}
}

func TestCatalog_ListIsACopy(t *testing.T) {
	cat, err := NewCatalog(testLogger(), Group{Name: "g", Tools: []domain.Tool{&stubTool{name: "a"}}})
	if err != nil {
		t.Fatal(err)
	}
	list := cat.List()
	list[0] = &stubTool{name: "mutated"}
	if cat.Names()[0] != "a" {
		t.Fatal("catalog must not be mutable through List")
	}
}

func TestCatalog_Definitions(t *testing.T) {
	cat, err := NewCatalog(testLogger(), Group{Name: "g", Tools: []domain.Tool{&stubTool{name: "tool1"}, &stubTool{name: "tool2"}}})
	if err != nil {
		t.Fatal(err)
	}
	defs := cat.Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[1].Name != "tool2" || defs[1].Description != "stub: tool2" || len(defs[1].InputSchema) == 0 {
		t.Fatalf("unexpected definition: %+v", defs[1])
	}
}
