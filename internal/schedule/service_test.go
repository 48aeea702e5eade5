package schedule

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"atproto-mcp/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeCaller struct {
	mu    sync.Mutex
	calls []map[string]any
	fail  bool
}

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != BundleTool {
		return nil, domain.UnknownTool(name)
	}
	f.calls = append(f.calls, args)
	if f.fail {
		return mcp.NewToolResultError("Error: parse bundle: unexpected EOF"), nil
	}
	return mcp.NewToolResultText(`{"success": true}`), nil
}

func (f *fakeCaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestService_AddValidates(t *testing.T) {
	s := New(&fakeCaller{}, testLogger())
	if err := s.Add(Job{Name: "bad", Cron: "not a cron", File: "/tmp/x.json"}); domain.CodeOf(err) != domain.CodeConfig {
		t.Fatalf("expected config error, got %v", err)
	}
	if err := s.Add(Job{Name: "", Cron: "@hourly", File: "/tmp/x.json"}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if err := s.Add(Job{Name: "daily", Cron: "0 9 * * *", File: "/tmp/x.json"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(Job{Name: "daily", Cron: "@hourly", File: "/tmp/y.json"}); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestService_RunNow(t *testing.T) {
	caller := &fakeCaller{}
	s := New(caller, testLogger())
	if err := s.Add(Job{Name: "morning", Cron: "@daily", File: "/data/morning.json"}); err != nil {
		t.Fatal(err)
	}

	out, err := s.RunNow(context.Background(), "morning")
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if out != `{"success": true}` {
		t.Fatalf("unexpected output: %q", out)
	}
	if caller.calls[0]["filepath"] != "/data/morning.json" {
		t.Fatalf("unexpected args: %v", caller.calls[0])
	}

	st := s.Status()
	if len(st) != 1 || st[0].Runs != 1 || st[0].LastError != "" || st[0].LastRun.IsZero() {
		t.Fatalf("unexpected status: %+v", st)
	}

	if _, err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown schedule")
	}
}

func TestService_RunNowRecordsFailure(t *testing.T) {
	s := New(&fakeCaller{fail: true}, testLogger())
	if err := s.Add(Job{Name: "broken", Cron: "@daily", File: "/data/broken.json"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RunNow(context.Background(), "broken"); err == nil {
		t.Fatal("expected error from flagged result")
	}
	if st := s.Status(); st[0].LastError == "" {
		t.Fatalf("failure not recorded: %+v", st[0])
	}
}

func TestService_StartFiresJobs(t *testing.T) {
	caller := &fakeCaller{}
	s := New(caller, testLogger())
	if err := s.Add(Job{Name: "tick", Cron: "* * * * * *", File: "/data/tick.json"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for caller.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}
	if caller.count() == 0 {
		t.Fatal("scheduled job never ran")
	}
}

func TestService_StatusNextRunBeforeStart(t *testing.T) {
	s := New(&fakeCaller{}, testLogger())
	if err := s.Add(Job{Name: "hourly", Cron: "@hourly", File: "/tmp/x.json"}); err != nil {
		t.Fatal(err)
	}
	st := s.Status()
	if len(st) != 1 {
		t.Fatalf("expected 1 job, got %d", len(st))
	}
	if st[0].NextRun.IsZero() || time.Until(st[0].NextRun) > time.Hour {
		t.Fatalf("unexpected next run %v", st[0].NextRun)
	}
}
