package batch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ok(out string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return out, nil }
}

func fail(msg string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", errors.New(msg) }
}

func checkCounts(t *testing.T, rep Report) {
	t.Helper()
	if rep.Successful+rep.Failed != rep.Total || rep.Total != len(rep.Results) {
		t.Fatalf("inconsistent report: total=%d successful=%d failed=%d results=%d",
			rep.Total, rep.Successful, rep.Failed, len(rep.Results))
	}
}

func TestEngine_EmptySet(t *testing.T) {
	e := NewEngine(testLogger(), nil)
	rep := e.Run(context.Background(), "batch_like", KindURI, nil)
	checkCounts(t, rep)
	if rep.Total != 0 {
		t.Fatalf("expected empty report, got %+v", rep)
	}

	data, err := json.Marshal(rep)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"results":[]`) {
		t.Fatalf("results should encode as an empty list: %s", data)
	}
}

func TestEngine_PartialFailureKeepsGoing(t *testing.T) {
	e := NewEngine(testLogger(), nil)
	var seen []string
	track := func(key string, fn func(context.Context) (string, error)) Item {
		return Item{Key: key, Do: func(ctx context.Context) (string, error) {
			seen = append(seen, key)
			return fn(ctx)
		}}
	}
	rep := e.Run(context.Background(), "batch_follow", KindHandle, []Item{
		track("a.bsky.social", ok("followed a")),
		track("b.bsky.social", fail("command failed: not found")),
		track("c.bsky.social", ok("followed c")),
	})
	checkCounts(t, rep)

	if rep.Successful != 2 || rep.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", rep)
	}
	if strings.Join(seen, ",") != "a.bsky.social,b.bsky.social,c.bsky.social" {
		t.Fatalf("items should run in input order, got %v", seen)
	}
	for i, key := range []string{"a.bsky.social", "b.bsky.social", "c.bsky.social"} {
		if rep.Results[i].Key != key {
			t.Fatalf("results[%d]: got %q, want %q", i, rep.Results[i].Key, key)
		}
	}
	if rep.Results[1].Success || rep.Results[1].Error != "command failed: not found" {
		t.Fatalf("unexpected failed outcome: %+v", rep.Results[1])
	}
}

func TestEngine_AllFailingIsRepeatable(t *testing.T) {
	e := NewEngine(testLogger(), nil)
	items := []Item{
		{Key: "at://1", Do: fail("boom")},
		{Key: "at://2", Do: fail("boom")},
	}
	first := e.Run(context.Background(), "batch_like", KindURI, items)
	second := e.Run(context.Background(), "batch_like", KindURI, items)
	if first.Failed != 2 || second.Failed != 2 || second.Successful != 0 {
		t.Fatalf("expected identical failure counts, got %+v then %+v", first, second)
	}
}

func TestEngine_CancelledSkipsRemaining(t *testing.T) {
	e := NewEngine(testLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	called := 0
	items := []Item{
		{Key: "one", Do: func(context.Context) (string, error) {
			called++
			cancel()
			return "posted", nil
		}},
		{Key: "two", Do: func(context.Context) (string, error) { called++; return "posted", nil }},
		{Key: "three", Do: func(context.Context) (string, error) { called++; return "posted", nil }},
	}
	rep := e.Run(ctx, "batch_post", KindText, items)
	checkCounts(t, rep)

	if called != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", called)
	}
	if rep.Successful != 1 || rep.Failed != 2 {
		t.Fatalf("unexpected counts: %+v", rep)
	}
	if !strings.HasPrefix(rep.Results[2].Error, "skipped: ") {
		t.Fatalf("expected skipped error, got %q", rep.Results[2].Error)
	}
}

func TestEngine_PanicIsContained(t *testing.T) {
	e := NewEngine(testLogger(), nil)
	rep := e.Run(context.Background(), "batch_post", KindText, []Item{
		{Key: "bad", Do: func(context.Context) (string, error) { panic("kaboom") }},
		{Key: "good", Do: ok("fine")},
		{Key: "nil"},
	})
	checkCounts(t, rep)
	if rep.Successful != 1 || !strings.Contains(rep.Results[0].Error, "kaboom") {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestOutcome_MarshalKeyedByKind(t *testing.T) {
	data, err := json.Marshal(Outcome{Success: true, Kind: KindHandle, Key: "a.bsky.social", Output: "ok"})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["handle"] != "a.bsky.social" || m["output"] != "ok" || m["success"] != true {
		t.Fatalf("unexpected encoding: %s", data)
	}
	if _, has := m["error"]; has {
		t.Fatalf("success outcome must not carry an error: %s", data)
	}

	data, _ = json.Marshal(Outcome{Kind: KindURI, Key: "at://x", Error: "nope"})
	m = nil
	_ = json.Unmarshal(data, &m)
	if m["uri"] != "at://x" || m["error"] != "nope" || m["success"] != false {
		t.Fatalf("unexpected encoding: %s", data)
	}
	if _, has := m["output"]; has {
		t.Fatalf("failed outcome must not carry output: %s", data)
	}
}

type countingPacer struct{ n int }

func (p *countingPacer) Wait(ctx context.Context) error {
	p.n++
	return ctx.Err()
}

func TestEngine_PacerAwaitedPerItem(t *testing.T) {
	p := &countingPacer{}
	e := NewEngine(testLogger(), p)
	e.Run(context.Background(), "batch_like", KindURI, []Item{{Key: "a", Do: ok("")}, {Key: "b", Do: ok("")}})
	if p.n != 2 {
		t.Fatalf("expected 2 waits, got %d", p.n)
	}
}
