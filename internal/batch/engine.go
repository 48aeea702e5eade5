// Package batch applies one single-target operation to many targets and
// records a per-target outcome for each of them.
package batch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Kind names the key an outcome is reported under.
type Kind string

const (
	KindText   Kind = "text"
	KindHandle Kind = "handle"
	KindURI    Kind = "uri"
)

// Item is one target of a batch run. Do performs the single-target
// operation and returns its output.
type Item struct {
	Key string
	Do  func(ctx context.Context) (string, error)
}

// Outcome is the result of one item. Exactly one of Output and Error is
// meaningful, selected by Success.
type Outcome struct {
	Success bool
	Kind    Kind
	Key     string
	Output  string
	Error   string
}

// MarshalJSON renders the outcome keyed by its kind, e.g.
// {"success":true,"handle":"a.bsky.social","output":"..."}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	kind := o.Kind
	if kind == "" {
		kind = KindText
	}
	m := map[string]any{
		"success":    o.Success,
		string(kind): o.Key,
	}
	if o.Success {
		m["output"] = o.Output
	} else {
		m["error"] = o.Error
	}
	return json.Marshal(m)
}

// Report is the aggregate of a batch run.
// Successful + Failed == Total == len(Results) always holds.
type Report struct {
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Results    []Outcome `json:"results"`
}

// Pacer throttles item execution. *RateLimiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Engine runs batches sequentially in input order.
type Engine struct {
	logger *slog.Logger
	pacer  Pacer
}

// NewEngine creates an engine. pacer may be nil for unthrottled runs.
func NewEngine(logger *slog.Logger, pacer Pacer) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, pacer: pacer}
}

// Run executes every item in order. A failing item never stops the run.
// Once ctx is done, the remaining items are recorded as skipped failures.
func (e *Engine) Run(ctx context.Context, op string, kind Kind, items []Item) Report {
	start := time.Now()
	rep := Report{Total: len(items), Results: make([]Outcome, 0, len(items))}

	for i, it := range items {
		out := Outcome{Kind: kind, Key: it.Key}

		err := ctx.Err()
		if err == nil && e.pacer != nil {
			err = e.pacer.Wait(ctx)
		}
		if err != nil {
			out.Error = "skipped: " + err.Error()
			rep.Results = append(rep.Results, out)
			continue
		}

		output, err := e.do(ctx, it)
		if err != nil {
			out.Error = err.Error()
			e.logger.Warn("batch item failed", "op", op, "index", i, string(kind), it.Key, "err", err)
		} else {
			out.Success = true
			out.Output = output
		}
		rep.Results = append(rep.Results, out)
	}

	for _, r := range rep.Results {
		if r.Success {
			rep.Successful++
		}
	}
	rep.Failed = rep.Total - rep.Successful

	e.logger.Info("batch finished",
		"op", op,
		"total", rep.Total,
		"successful", rep.Successful,
		"failed", rep.Failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return rep
}

func (e *Engine) do(ctx context.Context, it Item) (output string, err error) {
	if it.Do == nil {
		return "", errNoOperation
	}
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return it.Do(ctx)
}
