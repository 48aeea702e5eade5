// Package dispatch routes list and call requests to the tool catalog and
// turns every handler outcome into a protocol response.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"atproto-mcp/internal/domain"
	"atproto-mcp/internal/metrics"
	"atproto-mcp/internal/tool"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

const redacted = "[REDACTED]"

// sensitiveArgs are argument names whose values never reach logs or the audit trail.
var sensitiveArgs = map[string]bool{"password": true, "token": true, "secret": true}

// Options wires optional collaborators into a Dispatcher.
type Options struct {
	Audit   domain.AuditStore
	Metrics *metrics.Dispatch
}

// Dispatcher is safe for concurrent use; the catalog it reads never changes.
type Dispatcher struct {
	catalog *tool.Catalog
	logger  *slog.Logger
	audit   domain.AuditStore
	metrics *metrics.Dispatch
}

func New(catalog *tool.Catalog, logger *slog.Logger, opts Options) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		catalog: catalog,
		logger:  logger.With("component", "dispatch"),
		audit:   opts.Audit,
		metrics: opts.Metrics,
	}
}

// Catalog returns the catalog the dispatcher serves.
func (d *Dispatcher) Catalog() *tool.Catalog { return d.catalog }

// ListTools returns every tool in catalog order.
func (d *Dispatcher) ListTools() []mcp.Tool {
	defs := d.catalog.Definitions()
	out := make([]mcp.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, mcp.NewToolWithRawSchema(def.Name, def.Description, def.InputSchema))
	}
	return out
}

// CallTool runs the named tool. An unknown name is returned as an error;
// any handler failure, including a panic, becomes an error-flagged result.
func (d *Dispatcher) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t, ok := d.catalog.Lookup(name)
	if !ok {
		d.logger.Warn("unknown tool", "tool", name)
		if d.metrics != nil {
			d.metrics.UnknownTool()
		}
		return nil, domain.UnknownTool(name)
	}

	callID := uuid.NewString()
	safeArgs := Redact(args)
	log := d.logger.With("call_id", callID, "tool", name)
	log.Info("tool call", "args", safeArgs)

	var done func(string, time.Duration)
	if d.metrics != nil {
		done = d.metrics.Started(name)
	}

	start := time.Now()
	payload, err := d.execute(ctx, t, args)
	elapsed := time.Since(start)

	var result *mcp.CallToolResult
	if err == nil {
		var text []byte
		text, err = json.MarshalIndent(payload, "", "  ")
		if err != nil {
			err = fmt.Errorf("encode result: %w", err)
		} else {
			result = mcp.NewToolResultText(string(text))
		}
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
		result = mcp.NewToolResultError("Error: " + err.Error())
		log.Warn("tool call failed", "elapsed", elapsed, "code", domain.CodeOf(err), "err", err)
	} else {
		log.Info("tool call succeeded", "elapsed", elapsed)
	}

	if done != nil {
		done(outcome, elapsed)
	}
	d.record(ctx, callID, name, safeArgs, result, elapsed)
	return result, nil
}

func (d *Dispatcher) record(ctx context.Context, callID, name string, args map[string]any, res *mcp.CallToolResult, elapsed time.Duration) {
	if d.audit == nil {
		return
	}
	argText, _ := json.Marshal(args)
	entry := domain.AuditEntry{
		CallID:     callID,
		ToolName:   name,
		Arguments:  string(argText),
		IsError:    res.IsError,
		Result:     ResultText(res),
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	// The call has already resolved; a cancelled request still gets its row.
	if err := d.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		d.logger.Error("audit record failed", "call_id", callID, "err", err)
	}
}

func (d *Dispatcher) execute(ctx context.Context, t domain.Tool, args map[string]any) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", t.Name(), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error in %s: %v", t.Name(), r)
		}
	}()
	return t.Execute(ctx, args)
}

// ResultText concatenates the text blocks of a result.
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Redact returns a shallow copy of args with sensitive values masked.
func Redact(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if sensitiveArgs[strings.ToLower(k)] {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}
