package domain

import (
	"context"
	"time"
)

// Command is one invocation of the external program:
// <program> <Subcommand> <Args...>, joined with single spaces.
type Command struct {
	Subcommand string
	Args       []string
	// Env holds variables visible to this child process only.
	Env map[string]string
}

// Runner executes external commands and returns their trimmed standard output.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// AuditEntry is one persisted tool call.
type AuditEntry struct {
	ID         int64     `json:"id"`
	CallID     string    `json:"call_id"`
	ToolName   string    `json:"tool_name"`
	Arguments  string    `json:"arguments"`
	IsError    bool      `json:"is_error"`
	Result     string    `json:"result"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditStore persists tool calls for later inspection.
type AuditStore interface {
	Record(ctx context.Context, entry AuditEntry) error
	Recent(ctx context.Context, limit int) ([]AuditEntry, error)
	Close() error
}
