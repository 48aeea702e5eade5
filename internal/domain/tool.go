package domain

import (
	"context"
	"encoding/json"
)

// Tool is a named, schema-described operation exposed to MCP callers.
type Tool interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	// Execute runs the tool with caller-supplied arguments. The returned value is
	// serialized as pretty-printed JSON by the dispatcher.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ToolDefinition is the listing view of a tool.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}
