package domain

import "context"

// Channel is a caller-facing transport (MCP stdio, HTTP).
type Channel interface {
	Name() string
	// Start serves until ctx is cancelled or the transport closes.
	Start(ctx context.Context) error
}
