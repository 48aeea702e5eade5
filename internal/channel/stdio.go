package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"atproto-mcp/internal/dispatch"
	"atproto-mcp/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerName is reported to MCP clients during initialize.
const ServerName = "atproto-mcp-server"

type StdioConfig struct {
	Dispatcher *dispatch.Dispatcher
	Logger     *slog.Logger
	Version    string
	In         io.Reader
	Out        io.Writer
}

// Stdio serves MCP over newline-delimited JSON-RPC on stdin/stdout.
// Nothing but protocol frames is ever written to Out.
type Stdio struct {
	mcp    *server.MCPServer
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
}

var _ domain.Channel = (*Stdio)(nil)

func NewStdio(cfg StdioConfig) *Stdio {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	d := cfg.Dispatcher

	// mcp-go answers calls to unregistered tools itself. Hand the name to
	// the dispatcher anyway so the miss is logged and counted.
	hooks := &server.Hooks{}
	hooks.AddOnError(func(ctx context.Context, _ any, method mcp.MCPMethod, message any, err error) {
		req, ok := message.(*mcp.CallToolRequest)
		if method != mcp.MethodToolsCall || !ok || !errors.Is(err, server.ErrToolNotFound) {
			return
		}
		_, _ = d.CallTool(ctx, req.Params.Name, req.GetArguments())
	})

	s := server.NewMCPServer(ServerName, cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks),
	)
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return d.CallTool(ctx, req.Params.Name, req.GetArguments())
	}
	for _, t := range d.ListTools() {
		s.AddTool(t, handler)
	}

	return &Stdio{mcp: s, logger: cfg.Logger, in: cfg.In, out: cfg.Out}
}

func (s *Stdio) Name() string { return "stdio" }

// Start blocks until the input stream ends or ctx is cancelled.
func (s *Stdio) Start(ctx context.Context) error {
	srv := server.NewStdioServer(s.mcp)
	srv.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("MCP stdio server started")
	err := srv.Listen(ctx, s.in, s.out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		s.logger.Info("MCP stdio server stopped")
		return nil
	}
	return err
}
