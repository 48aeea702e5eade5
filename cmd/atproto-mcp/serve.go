package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"atproto-mcp/internal/channel"
	"atproto-mcp/internal/domain"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"mcp-server"},
		Short:   "Serve MCP over stdin/stdout",
		Long: `Serves the tool catalog over MCP on stdin/stdout until the client closes
the stream or the process is interrupted. The optional HTTP API and cron
schedules run alongside when enabled in the config.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	logger = a.logger

	channels := []domain.Channel{channel.NewStdio(channel.StdioConfig{
		Dispatcher: a.dispatcher,
		Logger:     a.logger,
		Version:    version,
		In:         os.Stdin,
		Out:        os.Stdout,
	})}
	if cfg.HTTP.Enabled {
		channels = append(channels, channel.NewHTTP(channel.HTTPConfig{
			Host:       cfg.HTTP.Host,
			Port:       cfg.HTTP.Port,
			Token:      cfg.HTTP.Token,
			Version:    version,
			Dispatcher: a.dispatcher,
			Metrics:    a.metrics,
			Activity:   a.logs,
			Logger:     a.logger,
		}))
	}
	sched, err := a.scheduler()
	if err != nil {
		return err
	}
	if sched != nil {
		channels = append(channels, sched)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range channels {
		g.Go(func() error {
			err := ch.Start(gctx)
			// Any channel stopping ends the server; stdin closing is the usual case.
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", ch.Name(), err)
			}
			return nil
		})
	}

	logger.Info("server started",
		"name", channel.ServerName,
		"version", version,
		"tools", a.catalog.Len(),
		"program", a.runner.Program(),
		"http", cfg.HTTP.Enabled,
	)

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		logger.Info("server stopped")
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	select {
	case err := <-done:
		logger.Info("shutdown complete")
		return err
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}
