package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"atproto-mcp/internal/activity"
	"atproto-mcp/internal/atproto"
	"atproto-mcp/internal/audit"
	"atproto-mcp/internal/batch"
	"atproto-mcp/internal/config"
	"atproto-mcp/internal/dispatch"
	"atproto-mcp/internal/metrics"
	"atproto-mcp/internal/runner"
	"atproto-mcp/internal/schedule"
	"atproto-mcp/internal/tool"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg        *config.Config
	logs       *activity.Log
	logger     *slog.Logger
	runner     *runner.Shell
	client     *atproto.Client
	catalog    *tool.Catalog
	metrics    *metrics.Collector
	audit      *audit.SQLiteStore
	dispatcher *dispatch.Dispatcher
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logs := activity.New(activity.Options{
		Level:   activity.ParseLevel(cfg.General.LogLevel),
		Console: cfg.General.LogConsole,
	})
	a := &app{cfg: cfg, logs: logs, logger: logs.Logger()}

	a.runner = runner.New(runner.Config{
		Program:        cfg.CLI.Program,
		TimeoutSeconds: cfg.CLI.TimeoutSeconds,
		MaxOutputBytes: cfg.CLI.MaxOutputBytes,
		Logger:         a.logger,
	})
	a.client = atproto.NewClient(a.runner)

	engine := batch.NewEngine(a.logger.With("component", "batch"), batch.NewRateLimiter(cfg.Batch.RatePerMinute, cfg.Batch.Burst))
	toolset := atproto.NewToolset(a.client, engine)

	catalog, err := tool.NewCatalog(a.logger, toolset.Groups()...)
	if err != nil {
		return nil, fmt.Errorf("tool catalog: %w", err)
	}
	a.catalog = catalog

	a.metrics = metrics.New(metrics.Prefix)
	opts := dispatch.Options{Metrics: metrics.NewDispatch(a.metrics)}

	if cfg.Audit.Enabled {
		store, err := audit.NewSQLiteStore(cfg.Audit.DBPath, a.logger)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		a.audit = store
		opts.Audit = store
		if cfg.Audit.RetentionDays > 0 {
			retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
			if n, err := store.Prune(ctx, retention); err != nil {
				a.logger.Warn("audit prune failed", "err", err)
			} else if n > 0 {
				a.logger.Info("audit pruned", "deleted", n, "retention_days", cfg.Audit.RetentionDays)
			}
		}
	}

	a.dispatcher = dispatch.New(catalog, a.logger, opts)
	return a, nil
}

// scheduler builds the cron service for every enabled schedule, or nil
// when none is enabled.
func (a *app) scheduler() (*schedule.Service, error) {
	var svc *schedule.Service
	for _, s := range a.cfg.Schedules {
		if !s.Enabled {
			continue
		}
		if svc == nil {
			svc = schedule.New(a.dispatcher, a.logger)
		}
		if err := svc.Add(schedule.Job{Name: s.Name, Cron: s.Cron, File: s.File}); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", s.Name, err)
		}
	}
	return svc, nil
}

func (a *app) Close() error {
	if a.audit != nil {
		return a.audit.Close()
	}
	return nil
}
