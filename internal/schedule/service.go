// Package schedule runs batch bundle files on cron schedules through the
// dispatcher, so scheduled runs are logged, metered and audited like any
// other tool call.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"atproto-mcp/internal/dispatch"
	"atproto-mcp/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
	rcron "github.com/robfig/cron/v3"
)

// BundleTool is the tool scheduled jobs invoke.
const BundleTool = "batch_from_file"

// Caller is the part of the dispatcher a scheduler needs.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// Job runs File through batch_from_file whenever Cron fires.
type Job struct {
	Name string
	Cron string
	File string
}

// State is the last-run record of a job.
type State struct {
	Name      string    `json:"name"`
	Cron      string    `json:"cron"`
	File      string    `json:"file"`
	NextRun   time.Time `json:"next_run,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
}

// parser accepts standard five-field expressions, an optional leading
// seconds field, and descriptors such as @hourly or @every 10m.
var parser = rcron.NewParser(rcron.SecondOptional | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor)

type Service struct {
	caller Caller
	logger *slog.Logger
	cron   *rcron.Cron

	mu      sync.Mutex
	jobs    map[string]Job
	entries map[string]rcron.EntryID
	state   map[string]*State
	ctx     context.Context
}

var _ domain.Channel = (*Service)(nil)

func New(caller Caller, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "schedule")
	cronLog := rcron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	return &Service{
		caller:  caller,
		logger:  logger,
		cron:    rcron.New(rcron.WithParser(parser), rcron.WithChain(rcron.SkipIfStillRunning(cronLog))),
		jobs:    make(map[string]Job),
		entries: make(map[string]rcron.EntryID),
		state:   make(map[string]*State),
		ctx:     context.Background(),
	}
}

func (s *Service) Name() string { return "scheduler" }

// Add registers a job. Names must be unique and the expression must parse.
func (s *Service) Add(job Job) error {
	if job.Name == "" || job.File == "" {
		return domain.ConfigErrorf("schedule needs a name and a file")
	}
	if _, err := parser.Parse(job.Cron); err != nil {
		return domain.ConfigErrorf("schedule %s: invalid cron expression %q: %v", job.Name, job.Cron, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return domain.ConfigErrorf("duplicate schedule %q", job.Name)
	}
	id, err := s.cron.AddFunc(job.Cron, func() { s.run(job) })
	if err != nil {
		return domain.ConfigErrorf("schedule %s: %v", job.Name, err)
	}
	s.jobs[job.Name] = job
	s.entries[job.Name] = id
	s.state[job.Name] = &State{Name: job.Name, Cron: job.Cron, File: job.File}
	return nil
}

// Start runs the scheduler until ctx is cancelled, then waits for running
// jobs to finish.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", n)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// RunNow runs the named job immediately and returns the tool output.
func (s *Service) RunNow(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown schedule %q", name)
	}
	return s.execute(ctx, job)
}

// Status lists every job sorted by name.
func (s *Service) Status() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, 0, len(s.state))
	for name, st := range s.state {
		cp := *st
		if id, ok := s.entries[name]; ok {
			e := s.cron.Entry(id)
			cp.NextRun = e.Next
			// Entries of a scheduler that is not running have no Next yet.
			if cp.NextRun.IsZero() && e.Schedule != nil {
				cp.NextRun = e.Schedule.Next(time.Now())
			}
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) run(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if _, err := s.execute(ctx, job); err != nil {
		s.logger.Warn("scheduled run failed", "job", job.Name, "err", err)
	}
}

func (s *Service) execute(ctx context.Context, job Job) (string, error) {
	s.logger.Info("running scheduled bundle", "job", job.Name, "file", job.File)
	res, err := s.caller.CallTool(ctx, BundleTool, map[string]any{"filepath": job.File})
	text := dispatch.ResultText(res)
	if err == nil && res.IsError {
		err = fmt.Errorf("%s", text)
	}

	s.mu.Lock()
	if st, ok := s.state[job.Name]; ok {
		st.LastRun = time.Now()
		st.Runs++
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
		}
	}
	s.mu.Unlock()
	return text, err
}
