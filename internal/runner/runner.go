// Package runner executes the external atproto program on behalf of tools.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"atproto-mcp/internal/domain"
)

const (
	defaultProgram        = "atproto"
	defaultTimeoutSeconds = 60
	defaultMaxOutputBytes = 65536

	// nonInteractiveEnv keeps the program from prompting on a terminal.
	nonInteractiveEnv = "NONINTERACTIVE=1"
)

// Config configures a Shell runner.
type Config struct {
	Program        string
	TimeoutSeconds int
	MaxOutputBytes int
	Logger         *slog.Logger
}

// Shell runs commands through sh -c. It implements domain.Runner.
type Shell struct {
	program        string
	timeout        time.Duration
	maxOutputBytes int
	logger         *slog.Logger
}

var _ domain.Runner = (*Shell)(nil)

func New(cfg Config) *Shell {
	if cfg.Program == "" {
		cfg.Program = defaultProgram
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Shell{
		program:        cfg.Program,
		timeout:        time.Duration(cfg.TimeoutSeconds) * time.Second,
		maxOutputBytes: cfg.MaxOutputBytes,
		logger:         cfg.Logger,
	}
}

// Program returns the configured program name.
func (s *Shell) Program() string { return s.program }

// CommandLine joins the program, subcommand and arguments with single spaces.
// Arguments are not quoted here; see Quote.
func (s *Shell) CommandLine(cmd domain.Command) string {
	parts := make([]string, 0, len(cmd.Args)+2)
	parts = append(parts, s.program)
	if cmd.Subcommand != "" {
		parts = append(parts, cmd.Subcommand)
	}
	for _, a := range cmd.Args {
		if a != "" {
			parts = append(parts, a)
		}
	}
	return strings.Join(parts, " ")
}

// Run executes cmd and returns its trimmed stdout. A non-zero exit, an empty
// stdout with a non-empty stderr, a timeout, or cancellation all produce a
// CommandFailure.
func (s *Shell) Run(ctx context.Context, cmd domain.Command) (string, error) {
	line := s.CommandLine(cmd)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c := exec.CommandContext(runCtx, "sh", "-c", line)
	c.Env = append(os.Environ(), nonInteractiveEnv)
	c.Env = append(c.Env, envPairs(cmd.Env)...)
	c.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	elapsed := time.Since(start)

	out := strings.TrimSpace(stdout.String())
	diag := strings.TrimSpace(stderr.String())

	if err != nil {
		switch {
		case ctx.Err() != nil:
			err = domain.CommandFailure("cancelled", ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			err = domain.CommandFailure(fmt.Sprintf("timed out after %s", s.timeout), nil)
		default:
			if diag == "" {
				diag = out
			}
			err = domain.CommandFailure(diag, err)
		}
		s.logger.Debug("command failed", "subcommand", cmd.Subcommand, "elapsed", elapsed, "err", err)
		return "", err
	}

	// Diagnostic-only output is never a successful result, even on exit 0.
	if out == "" && diag != "" {
		s.logger.Debug("command wrote only to stderr", "subcommand", cmd.Subcommand, "elapsed", elapsed)
		return "", domain.CommandFailure(diag, nil)
	}

	if len(out) > s.maxOutputBytes {
		n := s.maxOutputBytes
		for n > 0 && !utf8.RuneStart(out[n]) {
			n--
		}
		out = out[:n] + "\n... (output truncated)"
	}
	s.logger.Debug("command finished", "subcommand", cmd.Subcommand, "elapsed", elapsed, "bytes", len(out))
	return out, nil
}

func envPairs(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+env[k])
	}
	return pairs
}

// Quote returns s as a single POSIX shell word.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
