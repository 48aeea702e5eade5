package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"atproto-mcp/internal/atproto"
	"atproto-mcp/internal/batch"
	"atproto-mcp/internal/config"
	"atproto-mcp/internal/runner"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

type report struct {
	passed, failed, warned int
}

func (r *report) pass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
	r.passed++
}

func (r *report) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
	r.failed++
}

func (r *report) warn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
	r.warned++
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the installation",
		Long: `Verifies the configuration, the atproto program, the audit database and
scheduled bundles. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Printf("atproto-mcp doctor v%s\n\n", version)
			r := &report{}

			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			path, err := exec.LookPath(cfg.CLI.Program)
			if err != nil {
				r.fail("atproto program", fmt.Sprintf("%q not found on PATH", cfg.CLI.Program))
			} else {
				r.pass("atproto program", path)
				checkSession(cmd.Context(), r, cfg)
			}

			if cfg.Audit.Enabled {
				if err := checkDatabase(cfg.Audit.DBPath); err != nil {
					r.fail("Audit database", err.Error())
				} else {
					r.pass("Audit database", cfg.Audit.DBPath)
				}
			}

			if cfg.HTTP.Enabled {
				addr := net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port))
				if err := checkPort(addr); err != nil {
					r.warn("HTTP port", fmt.Sprintf("%s may be in use: %v", addr, err))
				} else {
					r.pass("HTTP port", addr+" available")
				}
				if cfg.HTTP.Token == "" {
					r.warn("HTTP token", "not set, the HTTP API is unauthenticated")
				}
			}

			for _, s := range cfg.Schedules {
				if !s.Enabled {
					continue
				}
				if _, err := batch.LoadBundle(s.File); err != nil {
					r.fail("Schedule: "+s.Name, err.Error())
				} else {
					r.pass("Schedule: "+s.Name, s.File)
				}
			}

			return r.summary()
		},
	}
}

// checkSession asks the program who is logged in. Not being logged in is
// only a warning: auth_login can establish a session later.
func checkSession(ctx context.Context, r *report, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	client := atproto.NewClient(runner.New(runner.Config{
		Program:        cfg.CLI.Program,
		TimeoutSeconds: cfg.CLI.TimeoutSeconds,
		MaxOutputBytes: cfg.CLI.MaxOutputBytes,
		Logger:         logger,
	}))
	user, err := client.Whoami(ctx)
	if err != nil {
		r.warn("Session", "not logged in: "+err.Error())
		return
	}
	r.pass("Session", user)
}

func (r *report) summary() error {
	fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
