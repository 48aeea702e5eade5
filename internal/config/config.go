package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Environment overrides applied after the file is loaded.
const (
	EnvLogLevel   = "MCP_LOG_LEVEL"
	EnvLogConsole = "MCP_LOG_CONSOLE"
	EnvProgram    = "ATPROTO_CLI"
	EnvHTTPToken  = "MCP_HTTP_TOKEN"
)

type Config struct {
	General   GeneralConfig    `json:"general"`
	CLI       CLIConfig        `json:"cli"`
	Batch     BatchConfig      `json:"batch"`
	HTTP      HTTPConfig       `json:"http"`
	Audit     AuditConfig      `json:"audit"`
	Schedules []ScheduleConfig `json:"schedules"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	// LogConsole mirrors the activity log to stderr.
	LogConsole bool `json:"logConsole"`
}

// CLIConfig describes the external atproto program.
type CLIConfig struct {
	Program        string `json:"program"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MaxOutputBytes int    `json:"maxOutputBytes"`
}

// BatchConfig paces batch items. A zero rate disables pacing.
type BatchConfig struct {
	RatePerMinute float64 `json:"ratePerMinute"`
	Burst         int     `json:"burst"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Token   string `json:"token,omitempty"`
}

type AuditConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"dbPath"`
	RetentionDays int    `json:"retentionDays"`
}

// ScheduleConfig runs a batch bundle file on a cron expression.
type ScheduleConfig struct {
	Name    string `json:"name"`
	Cron    string `json:"cron"`
	File    string `json:"file"`
	Enabled bool   `json:"enabled"`
}

// DefaultConfigDir returns the default config directory (~/.atproto-mcp).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".atproto-mcp"
	}
	return filepath.Join(home, ".atproto-mcp")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config file at path. A missing file yields the defaults;
// environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg, err := load(ExpandPath(path))
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// load builds the effective config without validating it.
func load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	default:
		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	ApplyEnv(cfg)
	normalize(cfg)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
	for i := range cfg.Schedules {
		cfg.Schedules[i].File = ExpandPath(cfg.Schedules[i].File)
	}
	return cfg, nil
}

// ApplyEnv overrides config values from the process environment.
// MCP_LOG_CONSOLE disables mirroring only when it is exactly "false".
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.General.LogLevel = v
	}
	if v := os.Getenv(EnvLogConsole); v != "" {
		cfg.General.LogConsole = v != "false"
	}
	if v := os.Getenv(EnvProgram); v != "" {
		cfg.CLI.Program = v
	}
	if v := os.Getenv(EnvHTTPToken); v != "" {
		cfg.HTTP.Token = v
	}
}

// normalize maps an unrecognized log level to info.
func normalize(cfg *Config) {
	switch strings.ToLower(strings.TrimSpace(cfg.General.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		cfg.General.LogLevel = "info"
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	// The file may carry the HTTP token.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.CLI.Program) == "" {
		errs = append(errs, "cli.program must not be empty")
	}
	if cfg.CLI.TimeoutSeconds < 1 || cfg.CLI.TimeoutSeconds > 3600 {
		errs = append(errs, "cli.timeoutSeconds must be between 1 and 3600")
	}
	if cfg.CLI.MaxOutputBytes < 1024 {
		errs = append(errs, "cli.maxOutputBytes must be >= 1024")
	}

	if cfg.Batch.RatePerMinute < 0 {
		errs = append(errs, "batch.ratePerMinute must be >= 0")
	}
	if cfg.Batch.Burst < 0 {
		errs = append(errs, "batch.burst must be >= 0")
	}

	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		errs = append(errs, "http.port must be between 0 and 65535")
	}

	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath is required when audit is enabled")
	}
	if cfg.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retentionDays must be >= 0")
	}

	seen := make(map[string]bool)
	for i, s := range cfg.Schedules {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Sprintf("schedules[%d]: name is required", i))
		case seen[s.Name]:
			errs = append(errs, fmt.Sprintf("schedules[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Cron == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d]: cron is required", i))
		}
		if s.File == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d]: file is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
