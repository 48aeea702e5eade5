package main

import (
	"fmt"
	"log/slog"
	"os"

	"atproto-mcp/internal/config"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	// Replaced by the activity log once serve has loaded the config. Never
	// stdout: in serve mode stdout carries protocol frames only.
	logger     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	configPath string // overridable via --config flag
)

func main() {
	root := &cobra.Command{
		Use:   "atproto-mcp",
		Short: "MCP tool server for the atproto CLI",
		Long: `atproto-mcp exposes Bluesky operations as MCP tools. Every tool call is
translated into an invocation of the external atproto program.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.atproto-mcp/config.json)")

	root.AddCommand(serveCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(callCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(scheduleCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "atproto-mcp %s\n", version)
		},
	}
}
