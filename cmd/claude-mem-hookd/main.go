// Package main provides the CLI entry point for claude-mem-hookd, the local
// memory-capture daemon Claude Code hooks talk to: a durable intake queue,
// two background summarizer workers, a process tracker and orphan reaper for
// agent-spawned subprocesses, and a thin HTTP surface tying it together.
//
// # Basic Usage
//
// Start the daemon:
//
//	claude-mem-hookd serve --config settings.yaml
//
// Check queue health:
//
//	claude-mem-hookd stats
//
// # Environment Variables
//
//   - CLAUDE_MEM_PROVIDER: LLM provider (openrouter|gemini)
//   - CLAUDE_MEM_OPENROUTER_API_KEY / CLAUDE_MEM_GEMINI_API_KEY: provider credentials
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "claude-mem-hookd",
		Short:        "Local memory-capture daemon for Claude Code hooks",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildStatsCmd(),
		buildDoctorCmd(),
	)

	return rootCmd
}
