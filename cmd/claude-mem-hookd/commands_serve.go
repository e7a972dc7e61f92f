package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the daemon.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the memory-capture daemon",
		Long: `Start claude-mem-hookd with its intake HTTP server and background workers.

The daemon will:
1. Load configuration from the specified file (defaults if absent)
2. Open the durable event queue and session store
3. Start the Event and Summary summarizer workers
4. Start the Process Tracker and Orphan Reaper
5. Start the intake HTTP server

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

// buildStatsCmd creates the "stats" command, a one-shot queue status report.
func buildStatsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the raw queue's status breakdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// buildDoctorCmd creates the "doctor" command, a one-shot orphan reaper scan
// an operator can run ad hoc without waiting for the scheduled interval.
func buildDoctorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run a single orphan reaper scan and report the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
