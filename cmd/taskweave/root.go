package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskweave",
	Short: "Workflow coordination for AI coding tasks",
	Long: `Taskweave coordinates AI coding task workflows: it resolves typed
dependency graphs, sizes tasks by complexity, reserves resources, and
executes against quota-limited providers with conflict resolution and
failover.

Core capabilities:
- Resolves workflows of tasks linked by typed dependency edges
- Classifies task complexity and builds versioned execution plans
- Reserves CPU, memory, and token budget per task, all-or-nothing
- Picks the cheapest healthy provider and fails over on quota exhaustion
- Records an append-only cost audit trail per execution`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(costsCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
