package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/config"
)

var costsTaskID string

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show the execution cost audit trail",
	Long: `Summarize recorded execution costs per provider, or list the
individual cost records for one task with --task.`,
	RunE: runCosts,
}

func init() {
	costsCmd.Flags().StringVar(&costsTaskID, "task", "", "List cost records for a single task")
}

func runCosts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if costsTaskID != "" {
		records, err := db.ListCostsByTask(costsTaskID)
		if err != nil {
			return fmt.Errorf("list costs: %w", err)
		}
		if len(records) == 0 {
			fmt.Printf("No cost records for task %s\n", costsTaskID)
			return nil
		}
		fmt.Printf("Cost records for task %s:\n", costsTaskID)
		for _, r := range records {
			fmt.Printf("  %s  %-12s %-24s in=%s out=%s  $%.4f  %s\n",
				r.RecordedAt.Format("2006-01-02 15:04:05"),
				r.Provider,
				r.Model,
				formatNumber(r.InputTokens),
				formatNumber(r.OutputTokens),
				r.EstimatedCost,
				r.Duration)
		}
		return nil
	}

	summaries, err := db.SummarizeCosts()
	if err != nil {
		return fmt.Errorf("summarize costs: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Println("No cost records yet.")
		return nil
	}

	fmt.Printf("%-14s %10s %14s %12s\n", "PROVIDER", "EXECUTIONS", "TOKENS", "COST")
	var totalCost float64
	for _, s := range summaries {
		fmt.Printf("%-14s %10d %14s %12s\n",
			s.Provider, s.Executions, formatNumber(s.TotalTokens), fmt.Sprintf("$%.4f", s.TotalCost))
		totalCost += s.TotalCost
	}
	fmt.Printf("%-14s %10s %14s %12s\n", "total", "", "", fmt.Sprintf("$%.4f", totalCost))
	return nil
}
