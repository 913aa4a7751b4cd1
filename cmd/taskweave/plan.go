package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/pkg/models"
)

var planAllVersions bool

var planCmd = &cobra.Command{
	Use:   "plan <task-id>",
	Short: "Show the execution plan for a task",
	Long: `Display the versioned execution plan built for a task.

Shows the distribution strategy, the subtask breakdown with estimates, and
any validation warnings. By default only the latest version is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planAllVersions, "all", false, "Show every retained plan version")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	taskID := args[0]
	if planAllVersions {
		plans, err := db.ListPlansByTask(taskID)
		if err != nil {
			return fmt.Errorf("list plans: %w", err)
		}
		if len(plans) == 0 {
			return fmt.Errorf("no plans recorded for task %s", taskID)
		}
		for i := range plans {
			printPlan(taskID, &plans[i])
		}
		return nil
	}

	plan, err := db.LatestPlanByTask(taskID)
	if err != nil {
		return fmt.Errorf("no plan recorded for task %s: %w", taskID, err)
	}
	printPlan(taskID, plan)
	return nil
}

func printPlan(label string, p *models.ExecutionPlan) {
	fmt.Printf("Plan for %s (version %d, %s)\n", label, p.Version, p.Strategy)
	fmt.Printf("  Status:    %s\n", p.Status)
	fmt.Printf("  Estimated: $%.4f, %s\n", p.EstimatedCost, formatSeconds(p.EstimatedSeconds))
	fmt.Printf("  Subtasks:  %d\n", len(p.Subtasks))
	for _, s := range p.Subtasks {
		req := ""
		if s.Required {
			req = " (required)"
		}
		fmt.Printf("    - %s [%s]%s: ~%s tokens, %s\n",
			s.Name, s.Tier, req, formatNumber(s.EstimatedTokens), formatSeconds(s.EstimatedSeconds))
		for _, dep := range s.DependsOn {
			fmt.Printf("        after %s (%s)\n", dep.Prerequisite, dep.Type)
		}
	}
	for _, w := range p.Warnings {
		fmt.Printf("  %s %s: %s\n", color.YellowString("⚠"), w.Code, w.Message)
	}
	for _, rec := range p.Recommendations {
		fmt.Printf("  %s %s\n", color.CyanString("→"), rec)
	}
	fmt.Println()
}

func formatSeconds(s int) string {
	if s < 60 {
		return fmt.Sprintf("%ds", s)
	}
	if s < 3600 {
		return fmt.Sprintf("%dm%ds", s/60, s%60)
	}
	return fmt.Sprintf("%dh%dm", s/3600, (s%3600)/60)
}
