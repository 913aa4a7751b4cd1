package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/store"
	"github.com/taskweave/taskweave/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [workflow-id]",
	Short: "Show workflow state",
	Long: `Display recorded workflows and their task states.

Without arguments, lists recent workflows. With a workflow ID, shows the
full task breakdown including providers, retries, and errors.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	path := cfg.Storage.Path
	if path == "" {
		path = store.DefaultDBPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No workflows recorded. Run 'taskweave submit <workflow.yaml>' to start.")
		return nil
	}

	db, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if len(args) == 1 {
		return showWorkflow(db, args[0])
	}
	return listWorkflows(db)
}

func showWorkflow(db *store.DB, id string) error {
	wf, err := db.GetWorkflow(id)
	if err != nil {
		return fmt.Errorf("get workflow: %w", err)
	}

	fmt.Printf("Workflow %s: %s\n", wf.ID, wf.Name)
	fmt.Printf("  Status:  %s\n", colorStatus(string(wf.Status)))
	fmt.Printf("  Created: %s ago\n", formatDuration(time.Since(wf.CreatedAt)))
	fmt.Printf("  Tasks:   %d\n", len(wf.Tasks))
	fmt.Println()

	for _, t := range wf.Tasks {
		fmt.Printf("  %s %s [%s]\n", taskMarker(t.Status), t.Name, t.Status)
		if t.Provider != "" {
			fmt.Printf("      provider: %s\n", t.Provider)
		}
		if t.RetryCount > 0 {
			fmt.Printf("      retries: %d\n", t.RetryCount)
		}
		if t.StartedAt != nil && t.CompletedAt != nil {
			fmt.Printf("      duration: %s\n", formatDuration(t.CompletedAt.Sub(*t.StartedAt)))
		}
		if t.Error != "" {
			fmt.Printf("      error: %s\n", t.Error)
		}
	}

	if len(wf.Edges) > 0 {
		fmt.Println()
		fmt.Println("  Dependencies:")
		for _, e := range wf.Edges {
			fmt.Printf("    %s -> %s (%s)\n", e.Prerequisite, e.Dependent, e.Type)
		}
	}
	return nil
}

func listWorkflows(db *store.DB) error {
	workflows, err := db.ListWorkflows()
	if err != nil {
		return fmt.Errorf("list workflows: %w", err)
	}
	if len(workflows) == 0 {
		fmt.Println("No workflows recorded. Run 'taskweave submit <workflow.yaml>' to start.")
		return nil
	}

	const limit = 15
	if len(workflows) > limit {
		workflows = workflows[:limit]
	}

	fmt.Println("Recent workflows:")
	for _, wf := range workflows {
		fmt.Printf("  %s  %-20s %-10s %s ago\n",
			wf.ID,
			truncate(wf.Name, 20),
			colorStatus(string(wf.Status)),
			formatDuration(time.Since(wf.CreatedAt)))
	}
	return nil
}

func taskMarker(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString("✓")
	case models.TaskStatusFailed:
		return color.RedString("✗")
	case models.TaskStatusSkipped:
		return color.YellowString("–")
	case models.TaskStatusInProgress, models.TaskStatusQueued:
		return color.CyanString("▶")
	default:
		return color.WhiteString("·")
	}
}

func colorStatus(s string) string {
	switch s {
	case "completed":
		return color.GreenString(s)
	case "failed", "cancelled":
		return color.RedString(s)
	case "degraded":
		return color.YellowString(s)
	case "running":
		return color.CyanString(s)
	default:
		return s
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}

// formatNumber formats a number with commas.
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	offset := len(s) % 3
	if offset > 0 {
		result.WriteString(s[:offset])
		if len(s) > offset {
			result.WriteString(",")
		}
	}
	for i := offset; i < len(s); i += 3 {
		result.WriteString(s[i : i+3])
		if i+3 < len(s) {
			result.WriteString(",")
		}
	}
	return result.String()
}
