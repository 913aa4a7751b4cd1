package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/pkg/models"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <workflow-id>",
	Short: "Mark an orphaned workflow cancelled",
	Long: `Mark a non-terminal workflow as cancelled in the database.

A running 'taskweave submit' is cancelled with Ctrl-C. This command cleans
up workflows left in a running state by a crashed or killed process: the
workflow is marked cancelled and its non-terminal tasks are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	wf, err := db.GetWorkflow(args[0])
	if err != nil {
		return fmt.Errorf("get workflow: %w", err)
	}
	if wf.Status.Terminal() {
		return fmt.Errorf("workflow %s is already %s", wf.ID, wf.Status)
	}

	now := time.Now().UTC()
	for _, t := range wf.Tasks {
		if t.Status.Terminal() {
			continue
		}
		t.Status = models.TaskStatusSkipped
		t.CompletedAt = &now
		if err := db.UpdateTask(t); err != nil {
			return fmt.Errorf("skip task %s: %w", t.Name, err)
		}
	}
	if err := db.UpdateWorkflowStatus(wf.ID, models.WorkflowCancelled); err != nil {
		return fmt.Errorf("cancel workflow: %w", err)
	}

	fmt.Printf("Workflow %s marked cancelled\n", wf.ID)
	return nil
}
