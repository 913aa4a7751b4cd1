package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/coordinator"
	"github.com/taskweave/taskweave/internal/distributor"
	"github.com/taskweave/taskweave/pkg/models"
)

var (
	submitDryRun      bool
	submitQuiet       bool
	submitMetricsAddr string
)

var submitCmd = &cobra.Command{
	Use:   "submit <workflow.yaml>",
	Short: "Submit a workflow and run it to completion",
	Long: `Submit a workflow file and execute it.

The workflow file lists tasks and the typed dependency edges between them:

  name: release
  tasks:
    - name: build
      type: feature
      payload: "implement the exporter and add integration tests"
      priority: 2
    - name: deploy
      payload: "deploy the exporter to staging"
  edges:
    - dependent: deploy
      prerequisite: build
      type: on_success

Edge types: sequence, on_success, on_failure, always.

The command streams scheduling events until the workflow reaches a terminal
state. Ctrl-C cancels the workflow; tasks that never started are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().BoolVar(&submitDryRun, "dry-run", false, "Build and print execution plans without running anything")
	submitCmd.Flags().BoolVarP(&submitQuiet, "quiet", "q", false, "Suppress event output, print only the final summary")
	submitCmd.Flags().StringVar(&submitMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
}

// workflowFile is the on-disk workflow format.
type workflowFile struct {
	Name  string `yaml:"name"`
	Tasks []struct {
		Name     string `yaml:"name"`
		Type     string `yaml:"type"`
		Payload  string `yaml:"payload"`
		Priority int    `yaml:"priority"`
		Strategy string `yaml:"strategy"`
	} `yaml:"tasks"`
	Edges []struct {
		Dependent    string `yaml:"dependent"`
		Prerequisite string `yaml:"prerequisite"`
		Type         string `yaml:"type"`
	} `yaml:"edges"`
}

// loadWorkflowFile parses and validates a workflow YAML file.
func loadWorkflowFile(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}

	var wf workflowFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow file: %w", err)
	}
	if wf.Name == "" {
		return nil, fmt.Errorf("workflow file %s: missing name", path)
	}
	if len(wf.Tasks) == 0 {
		return nil, fmt.Errorf("workflow file %s: no tasks", path)
	}

	out := &models.Workflow{Name: wf.Name}
	for _, t := range wf.Tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("workflow file %s: task with empty name", path)
		}
		taskType := models.TaskType(t.Type)
		if t.Type == "" {
			taskType = models.TaskTypeFeature
		}
		if !taskType.Valid() {
			return nil, fmt.Errorf("workflow file %s: task %s has unknown type %q", path, t.Name, t.Type)
		}
		out.Tasks = append(out.Tasks, &models.Task{
			Name:     t.Name,
			Type:     taskType,
			Payload:  t.Payload,
			Priority: t.Priority,
		})
	}
	for _, e := range wf.Edges {
		edgeType := models.EdgeType(e.Type)
		if e.Type == "" {
			edgeType = models.EdgeSequence
		}
		if !edgeType.Valid() {
			return nil, fmt.Errorf("workflow file %s: edge %s->%s has unknown type %q",
				path, e.Prerequisite, e.Dependent, e.Type)
		}
		out.Edges = append(out.Edges, models.DependencyEdge{
			Dependent:    e.Dependent,
			Prerequisite: e.Prerequisite,
			Type:         edgeType,
		})
	}
	return out, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	wf, err := loadWorkflowFile(args[0])
	if err != nil {
		return err
	}

	if submitDryRun {
		return runDryRun(cfg, wf)
	}

	st, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer st.db.Close()

	if submitMetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(submitMetricsAddr, nil); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	// Hot-reload the provider inventory while the workflow runs.
	if cfg.Providers.Watch {
		watchCtx, stopWatch := context.WithCancel(context.Background())
		defer stopWatch()
		go func() {
			if err := st.registry.Watch(watchCtx, st.providersFile); err != nil && watchCtx.Err() == nil {
				fmt.Fprintf(os.Stderr, "provider watch: %v\n", err)
			}
		}()
	}

	id, err := st.coordinator.Submit(cmd.Context(), wf)
	if err != nil {
		return err
	}
	fmt.Printf("Submitted workflow %s (%s) with %d tasks\n", id, wf.Name, len(wf.Tasks))

	// Ctrl-C cancels the workflow and waits for it to settle.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nCancelling...")
		_ = st.coordinator.Cancel(id)
	}()

	streamEvents(st.coordinator, id)

	if err := st.coordinator.Wait(id); err != nil {
		return err
	}

	final, err := st.coordinator.Status(id)
	if err != nil {
		return fmt.Errorf("read final status: %w", err)
	}
	printSummary(final)

	if cfg.Storage.RetainDays > 0 {
		// Best-effort retention sweep of old terminal workflows.
		_, _ = st.db.PurgeOldWorkflows(time.Duration(cfg.Storage.RetainDays) * 24 * time.Hour)
	}

	if final.Status == models.WorkflowFailed {
		os.Exit(1)
	}
	return nil
}

// runDryRun builds and prints execution plans without persisting or
// executing anything.
func runDryRun(cfg *config.Config, wf *models.Workflow) error {
	engine := distributor.NewEngine(nil, nil, nil, distributor.DefaultConfig())
	for _, task := range wf.Tasks {
		if task.ID == "" {
			task.ID = task.Name
		}
		plan, err := engine.Distribute(task, "")
		if err != nil {
			return fmt.Errorf("plan task %s: %w", task.Name, err)
		}
		printPlan(task.Name, plan)
	}
	return nil
}

// streamEvents prints coordinator events until the workflow is done.
func streamEvents(coord *coordinator.Coordinator, workflowID string) {
	for ev := range coord.Events() {
		if ev.WorkflowID != workflowID {
			continue
		}
		if !submitQuiet {
			printEvent(ev)
		}
		if ev.Type == coordinator.EventWorkflowDone {
			return
		}
	}
}

func printEvent(ev coordinator.Event) {
	ts := ev.Timestamp.Format("15:04:05")
	switch ev.Type {
	case coordinator.EventWorkflowStarted:
		fmt.Printf("%s %s workflow started\n", ts, color.CyanString("▶"))
	case coordinator.EventTaskQueued:
		fmt.Printf("%s %s task %s queued\n", ts, color.WhiteString("·"), ev.TaskID)
	case coordinator.EventTaskStarted:
		fmt.Printf("%s %s task %s started on %s\n", ts, color.CyanString("▶"), ev.TaskID, ev.Provider)
	case coordinator.EventTaskCompleted:
		fmt.Printf("%s %s task %s completed on %s\n", ts, color.GreenString("✓"), ev.TaskID, ev.Provider)
	case coordinator.EventTaskFailed:
		fmt.Printf("%s %s task %s failed: %v\n", ts, color.RedString("✗"), ev.TaskID, ev.Error)
	case coordinator.EventTaskSkipped:
		fmt.Printf("%s %s task %s skipped\n", ts, color.YellowString("–"), ev.TaskID)
	case coordinator.EventTaskBlocked:
		fmt.Printf("%s %s task %s blocked on resources\n", ts, color.YellowString("⚠"), ev.TaskID)
	case coordinator.EventConflictDetected:
		fmt.Printf("%s %s conflict %s detected (%s)\n", ts, color.YellowString("⚠"), ev.ConflictID, ev.Message)
	case coordinator.EventConflictResolved:
		fmt.Printf("%s %s conflict %s resolved: %s\n", ts, color.GreenString("✓"), ev.ConflictID, ev.Message)
	case coordinator.EventProviderFailover:
		fmt.Printf("%s %s task %s: %s (provider %s)\n", ts, color.YellowString("↻"), ev.TaskID, ev.Message, ev.Provider)
	case coordinator.EventPlanDegraded:
		fmt.Printf("%s %s task %s plan degraded: %s\n", ts, color.YellowString("⚠"), ev.TaskID, ev.Message)
	case coordinator.EventReservationExpired:
		fmt.Printf("%s %s %s\n", ts, color.WhiteString("·"), ev.Message)
	case coordinator.EventWorkflowDone:
		fmt.Printf("%s %s workflow done: %s\n", ts, color.CyanString("■"), ev.Message)
	}
}

func printSummary(wf *models.Workflow) {
	fmt.Println()
	switch wf.Status {
	case models.WorkflowCompleted:
		fmt.Printf("%s Workflow %s completed\n", color.GreenString("✓"), wf.ID)
	case models.WorkflowDegraded:
		fmt.Printf("%s Workflow %s degraded: some tasks failed\n", color.YellowString("⚠"), wf.ID)
	case models.WorkflowCancelled:
		fmt.Printf("%s Workflow %s cancelled\n", color.YellowString("–"), wf.ID)
	default:
		fmt.Printf("%s Workflow %s %s\n", color.RedString("✗"), wf.ID, wf.Status)
	}
	for _, t := range wf.Tasks {
		marker := color.WhiteString("·")
		switch t.Status {
		case models.TaskStatusCompleted:
			marker = color.GreenString("✓")
		case models.TaskStatusFailed:
			marker = color.RedString("✗")
		case models.TaskStatusSkipped:
			marker = color.YellowString("–")
		}
		line := fmt.Sprintf("  %s %s: %s", marker, t.Name, t.Status)
		if t.Provider != "" {
			line += fmt.Sprintf(" (provider %s)", t.Provider)
		}
		if t.Error != "" {
			line += fmt.Sprintf(": %s", t.Error)
		}
		fmt.Println(line)
	}
}
