package distributor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/analyzer"
	"github.com/taskweave/taskweave/internal/graph"
	"github.com/taskweave/taskweave/pkg/models"
)

// Strategy overhead multipliers applied to the summed subtask cost. Splitting
// is never free; coordination overhead grows with structure.
var overheadMultiplier = map[models.Strategy]float64{
	models.StrategyNoSplit:           1.0,
	models.StrategyParallelSplit:     1.10,
	models.StrategyPipeline:          1.15,
	models.StrategyHierarchicalSplit: 1.25,
	models.StrategyHybrid:            1.30,
}

// DefaultCostPer1KTokens is the planning-time cost rate used when no provider
// rate is known yet.
const DefaultCostPer1KTokens = 0.015

// PlanStore is the narrow persistence surface the engine needs. Plans are
// stored by id and by source task id; re-distribution appends a new version.
type PlanStore interface {
	CreatePlan(p *models.ExecutionPlan) error
	ListPlansByTask(taskID string) ([]models.ExecutionPlan, error)
}

// Engine builds immutable, versioned execution plans from tasks.
type Engine struct {
	analyzer *analyzer.Analyzer
	registry *Registry
	store    PlanStore
	cfg      Config
}

// Config holds the engine's validation thresholds.
type Config struct {
	// CostWarnThreshold flags plans whose aggregate cost exceeds it, in dollars.
	CostWarnThreshold float64
	// TimeWarnSeconds flags plans whose aggregate time exceeds it.
	TimeWarnSeconds int
	// MaxSubtasks flags plans that fan out beyond it.
	MaxSubtasks int
}

// DefaultConfig returns the default validation thresholds.
func DefaultConfig() Config {
	return Config{
		CostWarnThreshold: 5.0,
		TimeWarnSeconds:   3600,
		MaxSubtasks:       16,
	}
}

// NewEngine creates a distribution engine. The store may be nil, in which
// case plans are built but not persisted and versions restart at 1.
func NewEngine(a *analyzer.Analyzer, r *Registry, store PlanStore, cfg Config) *Engine {
	if a == nil {
		a = analyzer.New()
	}
	if r == nil {
		r = NewRegistry()
	}
	return &Engine{analyzer: a, registry: r, store: store, cfg: cfg}
}

// Distribute analyzes the task and builds an execution plan using the
// requested strategy. A simple task always yields a single-subtask no_split
// plan, overriding any requested strategy. Passing an empty strategy uses
// the analyzer's recommendation.
func (e *Engine) Distribute(task *models.Task, requested models.Strategy) (*models.ExecutionPlan, error) {
	if task == nil {
		return nil, fmt.Errorf("distribute: nil task")
	}
	if requested != "" && !requested.Valid() {
		return nil, fmt.Errorf("distribute: unknown strategy %q", requested)
	}

	analysis := e.analyzer.Analyze(task.Payload)

	strategy := requested
	if strategy == "" {
		strategy = analysis.Strategy
	}
	// Simple tasks never split, whatever the caller asked for.
	if analysis.Tier == models.TierSimple {
		strategy = models.StrategyNoSplit
	}

	splitter, ok := e.registry.Lookup(strategy)
	if !ok {
		return nil, fmt.Errorf("distribute: no splitter registered for %q", strategy)
	}

	subtasks := splitter.Split(task, analysis)
	if len(subtasks) == 0 {
		return nil, fmt.Errorf("distribute: strategy %q produced no subtasks", strategy)
	}

	// Wire and verify the inter-subtask dependencies through the resolver.
	// A splitter bug that produces a cycle is a structural error.
	res, err := resolveSubtasks(subtasks)
	if err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}

	plan := &models.ExecutionPlan{
		ID:       uuid.New().String()[:8],
		TaskID:   task.ID,
		Version:  1,
		Strategy: strategy,
		Subtasks: subtasks,
		Status:   models.PlanStatusPending,
		// Parallel branches overlap, so wall-clock time follows the
		// critical path, not the subtask sum.
		EstimatedSeconds: res.CriticalSeconds,
		CreatedAt:        time.Now().UTC(),
	}

	var cost float64
	for i := range subtasks {
		subtasks[i].EstimatedCost = float64(subtasks[i].EstimatedTokens) / 1000 * DefaultCostPer1KTokens
		cost += subtasks[i].EstimatedCost
	}
	plan.EstimatedCost = cost * overheadMultiplier[strategy]

	warnings, recs := e.Validate(plan)
	plan.Warnings = warnings
	plan.Recommendations = recs

	if e.store != nil {
		prior, err := e.store.ListPlansByTask(task.ID)
		if err != nil {
			return nil, fmt.Errorf("distribute: list prior plans: %w", err)
		}
		for _, p := range prior {
			if p.Version >= plan.Version {
				plan.Version = p.Version + 1
			}
		}
		if err := e.store.CreatePlan(plan); err != nil {
			return nil, fmt.Errorf("distribute: persist plan: %w", err)
		}
	}

	return plan, nil
}

// Validate checks a plan against the configured thresholds. Every warning
// carries actionable text, never a bare flag.
func (e *Engine) Validate(plan *models.ExecutionPlan) ([]models.PlanWarning, []string) {
	var warnings []models.PlanWarning
	var recs []string

	cfg := e.cfg
	if cfg.CostWarnThreshold <= 0 && cfg.TimeWarnSeconds <= 0 && cfg.MaxSubtasks <= 0 {
		cfg = DefaultConfig()
	}

	if cfg.CostWarnThreshold > 0 && plan.EstimatedCost > cfg.CostWarnThreshold {
		warnings = append(warnings, models.PlanWarning{
			Code: "cost_threshold",
			Message: fmt.Sprintf(
				"estimated cost $%.2f exceeds the $%.2f threshold; consider narrowing the task scope or requesting parallel_split to reduce coordination overhead",
				plan.EstimatedCost, cfg.CostWarnThreshold),
		})
	}

	if cfg.TimeWarnSeconds > 0 && plan.EstimatedSeconds > cfg.TimeWarnSeconds {
		warnings = append(warnings, models.PlanWarning{
			Code: "time_threshold",
			Message: fmt.Sprintf(
				"estimated duration %ds exceeds %ds; split long pipeline stages or raise the workflow deadline before submitting",
				plan.EstimatedSeconds, cfg.TimeWarnSeconds),
		})
	}

	if cfg.MaxSubtasks > 0 && len(plan.Subtasks) > cfg.MaxSubtasks {
		warnings = append(warnings, models.PlanWarning{
			Code: "fanout",
			Message: fmt.Sprintf(
				"plan fans out into %d subtasks (limit %d); merge related steps in the payload or use hierarchical_split to group them",
				len(plan.Subtasks), cfg.MaxSubtasks),
		})
	}

	if plan.Strategy == models.StrategyHierarchicalSplit && len(plan.Subtasks) <= 3 {
		recs = append(recs, "hierarchical coordination overhead is not worth it below 4 subtasks; pipeline would be cheaper")
	}

	return warnings, recs
}

// resolveSubtasks builds a throwaway graph over the subtask specs to verify
// the wiring and compute the critical path.
func resolveSubtasks(specs []models.SubtaskSpec) (*graph.Resolution, error) {
	wf := &models.Workflow{ID: "plan", Name: "plan"}
	for i := range specs {
		wf.Tasks = append(wf.Tasks, &models.Task{
			ID:     specs[i].Name,
			Name:   specs[i].Name,
			Status: models.TaskStatusPending,
		})
		wf.Edges = append(wf.Edges, specs[i].DependsOn...)
	}

	g := graph.New()
	if err := g.Build(wf); err != nil {
		return nil, err
	}
	for i := range specs {
		g.SetDuration(specs[i].Name, specs[i].EstimatedSeconds)
	}
	return g.Resolve()
}
