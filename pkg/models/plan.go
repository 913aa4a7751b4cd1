package models

import "time"

// Strategy names a task distribution strategy.
type Strategy string

const (
	// StrategyNoSplit executes the task as a single subtask.
	StrategyNoSplit Strategy = "no_split"
	// StrategyParallelSplit splits into independent chunks that run concurrently.
	StrategyParallelSplit Strategy = "parallel_split"
	// StrategyHierarchicalSplit splits into a coordinator task with child groups.
	StrategyHierarchicalSplit Strategy = "hierarchical_split"
	// StrategyPipeline splits along declared steps, each depending on the last.
	StrategyPipeline Strategy = "pipeline"
	// StrategyHybrid mixes pipeline stages with parallel chunks inside a stage.
	StrategyHybrid Strategy = "hybrid"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyNoSplit, StrategyParallelSplit, StrategyHierarchicalSplit,
		StrategyPipeline, StrategyHybrid:
		return true
	default:
		return false
	}
}

// PlanStatus is the rolled-up execution state of a plan.
type PlanStatus string

const (
	// PlanStatusPending indicates no subtask has started yet.
	PlanStatusPending PlanStatus = "pending"
	// PlanStatusRunning indicates at least one subtask is executing.
	PlanStatusRunning PlanStatus = "running"
	// PlanStatusCompleted indicates every subtask completed.
	PlanStatusCompleted PlanStatus = "completed"
	// PlanStatusDegraded indicates some subtasks failed while others succeeded.
	PlanStatusDegraded PlanStatus = "degraded"
	// PlanStatusFailed indicates a required subtask failed, skipping downstream work.
	PlanStatusFailed PlanStatus = "failed"
	// PlanStatusCancelled indicates the plan was cancelled before completion.
	PlanStatusCancelled PlanStatus = "cancelled"
)

// Valid returns true if the plan status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusPending, PlanStatusRunning, PlanStatusCompleted,
		PlanStatusDegraded, PlanStatusFailed, PlanStatusCancelled:
		return true
	default:
		return false
	}
}

// SubtaskSpec is one ordered unit of a distribution plan.
type SubtaskSpec struct {
	// Name is the subtask name, unique within the plan.
	Name string `json:"name"`
	// Payload is the portion of work assigned to this subtask.
	Payload string `json:"payload"`
	// DependsOn lists subtask names that must finish first, with edge types.
	DependsOn []DependencyEdge `json:"depends_on,omitempty"`
	// Tier is the complexity tier estimated for this subtask.
	Tier ComplexityTier `json:"tier"`
	// EstimatedSeconds is the predicted execution time for this subtask.
	EstimatedSeconds int `json:"estimated_seconds"`
	// EstimatedTokens is the predicted token volume for this subtask.
	EstimatedTokens int64 `json:"estimated_tokens"`
	// EstimatedCost is the predicted dollar cost for this subtask.
	EstimatedCost float64 `json:"estimated_cost"`
	// Required marks subtasks whose failure fails the whole plan.
	Required bool `json:"required"`
}

// PlanWarning is an actionable advisory attached to a validated plan.
type PlanWarning struct {
	// Code identifies the warning category (e.g. "cost_threshold").
	Code string `json:"code"`
	// Message is the human-readable, actionable text. Never empty.
	Message string `json:"message"`
}

// ExecutionPlan is the immutable, versioned output of task distribution.
// Re-planning creates a new version; earlier versions are retained.
type ExecutionPlan struct {
	// ID is the unique identifier for this plan version.
	ID string `json:"id"`
	// TaskID is the source task this plan was distributed from.
	TaskID string `json:"task_id"`
	// Version starts at 1 and increments on re-distribution.
	Version int `json:"version"`
	// Strategy is the distribution strategy the plan was built with.
	Strategy Strategy `json:"strategy"`
	// Subtasks is the ordered list of subtask specs.
	Subtasks []SubtaskSpec `json:"subtasks"`
	// EstimatedCost is the aggregate dollar cost including strategy overhead.
	EstimatedCost float64 `json:"estimated_cost"`
	// EstimatedSeconds is the aggregate predicted execution time.
	EstimatedSeconds int `json:"estimated_seconds"`
	// Warnings carry actionable advisories from validation.
	Warnings []PlanWarning `json:"warnings,omitempty"`
	// Recommendations suggest alternative strategies or budgets.
	Recommendations []string `json:"recommendations,omitempty"`
	// Status is the rolled-up execution state.
	Status PlanStatus `json:"status"`
	// CreatedAt is when this plan version was built.
	CreatedAt time.Time `json:"created_at"`
}
