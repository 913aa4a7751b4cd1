package models

import "time"

// WorkflowStatus is the rolled-up state of a workflow execution.
type WorkflowStatus string

const (
	// WorkflowPending indicates the workflow has been accepted but not started.
	WorkflowPending WorkflowStatus = "pending"
	// WorkflowRunning indicates at least one task is executing.
	WorkflowRunning WorkflowStatus = "running"
	// WorkflowCompleted indicates every task reached a terminal state with no failures.
	WorkflowCompleted WorkflowStatus = "completed"
	// WorkflowDegraded indicates some tasks failed while others succeeded.
	WorkflowDegraded WorkflowStatus = "degraded"
	// WorkflowFailed indicates a required task failed.
	WorkflowFailed WorkflowStatus = "failed"
	// WorkflowCancelled indicates the workflow was cancelled.
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowPending, WorkflowRunning, WorkflowCompleted,
		WorkflowDegraded, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true once the workflow can no longer change state.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowDegraded, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// Workflow is a named set of tasks connected by typed dependency edges.
type Workflow struct {
	// ID is the unique identifier for this workflow.
	ID string `json:"id"`
	// Name is the human-readable workflow name.
	Name string `json:"name"`
	// Tasks are the member tasks, keyed by Task.Name in Edges.
	Tasks []*Task `json:"tasks"`
	// Edges are the typed dependencies between member tasks.
	Edges []DependencyEdge `json:"edges,omitempty"`
	// Status is the rolled-up execution state.
	Status WorkflowStatus `json:"status"`
	// CreatedAt is when the workflow was accepted.
	CreatedAt time.Time `json:"created_at"`
}
