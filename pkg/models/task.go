// Package models defines the shared data model for taskweave.
// Every enumeration used across components is defined exactly once here.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not been scheduled yet.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusQueued indicates the task is admitted and waiting for a slot.
	TaskStatusQueued TaskStatus = "queued"
	// TaskStatusInProgress indicates the task is executing on a provider.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed after exhausting retries.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusRetry indicates the task failed and is awaiting another attempt.
	TaskStatusRetry TaskStatus = "retry"
	// TaskStatusSkipped indicates a prerequisite reached a terminal state that
	// can never satisfy this task's dependency edge.
	TaskStatusSkipped TaskStatus = "skipped"
	// TaskStatusBlocked indicates resources could not be reserved for the task.
	TaskStatusBlocked TaskStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusQueued, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusRetry,
		TaskStatusSkipped, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is final: no further transitions occur.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// TaskType categorizes the kind of work a task represents.
type TaskType string

const (
	// TaskTypeFeature is a standard implementation task.
	TaskTypeFeature TaskType = "feature"
	// TaskTypeBugfix is a defect repair task.
	TaskTypeBugfix TaskType = "bugfix"
	// TaskTypeRefactor is a restructuring task with no behavior change.
	TaskTypeRefactor TaskType = "refactor"
	// TaskTypeResearch is an exploration or analysis task.
	TaskTypeResearch TaskType = "research"
)

// Valid returns true if the task type is a known value.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeFeature, TaskTypeBugfix, TaskTypeRefactor, TaskTypeResearch:
		return true
	default:
		return false
	}
}

// Task represents a unit of work routed through the coordinator.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// WorkflowID links the task to its workflow, if any.
	WorkflowID string `json:"workflow_id,omitempty"`
	// Name is the short name used in dependency edges.
	Name string `json:"name"`
	// Type categorizes the work.
	Type TaskType `json:"type"`
	// Payload is the task description handed to the execution backend.
	Payload string `json:"payload"`
	// Priority orders competing claims; higher values win contention.
	Priority int `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Provider is the ID of the provider the task is assigned to.
	Provider string `json:"provider,omitempty"`
	// RetryCount is the number of attempts made so far.
	RetryCount int `json:"retry_count,omitempty"`
	// Error contains the last failure message, if any.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when execution began, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
