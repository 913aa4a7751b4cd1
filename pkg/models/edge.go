package models

// EdgeType classifies a dependency edge between two tasks in a workflow.
type EdgeType string

const (
	// EdgeSequence requires the prerequisite to reach any terminal state.
	EdgeSequence EdgeType = "sequence"
	// EdgeOnSuccess requires the prerequisite to complete successfully.
	EdgeOnSuccess EdgeType = "on_success"
	// EdgeOnFailure requires the prerequisite to fail.
	EdgeOnFailure EdgeType = "on_failure"
	// EdgeAlways is satisfied once the prerequisite reaches any terminal
	// state, including skipped.
	EdgeAlways EdgeType = "always"
)

// Valid returns true if the edge type is a known value.
func (e EdgeType) Valid() bool {
	switch e {
	case EdgeSequence, EdgeOnSuccess, EdgeOnFailure, EdgeAlways:
		return true
	default:
		return false
	}
}

// Satisfied reports whether a prerequisite in the given terminal status
// satisfies an edge of this type.
func (e EdgeType) Satisfied(prereq TaskStatus) bool {
	switch e {
	case EdgeOnSuccess:
		return prereq == TaskStatusCompleted
	case EdgeOnFailure:
		return prereq == TaskStatusFailed
	case EdgeSequence, EdgeAlways:
		return prereq.Terminal()
	default:
		return false
	}
}

// Unsatisfiable reports whether a prerequisite in the given status can never
// satisfy an edge of this type. Dependents of such edges are skipped rather
// than left pending forever.
func (e EdgeType) Unsatisfiable(prereq TaskStatus) bool {
	if !prereq.Terminal() {
		return false
	}
	return !e.Satisfied(prereq)
}

// DependencyEdge is a typed dependency between two named tasks in a workflow.
// Stored as a (workflow, dependent, prerequisite, type) tuple.
type DependencyEdge struct {
	// WorkflowID identifies the workflow this edge belongs to.
	WorkflowID string `json:"workflow_id"`
	// Dependent is the name of the task that waits.
	Dependent string `json:"dependent"`
	// Prerequisite is the name of the task that must finish first.
	Prerequisite string `json:"prerequisite"`
	// Type determines which terminal states of the prerequisite satisfy
	// the edge.
	Type EdgeType `json:"type"`
}
