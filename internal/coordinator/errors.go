package coordinator

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a scheduling failure so callers can distinguish
// a malformed workflow from an unlucky provider.
type ErrorKind string

const (
	// KindStructural covers invalid workflows: cycles, unknown tasks,
	// bad edge types.
	KindStructural ErrorKind = "structural"
	// KindProvider covers execution failures reported by a backend.
	KindProvider ErrorKind = "provider"
	// KindResource covers allocation failures against the resource pools.
	KindResource ErrorKind = "resource"
	// KindQuota covers quota exhaustion with no failover candidate left.
	KindQuota ErrorKind = "quota"
)

// Error is a classified scheduling failure. It carries the IDs a caller
// needs to trace the failure back through the audit trail.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// TaskID is the affected task, if any.
	TaskID string
	// Provider is the involved provider, if any.
	Provider string
	// ConflictID links to the conflict record that produced this failure.
	ConflictID string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Kind)
	if e.TaskID != "" {
		msg += fmt.Sprintf(" (task %s", e.TaskID)
		if e.Provider != "" {
			msg += fmt.Sprintf(", provider %s", e.Provider)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// structuralErr wraps a workflow validation failure.
func structuralErr(err error) *Error {
	return &Error{Kind: KindStructural, Err: err}
}

// providerErr wraps a backend execution failure.
func providerErr(taskID, provider string, err error) *Error {
	return &Error{Kind: KindProvider, TaskID: taskID, Provider: provider, Err: err}
}

// resourceErr wraps an allocation failure, linking the conflict record.
func resourceErr(taskID, conflictID string, err error) *Error {
	return &Error{Kind: KindResource, TaskID: taskID, ConflictID: conflictID, Err: err}
}

// quotaErr wraps quota exhaustion with no remaining candidate.
func quotaErr(taskID, provider string, err error) *Error {
	return &Error{Kind: KindQuota, TaskID: taskID, Provider: provider, Err: err}
}

// KindOf extracts the error kind from a classified error chain, or empty.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
