package models

import "time"

// ResourceKind identifies a reservable resource dimension.
type ResourceKind string

const (
	// ResourceCPU is measured in millicores.
	ResourceCPU ResourceKind = "cpu"
	// ResourceMemory is measured in megabytes.
	ResourceMemory ResourceKind = "memory"
	// ResourceTokens is the token budget dimension.
	ResourceTokens ResourceKind = "tokens"
)

// Valid returns true if the kind is a known value.
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceCPU, ResourceMemory, ResourceTokens:
		return true
	default:
		return false
	}
}

// AllKinds lists every resource kind in a stable order.
func AllKinds() []ResourceKind {
	return []ResourceKind{ResourceCPU, ResourceMemory, ResourceTokens}
}

// AllocationStatus is the lifecycle state of a resource allocation.
type AllocationStatus string

const (
	// AllocationActive indicates the resources are currently held.
	AllocationActive AllocationStatus = "active"
	// AllocationReleased indicates the resources have been returned.
	AllocationReleased AllocationStatus = "released"
)

// ResourceAllocation records an instantaneous hold of one resource kind for
// one task. One allocation exists per kind per task.
type ResourceAllocation struct {
	// ID is the unique identifier for this allocation.
	ID string `json:"id"`
	// TaskID is the task holding the resources.
	TaskID string `json:"task_id"`
	// Provider is the provider the task is assigned to, if known.
	Provider string `json:"provider,omitempty"`
	// Kind is the resource dimension.
	Kind ResourceKind `json:"kind"`
	// Amount is the quantity held, in the kind's unit.
	Amount int64 `json:"amount"`
	// Status is active or released.
	Status AllocationStatus `json:"status"`
	// AllocatedAt is when the hold began.
	AllocatedAt time.Time `json:"allocated_at"`
	// ReleasedAt is when the hold ended, if it has.
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}

// ResourceReservation is a time-bounded future hold, distinct from an
// instantaneous allocation. Used for predictive conflict detection; converted
// to an allocation at start time via a best-effort admission re-check.
type ResourceReservation struct {
	// ID is the unique identifier for this reservation.
	ID string `json:"id"`
	// TaskID is the task the hold is for.
	TaskID string `json:"task_id"`
	// Kind is the resource dimension.
	Kind ResourceKind `json:"kind"`
	// Amount is the quantity reserved.
	Amount int64 `json:"amount"`
	// Start is when the hold begins.
	Start time.Time `json:"start"`
	// End is when the hold expires.
	End time.Time `json:"end"`
}

// Overlaps reports whether two reservations intersect in time.
func (r ResourceReservation) Overlaps(other ResourceReservation) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}
