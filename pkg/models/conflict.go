package models

import "time"

// ConflictType classifies detected contention between claims.
type ConflictType string

const (
	// ConflictOverAllocation is a resource claim beyond pool capacity.
	ConflictOverAllocation ConflictType = "over_allocation"
	// ConflictDoubleBooking is one provider slot claimed by two tasks.
	ConflictDoubleBooking ConflictType = "double_booking"
	// ConflictQuotaRace is simultaneous claims on a provider's remaining quota.
	ConflictQuotaRace ConflictType = "quota_race"
	// ConflictPriorityInversion is a low-priority task holding resources a
	// higher-priority task is waiting on.
	ConflictPriorityInversion ConflictType = "priority_inversion"
)

// Valid returns true if the conflict type is a known value.
func (t ConflictType) Valid() bool {
	switch t {
	case ConflictOverAllocation, ConflictDoubleBooking, ConflictQuotaRace,
		ConflictPriorityInversion:
		return true
	default:
		return false
	}
}

// ConflictStatus is the state machine position of a conflict. Every conflict
// must reach resolved or escalated; never indefinitely pending.
type ConflictStatus string

const (
	// ConflictDetected is the initial state after detection.
	ConflictDetected ConflictStatus = "detected"
	// ConflictAnalyzing means a resolution strategy is being selected.
	ConflictAnalyzing ConflictStatus = "analyzing"
	// ConflictResolving means the selected strategy is being applied.
	ConflictResolving ConflictStatus = "resolving"
	// ConflictResolved means the contention was cleared.
	ConflictResolved ConflictStatus = "resolved"
	// ConflictEscalated means no strategy applied after bounded attempts.
	ConflictEscalated ConflictStatus = "escalated"
)

// Valid returns true if the status is a known value.
func (s ConflictStatus) Valid() bool {
	switch s {
	case ConflictDetected, ConflictAnalyzing, ConflictResolving,
		ConflictResolved, ConflictEscalated:
		return true
	default:
		return false
	}
}

// Terminal returns true for resolved and escalated.
func (s ConflictStatus) Terminal() bool {
	return s == ConflictResolved || s == ConflictEscalated
}

// ResolutionStrategy names how a conflict was (or would be) cleared.
type ResolutionStrategy string

const (
	// ResolutionShrink reduces the lower-priority claim to fit capacity.
	ResolutionShrink ResolutionStrategy = "shrink"
	// ResolutionDelay defers the lower-priority claim.
	ResolutionDelay ResolutionStrategy = "delay"
	// ResolutionReassign moves a claim to the next-healthiest provider.
	ResolutionReassign ResolutionStrategy = "reassign"
	// ResolutionQueue parks a claim until a slot frees up.
	ResolutionQueue ResolutionStrategy = "queue"
	// ResolutionPriorityAdmit admits claims in priority order until quota
	// is exhausted, deferring the rest.
	ResolutionPriorityAdmit ResolutionStrategy = "priority_admit"
)

// ResourceConflict records detected contention and how it was handled.
type ResourceConflict struct {
	// ID is the unique identifier for this conflict.
	ID string `json:"id"`
	// Type classifies the contention.
	Type ConflictType `json:"type"`
	// TaskIDs are the affected tasks, in claim order.
	TaskIDs []string `json:"task_ids"`
	// ProviderID is the contended provider, if applicable.
	ProviderID string `json:"provider_id,omitempty"`
	// Kind is the contended resource kind, if applicable.
	Kind ResourceKind `json:"kind,omitempty"`
	// Status is the state machine position.
	Status ConflictStatus `json:"status"`
	// Strategy is the resolution strategy that was applied.
	Strategy ResolutionStrategy `json:"strategy,omitempty"`
	// Outcome describes the result of applying the strategy, for audit.
	Outcome string `json:"outcome,omitempty"`
	// DetectedAt is when the contention was observed.
	DetectedAt time.Time `json:"detected_at"`
	// ResolvedAt is when the conflict reached a terminal status.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
