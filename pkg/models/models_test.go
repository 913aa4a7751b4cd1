package models

import (
	"testing"
	"time"
)

func TestTaskStatusTerminal(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		terminal bool
	}{
		{TaskStatusPending, false},
		{TaskStatusQueued, false},
		{TaskStatusInProgress, false},
		{TaskStatusRetry, false},
		{TaskStatusBlocked, false},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
		{TaskStatusSkipped, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("Terminal(%s) = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestEdgeTypeSatisfied(t *testing.T) {
	tests := []struct {
		edge      EdgeType
		prereq    TaskStatus
		satisfied bool
	}{
		{EdgeOnSuccess, TaskStatusCompleted, true},
		{EdgeOnSuccess, TaskStatusFailed, false},
		{EdgeOnFailure, TaskStatusFailed, true},
		{EdgeOnFailure, TaskStatusCompleted, false},
		{EdgeAlways, TaskStatusCompleted, true},
		{EdgeAlways, TaskStatusFailed, true},
		{EdgeAlways, TaskStatusSkipped, true},
		{EdgeSequence, TaskStatusFailed, true},
		{EdgeSequence, TaskStatusInProgress, false},
		{EdgeAlways, TaskStatusInProgress, false},
	}

	for _, tt := range tests {
		if got := tt.edge.Satisfied(tt.prereq); got != tt.satisfied {
			t.Errorf("%s.Satisfied(%s) = %v, want %v", tt.edge, tt.prereq, got, tt.satisfied)
		}
	}
}

func TestEdgeTypeUnsatisfiable(t *testing.T) {
	// A success edge whose prerequisite failed can never be satisfied.
	if !EdgeOnSuccess.Unsatisfiable(TaskStatusFailed) {
		t.Error("expected on_success edge with failed prereq to be unsatisfiable")
	}
	// Still running: not decided yet.
	if EdgeOnSuccess.Unsatisfiable(TaskStatusInProgress) {
		t.Error("in-progress prereq should not be unsatisfiable")
	}
	// Always edges are satisfiable by any terminal state.
	if EdgeAlways.Unsatisfiable(TaskStatusFailed) {
		t.Error("always edge should never be unsatisfiable for terminal prereq")
	}
}

func TestProviderHeadroom(t *testing.T) {
	p := Provider{QuotaLimit: 100, QuotaUsed: 60}
	if got := p.Headroom(); got != 40 {
		t.Errorf("expected headroom 40, got %d", got)
	}

	// Clamped: usage at or above limit yields zero headroom.
	p.QuotaUsed = 150
	if got := p.Headroom(); got != 0 {
		t.Errorf("expected headroom 0, got %d", got)
	}
}

func TestProviderEligible(t *testing.T) {
	p := Provider{ID: "p1", Active: true, Health: HealthHealthy, QuotaLimit: 10, QuotaUsed: 0}
	if !p.Eligible() {
		t.Error("expected provider to be eligible")
	}

	p.Health = HealthUnavailable
	if p.Eligible() {
		t.Error("unavailable provider should not be eligible")
	}

	p.Health = HealthHealthy
	p.QuotaUsed = 10
	if p.Eligible() {
		t.Error("quota-exhausted provider should not be eligible")
	}

	p.QuotaUsed = 0
	p.Active = false
	if p.Eligible() {
		t.Error("inactive provider should not be eligible")
	}
}

func TestReservationOverlaps(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	a := ResourceReservation{Start: base, End: base.Add(time.Hour)}
	b := ResourceReservation{Start: base.Add(30 * time.Minute), End: base.Add(2 * time.Hour)}
	c := ResourceReservation{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}

	if !a.Overlaps(b) {
		t.Error("expected a and b to overlap")
	}
	if a.Overlaps(c) {
		t.Error("touching intervals should not overlap")
	}
}

func TestComplexityTierRank(t *testing.T) {
	order := []ComplexityTier{TierSimple, TierModerate, TierComplex, TierHighlyComplex}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("expected %s to rank above %s", order[i], order[i-1])
		}
	}
}
