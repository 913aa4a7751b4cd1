package conflict

import (
	"fmt"
	"strings"

	"github.com/taskweave/taskweave/pkg/models"
)

// overAllocationHandler delays the lower-priority claims: admission runs in
// claim order until the pool is exhausted, the rest wait.
type overAllocationHandler struct{}

func (overAllocationHandler) Type() models.ConflictType { return models.ConflictOverAllocation }

func (overAllocationHandler) Resolve(c *models.ResourceConflict, in Input) (*Decision, error) {
	if len(in.Claims) == 0 {
		return nil, fmt.Errorf("over-allocation conflict %s has no claims", c.ID)
	}

	d := &Decision{Conflict: c}
	free := in.Free
	for _, claim := range sortClaims(in.Claims) {
		if claim.Amount <= free {
			free -= claim.Amount
			d.Admitted = append(d.Admitted, claim.TaskID)
		} else {
			d.Deferred = append(d.Deferred, claim.TaskID)
		}
	}

	c.Strategy = models.ResolutionDelay
	c.Outcome = fmt.Sprintf("admitted [%s], delayed [%s]",
		strings.Join(d.Admitted, " "), strings.Join(d.Deferred, " "))
	return d, nil
}

// doubleBookingHandler keeps the winning claim on the contended provider and
// reassigns the rest to the next-healthiest eligible provider, queueing
// whatever cannot be placed.
type doubleBookingHandler struct{}

func (doubleBookingHandler) Type() models.ConflictType { return models.ConflictDoubleBooking }

func (doubleBookingHandler) Resolve(c *models.ResourceConflict, in Input) (*Decision, error) {
	if len(in.Claims) < 2 {
		return nil, fmt.Errorf("double booking conflict %s needs at least two claims", c.ID)
	}

	sorted := sortClaims(in.Claims)
	d := &Decision{
		Conflict:   c,
		Admitted:   []string{sorted[0].TaskID},
		Reassigned: make(map[string]string),
	}

	exclude := []string{c.ProviderID}
	queued := false
	for _, claim := range sorted[1:] {
		if in.Ranker != nil {
			if provider, ok := in.Ranker.NextHealthiest(exclude, claim.Amount); ok {
				d.Reassigned[claim.TaskID] = provider
				continue
			}
		}
		d.Deferred = append(d.Deferred, claim.TaskID)
		queued = true
	}

	if queued {
		c.Strategy = models.ResolutionQueue
	} else {
		c.Strategy = models.ResolutionReassign
	}
	c.Outcome = fmt.Sprintf("kept %s on %s, reassigned %d, queued %d",
		sorted[0].TaskID, c.ProviderID, len(d.Reassigned), len(d.Deferred))
	return d, nil
}

// quotaRaceHandler admits claims in priority order until the provider's
// remaining quota is spent, deferring the rest. The provider is never
// over-admitted.
type quotaRaceHandler struct{}

func (quotaRaceHandler) Type() models.ConflictType { return models.ConflictQuotaRace }

func (quotaRaceHandler) Resolve(c *models.ResourceConflict, in Input) (*Decision, error) {
	if len(in.Claims) == 0 {
		return nil, fmt.Errorf("quota race conflict %s has no claims", c.ID)
	}

	d := &Decision{Conflict: c}
	headroom := in.Free
	for _, claim := range sortClaims(in.Claims) {
		if claim.Amount <= headroom {
			headroom -= claim.Amount
			d.Admitted = append(d.Admitted, claim.TaskID)
		} else {
			d.Deferred = append(d.Deferred, claim.TaskID)
		}
	}

	c.Strategy = models.ResolutionPriorityAdmit
	c.Outcome = fmt.Sprintf("quota admitted [%s], deferred [%s]",
		strings.Join(d.Admitted, " "), strings.Join(d.Deferred, " "))
	return d, nil
}

// priorityInversionHandler shrinks the low-priority holder's stake so the
// waiting high-priority claim fits. The holder is the first claim; waiters
// follow.
type priorityInversionHandler struct{}

func (priorityInversionHandler) Type() models.ConflictType { return models.ConflictPriorityInversion }

func (priorityInversionHandler) Resolve(c *models.ResourceConflict, in Input) (*Decision, error) {
	if len(in.Claims) == 0 {
		return nil, fmt.Errorf("priority inversion conflict %s has no claims", c.ID)
	}

	sorted := sortClaims(in.Claims)
	d := &Decision{Conflict: c, Admitted: []string{sorted[0].TaskID}}
	for _, claim := range sorted[1:] {
		d.Deferred = append(d.Deferred, claim.TaskID)
	}

	c.Strategy = models.ResolutionShrink
	c.Outcome = fmt.Sprintf("boosted %s ahead of %d lower-priority holders",
		sorted[0].TaskID, len(d.Deferred))
	return d, nil
}
