package allocator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/pkg/models"
)

// Reserve records a time-bounded predictive hold. The check is against other
// reservations overlapping the same window plus current instantaneous usage;
// it is advisory, not a hard guarantee. At start time the admission re-check
// in Allocate decides for real.
func (a *Allocator) Reserve(taskID string, kind models.ResourceKind, amount int64, start, end time.Time) (models.ResourceReservation, error) {
	if !end.After(start) {
		return models.ResourceReservation{}, fmt.Errorf("reservation window ends before it starts")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	res := models.ResourceReservation{
		ID:     uuid.New().String()[:8],
		TaskID: taskID,
		Kind:   kind,
		Amount: amount,
		Start:  start,
		End:    end,
	}

	committed := a.used[kind]
	for _, other := range a.reservations {
		if other.Kind == kind && other.Overlaps(res) {
			committed += other.Amount
		}
	}
	if committed+amount > a.capacity[kind] {
		return models.ResourceReservation{}, fmt.Errorf("%w: %s window oversubscribed by %d",
			ErrInsufficient, kind, committed+amount-a.capacity[kind])
	}

	a.reservations[res.ID] = res
	return res, nil
}

// CancelReservation drops a predictive hold. Unknown IDs are a no-op.
func (a *Allocator) CancelReservation(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reservations, id)
}

// ExpireReservations drops reservations whose window has passed and returns
// how many were dropped.
func (a *Allocator) ExpireReservations(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for id, res := range a.reservations {
		if !res.End.After(now) {
			delete(a.reservations, id)
			n++
		}
	}
	return n
}

// ReservedDuring sums the reservations of one kind overlapping a window.
// The conflict resolver uses this for predictive over-allocation detection.
func (a *Allocator) ReservedDuring(kind models.ResourceKind, start, end time.Time) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	window := models.ResourceReservation{Start: start, End: end}
	var total int64
	for _, res := range a.reservations {
		if res.Kind == kind && res.Overlaps(window) {
			total += res.Amount
		}
	}
	return total
}
