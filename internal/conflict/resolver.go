// Package conflict detects and resolves contention between simultaneous
// resource and provider claims.
package conflict

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/pkg/models"
)

// ErrEscalated indicates no strategy applied within the attempt budget.
var ErrEscalated = errors.New("conflict escalated")

// DefaultMaxAttempts bounds analysis retries before escalation.
const DefaultMaxAttempts = 3

// Claim is one task's stake in a contended resource or provider slot.
type Claim struct {
	// TaskID identifies the claiming task.
	TaskID string
	// Priority orders competing claims; higher wins.
	Priority int
	// CreatedAt breaks priority ties; earlier wins.
	CreatedAt time.Time
	// Amount is the units claimed (resource amount or quota units).
	Amount int64
}

// Decision is the outcome of resolving one conflict. The coordinator applies
// it; the resolver only decides.
type Decision struct {
	// Conflict is the resolved record, terminal and audit-complete.
	Conflict *models.ResourceConflict
	// Admitted lists task IDs whose claims proceed, in admission order.
	Admitted []string
	// Deferred lists task IDs whose claims wait, in deferral order.
	Deferred []string
	// Reassigned maps task IDs to replacement provider IDs.
	Reassigned map[string]string
}

// ProviderRanker supplies the next-healthiest eligible provider for
// double-booking reassignment.
type ProviderRanker interface {
	// NextHealthiest returns the best eligible provider not in exclude,
	// or false if none qualifies.
	NextHealthiest(exclude []string, estTokens int64) (string, bool)
}

// Input carries the situational data a handler needs.
type Input struct {
	// Claims are the competing stakes, any order; handlers sort.
	Claims []Claim
	// Free is the remaining capacity or quota headroom being fought over.
	Free int64
	// Ranker is required for double-booking resolution, nil otherwise.
	Ranker ProviderRanker
}

// Handler resolves one conflict type. Handlers are registered by type key;
// there is no runtime loading.
type Handler interface {
	Type() models.ConflictType
	Resolve(c *models.ResourceConflict, in Input) (*Decision, error)
}

// Store is the optional persistence surface for conflict records.
type Store interface {
	CreateConflict(c *models.ResourceConflict) error
	UpdateConflict(c *models.ResourceConflict) error
}

// Resolver runs the conflict state machine:
// detected -> analyzing -> resolving -> resolved, or escalated when no
// strategy applies after the attempt budget.
type Resolver struct {
	mu          sync.Mutex
	handlers    map[models.ConflictType]Handler
	attempts    map[string]int
	maxAttempts int
	store       Store
}

// NewResolver creates a Resolver with every built-in handler registered.
// A nil store disables persistence.
func NewResolver(store Store) *Resolver {
	r := &Resolver{
		handlers:    make(map[models.ConflictType]Handler),
		attempts:    make(map[string]int),
		maxAttempts: DefaultMaxAttempts,
		store:       store,
	}
	r.Register(overAllocationHandler{})
	r.Register(doubleBookingHandler{})
	r.Register(quotaRaceHandler{})
	r.Register(priorityInversionHandler{})
	return r
}

// Register adds or replaces the handler for a conflict type.
func (r *Resolver) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

// SetMaxAttempts bounds analysis retries before escalation. Minimum 1.
func (r *Resolver) SetMaxAttempts(n int) {
	if n < 1 {
		n = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxAttempts = n
}

// Detect records a new conflict in the detected state.
func (r *Resolver) Detect(ctype models.ConflictType, taskIDs []string, providerID string, kind models.ResourceKind) *models.ResourceConflict {
	c := &models.ResourceConflict{
		ID:         uuid.New().String()[:8],
		Type:       ctype,
		TaskIDs:    append([]string{}, taskIDs...),
		ProviderID: providerID,
		Kind:       kind,
		Status:     models.ConflictDetected,
		DetectedAt: time.Now().UTC(),
	}
	if r.store != nil {
		_ = r.store.CreateConflict(c)
	}
	return c
}

// Resolve drives a conflict to a terminal state. For a fixed input ordering
// the outcome is deterministic: identical conflicting state re-resolves
// identically. After the attempt budget the conflict escalates instead of
// retrying forever.
func (r *Resolver) Resolve(c *models.ResourceConflict, in Input) (*Decision, error) {
	r.mu.Lock()
	handler, ok := r.handlers[c.Type]
	attempts := r.attempts[c.ID]
	maxAttempts := r.maxAttempts
	r.mu.Unlock()

	c.Status = models.ConflictAnalyzing

	if !ok {
		return nil, r.escalate(c, fmt.Sprintf("no handler registered for %s", c.Type))
	}
	if attempts >= maxAttempts {
		return nil, r.escalate(c, fmt.Sprintf("no strategy applied after %d attempts", attempts))
	}

	c.Status = models.ConflictResolving
	decision, err := handler.Resolve(c, in)
	if err != nil {
		r.mu.Lock()
		r.attempts[c.ID]++
		attempts = r.attempts[c.ID]
		r.mu.Unlock()

		if attempts >= maxAttempts {
			return nil, r.escalate(c, fmt.Sprintf("strategy failed %d times: %v", attempts, err))
		}
		c.Status = models.ConflictDetected // back for another analysis pass
		if r.store != nil {
			_ = r.store.UpdateConflict(c)
		}
		return nil, fmt.Errorf("resolve conflict %s: %w", c.ID, err)
	}

	now := time.Now().UTC()
	c.Status = models.ConflictResolved
	c.ResolvedAt = &now
	if r.store != nil {
		_ = r.store.UpdateConflict(c)
	}

	r.mu.Lock()
	delete(r.attempts, c.ID)
	r.mu.Unlock()

	return decision, nil
}

// escalate moves a conflict to the escalated terminal state.
func (r *Resolver) escalate(c *models.ResourceConflict, reason string) error {
	now := time.Now().UTC()
	c.Status = models.ConflictEscalated
	c.Outcome = reason
	c.ResolvedAt = &now
	if r.store != nil {
		_ = r.store.UpdateConflict(c)
	}
	return fmt.Errorf("%w: %s: %s", ErrEscalated, c.ID, reason)
}

// sortClaims orders claims for admission: priority descending, then earlier
// created_at, then ascending task ID. This total order is what makes
// resolution deterministic.
func sortClaims(claims []Claim) []Claim {
	sorted := append([]Claim{}, claims...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.TaskID < b.TaskID
	})
	return sorted
}
