// Package allocator reserves and releases CPU, memory, and token budget for
// subtasks, and tracks pool utilization.
package allocator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/pkg/models"
)

// ErrInsufficient indicates a resource pool cannot cover a requested amount.
var ErrInsufficient = errors.New("insufficient resources")

// Capacity is the pool size per resource kind. CPU is millicores, memory is
// megabytes, tokens is the shared token budget.
type Capacity map[models.ResourceKind]int64

// DefaultCapacity returns the default pool sizes.
func DefaultCapacity() Capacity {
	return Capacity{
		models.ResourceCPU:    16000,
		models.ResourceMemory: 65536,
		models.ResourceTokens: 2_000_000,
	}
}

// tierProfiles maps a complexity tier to the base amount requested per
// resource kind. Amounts are monotonic: a higher tier never requests less
// than a lower tier for the same kind.
var tierProfiles = map[models.ComplexityTier]map[models.ResourceKind]int64{
	models.TierSimple: {
		models.ResourceCPU:    500,
		models.ResourceMemory: 1024,
		models.ResourceTokens: 8_000,
	},
	models.TierModerate: {
		models.ResourceCPU:    1000,
		models.ResourceMemory: 2048,
		models.ResourceTokens: 32_000,
	},
	models.TierComplex: {
		models.ResourceCPU:    2000,
		models.ResourceMemory: 4096,
		models.ResourceTokens: 96_000,
	},
	models.TierHighlyComplex: {
		models.ResourceCPU:    4000,
		models.ResourceMemory: 8192,
		models.ResourceTokens: 256_000,
	},
}

// strategyFactor scales amounts for strategies that add coordination work.
// Expressed in percent to keep the arithmetic integral.
var strategyFactor = map[models.Strategy]int64{
	models.StrategyNoSplit:           100,
	models.StrategyParallelSplit:     100,
	models.StrategyPipeline:          105,
	models.StrategyHierarchicalSplit: 115,
	models.StrategyHybrid:            120,
}

// AmountFor returns the amount of a resource kind a subtask of the given tier
// and strategy requests.
func AmountFor(tier models.ComplexityTier, strategy models.Strategy, kind models.ResourceKind) int64 {
	profile, ok := tierProfiles[tier]
	if !ok {
		profile = tierProfiles[models.TierModerate]
	}
	factor, ok := strategyFactor[strategy]
	if !ok {
		factor = 100
	}
	return profile[kind] * factor / 100
}

// Utilization is a point-in-time snapshot of one resource pool.
type Utilization struct {
	// Used is the currently allocated amount.
	Used int64
	// Capacity is the pool size.
	Capacity int64
	// Ratio is Used/Capacity in [0,1].
	Ratio float64
}

// AllocationStore is the optional persistence surface for allocations.
type AllocationStore interface {
	CreateAllocation(a *models.ResourceAllocation) error
	ReleaseAllocations(taskID string, at time.Time) error
}

// Allocator owns the resource pools. All mutation is single-writer behind
// the mutex; utilization reads never see a torn subtask allocation.
type Allocator struct {
	mu       sync.Mutex
	capacity Capacity
	used     map[models.ResourceKind]int64
	// active maps task ID -> kind -> allocation.
	active map[string]map[models.ResourceKind]*models.ResourceAllocation
	// reservations holds time-bounded predictive claims by ID.
	reservations map[string]models.ResourceReservation
	store        AllocationStore
}

// New creates an Allocator with the given capacity. A nil capacity uses the
// defaults; a nil store disables persistence.
func New(capacity Capacity, store AllocationStore) *Allocator {
	if capacity == nil {
		capacity = DefaultCapacity()
	}
	return &Allocator{
		capacity:     capacity,
		used:         make(map[models.ResourceKind]int64),
		active:       make(map[string]map[models.ResourceKind]*models.ResourceAllocation),
		reservations: make(map[string]models.ResourceReservation),
		store:        store,
	}
}

// Allocate reserves every resource kind for one subtask, all-or-nothing.
// If any kind cannot be covered, nothing is held and ErrInsufficient is
// returned naming the kind; the caller marks the subtask blocked.
func (a *Allocator) Allocate(taskID, provider string, tier models.ComplexityTier, strategy models.Strategy) ([]models.ResourceAllocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, held := a.active[taskID]; held {
		return nil, fmt.Errorf("task %s already holds an allocation", taskID)
	}

	amounts := make(map[models.ResourceKind]int64, 3)
	for _, kind := range models.AllKinds() {
		amount := AmountFor(tier, strategy, kind)
		if a.used[kind]+amount > a.capacity[kind] {
			return nil, fmt.Errorf("%w: %s needs %d, %d free", ErrInsufficient,
				kind, amount, a.capacity[kind]-a.used[kind])
		}
		amounts[kind] = amount
	}

	now := time.Now().UTC()
	byKind := make(map[models.ResourceKind]*models.ResourceAllocation, len(amounts))
	out := make([]models.ResourceAllocation, 0, len(amounts))
	for _, kind := range models.AllKinds() {
		alloc := &models.ResourceAllocation{
			ID:          uuid.New().String()[:8],
			TaskID:      taskID,
			Provider:    provider,
			Kind:        kind,
			Amount:      amounts[kind],
			Status:      models.AllocationActive,
			AllocatedAt: now,
		}
		a.used[kind] += amounts[kind]
		byKind[kind] = alloc
		out = append(out, *alloc)
		if a.store != nil {
			if err := a.store.CreateAllocation(alloc); err != nil {
				// Roll the whole subtask back; partial holds are worse
				// than a failed admission.
				a.rollbackLocked(byKind)
				return nil, fmt.Errorf("persist allocation: %w", err)
			}
		}
	}
	a.active[taskID] = byKind
	return out, nil
}

// rollbackLocked returns amounts held so far for a partially built subtask.
func (a *Allocator) rollbackLocked(byKind map[models.ResourceKind]*models.ResourceAllocation) {
	for kind, alloc := range byKind {
		a.used[kind] -= alloc.Amount
	}
}

// Release returns every resource held by a task. Idempotent: releasing a
// task that holds nothing is a no-op.
func (a *Allocator) Release(taskID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	byKind, ok := a.active[taskID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	for kind, alloc := range byKind {
		a.used[kind] -= alloc.Amount
		alloc.Status = models.AllocationReleased
		alloc.ReleasedAt = &now
	}
	delete(a.active, taskID)

	if a.store != nil {
		// Best effort; the in-memory pool is authoritative.
		_ = a.store.ReleaseAllocations(taskID, now)
	}
}

// Holds reports whether the task currently holds an allocation.
func (a *Allocator) Holds(taskID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.active[taskID]
	return ok
}

// Utilization returns a snapshot of every pool.
func (a *Allocator) Utilization() map[models.ResourceKind]Utilization {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[models.ResourceKind]Utilization, len(a.capacity))
	for _, kind := range models.AllKinds() {
		cap := a.capacity[kind]
		used := a.used[kind]
		u := Utilization{Used: used, Capacity: cap}
		if cap > 0 {
			u.Ratio = float64(used) / float64(cap)
		}
		out[kind] = u
	}
	return out
}

// Free returns the unallocated amount of one kind.
func (a *Allocator) Free(kind models.ResourceKind) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capacity[kind] - a.used[kind]
}
