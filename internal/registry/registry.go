// Package registry tracks execution providers: quota, cost, and health.
package registry

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/taskweave/taskweave/pkg/models"
)

// ErrQuotaExhausted indicates a provider has no headroom this cycle.
var ErrQuotaExhausted = errors.New("provider quota exhausted")

// ErrUnknownProvider indicates the provider ID is not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// consecutiveFailureLimit trips a provider's breaker: after this many
// consecutive execution failures it is excluded until a health reset.
const consecutiveFailureLimit = 3

// DefaultResetCycle is the quota renewal period when none is configured.
const DefaultResetCycle = 24 * time.Hour

// DefaultHealthResetTimeout is how long a tripped provider stays excluded
// before the breaker half-opens.
const DefaultHealthResetTimeout = 60 * time.Second

// Registry owns all provider state. Quota counters are the only mutable
// shared state here; every mutation happens under the single write lock so
// reads never observe a torn counter.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*models.Provider
	breakers  map[string]*gobreaker.CircuitBreaker

	resetCycle    time.Duration
	healthTimeout time.Duration
	now           func() time.Time
}

// New creates an empty registry with default cycle settings.
func New() *Registry {
	return &Registry{
		providers:     make(map[string]*models.Provider),
		breakers:      make(map[string]*gobreaker.CircuitBreaker),
		resetCycle:    DefaultResetCycle,
		healthTimeout: DefaultHealthResetTimeout,
		now:           time.Now,
	}
}

// SetResetCycle overrides the quota renewal period.
func (r *Registry) SetResetCycle(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.resetCycle = d
	}
}

// SetHealthTimeout overrides how long a tripped breaker stays open before
// half-opening. Applies to providers registered after the call.
func (r *Registry) SetHealthTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.healthTimeout = d
	}
}

// Upsert registers or updates a provider. Health and quota usage of an
// existing provider are preserved; configuration fields are replaced.
func (r *Registry) Upsert(p models.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Health == "" {
		p.Health = models.HealthHealthy
	}
	if p.QuotaResetAt.IsZero() {
		p.QuotaResetAt = r.now().Add(r.resetCycle)
	}

	if existing, ok := r.providers[p.ID]; ok {
		p.QuotaUsed = existing.QuotaUsed
		p.Health = existing.Health
		p.LastUsedAt = existing.LastUsedAt
	}
	r.providers[p.ID] = &p

	if _, ok := r.breakers[p.ID]; !ok {
		r.breakers[p.ID] = r.newBreakerLocked(p.ID)
	}
}

// Remove drops a provider from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, id)
	delete(r.breakers, id)
}

// Get returns a copy of the provider, with quota reset applied if due.
func (r *Registry) Get(id string) (models.Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return models.Provider{}, false
	}
	r.maybeResetLocked(p)
	return *p, true
}

// List returns copies of all providers sorted by ID.
func (r *Registry) List() []models.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		r.maybeResetLocked(p)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TryConsume atomically claims quota units from a provider. Usage is
// monotonic between resets and clamped at the limit: a claim that would
// exceed the limit is rejected whole, never partially admitted.
func (r *Registry) TryConsume(id string, units int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	r.maybeResetLocked(p)

	if p.QuotaUsed+units > p.QuotaLimit {
		return fmt.Errorf("%w: %s has %d units left, %d requested",
			ErrQuotaExhausted, id, p.QuotaLimit-p.QuotaUsed, units)
	}
	p.QuotaUsed += units
	now := r.now()
	p.LastUsedAt = &now
	return nil
}

// maybeResetLocked renews the quota cycle when its reset time has passed.
func (r *Registry) maybeResetLocked(p *models.Provider) {
	now := r.now()
	if p.QuotaResetAt.IsZero() || now.Before(p.QuotaResetAt) {
		return
	}
	p.QuotaUsed = 0
	for !p.QuotaResetAt.After(now) {
		p.QuotaResetAt = p.QuotaResetAt.Add(r.resetCycle)
	}
	log.Printf("[registry] quota reset for provider %s, next reset %s", p.ID, p.QuotaResetAt.Format(time.RFC3339))
}

// Rank returns eligible providers ordered by estimated cost ascending, then
// quota headroom descending, then ID for stability. Providers whose headroom
// cannot cover the estimate are excluded.
func (r *Registry) Rank(estUnits int64) []models.Provider {
	candidates := r.List()

	var eligible []models.Provider
	for _, p := range candidates {
		if !p.Eligible() || p.Headroom() < estUnits {
			continue
		}
		eligible = append(eligible, p)
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		costA := a.CostPerUnit * float64(estUnits)
		costB := b.CostPerUnit * float64(estUnits)
		if costA != costB {
			return costA < costB
		}
		if a.Headroom() != b.Headroom() {
			return a.Headroom() > b.Headroom()
		}
		return a.ID < b.ID
	})
	return eligible
}

// NextHealthiest returns the best eligible provider outside the excluded
// set. It satisfies the conflict resolver's ProviderRanker.
func (r *Registry) NextHealthiest(exclude []string, estUnits int64) (string, bool) {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	for _, p := range r.Rank(estUnits) {
		if !skip[p.ID] {
			return p.ID, true
		}
	}
	return "", false
}
