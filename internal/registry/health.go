package registry

import (
	"errors"
	"log"

	"github.com/sony/gobreaker"

	"github.com/taskweave/taskweave/pkg/models"
)

// errProbe feeds a failure observation into a breaker.
var errProbe = errors.New("execution failure")

// newBreakerLocked builds the circuit breaker guarding one provider. The
// breaker trips after consecutiveFailureLimit straight failures and half-opens
// after the health timeout.
func (r *Registry) newBreakerLocked(id string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        id,
		MaxRequests: 1,
		Timeout:     r.healthTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailureLimit
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[registry] provider %s breaker %s -> %s", name, from, to)
		},
	})
}

// RecordSuccess feeds a successful execution into the provider's breaker.
func (r *Registry) RecordSuccess(id string) {
	r.observe(id, nil)
}

// RecordFailure feeds a failed execution into the provider's breaker. Three
// consecutive failures trip the breaker and exclude the provider from
// selection until ResetHealth or the breaker's half-open probe succeeds.
func (r *Registry) RecordFailure(id string) {
	r.observe(id, errProbe)
}

func (r *Registry) observe(id string, result error) {
	r.mu.RLock()
	cb := r.breakers[id]
	r.mu.RUnlock()
	if cb == nil {
		return
	}

	// Execute may refuse with ErrOpenState; the observation is then moot
	// because the provider is already excluded.
	_, _ = cb.Execute(func() (interface{}, error) { return nil, result })

	r.syncHealth(id, cb)
}

// syncHealth projects breaker state onto the provider's health field.
func (r *Registry) syncHealth(id string, cb *gobreaker.CircuitBreaker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return
	}
	switch cb.State() {
	case gobreaker.StateOpen:
		p.Health = models.HealthUnavailable
	case gobreaker.StateHalfOpen:
		p.Health = models.HealthDegraded
	default:
		if cb.Counts().ConsecutiveFailures > 0 {
			p.Health = models.HealthDegraded
		} else {
			p.Health = models.HealthHealthy
		}
	}
}

// ResetHealth discards a provider's failure history: fresh breaker, healthy
// status. Operator-initiated via the CLI.
func (r *Registry) ResetHealth(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return ErrUnknownProvider
	}
	p.Health = models.HealthHealthy
	r.breakers[id] = r.newBreakerLocked(id)
	return nil
}

// Available reports whether the provider's breaker currently admits work.
func (r *Registry) Available(id string) bool {
	r.mu.RLock()
	cb := r.breakers[id]
	r.mu.RUnlock()
	if cb == nil {
		return false
	}
	return cb.State() != gobreaker.StateOpen
}
