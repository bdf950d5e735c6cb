package provider

import (
	"sync"
	"time"
)

// CBState is one of the three circuit breaker states.
type CBState int

const (
	CBClosed CBState = iota
	CBOpen
	CBHalfOpen
)

// CircuitBreaker is a per-(providerId) breaker: Closed -> Open after
// failureThreshold consecutive failures; Open -> HalfOpen after
// resetTimeout elapses; HalfOpen -> Closed after halfOpenMax consecutive
// successes, or back to Open on any failure.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CBState
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMax      int

	consecutiveFailures int
	halfOpenSuccesses   int
	lastFailureTime     time.Time
}

// NewCircuitBreaker builds a breaker with the given parameters. halfOpenMax
// defaults to 1 (the Open Question decision recorded in DESIGN.md) when
// zero or negative.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	if halfOpenMax <= 0 {
		halfOpenMax = 1
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMax:      halfOpenMax,
	}
}

// Allow reports whether a call should be permitted. Transitions Open ->
// HalfOpen once resetTimeout has elapsed since the last failure.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CBOpen:
		if time.Since(cb.lastFailureTime) >= cb.resetTimeout {
			cb.state = CBHalfOpen
			cb.halfOpenSuccesses = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure streak and, in HalfOpen, advances toward
// Closed once halfOpenMax consecutive successes have been observed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	if cb.state == CBHalfOpen {
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenMax {
			cb.state = CBClosed
		}
	}
}

// RecordFailure trips the breaker to Open from Closed once the failure
// threshold is reached, or immediately from HalfOpen.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CBClosed:
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.state = CBOpen
		}
	case CBHalfOpen:
		cb.state = CBOpen
		cb.halfOpenSuccesses = 0
	}
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() CBState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerRegistry lazily creates and caches one CircuitBreaker per provider
// id, all sharing the same configured thresholds.
type BreakerRegistry struct {
	mu sync.Mutex

	breakers         map[string]*CircuitBreaker
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMax      int
}

// NewBreakerRegistry builds a registry; see NewCircuitBreaker for parameter
// semantics.
func NewBreakerRegistry(failureThreshold int, resetTimeout time.Duration, halfOpenMax int) *BreakerRegistry {
	return &BreakerRegistry{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMax:      halfOpenMax,
	}
}

// Get returns the breaker for providerID, creating it on first use.
func (r *BreakerRegistry) Get(providerID string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[providerID]
	if !ok {
		cb = NewCircuitBreaker(r.failureThreshold, r.resetTimeout, r.halfOpenMax)
		r.breakers[providerID] = cb
	}
	return cb
}
