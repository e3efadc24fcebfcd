package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrCircuitOpen is returned without calling through while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Calls fail immediately
	StateHalfOpen                     // One probe call is let through
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a failing service for resetTimeout after
// maxFailures consecutive counted failures.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	countable    func(error) bool
	clock        clockwork.Clock

	mu            sync.Mutex
	state         CircuitState
	failureCount  int
	openedAt      time.Time
	probeInFlight bool

	requestCount      int64
	failureCountTotal int64
}

// NewCircuitBreaker creates a breaker. countable decides which errors count as
// failures; nil counts every error. Uncounted errors leave the state unchanged.
// A nil clock means real time.
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration, countable func(error) bool, clock clockwork.Clock) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		countable:    countable,
		clock:        clock,
		state:        StateClosed,
	}
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Call executes fn with circuit breaker protection
func (cb *CircuitBreaker) Call(ctx context.Context, fn RetryableFunc) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn(ctx)

	switch {
	case err == nil:
		cb.recordResult(true)
	case ctx.Err() != nil:
		// Cancellation says nothing about the service.
		cb.releaseProbe()
	case cb.countable == nil || cb.countable(err):
		cb.recordResult(false)
	default:
		cb.releaseProbe()
	}
	return err
}

// allowRequest checks if a request should be allowed
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if cb.clock.Since(cb.openedAt) < cb.resetTimeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.probeInFlight = true
		return true

	case StateHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	}
	return false
}

func (cb *CircuitBreaker) recordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requestCount++
	cb.probeInFlight = false

	if success {
		cb.state = StateClosed
		cb.failureCount = 0
		return
	}

	cb.failureCountTotal++
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.maxFailures {
			cb.trip()
		}
	case StateHalfOpen:
		// The probe failed, wait another full timeout.
		cb.trip()
	}
}

func (cb *CircuitBreaker) releaseProbe() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.requestCount++
	cb.probeInFlight = false
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.clock.Now()
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() (state CircuitState, requestCount, failureCount int64, failureRate float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state = cb.state
	requestCount = cb.requestCount
	failureCount = cb.failureCountTotal

	if requestCount > 0 {
		failureRate = float64(failureCount) / float64(requestCount) * 100.0
	}
	return
}
