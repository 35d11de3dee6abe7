package resiliency

import (
	"log/slog"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Failing, reject requests
	StateHalfOpen              // Testing recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for creating a circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // Consecutive failures before opening.
	FailureWindow    time.Duration // Failures older than this stop counting.
	Cooldown         time.Duration // Time in OPEN before a half-open trial.
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		FailureWindow:    60 * time.Second,
		Cooldown:         30 * time.Second,
	}
}

// CircuitBreaker isolates a failing venue. Three states with exhaustive
// transitions: CLOSED->OPEN on threshold failures within the window,
// OPEN->HALF_OPEN after the cooldown, HALF_OPEN->CLOSED on trial
// success, HALF_OPEN->OPEN on trial failure (cooldown restarts).
//
// HALF_OPEN admits exactly one in-flight trial call; concurrent
// requests are rejected until the trial reports back.
// Thread-safe for concurrent use.
type CircuitBreaker struct {
	name string
	mu   sync.Mutex

	state        State
	failureCount int
	lastFailure  time.Time
	trialPending bool

	failureThreshold int
	failureWindow    time.Duration
	cooldown         time.Duration
}

// NewCircuitBreaker creates a new circuit breaker in CLOSED state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:             cfg.Name,
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		failureWindow:    cfg.FailureWindow,
		cooldown:         cfg.Cooldown,
	}
}

// Allow checks if a request should be allowed.
// Returns true if the request can proceed, false if it should be rejected.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastFailure) > cb.cooldown {
			cb.state = StateHalfOpen
			cb.trialPending = true
			slog.Info("Circuit breaker transitioning to HALF_OPEN",
				slog.String("name", cb.name))
			return true
		}
		return false

	case StateHalfOpen:
		// Exactly one trial call at a time.
		if cb.trialPending {
			return false
		}
		cb.trialPending = true
		return true

	default:
		return false
	}
}

// RecordSuccess records a successful operation.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.state = StateClosed
		cb.failureCount = 0
		cb.trialPending = false
		slog.Info("Circuit breaker CLOSED (recovered)",
			slog.String("name", cb.name))
	}
}

// RecordFailure records a failed operation.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	switch cb.state {
	case StateClosed:
		// Failures outside the observation window restart the count.
		if cb.failureWindow > 0 && !cb.lastFailure.IsZero() && now.Sub(cb.lastFailure) > cb.failureWindow {
			cb.failureCount = 0
		}
		cb.failureCount++
		cb.lastFailure = now
		if cb.failureCount >= cb.failureThreshold {
			cb.state = StateOpen
			slog.Warn("Circuit breaker OPEN (failures exceeded threshold)",
				slog.String("name", cb.name),
				slog.Int("failures", cb.failureCount))
		}

	case StateHalfOpen:
		// The trial failed: back to OPEN, cooldown restarts.
		cb.state = StateOpen
		cb.trialPending = false
		cb.lastFailure = now
		slog.Warn("Circuit breaker OPEN (half-open trial failed)",
			slog.String("name", cb.name))

	case StateOpen:
		cb.lastFailure = now
	}
}

// GetState returns the current state (for monitoring).
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the current consecutive-failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// Reset forces the circuit breaker to closed state (for testing/admin).
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failureCount = 0
	cb.trialPending = false
	slog.Info("Circuit breaker RESET", slog.String("name", cb.name))
}
