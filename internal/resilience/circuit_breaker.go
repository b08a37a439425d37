// Package resilience implements the circuit breaker used to gate RETRY
// decisions in the per-job recovery policy engine, adapted from the
// teacher's pkg/resilience/circuit_breaker.go.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"casare-orchestrator/internal/models"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// CircuitState is the breaker's finite state machine state.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func (s CircuitState) modelState() models.BreakerState {
	switch s {
	case CircuitOpen:
		return models.BreakerOpen
	case CircuitHalfOpen:
		return models.BreakerHalfOpen
	default:
		return models.BreakerClosed
	}
}

// Config holds circuit breaker configuration.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	MaxRequests      int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MaxRequests:      3,
	}
}

// CircuitBreaker implements the circuit breaker pattern for one (robot,
// node_kind) or node_id key tracked by the policy engine.
type CircuitBreaker struct {
	key    string
	config Config

	mu               sync.RWMutex
	state            CircuitState
	failures         int
	successes        int
	halfOpenRequests int
	lastFailure      time.Time
	lastTransition   time.Time
}

// New creates a new circuit breaker for key.
func New(key string, config Config) *CircuitBreaker {
	return &CircuitBreaker{
		key:            key,
		config:         config,
		state:          CircuitClosed,
		lastTransition: time.Now(),
	}
}

// State returns the current, possibly lazily-transitioned, state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.currentState()
}

func (cb *CircuitBreaker) currentState() CircuitState {
	if cb.state == CircuitOpen && time.Since(cb.lastFailure) >= cb.config.Timeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// Allow reports whether a new RETRY action is permitted by this breaker, per
// spec §4.7: RETRY is denied while the breaker for the failing node is OPEN.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.beforeRequestLocked() == nil
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	cb.mu.Lock()
	err := cb.beforeRequestLocked()
	cb.mu.Unlock()
	if err != nil {
		return err
	}

	err = fn()
	cb.RecordResult(err)
	return err
}

// RecordResult reports the outcome of one execution gated by Allow.
func (cb *CircuitBreaker) RecordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailureLocked()
	} else {
		cb.onSuccessLocked()
	}
}

func (cb *CircuitBreaker) beforeRequestLocked() error {
	switch cb.currentState() {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		return ErrCircuitOpen
	case CircuitHalfOpen:
		if cb.halfOpenRequests >= cb.config.MaxRequests {
			return ErrCircuitOpen
		}
		if cb.state == CircuitOpen {
			cb.transitionLocked(CircuitHalfOpen)
			cb.halfOpenRequests = 0
		}
		cb.halfOpenRequests++
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) onFailureLocked() {
	cb.failures++
	cb.successes = 0
	cb.lastFailure = time.Now()

	switch cb.currentState() {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionLocked(CircuitOpen)
			cb.halfOpenRequests = 0
		}
	case CircuitHalfOpen:
		cb.transitionLocked(CircuitOpen)
		cb.halfOpenRequests = 0
	}
}

func (cb *CircuitBreaker) onSuccessLocked() {
	switch cb.currentState() {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionLocked(CircuitClosed)
			cb.failures = 0
			cb.successes = 0
			cb.halfOpenRequests = 0
		}
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	cb.state = to
	cb.lastTransition = time.Now()
}

// Reset resets the circuit breaker to its initial closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(CircuitClosed)
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenRequests = 0
}

// Snapshot returns a read-only view of the breaker's current state.
func (cb *CircuitBreaker) Snapshot() models.BreakerSnapshot {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return models.BreakerSnapshot{
		Key:              cb.key,
		State:            cb.currentState().modelState(),
		FailureCount:     cb.failures,
		SuccessCount:     cb.successes,
		LastFailureAt:    cb.lastFailure,
		LastTransitionAt: cb.lastTransition,
	}
}

// Registry holds one CircuitBreaker per key, created lazily on first use.
// Keys are formatted by the caller, typically "<robot_id>:<node_kind>" or
// "<node_id>" per spec §4.7.
type Registry struct {
	mu       sync.Mutex
	config   Config
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a breaker registry using config for every new breaker.
func NewRegistry(config Config) *Registry {
	return &Registry{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for key, creating it if necessary.
func (r *Registry) Get(key string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[key]
	if !ok {
		cb = New(key, r.config)
		r.breakers[key] = cb
	}
	return cb
}

// Snapshots returns a snapshot of every breaker currently tracked.
func (r *Registry) Snapshots() []models.BreakerSnapshot {
	r.mu.Lock()
	keys := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		keys = append(keys, cb)
	}
	r.mu.Unlock()

	out := make([]models.BreakerSnapshot, 0, len(keys))
	for _, cb := range keys {
		out = append(out, cb.Snapshot())
	}
	return out
}
