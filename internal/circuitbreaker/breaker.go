// Package circuitbreaker guards calls against the networked and durable
// cache tiers, short-circuiting a dependency that keeps failing.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without attempting it
var ErrOpen = errors.New("circuit breaker is open")

// State represents the current state of the circuit breaker
type State int

const (
	// StateClosed means the circuit breaker is closed and allowing requests through
	StateClosed State = iota
	// StateOpen means the circuit breaker is open and rejecting requests
	StateOpen
	// StateHalfOpen means the circuit breaker is testing if the dependency has recovered
	StateHalfOpen
)

func (s State) String() string {
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

// Config holds the configuration for a circuit breaker
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// Cooldown is how long the circuit stays open before admitting a trial call
	Cooldown time.Duration
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("FailureThreshold must be positive, got %d", c.FailureThreshold)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("Cooldown must be positive, got %v", c.Cooldown)
	}
	return nil
}

// Breaker is the guard interface the coordinator calls tiers through
type Breaker interface {
	Execute(ctx context.Context, fn func() error) error
	State() State
	Name() string
}

// CircuitBreaker implements the circuit breaker pattern with a sliding
// count of consecutive failures and a single trial call while half-open
type CircuitBreaker struct {
	name   string
	config Config
	state  State

	consecutiveFailures int
	lastFailureAt       time.Time
	nextTrialAt         time.Time
	trialInFlight       bool

	mu sync.Mutex

	onStateChange func(name string, from, to State)
}

// New creates a new circuit breaker with the given name and configuration.
// Breakers always start closed; state is not persisted across restarts.
func New(name string, config Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}
}

// Name returns the breaker's dependency name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// OnStateChange sets a callback invoked whenever the breaker changes state
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn if the breaker allows it. When the circuit is open the
// call is rejected with ErrOpen without touching the dependency. A context
// already past its deadline counts as a failure the same way fn failing does.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		cb.onFailure()
		return err
	}

	trial, allowed := cb.allowRequest()
	if !allowed {
		return fmt.Errorf("%w: %s", ErrOpen, cb.name)
	}

	err := fn()

	if trial {
		cb.resolveTrial(err == nil)
	} else if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}

	return err
}

// allowRequest decides whether a call may proceed. The second return value
// is false when the call must be rejected; the first is true when the call
// is the half-open trial.
func (cb *CircuitBreaker) allowRequest() (trial, allowed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if time.Now().Before(cb.nextTrialAt) {
			return false, false
		}
		cb.setState(StateHalfOpen)
		cb.trialInFlight = true
		return true, true
	case StateHalfOpen:
		// One probe at a time; everyone else sees open-circuit behavior
		// until the trial resolves.
		if cb.trialInFlight {
			return false, false
		}
		cb.trialInFlight = true
		return true, true
	}

	return false, false
}

// resolveTrial settles the half-open trial call
func (cb *CircuitBreaker) resolveTrial(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trialInFlight = false

	if success {
		cb.consecutiveFailures = 0
		cb.setState(StateClosed)
		return
	}

	cb.consecutiveFailures++
	cb.lastFailureAt = time.Now()
	cb.nextTrialAt = cb.lastFailureAt.Add(cb.config.Cooldown)
	cb.setState(StateOpen)
}

// onSuccess handles a successful request while closed
func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
}

// onFailure handles a failed request while closed
func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailureAt = time.Now()

	if cb.state == StateClosed && cb.consecutiveFailures >= cb.config.FailureThreshold {
		cb.nextTrialAt = cb.lastFailureAt.Add(cb.config.Cooldown)
		cb.setState(StateOpen)
	}
}

// setState changes state and fires the state change hook. Callers hold cb.mu.
func (cb *CircuitBreaker) setState(newState State) {
	oldState := cb.state
	cb.state = newState

	if cb.onStateChange != nil && oldState != newState {
		// Invoked on a fresh goroutine so the hook cannot deadlock on cb.mu.
		go cb.onStateChange(cb.name, oldState, newState)
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats is a read-only snapshot of the breaker
type Stats struct {
	Name                string     `json:"name"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	NextTrialAt         *time.Time `json:"next_trial_at,omitempty"`
}

// Stats returns the current statistics
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	stats := Stats{
		Name:                cb.name,
		State:               cb.state.String(),
		ConsecutiveFailures: cb.consecutiveFailures,
	}

	if !cb.lastFailureAt.IsZero() {
		lf := cb.lastFailureAt
		stats.LastFailureAt = &lf
	}
	if cb.state == StateOpen {
		nt := cb.nextTrialAt
		stats.NextTrialAt = &nt
	}

	return stats
}
