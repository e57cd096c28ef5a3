// Package resilience provides circuit breaker and provider failover
// primitives for the speech pipeline's remote services.
//
// [CircuitBreaker] guards one remote backend. [FallbackGroup] composes
// several backends of one provider type, each behind its own breaker, and
// [STT], [LLM] and [TTS] adapt a group back into the matching provider
// interface. Failover is opt-in: a pipeline configured with a single
// backend per stage never retries.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cooldown has
	// passed since the breaker opened.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successful probes close the breaker; a failed one opens it again.
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

// Defaults applied by [NewCircuitBreaker] to zero config fields.
const (
	DefaultMaxFailures = 5
	DefaultCooldown    = 30 * time.Second
	DefaultProbes      = 2
)

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs, metrics and readiness errors.
	Name string

	// MaxFailures consecutive failures open a closed breaker.
	MaxFailures int

	// Cooldown is how long an open breaker waits before probing.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close.
	// At most this many probes are in flight at once.
	Probes int

	// IsFailure decides whether an error counts against the backend. The
	// default counts every error except [context.Canceled], which a user
	// cancelling a session produces without the backend being at fault.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition with the lock
	// released.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// CircuitBreaker stops calling a backend after repeated failures and probes
// it again once a cooldown has passed.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int
	passed   int
}

// NewCircuitBreaker returns a closed breaker. Zero config fields take the
// package defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Probes <= 0 {
		cfg.Probes = DefaultProbes
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Execute calls fn unless the breaker rejects it with [ErrCircuitOpen].
// The error of fn is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// admit reserves a call slot. probe reports whether the call runs in the
// half-open state.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen && cb.cooledDown() {
		cb.state = StateHalfOpen
		cb.inFlight, cb.passed = 0, 0
	}
	switch cb.state {
	case StateOpen:
		cb.mu.Unlock()
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.Probes-cb.passed {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.inFlight++
		probe = true
	}
	to := cb.state
	cb.mu.Unlock()

	cb.changed(from, to)
	return probe, nil
}

// settle accounts for the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	failed := cb.cfg.IsFailure(err)

	cb.mu.Lock()
	from := cb.state
	if probe {
		cb.inFlight--
	}
	switch {
	case probe && cb.state != StateHalfOpen:
		// A concurrent probe already decided the outcome.
	case probe && failed:
		cb.trip()
	case probe && err == nil:
		cb.passed++
		if cb.passed >= cb.cfg.Probes {
			cb.state = StateClosed
			cb.failures = 0
		}
	case failed:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			cb.trip()
		}
	case err == nil:
		cb.failures = 0
	}
	to := cb.state
	failures := cb.failures
	cb.mu.Unlock()

	switch {
	case from == to:
	case to == StateOpen:
		slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "consecutive_failures", failures, "error", err)
	case to == StateClosed:
		slog.Info("circuit breaker closed", "name", cb.cfg.Name)
	}
	cb.changed(from, to)
}

// trip opens the breaker. Must be called with cb.mu held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.cfg.Now()
}

// cooledDown reports whether an open breaker may probe. Must be called with
// cb.mu held.
func (cb *CircuitBreaker) cooledDown() bool {
	return cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.Cooldown
}

func (cb *CircuitBreaker) changed(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// State returns the current state. An open breaker whose cooldown has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooledDown() {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the number of consecutive failures counted while closed.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures, cb.inFlight, cb.passed = 0, 0, 0
	cb.mu.Unlock()

	slog.Info("circuit breaker reset", "name", cb.cfg.Name)
	cb.changed(from, StateClosed)
}
