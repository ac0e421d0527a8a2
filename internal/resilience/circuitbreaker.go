// Package resilience provides circuit breaker and provider failover primitives
// for the script and speech providers.
//
// The central type is [CircuitBreaker], a three-state breaker
// (closed → open → half-open) that stops a job from waiting on a provider
// that has been failing. [FallbackGroup] composes several instances of one
// provider type, each with its own breaker, so that a failing primary is
// bypassed in favour of healthy fallbacks.
//
// Only transient failures count against a breaker: connection, protocol and
// remote errors. Cancellation, bad content and misconfiguration pass straight
// through, since another attempt or another provider would fail the same way.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/newscast/pkg/types"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open. It matches types.ErrConnection.
var ErrCircuitOpen = fmt.Errorf("resilience: circuit breaker is open: %w", types.ErrConnection)

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state; all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped. Calls are rejected with
	// [ErrCircuitOpen] until the reset timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout. A
	// limited number of calls are allowed through; if they succeed the breaker
	// closes, otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// Transient reports whether err is worth failing over: a connection,
// protocol or remote error that is not a cancellation.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, types.ErrCancelled) {
		return false
	}
	return errors.Is(err, types.ErrConnection) ||
		errors.Is(err, types.ErrProtocol) ||
		errors.Is(err, types.ErrRemote) ||
		errors.Is(err, context.DeadlineExceeded)
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive transient failures in the
	// closed state before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed in the half-open
	// state to close again. Default: 1, since jobs call providers rarely.
	HalfOpenMax int

	// Trips decides which errors count as failures. Default: [Transient].
	Trips func(error) bool

	Logger *slog.Logger
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	trips        func(error) bool
	log          *slog.Logger
	now          func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenOK      int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Trips == nil {
		cfg.Trips = Transient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		trips:        cfg.Trips,
		log:          cfg.Logger,
		now:          time.Now,
		state:        StateClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. In the half-open state a limited number
// of probe calls are permitted. Errors that do not trip the breaker are
// returned unchanged and leave its counters alone.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return fmt.Errorf("%w (%s)", ErrCircuitOpen, cb.name)
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.halfOpenOK = 0
		cb.log.Info("circuit breaker half-open", "name", cb.name)

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			cb.mu.Unlock()
			return fmt.Errorf("%w (%s)", ErrCircuitOpen, cb.name)
		}
	}

	inHalfOpen := cb.state == StateHalfOpen
	if inHalfOpen {
		cb.halfOpenCalls++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case err == nil:
		cb.recordSuccess(inHalfOpen)
	case cb.trips(err):
		cb.recordFailure(inHalfOpen, err)
	case inHalfOpen:
		// The probe slot is released; the call said nothing about health.
		cb.halfOpenCalls--
	}
	return err
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(inHalfOpen bool, err error) {
	cb.lastFailure = cb.now()

	if inHalfOpen {
		cb.state = StateOpen
		cb.consecutiveFail = cb.maxFailures
		cb.log.Warn("circuit breaker re-opened", "name", cb.name, "err", err)
		return
	}

	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures && cb.state != StateOpen {
		cb.state = StateOpen
		cb.log.Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.consecutiveFail,
			"err", err,
		)
	}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(inHalfOpen bool) {
	if inHalfOpen {
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.consecutiveFail = 0
			cb.halfOpenCalls = 0
			cb.halfOpenOK = 0
			cb.log.Info("circuit breaker closed", "name", cb.name)
		}
		return
	}
	cb.consecutiveFail = 0
}

// State returns the current [State] of the breaker. If the breaker is open and
// the reset timeout has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next [CircuitBreaker.Execute] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.halfOpenCalls = 0
	cb.halfOpenOK = 0
	cb.log.Info("circuit breaker reset", "name", cb.name)
}
