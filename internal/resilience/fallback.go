package resilience

import (
	"errors"
	"fmt"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has
// an open circuit breaker. The last entry's error is wrapped alongside it, so
// the failure keeps its classification.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the per-entry circuit breaker created for each
// provider in a [FallbackGroup]. Its Name is replaced per entry.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same provider type. When the primary fails with a tripping error (or its
// breaker is open), the next entry is tried in registration order. Any other
// error is returned at once.
//
// Entries must be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a fallback provider.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries, primary included.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Primary returns the first entry.
func (fg *FallbackGroup[T]) Primary() T { return fg.entries[0].value }

// Execute tries fn against each entry in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry in the group until one
// succeeds, returning its result. This is a package-level function because Go
// does not support method-level type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		log := entry.breaker.log
		switch {
		case errors.Is(err, ErrCircuitOpen):
			log.Debug("skipping provider, circuit open", "provider", entry.name)
		case !entry.breaker.trips(err):
			return zero, err
		case i < len(fg.entries)-1:
			log.Warn("provider failed, trying next", "provider", entry.name, "err", err)
		}
	}
	if len(fg.entries) == 1 {
		return zero, lastErr
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
