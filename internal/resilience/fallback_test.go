package resilience

import (
	"errors"
	"testing"

	"github.com/MrWong99/newscast/pkg/types"
)

func testFallbackConfig() FallbackConfig {
	return FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, Logger: quietLogger()}}
}

func TestFallbackGroup_PrimarySucceeds(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("primary", "p", testFallbackConfig())
	fg.AddFallback("b", "backup")

	got, err := ExecuteWithResult(fg, func(v string) (string, error) { return v, nil })
	if err != nil || got != "primary" {
		t.Errorf("got %q, %v", got, err)
	}
	if fg.Len() != 2 {
		t.Errorf("Len = %d, want 2", fg.Len())
	}
}

func TestFallbackGroup_FailsOverOnTransientError(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("primary", "p", testFallbackConfig())
	fg.AddFallback("b", "backup")

	var tried []string
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		tried = append(tried, v)
		if v == "primary" {
			return "", errDown
		}
		return v, nil
	})
	if err != nil || got != "backup" {
		t.Errorf("got %q, %v", got, err)
	}
	if len(tried) != 2 {
		t.Errorf("tried = %v", tried)
	}
}

func TestFallbackGroup_StopsOnNonTransientError(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("primary", "p", testFallbackConfig())
	fg.AddFallback("b", "backup")

	calls := 0
	err := fg.Execute(func(string) error {
		calls++
		return errContent
	})
	if !errors.Is(err, types.ErrContent) || errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want bare content error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestFallbackGroup_AllFailKeepsClassification(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("primary", "p", testFallbackConfig())
	fg.AddFallback("b", "backup")

	err := fg.Execute(func(string) error { return errDown })
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, types.ErrConnection) {
		t.Errorf("err = %v, want ErrAllFailed wrapping ErrConnection", err)
	}
}

func TestFallbackGroup_SingleEntryReturnsErrorUnwrapped(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("primary", "p", testFallbackConfig())
	err := fg.Execute(func(string) error { return errDown })
	if errors.Is(err, ErrAllFailed) || !errors.Is(err, errDown) {
		t.Errorf("err = %v", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("primary", "p", testFallbackConfig())
	fg.AddFallback("b", "backup")

	primaryCalls := 0
	call := func(v string) error {
		if v == "primary" {
			primaryCalls++
			return errDown
		}
		return nil
	}
	for range 4 {
		if err := fg.Execute(call); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if primaryCalls != 2 {
		t.Errorf("primary calls = %d, want 2 (breaker opens after MaxFailures)", primaryCalls)
	}
}
