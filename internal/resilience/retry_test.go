package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	stats, err := Retry(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || stats.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got calls=%d stats=%d", calls, stats.Attempts)
	}
}

func TestRetryRecoversAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	stats, err := Retry(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", stats.Attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	cause := errors.New("boom")
	_, err := Retry(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return cause
	})
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected the last error to be wrapped, got %v", err)
	}
}

func TestRetryNonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	cfg := fastRetry(5)
	cfg.Retryable = func(error) bool { return false }

	calls := 0
	cause := errors.New("fatal")
	_, err := Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		return cause
	})
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to surface unchanged, got %v", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("non-retryable failure must not be tagged as exhausted")
	}
}

func TestRetryCancelledContextIsTerminal(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, fastRetry(5), func(context.Context) error {
		calls++
		cancel()
		return context.Canceled
	})
	if calls != 1 {
		t.Fatalf("expected a single attempt after cancellation, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetryAlreadyCancelledRunsNothing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Fatalf("op must not run with a dead context, ran %d times", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestJitteredStaysWithinBounds(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := jittered(base, 0.2)
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±20%% of %v", d, base)
		}
	}
	if jittered(base, 0) != base {
		t.Fatalf("zero jitter must return the base delay")
	}
}
