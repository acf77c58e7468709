package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrRetriesExhausted tags failures where every configured attempt was spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryConfig holds retry-with-backoff configuration.
type RetryConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	// Retryable decides which errors are worth another attempt. A nil
	// predicate retries everything except context cancellation.
	Retryable func(error) bool
}

// DefaultRetryConfig returns sensible defaults for provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       15 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

// RetryStats reports how much work one Retry call performed.
type RetryStats struct {
	Attempts int
	Elapsed  time.Duration
}

// Retry executes op with exponential backoff. Non-retryable errors are
// surfaced immediately. A cancelled context is terminal for the current
// attempt and is never retried. When attempts are exhausted the last error
// is wrapped with ErrRetriesExhausted.
func Retry(ctx context.Context, cfg RetryConfig, op func(context.Context) error) (RetryStats, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}

	start := time.Now()
	stats := RetryStats{}
	delay := cfg.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			stats.Elapsed = time.Since(start)
			return stats, fmt.Errorf("retry cancelled: %w", err)
		}

		stats.Attempts = attempt
		err := op(ctx)
		if err == nil {
			stats.Elapsed = time.Since(start)
			return stats, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			stats.Elapsed = time.Since(start)
			return stats, fmt.Errorf("retry cancelled: %w", err)
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			stats.Elapsed = time.Since(start)
			return stats, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			stats.Elapsed = time.Since(start)
			return stats, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(jittered(delay, cfg.JitterFraction)):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	stats.Elapsed = time.Since(start)
	return stats, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, stats.Attempts, lastErr)
}

func jittered(d time.Duration, fraction float64) time.Duration {
	if d <= 0 || fraction <= 0 {
		return d
	}
	span := float64(d) * fraction
	offset := (rand.Float64()*2 - 1) * span
	out := time.Duration(float64(d) + offset)
	if out < 0 {
		return 0
	}
	return out
}
