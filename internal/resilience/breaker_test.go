package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func testBreaker(threshold int, coolDown time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{
		FailureThreshold: threshold,
		Window:           time.Minute,
		CoolDown:         coolDown,
	})
	b.now = func() time.Time { return now }
	return b, &now
}

func failN(b *Breaker, service string, n int) {
	for i := 0; i < n; i++ {
		_ = b.Do(context.Background(), service, func(context.Context) error {
			return errUpstream
		})
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	t.Parallel()

	b, _ := testBreaker(3, 30*time.Second)
	if got := b.State("svc"); got != BreakerClosed {
		t.Fatalf("unknown service should be closed, got %s", got)
	}
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	t.Parallel()

	b, _ := testBreaker(3, 30*time.Second)
	failN(b, "svc", 2)
	if got := b.State("svc"); got != BreakerClosed {
		t.Fatalf("below threshold should stay closed, got %s", got)
	}
	failN(b, "svc", 1)
	if got := b.State("svc"); got != BreakerOpen {
		t.Fatalf("expected open after threshold failures, got %s", got)
	}
}

func TestBreakerOpenFailsFastWithoutCallingOp(t *testing.T) {
	t.Parallel()

	b, _ := testBreaker(2, 30*time.Second)
	failN(b, "svc", 2)

	called := false
	err := b.Do(context.Background(), "svc", func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatalf("op must not run while the circuit is open")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b, _ := testBreaker(3, 30*time.Second)
	failN(b, "svc", 2)
	if err := b.Do(context.Background(), "svc", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failN(b, "svc", 2)
	if got := b.State("svc"); got != BreakerClosed {
		t.Fatalf("success should have reset the count, got %s", got)
	}
}

func TestBreakerHalfOpenAfterCoolDown(t *testing.T) {
	t.Parallel()

	b, now := testBreaker(2, 30*time.Second)
	failN(b, "svc", 2)

	*now = now.Add(29 * time.Second)
	if got := b.State("svc"); got != BreakerOpen {
		t.Fatalf("cool-down not elapsed, expected open, got %s", got)
	}
	*now = now.Add(2 * time.Second)
	if got := b.State("svc"); got != BreakerHalfOpen {
		t.Fatalf("expected half_open after cool-down, got %s", got)
	}
}

func TestBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	t.Parallel()

	b, now := testBreaker(2, 30*time.Second)
	failN(b, "svc", 2)
	*now = now.Add(31 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(context.Background(), "svc", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// The trial slot is taken; a concurrent caller fails fast.
	err := b.Do(context.Background(), "svc", func(context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second half-open caller should fail fast, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if got := b.State("svc"); got != BreakerClosed {
		t.Fatalf("successful trial should close the circuit, got %s", got)
	}
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	t.Parallel()

	b, now := testBreaker(2, 30*time.Second)
	failN(b, "svc", 2)
	*now = now.Add(31 * time.Second)

	failN(b, "svc", 1)
	if got := b.State("svc"); got != BreakerOpen {
		t.Fatalf("failed trial should reopen the circuit, got %s", got)
	}

	// The fresh open period starts over.
	*now = now.Add(29 * time.Second)
	if got := b.State("svc"); got != BreakerOpen {
		t.Fatalf("expected open during the new cool-down, got %s", got)
	}
}

func TestBreakerFallbackRunsWhileOpen(t *testing.T) {
	t.Parallel()

	b, _ := testBreaker(1, 30*time.Second)
	failN(b, "svc", 1)

	ran := false
	err := b.DoWithFallback(context.Background(), "svc",
		func(context.Context) error { t.Fatal("op must not run"); return nil },
		func(context.Context) error { ran = true; return nil },
	)
	if err != nil {
		t.Fatalf("fallback error: %v", err)
	}
	if !ran {
		t.Fatalf("fallback did not run")
	}
}

func TestBreakerTracksServicesIndependently(t *testing.T) {
	t.Parallel()

	b, _ := testBreaker(2, 30*time.Second)
	failN(b, "a", 2)
	if got := b.State("a"); got != BreakerOpen {
		t.Fatalf("expected a open, got %s", got)
	}
	if got := b.State("b"); got != BreakerClosed {
		t.Fatalf("expected b untouched, got %s", got)
	}

	snap := b.Snapshot()
	if snap["a"] != BreakerOpen {
		t.Fatalf("snapshot disagrees with State: %v", snap)
	}
}

func TestBreakerWindowExpiresOldFailures(t *testing.T) {
	t.Parallel()

	b, now := testBreaker(3, 30*time.Second)
	failN(b, "svc", 2)

	// Old failures fall outside the window; the next two failures are a
	// fresh streak of two, below the threshold.
	*now = now.Add(2 * time.Minute)
	failN(b, "svc", 2)
	if got := b.State("svc"); got != BreakerClosed {
		t.Fatalf("stale failures must not count toward the threshold, got %s", got)
	}
}

func TestBreakerPanickingTrialReopens(t *testing.T) {
	t.Parallel()

	b, now := testBreaker(2, 30*time.Second)
	failN(b, "svc", 2)
	*now = now.Add(31 * time.Second)

	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("panic must propagate to the caller")
			}
		}()
		_ = b.Do(context.Background(), "svc", func(context.Context) error {
			panic("provider client bug")
		})
	}()

	// The trial slot is released and the circuit re-opened, not wedged.
	if got := b.State("svc"); got != BreakerOpen {
		t.Fatalf("expected open after panicking trial, got %s", got)
	}
	*now = now.Add(31 * time.Second)
	if err := b.Do(context.Background(), "svc", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("next trial should be admitted: %v", err)
	}
	if got := b.State("svc"); got != BreakerClosed {
		t.Fatalf("successful trial should close the circuit, got %s", got)
	}
}

func TestBreakerPanicUnderClosedCircuitCountsAsFailure(t *testing.T) {
	t.Parallel()

	b, _ := testBreaker(2, 30*time.Second)
	for i := 0; i < 2; i++ {
		func() {
			defer func() { _ = recover() }()
			_ = b.Do(context.Background(), "svc", func(context.Context) error {
				panic("boom")
			})
		}()
	}
	if got := b.State("svc"); got != BreakerOpen {
		t.Fatalf("panics should count toward the threshold, got %s", got)
	}
}

func TestBreakerTripForcesOpen(t *testing.T) {
	t.Parallel()

	b, _ := testBreaker(5, 30*time.Second)
	b.Trip("svc")
	if got := b.State("svc"); got != BreakerOpen {
		t.Fatalf("expected open after Trip, got %s", got)
	}
}
