package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a service's circuit is short-circuiting
// calls and no fallback was supplied.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerState is the health gate position for one service.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes the per-service circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures within Window
	// that trips the circuit.
	FailureThreshold int
	Window           time.Duration
	// CoolDown is how long the circuit stays open before a single trial
	// call is allowed through.
	CoolDown time.Duration
}

// DefaultBreakerConfig returns the standard provider-call breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Window:           time.Minute,
		CoolDown:         30 * time.Second,
	}
}

// Breaker tracks per-service circuit state shared by every concurrent job
// that talks to the same service. All transitions happen under one mutex so
// evaluation is a single atomic step, never a read-modify-write across an
// in-flight call.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	services map[string]*circuit
}

type circuit struct {
	state          BreakerState
	failures       int
	firstFailureAt time.Time
	openedAt       time.Time
	trialInFlight  bool
}

// NewBreaker creates a breaker with the given configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	return &Breaker{
		cfg:      cfg,
		now:      time.Now,
		services: make(map[string]*circuit),
	}
}

// Do runs op under the circuit for service. When the circuit is open the
// call fails fast with ErrCircuitOpen without touching the network.
func (b *Breaker) Do(ctx context.Context, service string, op func(context.Context) error) error {
	return b.DoWithFallback(ctx, service, op, nil)
}

// DoWithFallback behaves like Do but runs fallback instead of failing fast
// while the circuit is open.
func (b *Breaker) DoWithFallback(ctx context.Context, service string, op, fallback func(context.Context) error) error {
	trial, err := b.admit(service)
	if err != nil {
		if fallback != nil {
			return fallback(ctx)
		}
		return err
	}

	// A panicking op must still release the trial slot, or the circuit
	// wedges permanently half-open. The panic itself propagates.
	completed := false
	defer func() {
		if !completed {
			b.record(service, trial, errOpPanicked)
		}
	}()
	opErr := op(ctx)
	completed = true
	b.record(service, trial, opErr)
	return opErr
}

var errOpPanicked = errors.New("operation panicked")

// State reports the current circuit position for a service.
func (b *Breaker) State(service string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.services[service]
	if !ok {
		return BreakerClosed
	}
	return b.effectiveState(c)
}

// Snapshot returns the state of every tracked service.
func (b *Breaker) Snapshot() map[string]BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]BreakerState, len(b.services))
	for name, c := range b.services {
		out[name] = b.effectiveState(c)
	}
	return out
}

// admit decides atomically whether a call may proceed, marking the trial
// slot when the circuit moves to half_open.
func (b *Breaker) admit(service string) (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.services[service]
	if !ok {
		c = &circuit{state: BreakerClosed}
		b.services[service] = c
	}

	switch b.effectiveState(c) {
	case BreakerClosed:
		return false, nil
	case BreakerHalfOpen:
		if c.state == BreakerOpen {
			// Cool-down elapsed: this caller takes the single trial slot.
			c.state = BreakerHalfOpen
			c.trialInFlight = true
			return true, nil
		}
		if c.trialInFlight {
			return false, ErrCircuitOpen
		}
		c.trialInFlight = true
		return true, nil
	default:
		return false, ErrCircuitOpen
	}
}

func (b *Breaker) record(service string, trial bool, opErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.services[service]
	if !ok {
		return
	}

	if trial {
		c.trialInFlight = false
		if opErr == nil {
			c.state = BreakerClosed
			c.failures = 0
			return
		}
		c.state = BreakerOpen
		c.openedAt = b.now()
		return
	}

	if opErr == nil {
		c.failures = 0
		return
	}

	now := b.now()
	if c.failures == 0 || (b.cfg.Window > 0 && now.Sub(c.firstFailureAt) > b.cfg.Window) {
		c.failures = 0
		c.firstFailureAt = now
	}
	c.failures++
	if c.failures >= b.cfg.FailureThreshold {
		c.state = BreakerOpen
		c.openedAt = now
		c.failures = 0
	}
}

// effectiveState folds cool-down expiry into the stored state. Must be
// called with the mutex held.
func (b *Breaker) effectiveState(c *circuit) BreakerState {
	if c.state == BreakerOpen && b.now().Sub(c.openedAt) >= b.cfg.CoolDown {
		return BreakerHalfOpen
	}
	return c.state
}

// Trip forces a service's circuit open. Intended for tests and operational
// tooling.
func (b *Breaker) Trip(service string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.services[service]
	if !ok {
		c = &circuit{}
		b.services[service] = c
	}
	c.state = BreakerOpen
	c.openedAt = b.now()
}
