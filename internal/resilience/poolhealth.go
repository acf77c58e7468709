package resilience

import (
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolSnapshot is one observation of connection-pool pressure.
type PoolSnapshot struct {
	MaxConns          int32
	TotalConns        int32
	AcquiredConns     int32
	IdleConns         int32
	EmptyAcquireCount int64
	AcquireCount      int64
	AcquireDuration   time.Duration
}

// StatSource provides pool statistics. *pgxpool.Pool is adapted through
// PgxStatSource; tests supply a fake.
type StatSource interface {
	PoolSnapshot() PoolSnapshot
}

// PgxStatSource adapts a pgx pool to the StatSource contract.
type PgxStatSource struct {
	Pool *pgxpool.Pool
}

func (s PgxStatSource) PoolSnapshot() PoolSnapshot {
	st := s.Pool.Stat()
	return PoolSnapshot{
		MaxConns:          st.MaxConns(),
		TotalConns:        st.TotalConns(),
		AcquiredConns:     st.AcquiredConns(),
		IdleConns:         st.IdleConns(),
		EmptyAcquireCount: st.EmptyAcquireCount(),
		AcquireCount:      st.AcquireCount(),
		AcquireDuration:   st.AcquireDuration(),
	}
}

// HealthReport is the executor-facing verdict for one sample.
type HealthReport struct {
	Snapshot    PoolSnapshot
	WaitedDelta int64
	MeanAcquire time.Duration
	Degraded    bool
	Critical    bool
	SampledAt   time.Time
}

// PoolHealth samples the database connection pool and classifies pressure
// so the executor can throttle dispatch before the pool itself fails.
type PoolHealth struct {
	src           StatSource
	degradedRatio float64
	acquireLimit  time.Duration

	mu   sync.Mutex
	last PoolSnapshot
	rep  HealthReport
}

// NewPoolHealth builds a monitor. degradedRatio is the acquired/max fraction
// considered near-exhaustion; acquireLimit is the mean acquisition latency
// treated as critical.
func NewPoolHealth(src StatSource, degradedRatio float64, acquireLimit time.Duration) *PoolHealth {
	if degradedRatio <= 0 || degradedRatio > 1 {
		degradedRatio = 0.8
	}
	return &PoolHealth{
		src:           src,
		degradedRatio: degradedRatio,
		acquireLimit:  acquireLimit,
	}
}

// Sample takes a fresh observation and stores the verdict.
func (m *PoolHealth) Sample() HealthReport {
	snap := m.src.PoolSnapshot()

	m.mu.Lock()
	defer m.mu.Unlock()

	rep := HealthReport{Snapshot: snap, SampledAt: time.Now()}
	rep.WaitedDelta = snap.EmptyAcquireCount - m.last.EmptyAcquireCount
	if delta := snap.AcquireCount - m.last.AcquireCount; delta > 0 {
		rep.MeanAcquire = (snap.AcquireDuration - m.last.AcquireDuration) / time.Duration(delta)
	}

	if snap.MaxConns > 0 {
		ratio := float64(snap.AcquiredConns) / float64(snap.MaxConns)
		rep.Degraded = ratio >= m.degradedRatio || rep.WaitedDelta > 0
		rep.Critical = snap.AcquiredConns >= snap.MaxConns
	}
	if m.acquireLimit > 0 && rep.MeanAcquire > m.acquireLimit {
		rep.Critical = true
	}
	if rep.Critical {
		rep.Degraded = true
	}

	m.last = snap
	m.rep = rep
	return rep
}

// Degraded reports whether the latest sample showed the pool nearing
// exhaustion.
func (m *PoolHealth) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rep.Degraded
}

// Critical reports whether the latest sample showed the pool exhausted or
// acquisitions timing out.
func (m *PoolHealth) Critical() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rep.Critical
}

// Report returns the latest stored verdict.
func (m *PoolHealth) Report() HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rep
}
