package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for the worker process.
// A nil *Metrics is valid and records nothing, which keeps tests quiet.
type Metrics struct {
	providerCalls *prometheus.CounterVec
	retryAttempts *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	jobsInFlight  prometheus.Gauge
	breakerState  *prometheus.GaugeVec
	phaseDuration *prometheus.HistogramVec
	costTotal     *prometheus.CounterVec
}

// New registers the worker collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_provider_calls_total",
			Help: "Provider call outcomes by backend and phase.",
		}, []string{"backend", "phase", "outcome"}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_retry_attempts_total",
			Help: "Attempts spent inside the retry wrapper by backend.",
		}, []string{"backend"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_jobs_finished_total",
			Help: "Jobs that reached a resting status, by status.",
		}, []string{"status"}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "newsroom_jobs_in_flight",
			Help: "Jobs currently being driven by the executor.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "newsroom_breaker_state",
			Help: "Circuit state per backend (0 closed, 1 half_open, 2 open).",
		}, []string{"backend"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsroom_phase_duration_seconds",
			Help:    "Wall-clock duration of pipeline phases.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"phase"}),
		costTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_cost_total",
			Help: "Accumulated generation cost by backend.",
		}, []string{"backend"}),
	}
	reg.MustRegister(
		m.providerCalls, m.retryAttempts, m.jobsFinished, m.jobsInFlight,
		m.breakerState, m.phaseDuration, m.costTotal,
	)
	return m
}

func (m *Metrics) ProviderCall(backend, phase, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(backend, phase, outcome).Inc()
	if attempts > 0 {
		m.retryAttempts.WithLabelValues(backend).Add(float64(attempts))
	}
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsInFlight.Inc()
}

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsInFlight.Dec()
	m.jobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) BreakerState(backend string, state string) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	m.breakerState.WithLabelValues(backend).Set(v)
}

func (m *Metrics) PhaseObserved(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) CostAdded(backend string, cost float64) {
	if m == nil || cost <= 0 {
		return
	}
	m.costTotal.WithLabelValues(backend).Add(cost)
}
