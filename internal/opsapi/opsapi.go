package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"newsroom/internal/domain"
	"newsroom/internal/resilience"
)

// InFlightCounter reports how many jobs the executor is driving right now.
type InFlightCounter interface {
	InFlight() int
}

// JobReader is the read-only slice of the job repository the ops surface needs.
type JobReader interface {
	GetByID(ctx context.Context, jobID string) (*domain.Job, error)
}

// CostReader sums ledger spend for a job.
type CostReader interface {
	SumCostByJob(ctx context.Context, jobID string) (float64, error)
}

// Deps wires the operational surface to the worker's internals. Everything
// here is read-only observability; no handler mutates job state.
type Deps struct {
	WorkerName string
	AppEnv     string
	Executor   InFlightCounter
	Breaker    *resilience.Breaker
	Pool       *resilience.PoolHealth
	Backends   []string
	Registry   *prometheus.Registry
	Jobs       JobReader
	Audit      CostReader
}

// NewHandler builds the ops router: liveness, a status snapshot and the
// Prometheus scrape endpoint.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		rep := deps.Pool.Report()
		writeJSON(w, http.StatusOK, statusResponse{
			Worker:       deps.WorkerName,
			Env:          deps.AppEnv,
			JobsInFlight: deps.Executor.InFlight(),
			Backends:     deps.Backends,
			Breakers:     deps.Breaker.Snapshot(),
			Pool: poolStatus{
				MaxConns:      rep.Snapshot.MaxConns,
				AcquiredConns: rep.Snapshot.AcquiredConns,
				IdleConns:     rep.Snapshot.IdleConns,
				MeanAcquireMS: rep.MeanAcquire.Milliseconds(),
				Degraded:      rep.Degraded,
				Critical:      rep.Critical,
				SampledAt:     rep.SampledAt,
			},
		})
	})

	if deps.Jobs != nil && deps.Audit != nil {
		r.Get("/jobs/{jobID}", func(w http.ResponseWriter, req *http.Request) {
			jobID := chi.URLParam(req, "jobID")
			job, err := deps.Jobs.GetByID(req.Context(), jobID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
					return
				}
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			cost, err := deps.Audit.SumCostByJob(req.Context(), jobID)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, jobResponse{
				ID:               job.ID,
				Topic:            job.Topic,
				Status:           string(job.Status),
				RefinementRounds: job.RefinementRounds,
				LastError:        job.LastError,
				TotalCost:        cost,
				CreatedAt:        job.CreatedAt,
				UpdatedAt:        job.UpdatedAt,
			})
		})
	}

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

type jobResponse struct {
	ID               string    `json:"id"`
	Topic            string    `json:"topic"`
	Status           string    `json:"status"`
	RefinementRounds int       `json:"refinement_rounds"`
	LastError        string    `json:"last_error,omitempty"`
	TotalCost        float64   `json:"total_cost"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type statusResponse struct {
	Worker       string                             `json:"worker"`
	Env          string                             `json:"env"`
	JobsInFlight int                                `json:"jobs_in_flight"`
	Backends     []string                           `json:"backends"`
	Breakers     map[string]resilience.BreakerState `json:"breakers"`
	Pool         poolStatus                         `json:"pool"`
}

type poolStatus struct {
	MaxConns      int32     `json:"max_conns"`
	AcquiredConns int32     `json:"acquired_conns"`
	IdleConns     int32     `json:"idle_conns"`
	MeanAcquireMS int64     `json:"mean_acquire_ms"`
	Degraded      bool      `json:"degraded"`
	Critical      bool      `json:"critical"`
	SampledAt     time.Time `json:"sampled_at"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
