package opsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"newsroom/internal/domain"
	"newsroom/internal/resilience"
)

type fixedInFlight int

func (f fixedInFlight) InFlight() int { return int(f) }

type stubStats struct {
	snap resilience.PoolSnapshot
}

func (s stubStats) PoolSnapshot() resilience.PoolSnapshot { return s.snap }

type stubJobReader struct {
	jobs map[string]*domain.Job
}

func (s stubJobReader) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

type stubCostReader struct {
	costs map[string]float64
}

func (s stubCostReader) SumCostByJob(_ context.Context, jobID string) (float64, error) {
	return s.costs[jobID], nil
}

func testHandler(t *testing.T) (http.Handler, *resilience.Breaker) {
	t.Helper()
	breaker := resilience.NewBreaker(resilience.DefaultBreakerConfig())
	pool := resilience.NewPoolHealth(stubStats{snap: resilience.PoolSnapshot{
		MaxConns:      10,
		AcquiredConns: 3,
		IdleConns:     2,
	}}, 0.8, 500*time.Millisecond)
	pool.Sample()

	h := NewHandler(Deps{
		WorkerName: "worker-1",
		AppEnv:     "test",
		Executor:   fixedInFlight(2),
		Breaker:    breaker,
		Pool:       pool,
		Backends:   []string{"anthropic", "gemini", "openai"},
		Registry:   prometheus.NewRegistry(),
		Jobs: stubJobReader{jobs: map[string]*domain.Job{
			"job-1": {
				ID:               "job-1",
				Topic:            "quantum batteries",
				Status:           domain.JobStatusAwaitingApproval,
				RefinementRounds: 1,
			},
		}},
		Audit: stubCostReader{costs: map[string]float64{"job-1": 0.0425}},
	})
	return h, breaker
}

func TestHealthzReturnsOK(t *testing.T) {
	t.Parallel()

	h, _ := testHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatusReportsWorkerState(t *testing.T) {
	t.Parallel()

	h, breaker := testHandler(t)
	breaker.Trip("openai")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Worker != "worker-1" || body.JobsInFlight != 2 {
		t.Fatalf("body = %+v", body)
	}
	if len(body.Backends) != 3 {
		t.Fatalf("backends = %v", body.Backends)
	}
	if body.Breakers["openai"] != resilience.BreakerOpen {
		t.Fatalf("breaker state not reported: %v", body.Breakers)
	}
	if body.Pool.MaxConns != 10 || body.Pool.Critical {
		t.Fatalf("pool report = %+v", body.Pool)
	}
}

func TestJobEndpointReportsStatusAndSpend(t *testing.T) {
	t.Parallel()

	h, _ := testHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body jobResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != "job-1" || body.Status != "awaiting_approval" {
		t.Fatalf("body = %+v", body)
	}
	if body.RefinementRounds != 1 || body.TotalCost != 0.0425 {
		t.Fatalf("body = %+v", body)
	}
}

func TestJobEndpointUnknownJobIs404(t *testing.T) {
	t.Parallel()

	h, _ := testHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/no-such-job", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	t.Parallel()

	h, _ := testHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
