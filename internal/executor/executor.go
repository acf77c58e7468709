package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/metrics"
	"newsroom/internal/resilience"
)

// JobRunner drives one claimed job until it parks or finishes. The pipeline
// orchestrator satisfies this.
type JobRunner interface {
	Run(ctx context.Context, job *domain.Job) (domain.JobStatus, error)
}

// Config carries the executor's dispatch policy.
type Config struct {
	PollInterval      time.Duration
	MaxConcurrentJobs int
	// JobTimeout bounds one job's wall-clock run. A run that exceeds it is
	// cancelled and the job is marked timed_out.
	JobTimeout time.Duration
	// StaleAfter is how long a claim may sit before another worker may
	// reclaim the job. Must exceed JobTimeout.
	StaleAfter time.Duration
	WorkerName string
}

// Executor polls for dispatchable jobs and runs each under a concurrency
// slot and a per-job deadline. Pool pressure throttles dispatch: a degraded
// pool claims at most one job per cycle, a critical pool claims none.
type Executor struct {
	cfg     Config
	jobs    domain.JobRepository
	runner  JobRunner
	health  *resilience.PoolHealth
	logger  zerolog.Logger
	metrics *metrics.Metrics

	sem chan struct{}
	wg  sync.WaitGroup
}

func New(cfg Config, jobs domain.JobRepository, runner JobRunner, health *resilience.PoolHealth, logger zerolog.Logger, m *metrics.Metrics) *Executor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 15 * time.Minute
	}
	if cfg.StaleAfter <= cfg.JobTimeout {
		cfg.StaleAfter = 2 * cfg.JobTimeout
	}
	return &Executor{
		cfg:     cfg,
		jobs:    jobs,
		runner:  runner,
		health:  health,
		logger:  logger,
		metrics: m,
		sem:     make(chan struct{}, cfg.MaxConcurrentJobs),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight jobs to drain.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info().
		Str("worker", e.cfg.WorkerName).
		Dur("poll_interval", e.cfg.PollInterval).
		Int("max_concurrent", e.cfg.MaxConcurrentJobs).
		Msg("executor: started")

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("executor: draining in-flight jobs")
			e.wg.Wait()
			e.logger.Info().Msg("executor: stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Dispatch(ctx)
		}
	}
}

// Dispatch runs one poll cycle: sample pool health, then claim and launch
// jobs while concurrency slots are free.
func (e *Executor) Dispatch(ctx context.Context) {
	rep := e.health.Sample()
	if rep.Critical {
		e.logger.Warn().
			Int32("acquired", rep.Snapshot.AcquiredConns).
			Int32("max", rep.Snapshot.MaxConns).
			Dur("mean_acquire", rep.MeanAcquire).
			Msg("executor: pool critical, skipping dispatch cycle")
		return
	}

	budget := cap(e.sem)
	if rep.Degraded {
		e.logger.Warn().
			Int32("acquired", rep.Snapshot.AcquiredConns).
			Int32("max", rep.Snapshot.MaxConns).
			Msg("executor: pool degraded, claiming at most one job")
		budget = 1
	}

	for claimed := 0; claimed < budget; claimed++ {
		select {
		case e.sem <- struct{}{}:
		default:
			return
		}

		job, err := e.jobs.ClaimNext(ctx, e.cfg.WorkerName, e.cfg.StaleAfter)
		if err != nil {
			<-e.sem
			if !errors.Is(err, domain.ErrNoJobAvailable) && ctx.Err() == nil {
				e.logger.Error().Err(err).Msg("executor: claim failed")
			}
			return
		}

		e.wg.Add(1)
		go e.runJob(ctx, job)
	}
}

func (e *Executor) runJob(ctx context.Context, job *domain.Job) {
	defer e.wg.Done()
	defer func() { <-e.sem }()

	e.metrics.JobStarted()
	e.logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("executor: job claimed")

	defer func() {
		if r := recover(); r != nil {
			// One panicking job must not take the worker down.
			e.logger.Error().Str("job_id", job.ID).Interface("panic", r).Msg("executor: job panicked")
			msg := fmt.Sprintf("panic: %v", r)
			e.finish(job, domain.JobStatusFailed, &msg)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, e.cfg.JobTimeout)
	defer cancel()

	status, err := e.runner.Run(jobCtx, job)
	switch {
	case err == nil:
		e.release(job)
		e.metrics.JobFinished(string(status))
		e.logger.Info().Str("job_id", job.ID).Str("status", string(status)).Msg("executor: job parked")
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		msg := fmt.Sprintf("exceeded job timeout of %s", e.cfg.JobTimeout)
		e.finish(job, domain.JobStatusTimedOut, &msg)
	case ctx.Err() != nil:
		// Shutdown: leave the status as persisted, free the claim so
		// another worker resumes from the last completed phase.
		e.release(job)
		e.metrics.JobFinished(string(job.Status))
		e.logger.Info().Str("job_id", job.ID).Msg("executor: job interrupted by shutdown")
	default:
		// The orchestrator absorbs job-level failures into the job's own
		// status; anything surfacing here is infrastructure trouble.
		e.release(job)
		e.metrics.JobFinished(string(job.Status))
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("executor: job run failed")
	}
}

// finish writes a terminal status and frees the claim. It runs on its own
// context so shutdown or an expired job deadline cannot block the write.
func (e *Executor) finish(job *domain.Job, status domain.JobStatus, errMsg *string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.jobs.UpdateStatus(ctx, job.ID, status, errMsg); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("executor: failed to persist terminal status")
	}
	if err := e.jobs.ReleaseClaim(ctx, job.ID); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("executor: failed to release claim")
	}
	e.metrics.JobFinished(string(status))
	e.logger.Warn().Str("job_id", job.ID).Str("status", string(status)).Msg("executor: job finished")
}

func (e *Executor) release(job *domain.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.jobs.ReleaseClaim(ctx, job.ID); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("executor: failed to release claim")
	}
}

// InFlight reports how many jobs are currently being driven.
func (e *Executor) InFlight() int {
	return len(e.sem)
}
