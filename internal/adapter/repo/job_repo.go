package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"newsroom/internal/domain"
	"newsroom/internal/infra"
	"newsroom/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	runner infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(runner infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{runner: runner}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.runner.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.Topic,
		job.Style,
		job.Tone,
		job.TargetWords,
		job.ModelsJSON(),
		job.QualityPreference,
		job.Status,
	)
	return err
}

// GetByID fetches a job by its identifier. Soft-deleted jobs are invisible.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.runner.QueryRow(ctx, sqlinline.QGetJob, jobID)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ClaimNext atomically claims the oldest dispatchable job.
func (r *JobRepositoryPG) ClaimNext(ctx context.Context, claimedBy string, staleAfter time.Duration) (*domain.Job, error) {
	row := r.runner.QueryRow(ctx, sqlinline.QClaimNextJob, claimedBy, staleAfter.Seconds())
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNoJobAvailable
		}
		return nil, err
	}
	return job, nil
}

// ReleaseClaim clears the claim marker so the job becomes claimable again.
func (r *JobRepositoryPG) ReleaseClaim(ctx context.Context, jobID string) error {
	_, err := r.runner.Exec(ctx, sqlinline.QReleaseClaim, jobID)
	return err
}

// UpdateStatus persists a status transition, optionally recording an error.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string) error {
	_, err := r.runner.Exec(ctx, sqlinline.QUpdateJobStatus, jobID, status, errMsg)
	return err
}

// SetRefinementRounds stores the refinement round counter.
func (r *JobRepositoryPG) SetRefinementRounds(ctx context.Context, jobID string, rounds int) error {
	_, err := r.runner.Exec(ctx, sqlinline.QSetRefinementRounds, jobID, rounds)
	return err
}

// Decide moves a job out of the approval gate. The statement's status guard
// makes the transition atomic; a job not sitting at the gate matches zero
// rows and yields ErrNotAwaitingGate.
func (r *JobRepositoryPG) Decide(ctx context.Context, jobID string, to domain.JobStatus) error {
	switch to {
	case domain.JobStatusApproved, domain.JobStatusRejected, domain.JobStatusRefining, domain.JobStatusArchived:
	default:
		return fmt.Errorf("%w: awaiting_approval -> %s", domain.ErrInvalidMove, to)
	}
	tag, err := r.runner.Exec(ctx, sqlinline.QDecideJob, jobID, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotAwaitingGate
	}
	return nil
}

// SoftDelete hides a job from every job query. Audit and ledger rows stay.
func (r *JobRepositoryPG) SoftDelete(ctx context.Context, jobID string) error {
	tag, err := r.runner.Exec(ctx, sqlinline.QSoftDeleteJob, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job        domain.Job
		modelsJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.Topic,
		&job.Style,
		&job.Tone,
		&job.TargetWords,
		&modelsJSON,
		&job.QualityPreference,
		&job.Status,
		&job.RefinementRounds,
		&job.ClaimedBy,
		&job.ClaimedAt,
		&job.LastError,
		&job.DeletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(modelsJSON) > 0 {
		if err := json.Unmarshal(modelsJSON, &job.ModelsByPhase); err != nil {
			return nil, fmt.Errorf("decode models_by_phase: %w", err)
		}
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
