package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// ClaimNext atomically claims the oldest dispatchable job, including
	// jobs whose previous claim has gone stale. Returns ErrNoJobAvailable
	// when nothing is eligible.
	ClaimNext(ctx context.Context, claimedBy string, staleAfter time.Duration) (*Job, error)
	ReleaseClaim(ctx context.Context, jobID string) error
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, errMsg *string) error
	SetRefinementRounds(ctx context.Context, jobID string, rounds int) error
}

// AuditRepository persists the append-only execution trail.
type AuditRepository interface {
	InsertPhaseResult(ctx context.Context, res *PhaseResult) error
	ListPhaseResults(ctx context.Context, jobID string) ([]PhaseResult, error)
	// LatestContent returns the newest successful content for a phase,
	// used to resume a job without re-running completed phases.
	LatestContent(ctx context.Context, jobID string, phase Phase) (string, error)
	InsertQualityEvaluation(ctx context.Context, eval *QualityEvaluation) error
	ListQualityEvaluations(ctx context.Context, jobID string) ([]QualityEvaluation, error)
	InsertLedgerEntry(ctx context.Context, entry *CostLedgerEntry) error
	SumCostByJob(ctx context.Context, jobID string) (float64, error)
}

// ApprovalRepository persists human gate decisions. The approval command is
// the only legitimate writer.
type ApprovalRepository interface {
	Insert(ctx context.Context, rec *ApprovalRecord) error
	GetByJobID(ctx context.Context, jobID string) (*ApprovalRecord, error)
	// Delete clears the decision so a re-queued job can face the gate again.
	Delete(ctx context.Context, jobID string) error
}
