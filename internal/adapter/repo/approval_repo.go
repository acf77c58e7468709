package repo

import (
	"context"

	"newsroom/internal/domain"
	"newsroom/internal/infra"
	"newsroom/internal/sqlinline"
)

// ApprovalRepositoryPG persists human gate decisions.
type ApprovalRepositoryPG struct {
	runner infra.SQLExecutor
}

func NewApprovalRepository(runner infra.SQLExecutor) *ApprovalRepositoryPG {
	return &ApprovalRepositoryPG{runner: runner}
}

// Insert records the single decision for a job. A second decision conflicts
// on the primary key and yields ErrAlreadyDecided.
func (r *ApprovalRepositoryPG) Insert(ctx context.Context, rec *domain.ApprovalRecord) error {
	tag, err := r.runner.Exec(ctx, sqlinline.QInsertApproval,
		rec.JobID,
		rec.Decision,
		rec.Reviewer,
		rec.Feedback,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyDecided
	}
	return nil
}

// GetByJobID fetches the decision for a job, if one exists.
func (r *ApprovalRepositoryPG) GetByJobID(ctx context.Context, jobID string) (*domain.ApprovalRecord, error) {
	row := r.runner.QueryRow(ctx, sqlinline.QGetApproval, jobID)
	var rec domain.ApprovalRecord
	if err := row.Scan(&rec.JobID, &rec.Decision, &rec.Reviewer, &rec.Feedback, &rec.DecidedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Delete removes a decision. Used when a rejected job is re-queued for
// another refinement pass so the next gate visit can be decided afresh.
func (r *ApprovalRepositoryPG) Delete(ctx context.Context, jobID string) error {
	_, err := r.runner.Exec(ctx, sqlinline.QDeleteApproval, jobID)
	return err
}

var _ domain.ApprovalRepository = (*ApprovalRepositoryPG)(nil)
