package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"newsroom/internal/domain"
	"newsroom/internal/infra"
	"newsroom/internal/sqlinline"
)

// AuditRepositoryPG persists the append-only execution trail: phase results,
// quality evaluations and the cost ledger.
type AuditRepositoryPG struct {
	runner infra.SQLExecutor
}

func NewAuditRepository(runner infra.SQLExecutor) *AuditRepositoryPG {
	return &AuditRepositoryPG{runner: runner}
}

// InsertPhaseResult appends one phase execution record. Rows are never
// updated afterwards.
func (r *AuditRepositoryPG) InsertPhaseResult(ctx context.Context, res *domain.PhaseResult) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	_, err := r.runner.Exec(ctx, sqlinline.QInsertPhaseResult,
		res.ID,
		res.JobID,
		res.Phase,
		res.Backend,
		res.Attempt,
		res.Succeeded,
		res.Content,
		res.ErrorDetail,
		res.CostEstimate,
		res.Duration.Milliseconds(),
	)
	return err
}

// ListPhaseResults returns the full trail for a job in execution order.
func (r *AuditRepositoryPG) ListPhaseResults(ctx context.Context, jobID string) ([]domain.PhaseResult, error) {
	rows, err := r.runner.Query(ctx, sqlinline.QListPhaseResults, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PhaseResult
	for rows.Next() {
		var (
			res        domain.PhaseResult
			durationMS int64
		)
		if err := rows.Scan(
			&res.ID,
			&res.JobID,
			&res.Phase,
			&res.Backend,
			&res.Attempt,
			&res.Succeeded,
			&res.Content,
			&res.ErrorDetail,
			&res.CostEstimate,
			&durationMS,
			&res.CreatedAt,
		); err != nil {
			return nil, err
		}
		res.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, res)
	}
	return out, rows.Err()
}

// LatestContent returns the newest successful content for a phase.
func (r *AuditRepositoryPG) LatestContent(ctx context.Context, jobID string, phase domain.Phase) (string, error) {
	row := r.runner.QueryRow(ctx, sqlinline.QLatestPhaseContent, jobID, phase)
	var content string
	if err := row.Scan(&content); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return content, nil
}

// InsertQualityEvaluation records one refinement-round verdict.
func (r *AuditRepositoryPG) InsertQualityEvaluation(ctx context.Context, eval *domain.QualityEvaluation) error {
	issues, err := json.Marshal(eval.Issues)
	if err != nil {
		return fmt.Errorf("encode issues: %w", err)
	}
	_, err = r.runner.Exec(ctx, sqlinline.QInsertQualityEvaluation,
		eval.JobID,
		eval.Round,
		eval.Score,
		eval.Passed,
		issues,
	)
	return err
}

// ListQualityEvaluations returns every round's verdict in order.
func (r *AuditRepositoryPG) ListQualityEvaluations(ctx context.Context, jobID string) ([]domain.QualityEvaluation, error) {
	rows, err := r.runner.Query(ctx, sqlinline.QListQualityEvaluations, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.QualityEvaluation
	for rows.Next() {
		var (
			eval   domain.QualityEvaluation
			issues []byte
		)
		if err := rows.Scan(&eval.JobID, &eval.Round, &eval.Score, &eval.Passed, &issues, &eval.CreatedAt); err != nil {
			return nil, err
		}
		if len(issues) > 0 {
			if err := json.Unmarshal(issues, &eval.Issues); err != nil {
				return nil, fmt.Errorf("decode issues: %w", err)
			}
		}
		out = append(out, eval)
	}
	return out, rows.Err()
}

// InsertLedgerEntry appends one cost row. The ledger is strictly additive
// and survives job soft-deletion.
func (r *AuditRepositoryPG) InsertLedgerEntry(ctx context.Context, entry *domain.CostLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err := r.runner.Exec(ctx, sqlinline.QInsertLedgerEntry,
		entry.ID,
		entry.JobID,
		entry.Phase,
		entry.Backend,
		entry.PromptTokens,
		entry.CompletionTokens,
		entry.Cost,
		entry.Estimated,
	)
	return err
}

// SumCostByJob totals the ledger for one job.
func (r *AuditRepositoryPG) SumCostByJob(ctx context.Context, jobID string) (float64, error) {
	row := r.runner.QueryRow(ctx, sqlinline.QSumCostByJob, jobID)
	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

var _ domain.AuditRepository = (*AuditRepositoryPG)(nil)
