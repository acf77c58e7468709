package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
)

// Evaluator scores draft content. Implementations decide how the score is
// produced; the orchestrator applies the pass threshold and persists the
// verdict.
type Evaluator interface {
	Evaluate(ctx context.Context, job *domain.Job, content string) (score float64, issues []string, err error)
}

// LLMEvaluator scores content with a quality-check phase call through the
// same router the generation phases use, so the reviewer backend gets the
// same retry, breaker and cost treatment.
type LLMEvaluator struct {
	Router RouterAPI
	Audit  domain.AuditRepository
	Logger zerolog.Logger
}

type qualityVerdict struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues"`
}

func (e *LLMEvaluator) Evaluate(ctx context.Context, job *domain.Job, content string) (float64, []string, error) {
	candidates := e.Router.Select(domain.PhaseQualityCheck, job.ModelFor(domain.PhaseQualityCheck), job.QualityPreference)
	res, err := e.Router.Execute(ctx, domain.PhaseQualityCheck, candidates, buildQualityRequest(job, content), job.TargetWords)
	if err != nil {
		// Keep the trail complete: a failed review leaves a phase row like
		// any other phase. Cancellation is the executor's deadline, not a
		// phase outcome.
		if ctx.Err() == nil {
			failure := &domain.PhaseResult{
				JobID:       job.ID,
				Phase:       domain.PhaseQualityCheck,
				Succeeded:   false,
				ErrorDetail: err.Error(),
			}
			if insErr := e.Audit.InsertPhaseResult(ctx, failure); insErr != nil {
				e.Logger.Error().Err(insErr).Str("job_id", job.ID).Msg("quality: failed to record phase failure")
			}
		}
		return 0, nil, fmt.Errorf("quality check call: %w", err)
	}

	result := &domain.PhaseResult{
		JobID:        job.ID,
		Phase:        domain.PhaseQualityCheck,
		Backend:      res.Backend,
		Attempt:      res.Attempts,
		Succeeded:    true,
		Content:      res.Text,
		CostEstimate: res.Cost,
		Duration:     res.Duration,
	}
	if err := e.Audit.InsertPhaseResult(ctx, result); err != nil {
		return 0, nil, fmt.Errorf("persist quality phase result: %w", err)
	}
	entry := &domain.CostLedgerEntry{
		JobID:            job.ID,
		Phase:            domain.PhaseQualityCheck,
		Backend:          res.Backend,
		PromptTokens:     res.Usage.PromptTokens,
		CompletionTokens: res.Usage.CompletionTokens,
		Cost:             res.Cost,
		Estimated:        res.Estimated,
	}
	if err := e.Audit.InsertLedgerEntry(ctx, entry); err != nil {
		return 0, nil, fmt.Errorf("persist quality ledger entry: %w", err)
	}

	verdict, err := parseVerdict(res.Text)
	if err != nil {
		e.Logger.Warn().Err(err).Str("job_id", job.ID).Str("backend", res.Backend).Msg("quality: unparseable verdict")
		return 0, nil, err
	}
	return verdict.Score, verdict.Issues, nil
}

// parseVerdict tolerates reviewers that wrap the JSON in prose or markdown
// fences by extracting the outermost object before decoding.
func parseVerdict(text string) (*qualityVerdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in quality response")
	}
	var v qualityVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("decode quality verdict: %w", err)
	}
	// Some models score on 0-100 despite instructions.
	if v.Score > 1 {
		v.Score = v.Score / 100
	}
	if v.Score < 0 {
		v.Score = 0
	}
	if v.Score > 1 {
		v.Score = 1
	}
	return &v, nil
}
