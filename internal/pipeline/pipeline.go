package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/metrics"
	"newsroom/internal/providers/llm"
	"newsroom/internal/router"
)

// RouterAPI is the slice of the provider router the orchestrator needs.
type RouterAPI interface {
	Select(phase domain.Phase, explicit string, pref domain.QualityPreference) []string
	Execute(ctx context.Context, phase domain.Phase, candidates []string, req llm.GenerateRequest, expectedWords int) (*router.Result, error)
}

// Config carries the externally-configured pipeline policy.
type Config struct {
	// MaxRefinementRounds bounds quality_checking→refining transitions.
	// When the bound is reached the best-effort result proceeds to
	// formatting rather than looping forever.
	MaxRefinementRounds int
	QualityThreshold    float64
}

// Orchestrator drives one job through the content pipeline. It knows phase
// names and the state graph; provider specifics live behind the router.
type Orchestrator struct {
	router    RouterAPI
	jobs      domain.JobRepository
	audit     domain.AuditRepository
	approvals domain.ApprovalRepository
	evaluator Evaluator
	publisher Publisher
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	cfg       Config

	handlers map[domain.JobStatus]phaseHandler
}

type phaseHandler func(ctx context.Context, job *domain.Job) (domain.JobStatus, error)

// Deps bundles orchestrator collaborators.
type Deps struct {
	Router    RouterAPI
	Jobs      domain.JobRepository
	Audit     domain.AuditRepository
	Approvals domain.ApprovalRepository
	Evaluator Evaluator
	Publisher Publisher
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

func New(deps Deps, cfg Config) *Orchestrator {
	o := &Orchestrator{
		router:    deps.Router,
		jobs:      deps.Jobs,
		audit:     deps.Audit,
		approvals: deps.Approvals,
		evaluator: deps.Evaluator,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		cfg:       cfg,
	}
	// Flat status→handler table instead of a type hierarchy: the loop in
	// Run stays exhaustively matchable.
	o.handlers = map[domain.JobStatus]phaseHandler{
		domain.JobStatusResearching:     o.runResearch,
		domain.JobStatusDrafting:        o.runDraft,
		domain.JobStatusQualityChecking: o.runQualityCheck,
		domain.JobStatusRefining:        o.runRefine,
		domain.JobStatusFormatting:      o.runFormat,
		domain.JobStatusApproved:        o.runPublish,
	}
	return o
}

// Run drives job from its persisted status until it parks at the approval
// gate, reaches a terminal status, or fails. Every transition is written
// durably before the next phase starts, so a crashed run resumes from the
// last completed phase instead of re-executing it.
//
// Context cancellation (the executor's per-job deadline) is returned to the
// caller; all other failures are absorbed into the job's own status.
func (o *Orchestrator) Run(ctx context.Context, job *domain.Job) (domain.JobStatus, error) {
	if job.Status == domain.JobStatusPending {
		if err := o.transition(ctx, job, domain.JobStatusResearching); err != nil {
			return job.Status, err
		}
	}

	for {
		handler, ok := o.handlers[job.Status]
		if !ok {
			// awaiting_approval or a terminal status: nothing to drive.
			return job.Status, nil
		}

		o.logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("pipeline: running phase")
		next, err := handler(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				return job.Status, ctx.Err()
			}
			return o.fail(ctx, job, err)
		}
		if err := o.transition(ctx, job, next); err != nil {
			return job.Status, err
		}
		if next == domain.JobStatusAwaitingApproval || next.Terminal() {
			return next, nil
		}
	}
}

func (o *Orchestrator) transition(ctx context.Context, job *domain.Job, next domain.JobStatus) error {
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s", domain.ErrJobTerminal, job.Status)
	}
	if err := o.jobs.UpdateStatus(ctx, job.ID, next, nil); err != nil {
		return fmt.Errorf("persist transition %s -> %s: %w", job.Status, next, err)
	}
	job.Status = next
	return nil
}

// fail records the terminal failure with its trail intact. One job's failure
// is a status write, never a crash of the caller.
func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, cause error) (domain.JobStatus, error) {
	o.logger.Error().Err(cause).Str("job_id", job.ID).Str("status", string(job.Status)).Msg("pipeline: job failed")
	msg := cause.Error()
	if err := o.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, &msg); err != nil {
		return job.Status, fmt.Errorf("persist failure: %w", err)
	}
	job.Status = domain.JobStatusFailed
	job.LastError = msg
	return domain.JobStatusFailed, nil
}

// generate runs one provider-backed phase and records its trail.
func (o *Orchestrator) generate(ctx context.Context, job *domain.Job, phase domain.Phase, req llm.GenerateRequest) (*router.Result, error) {
	candidates := o.router.Select(phase, job.ModelFor(phase), job.QualityPreference)
	res, err := o.router.Execute(ctx, phase, candidates, req, job.TargetWords)
	if err != nil {
		if ctx.Err() == nil {
			o.recordFailure(ctx, job, phase, err)
		}
		return nil, err
	}
	if err := o.record(ctx, job, phase, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) record(ctx context.Context, job *domain.Job, phase domain.Phase, res *router.Result) error {
	result := &domain.PhaseResult{
		JobID:        job.ID,
		Phase:        phase,
		Backend:      res.Backend,
		Attempt:      res.Attempts,
		Succeeded:    true,
		Content:      res.Text,
		CostEstimate: res.Cost,
		Duration:     res.Duration,
	}
	if err := o.audit.InsertPhaseResult(ctx, result); err != nil {
		return fmt.Errorf("persist phase result: %w", err)
	}
	entry := &domain.CostLedgerEntry{
		JobID:            job.ID,
		Phase:            phase,
		Backend:          res.Backend,
		PromptTokens:     res.Usage.PromptTokens,
		CompletionTokens: res.Usage.CompletionTokens,
		Cost:             res.Cost,
		Estimated:        res.Estimated,
	}
	if err := o.audit.InsertLedgerEntry(ctx, entry); err != nil {
		return fmt.Errorf("persist ledger entry: %w", err)
	}
	o.metrics.PhaseObserved(string(phase), res.Duration)
	return nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, job *domain.Job, phase domain.Phase, cause error) {
	result := &domain.PhaseResult{
		JobID:       job.ID,
		Phase:       phase,
		Succeeded:   false,
		ErrorDetail: cause.Error(),
	}
	if err := o.audit.InsertPhaseResult(ctx, result); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: failed to record phase failure")
	}
}

func (o *Orchestrator) runResearch(ctx context.Context, job *domain.Job) (domain.JobStatus, error) {
	if _, err := o.generate(ctx, job, domain.PhaseResearch, buildResearchRequest(job)); err != nil {
		return job.Status, err
	}
	return domain.JobStatusDrafting, nil
}

func (o *Orchestrator) runDraft(ctx context.Context, job *domain.Job) (domain.JobStatus, error) {
	research, err := o.latestContent(ctx, job, domain.PhaseResearch)
	if err != nil {
		return job.Status, err
	}
	if _, err := o.generate(ctx, job, domain.PhaseDraft, buildDraftRequest(job, research)); err != nil {
		return job.Status, err
	}
	return domain.JobStatusQualityChecking, nil
}

func (o *Orchestrator) runQualityCheck(ctx context.Context, job *domain.Job) (domain.JobStatus, error) {
	content, err := o.reviewableContent(ctx, job)
	if err != nil {
		return job.Status, err
	}

	score, issues, err := o.evaluator.Evaluate(ctx, job, content)
	if err != nil {
		return job.Status, err
	}

	round := job.RefinementRounds + 1
	eval := &domain.QualityEvaluation{
		JobID:  job.ID,
		Round:  round,
		Score:  score,
		Passed: score >= o.cfg.QualityThreshold,
		Issues: issues,
	}
	if err := o.audit.InsertQualityEvaluation(ctx, eval); err != nil {
		return job.Status, fmt.Errorf("persist quality evaluation: %w", err)
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Int("round", round).
		Float64("score", score).
		Bool("passed", eval.Passed).
		Msg("pipeline: quality verdict")

	if eval.Passed {
		return domain.JobStatusFormatting, nil
	}
	if job.RefinementRounds >= o.cfg.MaxRefinementRounds {
		// Bound reached: accept the best-effort result. Unbounded
		// refinement risks unbounded cost.
		o.logger.Warn().Str("job_id", job.ID).Int("rounds", job.RefinementRounds).Msg("pipeline: refinement bound reached, accepting best effort")
		return domain.JobStatusFormatting, nil
	}
	if err := o.jobs.SetRefinementRounds(ctx, job.ID, job.RefinementRounds+1); err != nil {
		return job.Status, fmt.Errorf("persist refinement round: %w", err)
	}
	job.RefinementRounds++
	return domain.JobStatusRefining, nil
}

func (o *Orchestrator) runRefine(ctx context.Context, job *domain.Job) (domain.JobStatus, error) {
	content, err := o.reviewableContent(ctx, job)
	if err != nil {
		return job.Status, err
	}
	evals, err := o.audit.ListQualityEvaluations(ctx, job.ID)
	if err != nil {
		return job.Status, fmt.Errorf("load evaluations: %w", err)
	}
	var issues []string
	if len(evals) > 0 {
		issues = evals[len(evals)-1].Issues
	}
	if _, err := o.generate(ctx, job, domain.PhaseRefine, buildRefineRequest(job, content, issues)); err != nil {
		return job.Status, err
	}
	return domain.JobStatusQualityChecking, nil
}

func (o *Orchestrator) runFormat(ctx context.Context, job *domain.Job) (domain.JobStatus, error) {
	content, err := o.reviewableContent(ctx, job)
	if err != nil {
		return job.Status, err
	}
	if _, err := o.generate(ctx, job, domain.PhaseFormat, buildFormatRequest(job, content)); err != nil {
		return job.Status, err
	}
	// Mandatory human gate: the pipeline parks here. Only the approval
	// action moves the job onward.
	return domain.JobStatusAwaitingApproval, nil
}

// runPublish hands the approved content to the CMS. The approval record is
// re-checked so no internal code path can publish around the gate.
func (o *Orchestrator) runPublish(ctx context.Context, job *domain.Job) (domain.JobStatus, error) {
	rec, err := o.approvals.GetByJobID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return job.Status, fmt.Errorf("job %s approved without an approval record", job.ID)
		}
		return job.Status, err
	}
	if rec.Decision != domain.DecisionApproved {
		return job.Status, fmt.Errorf("job %s approval record says %s", job.ID, rec.Decision)
	}

	content, err := o.latestContent(ctx, job, domain.PhaseFormat)
	if err != nil {
		return job.Status, err
	}

	start := time.Now()
	if err := o.publisher.Publish(ctx, PublishRequest{
		JobID:    job.ID,
		Topic:    job.Topic,
		Content:  content,
		Reviewer: rec.Reviewer,
	}); err != nil {
		return job.Status, fmt.Errorf("%w: %w", domain.ErrPublishFailed, err)
	}

	handoff := &domain.PhaseResult{
		JobID:     job.ID,
		Phase:     domain.PhasePublish,
		Backend:   "cms",
		Attempt:   1,
		Succeeded: true,
		Duration:  time.Since(start),
	}
	if err := o.audit.InsertPhaseResult(ctx, handoff); err != nil {
		return job.Status, fmt.Errorf("persist publish result: %w", err)
	}
	return domain.JobStatusPublished, nil
}

// reviewableContent returns the newest draft-equivalent text: the latest
// refinement when one exists, otherwise the original draft.
func (o *Orchestrator) reviewableContent(ctx context.Context, job *domain.Job) (string, error) {
	content, err := o.audit.LatestContent(ctx, job.ID, domain.PhaseRefine)
	if err == nil {
		return content, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	return o.latestContent(ctx, job, domain.PhaseDraft)
}

func (o *Orchestrator) latestContent(ctx context.Context, job *domain.Job, phase domain.Phase) (string, error) {
	content, err := o.audit.LatestContent(ctx, job.ID, phase)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("no %s content recorded for job %s", phase, job.ID)
		}
		return "", err
	}
	return content, nil
}
