// Command approve records the human decision for a job waiting at the
// approval gate. It is the only writer of approval records; the worker only
// ever reads them.
//
// Usage:
//
//	approve -job <id> -decision approve -reviewer jane
//	approve -job <id> -decision reject -reviewer jane -feedback "tone is off"
//	approve -job <id> -decision archive -reviewer jane
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"newsroom/internal/adapter/repo"
	"newsroom/internal/domain"
	"newsroom/internal/infra"
)

func main() {
	jobID := flag.String("job", "", "job identifier (required)")
	decision := flag.String("decision", "", "approve, reject or archive (required)")
	reviewer := flag.String("reviewer", os.Getenv("USER"), "reviewer name recorded with the decision")
	feedback := flag.String("feedback", "", "optional reviewer feedback")
	flag.Parse()

	if strings.TrimSpace(*jobID) == "" || strings.TrimSpace(*decision) == "" {
		fmt.Fprintln(os.Stderr, "approve: -job and -decision are required")
		flag.Usage()
		os.Exit(2)
	}

	var (
		verdict domain.ApprovalDecision
		archive bool
	)
	switch *decision {
	case "approve":
		verdict = domain.DecisionApproved
	case "reject":
		verdict = domain.DecisionRejected
	case "archive":
		// Archival is a rejection that also hides the job.
		verdict = domain.DecisionRejected
		archive = true
	default:
		fmt.Fprintf(os.Stderr, "approve: decision must be approve, reject or archive, got %q\n", *decision)
		os.Exit(2)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "approve: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("approve: database connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	jobs := repo.NewJobRepository(runner)
	approvals := repo.NewApprovalRepository(runner)

	// Record the decision before moving the job: published content must
	// always be explainable by an approval record, even if this process
	// dies between the two writes.
	rec := &domain.ApprovalRecord{
		JobID:    *jobID,
		Decision: verdict,
		Reviewer: strings.TrimSpace(*reviewer),
		Feedback: strings.TrimSpace(*feedback),
	}
	if err := approvals.Insert(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyDecided) {
			logger.Fatal().Str("job_id", *jobID).Msg("approve: job already has a decision")
		}
		logger.Fatal().Err(err).Msg("approve: record decision failed")
	}

	target := domain.JobStatusApproved
	switch {
	case archive:
		target = domain.JobStatusArchived
	case verdict == domain.DecisionRejected:
		target = domain.JobStatusRejected
		if cfg.RequeueOnReject {
			target = domain.JobStatusRefining
		}
	}

	if err := jobs.Decide(ctx, *jobID, target); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotAwaitingGate):
			logger.Fatal().Str("job_id", *jobID).Msg("approve: job is not awaiting approval")
		default:
			logger.Fatal().Err(err).Msg("approve: transition failed")
		}
	}

	if archive {
		if err := jobs.SoftDelete(ctx, *jobID); err != nil {
			logger.Fatal().Err(err).Msg("approve: soft delete failed")
		}
	}

	if target == domain.JobStatusRefining {
		// Re-queued jobs get a fresh refinement budget and face the gate
		// again, so the old decision must not block the next one.
		if err := approvals.Delete(ctx, *jobID); err != nil {
			logger.Fatal().Err(err).Msg("approve: clear decision for requeue failed")
		}
		if err := jobs.SetRefinementRounds(ctx, *jobID, 0); err != nil {
			logger.Fatal().Err(err).Msg("approve: reset refinement rounds failed")
		}
	}

	fmt.Printf("job %s -> %s\n", *jobID, target)
}
