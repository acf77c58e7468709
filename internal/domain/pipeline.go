package domain

import "time"

// PhaseResult is the output and bookkeeping for one phase execution.
// Results are append-only: a retried phase produces a new row.
type PhaseResult struct {
	ID           string
	JobID        string
	Phase        Phase
	Backend      string
	Attempt      int
	Succeeded    bool
	Content      string
	ErrorDetail  string
	CostEstimate float64
	Duration     time.Duration
	CreatedAt    time.Time
}

// QualityEvaluation is the score and verdict for one refinement round.
type QualityEvaluation struct {
	JobID     string
	Round     int
	Score     float64
	Passed    bool
	Issues    []string
	CreatedAt time.Time
}

// ApprovalDecision is the human verdict at the approval gate.
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)

// ApprovalRecord captures the decision made at the mandatory gate.
// Exactly one exists per job that reaches awaiting_approval.
type ApprovalRecord struct {
	JobID     string
	Decision  ApprovalDecision
	Reviewer  string
	Feedback  string
	DecidedAt time.Time
}

// CostLedgerEntry is one row per phase execution for budget accounting.
// Strictly additive; entries survive job soft-deletion.
type CostLedgerEntry struct {
	ID               string
	JobID            string
	Phase            Phase
	Backend          string
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	Estimated        bool
	CreatedAt        time.Time
}
