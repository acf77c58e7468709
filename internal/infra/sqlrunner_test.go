package infra

import (
	"strings"
	"testing"

	"newsroom/internal/sqlinline"
)

func TestExtractMarker(t *testing.T) {
	t.Parallel()

	query := "--sql 7c1f4b02-91d3-4a8e-b6f0-2f60a6f0c9aa\nselect 1;"
	marker, trimmed, err := extractMarker(query)
	if err != nil {
		t.Fatalf("extractMarker: %v", err)
	}
	if marker != "7c1f4b02-91d3-4a8e-b6f0-2f60a6f0c9aa" {
		t.Fatalf("marker = %q", marker)
	}
	if trimmed != "select 1;" {
		t.Fatalf("trimmed = %q", trimmed)
	}
}

func TestExtractMarkerRejectsUnmarkedSQL(t *testing.T) {
	t.Parallel()

	cases := []string{
		"select 1;",
		"-- sql 7c1f4b02-91d3-4a8e-b6f0-2f60a6f0c9aa\nselect 1;",
		"--sql not-a-uuid\nselect 1;",
		"",
	}
	for _, q := range cases {
		if _, _, err := extractMarker(q); err == nil {
			t.Errorf("expected error for %q", q)
		}
	}
}

// Every statement constant must carry a valid, unique marker so log lines
// stay attributable to exactly one statement.
func TestAllStatementsCarryUniqueMarkers(t *testing.T) {
	t.Parallel()

	statements := map[string]string{
		"QInsertJob":               sqlinline.QInsertJob,
		"QGetJob":                  sqlinline.QGetJob,
		"QClaimNextJob":            sqlinline.QClaimNextJob,
		"QReleaseClaim":            sqlinline.QReleaseClaim,
		"QUpdateJobStatus":         sqlinline.QUpdateJobStatus,
		"QSetRefinementRounds":     sqlinline.QSetRefinementRounds,
		"QSoftDeleteJob":           sqlinline.QSoftDeleteJob,
		"QDecideJob":               sqlinline.QDecideJob,
		"QInsertPhaseResult":       sqlinline.QInsertPhaseResult,
		"QListPhaseResults":        sqlinline.QListPhaseResults,
		"QLatestPhaseContent":      sqlinline.QLatestPhaseContent,
		"QInsertQualityEvaluation": sqlinline.QInsertQualityEvaluation,
		"QListQualityEvaluations":  sqlinline.QListQualityEvaluations,
		"QInsertLedgerEntry":       sqlinline.QInsertLedgerEntry,
		"QSumCostByJob":            sqlinline.QSumCostByJob,
		"QInsertApproval":          sqlinline.QInsertApproval,
		"QGetApproval":             sqlinline.QGetApproval,
		"QDeleteApproval":          sqlinline.QDeleteApproval,
	}

	seen := make(map[string]string)
	for name, stmt := range statements {
		marker, trimmed, err := extractMarker(stmt)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if prev, dup := seen[marker]; dup {
			t.Errorf("%s and %s share marker %s", name, prev, marker)
		}
		seen[marker] = name
		if strings.TrimSpace(trimmed) == "" {
			t.Errorf("%s: empty statement body", name)
		}
	}
}
