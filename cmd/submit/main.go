// Command submit enqueues one content-generation job.
//
// Usage:
//
//	submit -topic "Solar adoption in 2026" -style explainer -tone neutral \
//	    -words 1200 -preference quality -models "draft=anthropic,format=openai"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsroom/internal/adapter/repo"
	"newsroom/internal/domain"
	"newsroom/internal/infra"
)

func main() {
	topic := flag.String("topic", "", "article topic (required)")
	style := flag.String("style", "", "writing style, e.g. explainer, op-ed, news")
	tone := flag.String("tone", "", "tone of voice, e.g. neutral, playful")
	words := flag.Int("words", 800, "target article length in words")
	preference := flag.String("preference", "balanced", "quality preference: fast, balanced or quality")
	models := flag.String("models", "", "per-phase backend pins, e.g. draft=anthropic,format=openai")
	flag.Parse()

	if strings.TrimSpace(*topic) == "" {
		fmt.Fprintln(os.Stderr, "submit: -topic is required")
		flag.Usage()
		os.Exit(2)
	}
	pref := domain.QualityPreference(*preference)
	switch pref {
	case domain.PreferenceFast, domain.PreferenceBalanced, domain.PreferenceQuality:
	default:
		fmt.Fprintf(os.Stderr, "submit: unknown preference %q\n", *preference)
		os.Exit(2)
	}
	pins, err := parseModels(*models)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		os.Exit(2)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("submit: database connection failed")
	}
	defer pool.Close()

	jobs := repo.NewJobRepository(infra.NewSQLRunner(pool, logger))
	job := &domain.Job{
		ID:                uuid.New().String(),
		Topic:             strings.TrimSpace(*topic),
		Style:             strings.TrimSpace(*style),
		Tone:              strings.TrimSpace(*tone),
		TargetWords:       *words,
		ModelsByPhase:     pins,
		QualityPreference: pref,
		Status:            domain.JobStatusPending,
	}
	if err := jobs.Create(ctx, job); err != nil {
		logger.Fatal().Err(err).Msg("submit: create job failed")
	}

	fmt.Println(job.ID)
}

func parseModels(raw string) (map[domain.Phase]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	valid := map[domain.Phase]bool{
		domain.PhaseResearch:     true,
		domain.PhaseDraft:        true,
		domain.PhaseQualityCheck: true,
		domain.PhaseRefine:       true,
		domain.PhaseFormat:       true,
	}
	out := make(map[domain.Phase]string)
	for _, pair := range strings.Split(raw, ",") {
		phase, backend, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || backend == "" {
			return nil, fmt.Errorf("malformed -models entry %q", pair)
		}
		p := domain.Phase(phase)
		if !valid[p] {
			return nil, fmt.Errorf("unknown phase %q in -models", phase)
		}
		out[p] = backend
	}
	return out, nil
}
