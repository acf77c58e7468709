package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/metrics"
	"newsroom/internal/providers/llm"
	"newsroom/internal/resilience"
)

// ErrAllProvidersUnavailable is raised when every candidate backend for a
// phase was exhausted or short-circuited.
var ErrAllProvidersUnavailable = errors.New("all providers unavailable")

// ErrUnknownBackend is returned for candidate names missing from the catalog.
var ErrUnknownBackend = errors.New("unknown backend")

// BackendSpec registers one backend in the catalog: its client, its pricing
// and its preference rank per quality tier (lower rank is tried first; a tier
// missing from the map means the backend never serves that tier).
type BackendSpec struct {
	Client          llm.Client
	InputCostPer1K  float64
	OutputCostPer1K float64
	TierRank        map[domain.QualityPreference]int
}

// phaseShape scales the token estimate per phase: research reads a lot and
// writes summaries, drafting writes the most, quality checks emit short
// verdicts.
type phaseShape struct {
	promptFactor float64
	outputFactor float64
}

var phaseShapes = map[domain.Phase]phaseShape{
	domain.PhaseResearch:     {promptFactor: 0.5, outputFactor: 1.0},
	domain.PhaseDraft:        {promptFactor: 1.5, outputFactor: 1.6},
	domain.PhaseQualityCheck: {promptFactor: 2.0, outputFactor: 0.2},
	domain.PhaseRefine:       {promptFactor: 2.5, outputFactor: 1.6},
	domain.PhaseFormat:       {promptFactor: 2.0, outputFactor: 1.8},
}

// tokens per word, the usual rough English ratio.
const tokensPerWord = 1.33

// Config wires the router's collaborators.
type Config struct {
	Backends map[string]BackendSpec
	Breaker  *resilience.Breaker
	Retry    resilience.RetryConfig
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Router maps a pipeline phase plus a preference to an ordered fallback
// chain of backends and executes resilient calls against it.
type Router struct {
	backends map[string]BackendSpec
	order    []string
	breaker  *resilience.Breaker
	retry    resilience.RetryConfig
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// Result is the outcome of one successful phase execution.
type Result struct {
	Text      string
	Backend   string
	Model     string
	Usage     llm.Usage
	Cost      float64
	Estimated bool
	Attempts  int
	Duration  time.Duration
}

func New(cfg Config) *Router {
	order := make([]string, 0, len(cfg.Backends))
	for name := range cfg.Backends {
		order = append(order, name)
	}
	// Registration order must not depend on map iteration.
	sort.Strings(order)

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.DefaultBreakerConfig())
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = resilience.DefaultRetryConfig()
	}

	return &Router{
		backends: cfg.Backends,
		order:    order,
		breaker:  breaker,
		retry:    retry,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Select returns the ordered candidate list for a phase. An explicit backend
// preference goes first; the remaining candidates follow in tier-rank order.
// The result is deterministic for identical inputs.
func (r *Router) Select(phase domain.Phase, explicit string, pref domain.QualityPreference) []string {
	type ranked struct {
		name string
		rank int
	}
	var pool []ranked
	for _, name := range r.order {
		if name == explicit {
			continue
		}
		rank, ok := r.backends[name].TierRank[pref]
		if !ok {
			continue
		}
		pool = append(pool, ranked{name: name, rank: rank})
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].rank < pool[j].rank })

	var out []string
	if _, ok := r.backends[explicit]; ok && explicit != "" {
		out = append(out, explicit)
	}
	for _, c := range pool {
		out = append(out, c.name)
	}
	return out
}

// EstimateCost prices a phase call against the static per-backend table.
// Pure: the same inputs always produce the same estimate.
func (r *Router) EstimateCost(phase domain.Phase, backend string, expectedWords int) float64 {
	spec, ok := r.backends[backend]
	if !ok {
		return 0
	}
	shape, ok := phaseShapes[phase]
	if !ok {
		shape = phaseShape{promptFactor: 1, outputFactor: 1}
	}
	if expectedWords <= 0 {
		expectedWords = 800
	}
	promptTokens := float64(expectedWords) * tokensPerWord * shape.promptFactor
	outputTokens := float64(expectedWords) * tokensPerWord * shape.outputFactor
	return promptTokens/1000*spec.InputCostPer1K + outputTokens/1000*spec.OutputCostPer1K
}

// actualCost prices reported token usage; falls back to zero when the
// backend is unknown.
func (r *Router) actualCost(backend string, usage llm.Usage) float64 {
	spec, ok := r.backends[backend]
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)/1000*spec.InputCostPer1K +
		float64(usage.CompletionTokens)/1000*spec.OutputCostPer1K
}

// Execute walks the candidate chain. Within one backend, transient failures
// are retried; a backend whose retries are exhausted or whose circuit is open
// triggers fallback to the next candidate. Fatal errors (auth, malformed
// request) abort immediately without fallback. Exhausting every candidate
// yields ErrAllProvidersUnavailable.
func (r *Router) Execute(ctx context.Context, phase domain.Phase, candidates []string, req llm.GenerateRequest, expectedWords int) (*Result, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: empty candidate list for phase %s", ErrAllProvidersUnavailable, phase)
	}

	start := time.Now()
	var lastErr error
	for _, name := range candidates {
		spec, ok := r.backends[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
		}

		if state := r.breaker.State(name); state == resilience.BreakerOpen {
			// Short-circuit without touching the network.
			r.logger.Warn().Str("backend", name).Str("phase", string(phase)).Msg("router: circuit open, skipping backend")
			r.metrics.ProviderCall(name, string(phase), "skipped", 0)
			r.metrics.BreakerState(name, string(state))
			lastErr = fmt.Errorf("%s: %w", name, resilience.ErrCircuitOpen)
			continue
		}

		var generated *llm.GenerateResult
		retryCfg := r.retry
		retryCfg.Retryable = func(err error) bool {
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return false
			}
			return llm.Retryable(err)
		}
		stats, err := resilience.Retry(ctx, retryCfg, func(ctx context.Context) error {
			return r.breaker.Do(ctx, name, func(ctx context.Context) error {
				out, genErr := spec.Client.Generate(ctx, req)
				if genErr != nil {
					return genErr
				}
				generated = out
				return nil
			})
		})
		r.metrics.BreakerState(name, string(r.breaker.State(name)))

		if err == nil {
			cost := r.actualCost(name, generated.Usage)
			estimated := false
			if generated.Usage.PromptTokens == 0 && generated.Usage.CompletionTokens == 0 {
				cost = r.EstimateCost(phase, name, expectedWords)
				estimated = true
			}
			r.metrics.ProviderCall(name, string(phase), "success", stats.Attempts)
			r.metrics.CostAdded(name, cost)
			return &Result{
				Text:      generated.Text,
				Backend:   name,
				Model:     generated.Model,
				Usage:     generated.Usage,
				Cost:      cost,
				Estimated: estimated,
				Attempts:  stats.Attempts,
				Duration:  time.Since(start),
			}, nil
		}

		if ctx.Err() != nil {
			// Cancellation is terminal, never a reason to try another backend.
			return nil, err
		}
		if isFatal(err) {
			r.metrics.ProviderCall(name, string(phase), "fatal", stats.Attempts)
			r.logger.Error().Err(err).Str("backend", name).Str("phase", string(phase)).Msg("router: fatal provider error")
			return nil, err
		}

		r.metrics.ProviderCall(name, string(phase), "unavailable", stats.Attempts)
		r.logger.Warn().Err(err).Str("backend", name).Str("phase", string(phase)).Msg("router: backend unavailable, falling back")
		lastErr = err
	}

	return nil, fmt.Errorf("%w: phase %s: %w", ErrAllProvidersUnavailable, phase, lastErr)
}

// isFatal reports errors that must not trigger cross-backend fallback.
func isFatal(err error) bool {
	if errors.Is(err, resilience.ErrRetriesExhausted) || errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	var perr *llm.Error
	if errors.As(err, &perr) {
		return perr.Kind == llm.ErrKindAuth || perr.Kind == llm.ErrKindBadRequest
	}
	return false
}

// Backends lists the catalog in deterministic order, for status reporting.
func (r *Router) Backends() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
