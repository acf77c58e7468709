package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"newsroom/internal/adapter/repo"
	"newsroom/internal/domain"
	"newsroom/internal/executor"
	"newsroom/internal/infra"
	"newsroom/internal/metrics"
	"newsroom/internal/opsapi"
	"newsroom/internal/pipeline"
	"newsroom/internal/providers/llm"
	"newsroom/internal/resilience"
	"newsroom/internal/router"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		bootLogger := infra.NewLogger("development")
		bootLogger.Fatal().Err(err).Msg("worker: invalid configuration")
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: database connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	jobs := repo.NewJobRepository(runner)
	audit := repo.NewAuditRepository(runner)
	approvals := repo.NewApprovalRepository(runner)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	backends, err := buildBackends(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: provider setup failed")
	}

	breaker := resilience.NewBreaker(resilience.DefaultBreakerConfig())
	rtr := router.New(router.Config{
		Backends: backends,
		Breaker:  breaker,
		Retry:    resilience.DefaultRetryConfig(),
		Logger:   logger,
		Metrics:  m,
	})

	health := resilience.NewPoolHealth(
		resilience.PgxStatSource{Pool: pool},
		cfg.PoolDegradedRatio,
		cfg.PoolAcquireLimit,
	)

	var publisher pipeline.Publisher
	if cfg.CMSWebhookURL != "" {
		publisher = pipeline.NewWebhookPublisher(cfg.CMSWebhookURL, logger)
	} else {
		publisher = &pipeline.LogPublisher{Logger: logger}
	}

	orch := pipeline.New(pipeline.Deps{
		Router:    rtr,
		Jobs:      jobs,
		Audit:     audit,
		Approvals: approvals,
		Evaluator: &pipeline.LLMEvaluator{Router: rtr, Audit: audit, Logger: logger},
		Publisher: publisher,
		Logger:    logger,
		Metrics:   m,
	}, pipeline.Config{
		MaxRefinementRounds: cfg.MaxRefinementRounds,
		QualityThreshold:    cfg.QualityThreshold,
	})

	exec := executor.New(executor.Config{
		PollInterval:      cfg.PollInterval,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		JobTimeout:        cfg.JobTimeout,
		WorkerName:        cfg.WorkerName,
	}, jobs, orch, health, logger, m)

	ops := infra.NewHTTPServer(cfg.OpsPort, opsapi.NewHandler(opsapi.Deps{
		WorkerName: cfg.WorkerName,
		AppEnv:     cfg.AppEnv,
		Executor:   exec,
		Breaker:    breaker,
		Pool:       health,
		Backends:   rtr.Backends(),
		Registry:   registry,
		Jobs:       jobs,
		Audit:      audit,
	}))
	go func() {
		logger.Info().Str("port", cfg.OpsPort).Msg("worker: ops server listening")
		if err := ops.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("worker: ops server failed")
		}
	}()

	if err := exec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: executor stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("worker: ops server shutdown failed")
	}
}

// buildBackends assembles the provider catalog from whatever credentials are
// configured. Prices are per 1K tokens; tier ranks order the fallback chain
// per quality preference, lower first.
func buildBackends(cfg *infra.Config, logger infra.Logger) (map[string]router.BackendSpec, error) {
	backends := make(map[string]router.BackendSpec)

	if cfg.OpenAIAPIKey != "" {
		client, err := llm.NewOpenAIClient(llm.OpenAIOptions{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, err
		}
		backends["openai"] = router.BackendSpec{
			Client:          client,
			InputCostPer1K:  0.0025,
			OutputCostPer1K: 0.01,
			TierRank: map[domain.QualityPreference]int{
				domain.PreferenceFast:     2,
				domain.PreferenceBalanced: 1,
				domain.PreferenceQuality:  2,
			},
		}
	}

	if cfg.AnthropicAPIKey != "" {
		client, err := llm.NewAnthropicClient(llm.AnthropicOptions{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			BaseURL: cfg.AnthropicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		backends["anthropic"] = router.BackendSpec{
			Client:          client,
			InputCostPer1K:  0.003,
			OutputCostPer1K: 0.015,
			TierRank: map[domain.QualityPreference]int{
				domain.PreferenceFast:     3,
				domain.PreferenceBalanced: 2,
				domain.PreferenceQuality:  1,
			},
		}
	}

	if cfg.GeminiAPIKey != "" {
		client, err := llm.NewGeminiClient(llm.GeminiOptions{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		})
		if err != nil {
			return nil, err
		}
		backends["gemini"] = router.BackendSpec{
			Client:          client,
			InputCostPer1K:  0.0001,
			OutputCostPer1K: 0.0004,
			TierRank: map[domain.QualityPreference]int{
				domain.PreferenceFast:     1,
				domain.PreferenceBalanced: 3,
				domain.PreferenceQuality:  3,
			},
		}
	}

	if len(backends) == 0 {
		return nil, errors.New("no provider credentials configured")
	}
	for name := range backends {
		logger.Info().Str("backend", name).Msg("worker: provider registered")
	}
	return backends, nil
}
