package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	OpsPort     string
	DatabaseURL string

	// Executor behaviour.
	PollInterval      time.Duration
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	WorkerName        string

	// Pipeline policy. Both knobs the source material left ambiguous are
	// explicit configuration: refinement is bounded, and rejection either
	// re-queues one more refinement pass or archives the job.
	MaxRefinementRounds int
	QualityThreshold    float64
	RequeueOnReject     bool

	// Provider credentials and endpoints.
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string
	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiModel      string

	CMSWebhookURL string

	// Pool sizing and health thresholds.
	DBMaxConns        int
	DBMinConns        int
	PoolDegradedRatio float64
	PoolAcquireLimit  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. A .env file is honoured when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		OpsPort:     getEnv("OPS_PORT", "9090"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		PollInterval:      time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)),
		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 4),
		JobTimeout:        time.Minute * time.Duration(getEnvInt("JOB_TIMEOUT_MINUTES", 15)),
		WorkerName:        getEnv("WORKER_NAME", defaultWorkerName()),

		MaxRefinementRounds: getEnvInt("MAX_REFINEMENT_ROUNDS", 2),
		QualityThreshold:    getEnvFloat("QUALITY_THRESHOLD", 0.75),
		RequeueOnReject:     getEnvBool("REQUEUE_ON_REJECT", false),

		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		CMSWebhookURL: os.Getenv("CMS_WEBHOOK_URL"),

		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:        getEnvInt("DB_MIN_CONNS", 1),
		PoolDegradedRatio: getEnvFloat("POOL_DEGRADED_RATIO", 0.8),
		PoolAcquireLimit:  time.Millisecond * time.Duration(getEnvInt("POOL_ACQUIRE_LIMIT_MS", 500)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.MaxConcurrentJobs < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}
	if cfg.MaxRefinementRounds < 0 {
		return nil, fmt.Errorf("MAX_REFINEMENT_ROUNDS must not be negative")
	}
	if cfg.QualityThreshold < 0 || cfg.QualityThreshold > 1 {
		return nil, fmt.Errorf("QUALITY_THRESHOLD must be within [0,1]")
	}

	return cfg, nil
}

func defaultWorkerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker"
	}
	return host
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
