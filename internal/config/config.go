// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// Persistence settings.
	DatabaseURL string // sqlite: or postgres: DSN for run snapshots.
	CacheKind   string // "memory" or "redis".
	RedisURL    string

	// Oracle settings.
	OracleProvider     string // "openai" or "gemini".
	Model              string // Provider model override; empty uses the provider default.
	OpenAIAPIKey       string
	GoogleAPIKey       string
	HistoryTokenBudget int

	// Engine settings.
	MaxSteps        int
	DecisionRetries int
	ToolTimeout     time.Duration
	RunTimeout      time.Duration

	// Cache TTLs per tool class.
	ProductTTL    time.Duration
	CompetitorTTL time.Duration
	SentimentTTL  time.Duration
	ReportTTL     time.Duration

	// Observability settings.
	ServiceName string
	LogLevel    string
	TraceStdout bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("SCOUT_PORT", 8080),
		ReadTimeout:         envDuration("SCOUT_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("SCOUT_WRITE_TIMEOUT", 6*time.Minute),
		MaxRequestBodyBytes: int64(envInt("SCOUT_MAX_REQUEST_BODY_BYTES", 1*1024*1024)),
		DatabaseURL:         envStr("SCOUT_DATABASE_URL", "sqlite:file:scout.sqlite?cache=shared&_pragma=busy_timeout(5000)"),
		CacheKind:           envStr("SCOUT_CACHE", "memory"),
		RedisURL:            envStr("REDIS_URL", "redis://localhost:6379/0"),
		OracleProvider:      envStr("SCOUT_ORACLE_PROVIDER", "openai"),
		Model:               envStr("SCOUT_MODEL", ""),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		GoogleAPIKey:        envStr("GOOGLE_API_KEY", ""),
		HistoryTokenBudget:  envInt("SCOUT_HISTORY_TOKEN_BUDGET", 12000),
		MaxSteps:            envInt("SCOUT_MAX_STEPS", 8),
		DecisionRetries:     envInt("SCOUT_DECISION_RETRIES", 2),
		ToolTimeout:         envDuration("SCOUT_TOOL_TIMEOUT", 30*time.Second),
		RunTimeout:          envDuration("SCOUT_RUN_TIMEOUT", 5*time.Minute),
		ProductTTL:          envDuration("SCOUT_PRODUCT_TTL", time.Hour),
		CompetitorTTL:       envDuration("SCOUT_COMPETITOR_TTL", 2*time.Hour),
		SentimentTTL:        envDuration("SCOUT_SENTIMENT_TTL", 30*time.Minute),
		ReportTTL:           envDuration("SCOUT_REPORT_TTL", 24*time.Hour),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "scout"),
		LogLevel:            envStr("SCOUT_LOG_LEVEL", "info"),
		TraceStdout:         envBool("SCOUT_TRACE_STDOUT", false),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: SCOUT_PORT must be a valid port")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: SCOUT_DATABASE_URL is required")
	}
	switch c.CacheKind {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: SCOUT_CACHE must be memory or redis, got %q", c.CacheKind)
	}
	if c.CacheKind == "redis" && c.RedisURL == "" {
		return fmt.Errorf("config: REDIS_URL is required when SCOUT_CACHE=redis")
	}
	switch c.OracleProvider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("config: SCOUT_ORACLE_PROVIDER must be openai or gemini, got %q", c.OracleProvider)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("config: SCOUT_MAX_STEPS must be positive")
	}
	if c.DecisionRetries < 0 {
		return fmt.Errorf("config: SCOUT_DECISION_RETRIES must not be negative")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: SCOUT_MAX_REQUEST_BODY_BYTES must be positive")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
