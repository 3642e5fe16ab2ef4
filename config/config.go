// Package config loads runtime settings from environment variables, with
// an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration fields for the service.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseURL    string

	ProviderBaseURL string
	ProviderAPIKey  string
	WebhookSecret   string

	DefaultCountryCode string

	PageSize            int
	ErrorBudget         int
	BatchInterval       time.Duration
	DuplicateWindow     time.Duration
	MaxHistoryWindow    time.Duration
	IncrementalLookback time.Duration

	RabbitURL   string
	RabbitQueue string

	S3Enabled   bool
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool
	S3PublicURL string
}

// LoadConfig reads configuration from the environment. A .env file is
// loaded when present; real environment variables take precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Port:      envOr("PORT", "8080"),
		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: os.Getenv("LOG_FORMAT"),

		DatabaseDriver: envOr("DB_DRIVER", "sqlite"),
		DatabaseURL:    envOr("DB_URL", "file:feedsync.db?_pragma=busy_timeout(10000)"),

		ProviderBaseURL: os.Getenv("PROVIDER_BASE_URL"),
		ProviderAPIKey:  os.Getenv("PROVIDER_API_KEY"),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),

		DefaultCountryCode: envOr("DEFAULT_COUNTRY_CODE", "1"),

		PageSize:            envInt("SYNC_PAGE_SIZE", 50),
		ErrorBudget:         envInt("SYNC_ERROR_BUDGET", 5),
		BatchInterval:       envDuration("SYNC_BATCH_INTERVAL", time.Second),
		DuplicateWindow:     envDuration("DUPLICATE_WINDOW", 24*time.Hour),
		MaxHistoryWindow:    envDuration("MAX_HISTORY_WINDOW", 90*24*time.Hour),
		IncrementalLookback: envDuration("INCREMENTAL_LOOKBACK", 24*time.Hour),

		RabbitURL:   os.Getenv("RABBITMQ_URL"),
		RabbitQueue: envOr("RABBITMQ_QUEUE", "feedsync_progress"),

		S3Enabled:   envBool("S3_ENABLED", false),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Region:    envOr("S3_REGION", "us-east-1"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3PathStyle: envBool("S3_PATH_STYLE", false),
		S3PublicURL: os.Getenv("S3_PUBLIC_URL"),
	}

	log.Info().
		Str("dbDriver", cfg.DatabaseDriver).
		Int("pageSize", cfg.PageSize).
		Int("errorBudget", cfg.ErrorBudget).
		Dur("batchInterval", cfg.BatchInterval).
		Msg("Configuration loaded")
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer in environment, using default")
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid boolean in environment, using default")
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration in environment, using default")
		return fallback
	}
	return d
}
