// Package config provides application configuration loaded from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Embedding providers accepted by EMBEDDING_PROVIDER.
const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderGoogle = "google"
	EmbeddingProviderMock   = "mock"
)

var (
	errAPIKeyRequired          = errors.New("API_KEY environment variable is required but not set")
	errUnsupportedProvider     = errors.New("EMBEDDING_PROVIDER must be one of: openai, google, mock")
	errEmbeddingDimensions     = errors.New("EMBEDDING_DIMENSIONS must be a positive integer")
	errEmbeddingRateLimit      = errors.New("EMBEDDING_RATE_LIMIT must not be negative")
	errIndexCacheTTL           = errors.New("INDEX_CACHE_TTL must be a positive duration")
	errIndexCacheSize          = errors.New("INDEX_CACHE_SIZE must be a positive integer")
	errQueryCacheTTL           = errors.New("QUERY_CACHE_TTL must be a positive duration")
	errQueryCacheSize          = errors.New("QUERY_CACHE_SIZE must be a positive integer")
	errMaxRequestBodyBytes     = errors.New("MAX_REQUEST_BODY_BYTES must not be negative")
	errDatabaseMaxConns        = errors.New("DATABASE_MAX_CONNS must be between 1 and 10000")
	errTracesSampleRatio       = errors.New("OTEL_TRACES_SAMPLER_ARG must be between 0 and 1")
	errDatabaseMinConns        = errors.New("DATABASE_MIN_CONNS must be between 0 and DATABASE_MAX_CONNS")
	errEmbeddingProviderAPIKey = errors.New("EMBEDDING_PROVIDER_API_KEY (or OPENAI_API_KEY) is required")
	errDatabaseURLRequired     = errors.New("DATABASE_URL is required when EMBEDDINGS_BACKEND=postgres")
	errMetricsExporter         = errors.New("OTEL_METRICS_EXPORTER must be one of: prometheus, otlp")
)

const maxDatabaseConns = 10000

// Config holds all application configuration.
type Config struct {
	// EmbeddingsBackend is the raw EMBEDDINGS_BACKEND value. Unknown values are not an error here:
	// the router degrades to the file backend with a warning.
	EmbeddingsBackend string
	// DatabaseURL is optional; without it the Postgres backend is not constructed.
	DatabaseURL             string
	DatabaseMaxConns        int
	DatabaseMinConns        int
	DatabaseMaxConnLifetime time.Duration
	RedisURL                string

	EmbeddingProvider       string
	EmbeddingProviderAPIKey string
	EmbeddingModel          string
	EmbeddingDimensions     int
	// EmbeddingRateLimit caps provider calls per second; 0 disables throttling.
	EmbeddingRateLimit float64

	EmbeddingsPath   string
	DefaultRoadmapID string
	PreloadRoadmapID string

	IndexCacheTTL  time.Duration
	IndexCacheSize int
	QueryCacheTTL  time.Duration
	QueryCacheSize int

	Port                string
	APIKey              string
	LogLevel            string
	MaxRequestBodyBytes int64
	ShutdownTimeout     time.Duration

	// OtelMetricsExporter is "prometheus" (pull, /metrics), "otlp" (push), or empty (metrics disabled).
	OtelMetricsExporter string
	// OtelTracesExporter is "otlp", "stdout", or empty (tracing disabled).
	OtelTracesExporter string
	// TracesSampleRatio is OTEL_TRACES_SAMPLER_ARG: the fraction of root traces kept.
	TracesSampleRatio float64
	ServiceName       string
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDuration retrieves an environment variable as a time.Duration (e.g. "5m", "1h")
// or returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// Load reads configuration from environment variables and returns a Config struct.
// It automatically loads .env file if it exists.
// Returns default values for any missing environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists. Skip logging when absent (e.g. env from secrets/parameter store).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := &Config{
		EmbeddingsBackend:       strings.TrimSpace(os.Getenv("EMBEDDINGS_BACKEND")),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		DatabaseMaxConns:        getEnvAsInt("DATABASE_MAX_CONNS", 10),
		DatabaseMinConns:        getEnvAsInt("DATABASE_MIN_CONNS", 0),
		DatabaseMaxConnLifetime: getEnvAsDuration("DATABASE_MAX_CONN_LIFETIME", time.Hour),
		RedisURL:                os.Getenv("REDIS_URL"),

		EmbeddingProvider:       strings.ToLower(getEnv("EMBEDDING_PROVIDER", EmbeddingProviderOpenAI)),
		EmbeddingProviderAPIKey: getEnv("EMBEDDING_PROVIDER_API_KEY", os.Getenv("OPENAI_API_KEY")),
		EmbeddingModel:          os.Getenv("EMBEDDING_MODEL"),
		EmbeddingDimensions:     getEnvAsInt("EMBEDDING_DIMENSIONS", 1536),
		EmbeddingRateLimit:      getEnvAsFloat("EMBEDDING_RATE_LIMIT", 0),

		EmbeddingsPath:   getEnv("EMBEDDINGS_PATH", "src/data/embeddings"),
		DefaultRoadmapID: getEnv("DEFAULT_ROADMAP_ID", "electrician-bc"),
		PreloadRoadmapID: os.Getenv("PRELOAD_ROADMAP_ID"),

		IndexCacheTTL:  getEnvAsDuration("INDEX_CACHE_TTL", time.Hour),
		IndexCacheSize: getEnvAsInt("INDEX_CACHE_SIZE", 64),
		QueryCacheTTL:  getEnvAsDuration("QUERY_CACHE_TTL", 5*time.Minute),
		QueryCacheSize: getEnvAsInt("QUERY_CACHE_SIZE", 1000),

		Port:                getEnv("PORT", "8080"),
		APIKey:              os.Getenv("API_KEY"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(getEnvAsInt("MAX_REQUEST_BODY_BYTES", 64<<10)),
		ShutdownTimeout:     getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		OtelMetricsExporter: strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_METRICS_EXPORTER"))),
		OtelTracesExporter:  os.Getenv("OTEL_TRACES_EXPORTER"),
		TracesSampleRatio:   getEnvAsFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		ServiceName:         getEnv("OTEL_SERVICE_NAME", "panday-embeddings"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.EmbeddingProvider {
	case EmbeddingProviderOpenAI, EmbeddingProviderGoogle:
		if c.EmbeddingProviderAPIKey == "" {
			return fmt.Errorf("%w for provider %s", errEmbeddingProviderAPIKey, c.EmbeddingProvider)
		}
	case EmbeddingProviderMock:
	default:
		return errUnsupportedProvider
	}

	switch {
	case c.EmbeddingDimensions <= 0:
		return errEmbeddingDimensions
	case c.EmbeddingRateLimit < 0:
		return errEmbeddingRateLimit
	case c.IndexCacheTTL <= 0:
		return errIndexCacheTTL
	case c.IndexCacheSize <= 0:
		return errIndexCacheSize
	case c.QueryCacheTTL <= 0:
		return errQueryCacheTTL
	case c.QueryCacheSize <= 0:
		return errQueryCacheSize
	case c.MaxRequestBodyBytes < 0:
		return errMaxRequestBodyBytes
	case c.TracesSampleRatio < 0 || c.TracesSampleRatio > 1:
		return errTracesSampleRatio
	case c.DatabaseMaxConns <= 0 || c.DatabaseMaxConns > maxDatabaseConns:
		return errDatabaseMaxConns
	case c.DatabaseMinConns < 0 || c.DatabaseMinConns > c.DatabaseMaxConns:
		return errDatabaseMinConns
	case strings.EqualFold(c.EmbeddingsBackend, "postgres") && c.DatabaseURL == "":
		return errDatabaseURLRequired
	}

	switch c.OtelMetricsExporter {
	case "", MetricsExporterPrometheus, MetricsExporterOTLP:
	default:
		return errMetricsExporter
	}

	return nil
}

// RequireAPIKey reports an error when the HTTP server's API_KEY is not set.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return errAPIKeyRequired
	}

	return nil
}

// Metrics exporters accepted in OTEL_METRICS_EXPORTER.
const (
	MetricsExporterPrometheus = "prometheus"
	MetricsExporterOTLP       = "otlp"
)

// MetricsEnabled reports whether a metrics exporter is configured.
func (c *Config) MetricsEnabled() bool {
	return c.OtelMetricsExporter != ""
}
