// Package config loads configuration and sets up logging.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an embedding backend.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Embedding
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int
	OllamaHost     string
	OpenAIAPIKey   string

	// HTTP server
	ServerPort  string
	BearerToken string

	// Pull/push tuning
	MinPullInterval time.Duration
	PullBatchLimit  int
	RemoteTimeout   time.Duration
	SelfWriteTTL    time.Duration

	// Throttling
	ThrottleWindow    time.Duration
	PullPerSiteLimit  int
	ReindexBatchLimit int
	ReindexTenantCap  int
	BlocklistFile     string

	// Health classification
	HealthMaxSilence     time.Duration
	HealthMinSuccessRate float64
	HealthMaxConflicts   int

	// Retrieval effort
	DefaultEffort string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "pressbridge"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "sync"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		EmbedProvider:  Provider(getEnv("PRESSBRIDGE_EMBED_PROVIDER", string(ProviderOllama))),
		EmbedModel:     getEnv("PRESSBRIDGE_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("PRESSBRIDGE_EMBED_DIMENSION", 384),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),

		ServerPort:  getEnv("PRESSBRIDGE_SERVER_PORT", "8585"),
		BearerToken: getEnv("PRESSBRIDGE_API_TOKEN", ""),

		MinPullInterval: getEnvDuration("PRESSBRIDGE_MIN_PULL_INTERVAL", 2*time.Minute),
		PullBatchLimit:  getEnvInt("PRESSBRIDGE_PULL_BATCH_LIMIT", 50),
		RemoteTimeout:   getEnvDuration("PRESSBRIDGE_REMOTE_TIMEOUT", 30*time.Second),
		SelfWriteTTL:    getEnvDuration("PRESSBRIDGE_SELF_WRITE_TTL", 90*time.Second),

		ThrottleWindow:    getEnvDuration("PRESSBRIDGE_THROTTLE_WINDOW", time.Minute),
		PullPerSiteLimit:  getEnvInt("PRESSBRIDGE_PULL_PER_SITE_LIMIT", 4),
		ReindexBatchLimit: getEnvInt("PRESSBRIDGE_REINDEX_BATCH_LIMIT", 200),
		ReindexTenantCap:  getEnvInt("PRESSBRIDGE_REINDEX_TENANT_CAP", 25),
		BlocklistFile:     getEnv("PRESSBRIDGE_BLOCKLIST_FILE", ""),

		HealthMaxSilence:     getEnvDuration("PRESSBRIDGE_HEALTH_MAX_SILENCE", time.Hour),
		HealthMinSuccessRate: getEnvFloat("PRESSBRIDGE_HEALTH_MIN_SUCCESS_RATE", 0.9),
		HealthMaxConflicts:   getEnvInt("PRESSBRIDGE_HEALTH_MAX_CONFLICTS", 10),

		DefaultEffort: getEnv("PRESSBRIDGE_SEARCH_EFFORT", ""),

		LogFile:  getEnv("PRESSBRIDGE_LOG_FILE", "/tmp/pressbridge.log"),
		LogLevel: parseLogLevel(getEnv("PRESSBRIDGE_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
