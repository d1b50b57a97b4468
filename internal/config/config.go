package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the chat gateway.
type Config struct {
	Port       int
	Version    string
	LogLevel   string
	LogFormat  string // "console" or "json"
	Redis      RedisConfig
	Quota      QuotaConfig
	Cache      CacheConfig
	Guard      GuardConfig
	Completion CompletionConfig
	Retrieval  RetrievalConfig
	Telemetry  TelemetryConfig
	Auth       AuthConfig
	CORS       CORSConfig
}

type RedisConfig struct {
	// URL selects the Redis-backed counter store and cache. Empty means in-memory.
	URL string
}

type QuotaConfig struct {
	PerIPMinute int
	PerIPDay    int
	GlobalDay   int
	// FailurePolicy is "fail-open" or "fail-closed".
	FailurePolicy string
}

type CacheConfig struct {
	Enabled    bool
	TTL        time.Duration
	MaxEntries int
}

type GuardConfig struct {
	MinChars     int
	MaxChars     int
	MaxTokens    int
	PatternsFile string
	Sensitivity  string // "medium" or "high"
}

type CompletionConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
	SystemPrompt string
	RetryBackoff time.Duration
}

type RetrievalConfig struct {
	TopK                int
	Timeout             time.Duration
	EmbeddingProvider   string // "openai" or "ollama"
	EmbeddingModel      string
	// EmbeddingDimensions shortens text-embedding-3 vectors; 0 keeps the native size.
	EmbeddingDimensions int
	EmbeddingURL        string
	VectorStore         string // "pinecone", "pgvector" or "embedded"
	PineconeAPIKey      string
	PineconeIndex       string
	PineconeNamespace   string
	PgvectorURL         string
	PgvectorTable       string
}

type TelemetryConfig struct {
	Enabled        bool
	OTLPEndpoint   string
	Insecure       bool
	SampleRatio    float64
	ServiceName    string
	MetricsEnabled bool
}

type AuthConfig struct {
	// APIKeys is the comma-separated list of accepted client keys.
	// Empty disables authentication.
	APIKeys string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads an optional .env file, then configuration from environment
// variables with sensible defaults.
func Load() *Config {
	loadDotEnv(envStr("CHAT_ENV_FILE", ".env"))

	return &Config{
		Port:      envInt("CHAT_PORT", 8080),
		Version:   envStr("CHAT_VERSION", "1.0.0"),
		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "console"),
		Redis: RedisConfig{
			URL: envStr("REDIS_URL", ""),
		},
		Quota: QuotaConfig{
			PerIPMinute:   envInt("QUOTA_IP_MINUTE", 20),
			PerIPDay:      envInt("QUOTA_IP_DAY", 200),
			GlobalDay:     envInt("QUOTA_GLOBAL_DAY", 2000),
			FailurePolicy: envStr("QUOTA_FAILURE_POLICY", "fail-closed"),
		},
		Cache: CacheConfig{
			Enabled:    envBool("CACHE_ENABLED", true),
			TTL:        envDuration("CACHE_TTL", 5*time.Minute),
			MaxEntries: envInt("CACHE_MAX_ENTRIES", 10_000),
		},
		Guard: GuardConfig{
			MinChars:     envInt("GUARD_MIN_CHARS", 2),
			MaxChars:     envInt("GUARD_MAX_CHARS", 1000),
			MaxTokens:    envInt("GUARD_MAX_TOKENS", 350),
			PatternsFile: envStr("GUARD_PATTERNS_FILE", ""),
			Sensitivity:  envStr("GUARD_SENSITIVITY", "medium"),
		},
		Completion: CompletionConfig{
			APIKey:       envStr("OPENAI_API_KEY", ""),
			BaseURL:      envStr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:        envStr("COMPLETION_MODEL", "gpt-4o-mini"),
			MaxTokens:    envInt("COMPLETION_MAX_TOKENS", 500),
			Temperature:  envFloat("COMPLETION_TEMPERATURE", 0.3),
			Timeout:      envDuration("COMPLETION_TIMEOUT", 60*time.Second),
			SystemPrompt: envStr("COMPLETION_SYSTEM_PROMPT", ""),
			RetryBackoff: envDuration("UPSTREAM_RETRY_BACKOFF", 200*time.Millisecond),
		},
		Retrieval: RetrievalConfig{
			TopK:                envInt("RETRIEVAL_TOP_K", 3),
			Timeout:             envDuration("RETRIEVAL_TIMEOUT", 15*time.Second),
			EmbeddingProvider:   envStr("EMBEDDING_PROVIDER", "openai"),
			EmbeddingModel:      envStr("EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingURL:        envStr("EMBEDDING_URL", ""),
			EmbeddingDimensions: envInt("EMBEDDING_DIMENSIONS", 0),
			VectorStore:         envStr("VECTOR_STORE", "embedded"),
			PineconeAPIKey:      envStr("PINECONE_API_KEY", ""),
			PineconeIndex:       envStr("PINECONE_INDEX", "gelisim-bot-index"),
			PineconeNamespace:   envStr("PINECONE_NAMESPACE", ""),
			PgvectorURL:         envStr("PGVECTOR_URL", ""),
			PgvectorTable:       envStr("PGVECTOR_TABLE", "passages"),
		},
		Telemetry: TelemetryConfig{
			Enabled:        envBool("OTEL_ENABLED", false),
			OTLPEndpoint:   envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:       envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio:    envFloat("OTEL_SAMPLE_RATIO", 1.0),
			ServiceName:    envStr("OTEL_SERVICE_NAME", "chat-gateway"),
			MetricsEnabled: envBool("METRICS_ENABLED", true),
		},
		Auth: AuthConfig{
			APIKeys: envStr("CHAT_API_KEYS", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Quota.FailurePolicy {
	case "fail-open", "fail-closed":
	default:
		errs = append(errs, fmt.Errorf("QUOTA_FAILURE_POLICY must be fail-open or fail-closed, got %q", c.Quota.FailurePolicy))
	}
	if c.Quota.PerIPMinute < 0 || c.Quota.PerIPDay < 0 || c.Quota.GlobalDay < 0 {
		errs = append(errs, errors.New("quota limits must not be negative"))
	}
	if c.Guard.MaxChars <= 0 || c.Guard.MaxTokens <= 0 {
		errs = append(errs, errors.New("GUARD_MAX_CHARS and GUARD_MAX_TOKENS must be positive"))
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive when the cache is enabled"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, errors.New("RETRIEVAL_TOP_K must be positive"))
	}
	return errors.Join(errs...)
}

func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("file", path).Msg("Failed to load env file")
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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

// envDuration accepts Go durations ("5m") or plain seconds ("300").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
