package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the turn orchestration service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	ChatIdleTimeout  time.Duration
	RateLimitRPM     int

	LogLevel    string
	LogFormat   string
	OtelEnabled bool

	BrainMode               string
	OpenAIAPIKey            string
	OpenAIBaseURL           string
	OpenAIModel             string
	BrainHTTPURL            string
	BrainFallbackMock       bool
	BrainBreakerMaxFailures int
	BrainBreakerTimeout     time.Duration

	DatabaseURL  string
	CacheURL     string
	CacheTTL     time.Duration
	CacheWindow  int
	HistoryLimit int

	DataDatabaseURL    string
	SQLMaxLimit        int
	SQLUnboundedPolicy string
	CatalogPath        string
	EntityAPIURL       string

	ExportDir     string
	ArtifactDir   string
	EmailProvider string
	SMTPAddr      string
	SMTPUsername  string
	SMTPPassword  string
	EmailFrom     string
	WebhookURL    string
	// WebhookAllowedHosts are extra hosts a planned webhook may target
	// besides the host of WebhookURL.
	WebhookAllowedHosts []string

	StreamKeepAlive time.Duration
	StreamChunkSize int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "horizon"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "console"),
		BrainMode:        strings.ToLower(envOrDefault("BRAIN_MODE", "auto")),
		OpenAIAPIKey:     stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:    stringsTrimSpace("OPENAI_BASE_URL"),
		OpenAIModel:      envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		BrainHTTPURL:     stringsTrimSpace("BRAIN_HTTP_URL"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		CacheURL:         stringsTrimSpace("CACHE_URL"),
		DataDatabaseURL:  stringsTrimSpace("DATA_DATABASE_URL"),
		// Unbounded statements are rejected unless the operator opts into appending a limit.
		SQLUnboundedPolicy:  strings.ToLower(envOrDefault("SQL_UNBOUNDED_POLICY", "reject")),
		CatalogPath:         stringsTrimSpace("CATALOG_PATH"),
		EntityAPIURL:        stringsTrimSpace("ENTITY_API_URL"),
		ExportDir:           envOrDefault("EXPORT_DIR", "exports"),
		ArtifactDir:         envOrDefault("ARTIFACT_DIR", "artifacts"),
		EmailProvider:       strings.ToLower(envOrDefault("EMAIL_PROVIDER", "log")),
		SMTPAddr:            stringsTrimSpace("SMTP_ADDR"),
		SMTPUsername:        stringsTrimSpace("SMTP_USERNAME"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		EmailFrom:           envOrDefault("EMAIL_FROM", "horizon@localhost"),
		WebhookURL:          stringsTrimSpace("WEBHOOK_URL"),
		WebhookAllowedHosts: listFromEnv("WEBHOOK_ALLOWED_HOSTS"),

		ShutdownTimeout:         15 * time.Second,
		ChatIdleTimeout:         10 * time.Minute,
		RateLimitRPM:            120,
		BrainFallbackMock:       true,
		BrainBreakerMaxFailures: 3,
		BrainBreakerTimeout:     30 * time.Second,
		CacheTTL:                2 * time.Hour,
		CacheWindow:             50,
		HistoryLimit:            6,
		SQLMaxLimit:             30,
		StreamKeepAlive:         750 * time.Millisecond,
		StreamChunkSize:         256,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ChatIdleTimeout, err = durationFromEnv("APP_CHAT_IDLE_TIMEOUT", cfg.ChatIdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitRPM, err = intFromEnv("APP_RATE_LIMIT_RPM", cfg.RateLimitRPM); err != nil {
		return Config{}, err
	}
	if cfg.OtelEnabled, err = boolFromEnv("OTEL_ENABLED", cfg.OtelEnabled); err != nil {
		return Config{}, err
	}
	if cfg.BrainFallbackMock, err = boolFromEnv("BRAIN_FALLBACK_MOCK", cfg.BrainFallbackMock); err != nil {
		return Config{}, err
	}
	if cfg.BrainBreakerMaxFailures, err = intFromEnv("BRAIN_BREAKER_MAX_FAILURES", cfg.BrainBreakerMaxFailures); err != nil {
		return Config{}, err
	}
	if cfg.BrainBreakerTimeout, err = durationFromEnv("BRAIN_BREAKER_TIMEOUT", cfg.BrainBreakerTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = durationFromEnv("CACHE_TTL", cfg.CacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.CacheWindow, err = intFromEnv("CACHE_WINDOW", cfg.CacheWindow); err != nil {
		return Config{}, err
	}
	if cfg.HistoryLimit, err = intFromEnv("HISTORY_LIMIT", cfg.HistoryLimit); err != nil {
		return Config{}, err
	}
	if cfg.SQLMaxLimit, err = intFromEnv("SQL_MAX_LIMIT", cfg.SQLMaxLimit); err != nil {
		return Config{}, err
	}
	if cfg.StreamKeepAlive, err = durationFromEnv("STREAM_KEEPALIVE_INTERVAL", cfg.StreamKeepAlive); err != nil {
		return Config{}, err
	}
	if cfg.StreamChunkSize, err = intFromEnv("STREAM_CHUNK_SIZE", cfg.StreamChunkSize); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.BrainMode {
	case "auto", "openai", "http", "mock":
	default:
		return fmt.Errorf("invalid BRAIN_MODE: %q (expected auto|openai|http|mock)", c.BrainMode)
	}
	switch c.SQLUnboundedPolicy {
	case "reject", "append":
	default:
		return fmt.Errorf("invalid SQL_UNBOUNDED_POLICY: %q (expected reject|append)", c.SQLUnboundedPolicy)
	}
	switch c.EmailProvider {
	case "log":
	case "smtp":
		if c.SMTPAddr == "" {
			return fmt.Errorf("EMAIL_PROVIDER=smtp requires SMTP_ADDR")
		}
	default:
		return fmt.Errorf("invalid EMAIL_PROVIDER: %q (expected log|smtp)", c.EmailProvider)
	}
	if c.BrainMode == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("BRAIN_MODE=openai requires OPENAI_API_KEY")
	}
	if c.BrainMode == "http" && c.BrainHTTPURL == "" {
		return fmt.Errorf("BRAIN_MODE=http requires BRAIN_HTTP_URL")
	}
	if c.SQLMaxLimit <= 0 {
		return fmt.Errorf("SQL_MAX_LIMIT must be positive")
	}
	if c.CacheWindow <= 0 {
		return fmt.Errorf("CACHE_WINDOW must be positive")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	if c.BrainBreakerMaxFailures <= 0 {
		return fmt.Errorf("BRAIN_BREAKER_MAX_FAILURES must be positive")
	}
	if c.StreamKeepAlive < 10*time.Millisecond {
		return fmt.Errorf("STREAM_KEEPALIVE_INTERVAL must be at least 10ms")
	}
	if c.StreamChunkSize <= 0 {
		return fmt.Errorf("STREAM_CHUNK_SIZE must be positive")
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("APP_RATE_LIMIT_RPM must be >= 0")
	}
	if c.ChatIdleTimeout < 5*time.Second {
		return fmt.Errorf("APP_CHAT_IDLE_TIMEOUT must be at least 5s")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func listFromEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, strings.ToLower(v))
		}
	}
	return out
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
