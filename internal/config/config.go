package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port        string
	DBUrl       string
	StoreDriver string
	JWTSecret   string
	AppEnv      string
	LogLevel    string
	LogFormat   string
	RedisURL    string

	// MetricsEnabled exposes GET /metrics.
	MetricsEnabled bool

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string
	StripeKeyPrefix     string
	PaymentCurrency     string
	DefaultRateMinor    int64

	AIProvider      string
	AIBaseURL       string
	AIModel         string
	AIAPIKey        string
	AITimeout       time.Duration
	AIContextWindow int
	AISystemPrompt  string

	AutoReleaseAfter    time.Duration
	AutoReleaseSchedule string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DBUrl:       getEnv("DB_URL", ""),
		StoreDriver: strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", StoreDriverPostgres))),
		JWTSecret:   jwtSecret,
		AppEnv:      normalizeEnv(getEnv("APP_ENV", "production")),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		RedisURL:    getEnv("REDIS_URL", ""),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeBaseURL:       getEnv("STRIPE_BASE_URL", ""),
		StripeKeyPrefix:     getEnv("STRIPE_IDEMPOTENCY_PREFIX", ""),
		PaymentCurrency:     strings.ToLower(getEnv("PAYMENT_CURRENCY", "inr")),

		AIProvider:     getEnv("AI_PROVIDER", ""),
		AIBaseURL:      getEnv("AI_BASE_URL", ""),
		AIModel:        getEnv("AI_MODEL", ""),
		AIAPIKey:       getEnv("AI_API_KEY", ""),
		AISystemPrompt: getEnv("AI_SYSTEM_PROMPT", ""),

		AutoReleaseSchedule: getEnv("ESCROW_AUTO_RELEASE_SCHEDULE", "0 */10 * * * *"),
	}

	var err error
	if cfg.DefaultRateMinor, err = getEnvInt64("DEFAULT_SESSION_RATE_MINOR", 19900); err != nil {
		return nil, err
	}
	if cfg.DefaultRateMinor < 0 {
		return nil, fmt.Errorf("DEFAULT_SESSION_RATE_MINOR must not be negative")
	}
	if cfg.AITimeout, err = getEnvDuration("AI_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.AIContextWindow, err = getEnvInt("AI_CONTEXT_WINDOW", 10); err != nil {
		return nil, err
	}
	if cfg.AutoReleaseAfter, err = getEnvDuration("ESCROW_AUTO_RELEASE_AFTER", 0); err != nil {
		return nil, err
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DBUrl == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s or 72h: %w", key, err)
	}
	return parsed, nil
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

// AutoReleaseEnabled reports whether the scheduled escrow release should run.
func (c *Config) AutoReleaseEnabled() bool {
	return c != nil && c.AutoReleaseAfter > 0
}
