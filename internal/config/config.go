package config

import (
	"os"
	"strconv"
	"time"

	"kalenda-billing/internal/pkg/jwt"
)

type BillingConfig struct {
	// Renewal retry policy
	MaxRetries   int
	RetryBackoff time.Duration

	// How long a validated discount may wait before an INITIAL payment
	// consumes it.
	PendingDiscountWindow time.Duration

	RenewalLockTTL   time.Duration
	RenewalBatchSize int
}

type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type AppConfig struct {
	// Server
	HTTPAddr    string
	DatabaseURL string
	RedisAddr   string
	RedisPass   string

	// JWT
	JWT jwt.Config

	// Payment gateway
	Gateway GatewayConfig

	// Billing policy
	Billing BillingConfig

	// bcrypt hash of the token the external scheduler presents when it
	// triggers the renewal batch over HTTP.
	SchedulerTokenHash string

	PlanCacheTTL time.Duration
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8000"),
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/kalenda_billing"),
		RedisAddr:   getEnv("REDIS_ADDR", "redis-billing:6379"),
		RedisPass:   getEnv("REDIS_PASS", ""),

		JWT: jwt.Config{
			PubPath:  getEnv("JWT_PUBLIC_KEY_PATH", "/app/secrets/jwt_public.pem"),
			Issuer:   getEnv("JWT_ISSUER", "kalenda-identity"),
			Audience: getEnv("JWT_AUDIENCE", "kalenda-services"),
			TTL:      720 * time.Hour,
		},

		Gateway: GatewayConfig{
			BaseURL: getEnv("GATEWAY_BASE_URL", "http://payment-gateway:8080"),
			APIKey:  getEnv("GATEWAY_API_KEY", ""),
			Timeout: getEnvDuration("GATEWAY_TIMEOUT", 30*time.Second),
		},

		Billing: BillingConfig{
			MaxRetries:            getEnvInt("BILLING_MAX_RETRIES", 3),
			RetryBackoff:          getEnvDuration("BILLING_RETRY_BACKOFF", 24*time.Hour),
			PendingDiscountWindow: getEnvDuration("BILLING_DISCOUNT_WINDOW", 24*time.Hour),
			RenewalLockTTL:        getEnvDuration("BILLING_RENEWAL_LOCK_TTL", 5*time.Minute),
			RenewalBatchSize:      getEnvInt("BILLING_RENEWAL_BATCH_SIZE", 500),
		},

		SchedulerTokenHash: getEnv("SCHEDULER_TOKEN_HASH", ""),

		PlanCacheTTL: getEnvDuration("PLAN_CACHE_TTL", 5*time.Minute),
	}
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
