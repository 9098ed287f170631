// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/admin.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Subscription tier registry — single source of truth for send quotas
// --------------------------------------------------------------------------

// UnlimitedQuota marks a tier with no daily send cap.
const UnlimitedQuota = -1

type TierConfig struct {
	ID             string
	Name           string
	DailySendQuota int // offers per venue per trailing 24h; UnlimitedQuota = no cap
}

var TierRegistry = map[string]TierConfig{
	"free":    {ID: "free", Name: "Free", DailySendQuota: 3},
	"core":    {ID: "core", Name: "Core", DailySendQuota: 5},
	"pro":     {ID: "pro", Name: "Pro", DailySendQuota: 10},
	"revenue": {ID: "revenue", Name: "Revenue Share", DailySendQuota: UnlimitedQuota},
}

// QuotaForTier returns the daily send quota for a subscription tier.
// Unknown tiers fall back to the free quota.
func QuotaForTier(tier string) int {
	if t, ok := TierRegistry[tier]; ok {
		return t.DailySendQuota
	}
	return TierRegistry["free"].DailySendQuota
}

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Transport-level rate limiting (per client IP)
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Delivery quotas (business-level, counted in Postgres)
	RecipientDailyCap int // notifications per user per trailing 24h

	// Delivery batching
	MaxBatchSize     int           // gateway multicast ceiling
	BatchConcurrency int           // simultaneous gateway calls per invocation
	DeliveryBudget   time.Duration // wall-clock bound for one delivery
	DeliveryWarnAt   time.Duration // emit a slow-delivery warning past this

	// Firebase (caller auth + FCM)
	FirebaseCredentialsFile string
	FCMRequestsPerMinute    int

	// Analytics (Pub/Sub)
	PubSubProjectID string
	AnalyticsTopic  string

	// Cache
	CacheEnabled  bool
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Maintenance
	CounterGCInterval   time.Duration
	OfferExpiryInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		RecipientDailyCap: envInt("RECIPIENT_DAILY_CAP", 10),

		MaxBatchSize:     envInt("MAX_BATCH_SIZE", 500),
		BatchConcurrency: envInt("BATCH_CONCURRENCY", 10),
		DeliveryBudget:   time.Duration(envInt("DELIVERY_BUDGET_SECONDS", 30)) * time.Second,
		DeliveryWarnAt:   time.Duration(envInt("DELIVERY_WARN_SECONDS", 25)) * time.Second,

		FirebaseCredentialsFile: envOr("FIREBASE_CREDENTIALS_FILE", ""),
		FCMRequestsPerMinute:    envInt("FCM_REQUESTS_PER_MINUTE", 600),

		PubSubProjectID: envOr("PUBSUB_PROJECT_ID", envOr("GOOGLE_CLOUD_PROJECT", "")),
		AnalyticsTopic:  envOr("ANALYTICS_TOPIC", "offer-delivery-events"),

		CacheEnabled:  envBool("CACHE_ENABLED", true),
		CacheTTL:      time.Duration(envInt("CACHE_TTL_SECONDS", 60)) * time.Second,
		RedisAddr:     envOr("REDIS_ADDR", ""),
		RedisPassword: envOr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		CounterGCInterval:   time.Duration(envInt("COUNTER_GC_MINUTES", 30)) * time.Minute,
		OfferExpiryInterval: time.Duration(envInt("OFFER_EXPIRY_MINUTES", 5)) * time.Minute,
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
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
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
