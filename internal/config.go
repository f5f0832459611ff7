package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Quota day and month boundaries are computed in this zone
	Timezone *time.Location

	// Allocation
	PoolPageSize       int // candidates read per allocation attempt
	AllocateRateLimit  int
	AllocateRateWindow time.Duration

	// Identity tokens (HS256)
	JWTSecret string
	JWTIssuer string // optional; checked when set

	// Rate limiter backend: "memory" or "redis"
	RateLimitBackend string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	// Storage Configuration
	StorageProvider string // "local", "r2" or "none"

	// Local Storage (development)
	LocalStoragePath string // Base directory for batch files

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string // Optional custom domain URL

	// Background tasks
	WorkerEnabled       bool
	PoolMetricsInterval time.Duration

	// Live account push over WebSockets
	LiveEnabled    bool
	AllowedOrigins []string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		PoolPageSize:       getEnvInt("POOL_PAGE_SIZE", 200),
		AllocateRateLimit:  getEnvInt("ALLOCATE_RATE_LIMIT", 60),
		AllocateRateWindow: getEnvDuration("ALLOCATE_RATE_WINDOW", time.Minute),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "memory"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),

		// R2 configuration (production only)
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		WorkerEnabled:       getEnvBool("WORKER_ENABLED", true),
		PoolMetricsInterval: getEnvDuration("POOL_METRICS_INTERVAL", time.Minute),

		LiveEnabled:    getEnvBool("LIVE_ENABLED", true),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	tz := getEnv("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q is invalid: %w", tz, err)
	}
	cfg.Timezone = loc

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.PoolPageSize < 1 {
		return nil, fmt.Errorf("POOL_PAGE_SIZE must be positive, got: %d", cfg.PoolPageSize)
	}
	if cfg.AllocateRateLimit < 1 {
		return nil, fmt.Errorf("ALLOCATE_RATE_LIMIT must be positive, got: %d", cfg.AllocateRateLimit)
	}

	switch cfg.RateLimitBackend {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when RATE_LIMIT_BACKEND is 'redis'")
		}
	default:
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND must be either 'memory' or 'redis', got: %s", cfg.RateLimitBackend)
	}

	// Validate storage configuration
	switch cfg.StorageProvider {
	case "local", "none":
	case "r2":
		if cfg.R2AccountID == "" {
			return nil, fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return nil, fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return nil, fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return nil, fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	default:
		return nil, fmt.Errorf("STORAGE_PROVIDER must be one of 'local', 'r2' or 'none', got: %s", cfg.StorageProvider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
