package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration values, loaded once at startup
// and threaded explicitly through constructors — never a mutable global.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Redis (optional; only pinged at startup — the rate limiter is in-memory)
	RedisURL string

	// Authentication
	AdminTokens []string

	// Rate limiting
	RateLimitEnabled bool
	RateLimitRPM     int
	RateLimitBurst   int

	// Timeouts
	DefaultTimeout time.Duration

	// Body limits
	MaxBodyBytes int64

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables and an optional
// .env file.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("LITMUS_GRACEFUL_TIMEOUT_SEC", 15)
	defaultTimeoutSec := getEnvInt("LITMUS_DEFAULT_TIMEOUT_SEC", 30)

	return &Config{
		Addr:             getEnv("LITMUS_ADDR", ":8080"),
		Env:              getEnv("ENV", "development"),
		GracefulTimeout:  time.Duration(gracefulSec) * time.Second,
		RedisURL:         getEnv("REDIS_URL", ""),
		AdminTokens:      splitCSV(getEnv("ADMIN_TOKENS", "")),
		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", 300),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 50),
		DefaultTimeout:   time.Duration(defaultTimeoutSec) * time.Second,
		MaxBodyBytes:     int64(getEnvInt("LITMUS_MAX_BODY_BYTES", 1*1024*1024)),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthBypassed reports whether the bearer-token gate should be skipped —
// only ever true in development with no tokens configured.
func (c *Config) AuthBypassed() bool {
	return c.IsDevelopment() && len(c.AdminTokens) == 0
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
