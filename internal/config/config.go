package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	Environment    string

	// Upstream prediction API
	APIBaseURL   string
	APITimeout   time.Duration
	APIRateLimit float64 // requests per second, 0 disables pacing
	APIRateBurst int

	RedisURL       string
	RoundsCacheTTL time.Duration

	SessionIdleTimeout time.Duration
	// GuardDismissKeepsDirty switches the prompt-dismiss path from the shipped
	// behavior (dirty flag cleared) to keeping the screen dirty.
	GuardDismissKeepsDirty bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigins:         parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:19006")),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		Environment:            getEnv("ENVIRONMENT", "production"),
		APIBaseURL:             strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000/api"), "/"),
		APITimeout:             getDurationEnv("API_TIMEOUT", 10*time.Second),
		APIRateLimit:           getFloatEnv("API_RATE_LIMIT", 20),
		APIRateBurst:           getIntEnv("API_RATE_BURST", 10),
		RedisURL:               getEnv("REDIS_URL", ""),
		RoundsCacheTTL:         getDurationEnv("ROUNDS_CACHE_TTL", 5*time.Minute),
		SessionIdleTimeout:     getDurationEnv("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		GuardDismissKeepsDirty: getBoolEnv("GUARD_DISMISS_KEEPS_DIRTY", false),
	}, nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv accepts Go duration strings ("30s", "5m")
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
