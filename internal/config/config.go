package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string
	RedisURL    string

	// Tool execution
	LLMBaseURL  string // OpenAI-compatible endpoint for llm.chat
	LLMAPIKey   string
	LLMModel    string
	ToolTimeout time.Duration

	// Execution limits
	MaxConcurrentRuns int // per client
	MaxRunsPerDay     int64
	RunLockTTL        time.Duration

	// Shutdown
	DrainTimeout time.Duration

	// Scheduler
	EnableScheduler bool
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3002"),
		Environment: getEnv("ENVIRONMENT", "development"),
		RedisURL:    getEnv("REDIS_URL", ""),

		LLMBaseURL:  getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:   getEnv("LLM_API_KEY", ""),
		LLMModel:    getEnv("LLM_MODEL", "gpt-4o-mini"),
		ToolTimeout: getDurationEnv("TOOL_TIMEOUT", 120*time.Second),

		MaxConcurrentRuns: getIntEnv("MAX_CONCURRENT_RUNS", 3),
		MaxRunsPerDay:     int64(getIntEnv("MAX_RUNS_PER_DAY", 1000)),
		RunLockTTL:        getDurationEnv("RUN_LOCK_TTL", 30*time.Minute),

		DrainTimeout: getDurationEnv("DRAIN_TIMEOUT", 30*time.Second),

		EnableScheduler: getBoolEnv("ENABLE_SCHEDULER", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
