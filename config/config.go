// Package config provides configuration for the chat relay.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the chat relay configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Storage. An empty DatabaseURL selects the in-memory backend.
	DatabaseURL       string
	StoreProbeTimeout time.Duration

	// Session lifecycle
	SessionTTL      time.Duration
	CleanupInterval time.Duration

	// Upstream completion API
	AnthropicAPIKey  string
	AnthropicBaseURL string
	Model            string
	MaxTokens        int
	SystemPrompt     string
	LLMTimeout       time.Duration
	RetryBaseDelay   time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		StoreProbeTimeout: time.Duration(getEnvInt("STORE_PROBE_TIMEOUT_MS", 3000)) * time.Millisecond,
		SessionTTL:        time.Duration(getEnvInt("SESSION_TTL_SECONDS", 3600)) * time.Second,
		CleanupInterval:   time.Duration(getEnvInt("CLEANUP_INTERVAL_SECONDS", 600)) * time.Second,
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL:  getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		Model:             getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		MaxTokens:         getEnvInt("MAX_TOKENS", 1024),
		SystemPrompt:      getEnv("SYSTEM_PROMPT", ""),
		LLMTimeout:        time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		RetryBaseDelay:    time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 1000)) * time.Millisecond,
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
