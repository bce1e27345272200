// Package config holds the gateway's runtime settings. Everything is
// env-driven with sensible defaults; detection tuning (keywords, follow-up
// tables, thresholds) can additionally be overlaid from a YAML file.
package config

import (
	"os"
	"strconv"
	"time"
)

// Provider defines the backend inference service type.
type Provider string

const (
	ProviderGroq       Provider = "groq"       // Groq (high-speed inference, default when key set)
	ProviderOllama     Provider = "ollama"     // Local Ollama server
	ProviderOpenRouter Provider = "openrouter" // OpenRouter
	ProviderCustom     Provider = "custom"     // Custom OpenAI-compatible endpoint
)

// SessionBackend selects the session store implementation.
type SessionBackend string

const (
	BackendMemory SessionBackend = "memory"
	BackendRedis  SessionBackend = "redis"
)

// Config holds global settings for the TrapLine gateway.
type Config struct {
	// === Auth ===
	APIKey string // shared secret for the X-API-Key header check

	// === Oracle (inference provider) ===
	LLMProvider       Provider
	LLMAPIKey         string
	LLMModel          string
	LLMBaseURL        string // custom base URL for self-hosted providers
	OracleTimeout     time.Duration
	OracleMaxInFlight int

	// === Detection tuning ===
	KeywordConfidence float64 // confidence reported on a keyword fast-path hit
	BlockConfidence   float64 // risk table: new-sample threshold for high_risk
	HighRiskAvg       float64 // risk table: history-average threshold for high_risk
	IncreasingDelta   float64 // risk table: delta over average for increasing
	DetectionConfig   string  // optional YAML overlay path

	// === Session memory ===
	SessionBackend   SessionBackend
	TranscriptWindow int // max turns retained per session
	RiskHistory      int // max confidence samples per session
	SessionTTL       time.Duration
	MaxSessions      int // memory backend only; oldest-idle evicted at cap

	// === Redis (session backend "redis") ===
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// === Semantic annotation (optional) ===
	EnableSemantics bool
	EmbedModel      string
	EmbedBaseURL    string
}

// NewDefaultConfig creates a Config with sensible defaults, overridable via
// environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		APIKey: GetEnv("TRAPLINE_API_KEY", "DEV_SECRET_KEY"),

		LLMProvider:       detectProvider(),
		LLMAPIKey:         GetEnv("TRAPLINE_LLM_API_KEY", os.Getenv("GROQ_API_KEY")),
		LLMModel:          GetEnv("TRAPLINE_LLM_MODEL", "llama-3.1-8b-instant"),
		LLMBaseURL:        GetEnv("TRAPLINE_LLM_BASE_URL", ""),
		OracleTimeout:     time.Duration(GetEnvInt("TRAPLINE_ORACLE_TIMEOUT_MS", 8000)) * time.Millisecond,
		OracleMaxInFlight: clampInt(GetEnvInt("TRAPLINE_ORACLE_MAX_INFLIGHT", 32), 1, 1024),

		KeywordConfidence: GetEnvFloat("TRAPLINE_KEYWORD_CONFIDENCE", 0.9),
		BlockConfidence:   GetEnvFloat("TRAPLINE_RISK_BLOCK_CONFIDENCE", 0.8),
		HighRiskAvg:       GetEnvFloat("TRAPLINE_RISK_HIGH_AVG", 0.7),
		IncreasingDelta:   GetEnvFloat("TRAPLINE_RISK_INCREASING_DELTA", 0.15),
		DetectionConfig:   GetEnv("TRAPLINE_DETECTION_CONFIG", ""),

		SessionBackend:   SessionBackend(GetEnv("TRAPLINE_SESSION_BACKEND", string(BackendMemory))),
		TranscriptWindow: clampInt(GetEnvInt("TRAPLINE_TRANSCRIPT_WINDOW", 10), 1, 1000),
		RiskHistory:      clampInt(GetEnvInt("TRAPLINE_RISK_HISTORY", 5), 1, 100),
		SessionTTL:       time.Duration(GetEnvInt("TRAPLINE_SESSION_TTL_SECONDS", 3600)) * time.Second,
		MaxSessions:      clampInt(GetEnvInt("TRAPLINE_MAX_SESSIONS", 10_000), 1, 1_000_000),

		RedisAddr:     GetEnv("TRAPLINE_REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetEnv("TRAPLINE_REDIS_PASSWORD", ""),
		RedisDB:       GetEnvInt("TRAPLINE_REDIS_DB", 0),

		EnableSemantics: GetEnvBool("TRAPLINE_ENABLE_SEMANTICS", false),
		EmbedModel:      GetEnv("TRAPLINE_EMBED_MODEL", "nomic-embed-text"),
		EmbedBaseURL:    GetEnv("TRAPLINE_EMBED_BASE_URL", "http://localhost:11434"),
	}
}

func detectProvider() Provider {
	if p := os.Getenv("TRAPLINE_LLM_PROVIDER"); p != "" {
		return Provider(p)
	}
	// Auto-detect based on available keys
	if os.Getenv("GROQ_API_KEY") != "" || os.Getenv("TRAPLINE_LLM_API_KEY") != "" {
		return ProviderGroq
	}
	if os.Getenv("OPENROUTER_API_KEY") != "" {
		return ProviderOpenRouter
	}
	// Default to Ollama (local) if no cloud keys found
	return ProviderOllama
}

// Helper functions for environment variable parsing.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a
// default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float value of an environment variable or a
// default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a
// default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// clampInt ensures a value is within bounds.
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
