// Package config holds global settings for the Rampart gateway.
// All settings can be configured via environment variables or programmatically.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMProvider defines the backend service used for escalated classification.
type LLMProvider string

const (
	ProviderNone       LLMProvider = "none"       // No escalation, rules only
	ProviderOllama     LLMProvider = "ollama"     // Local Ollama server
	ProviderOpenRouter LLMProvider = "openrouter" // OpenRouter (has free tier)
	ProviderGroq       LLMProvider = "groq"       // Groq (high-speed inference)
)

// FallbackBehavior defines what an escalated item resolves to when the
// escalation service is unavailable.
type FallbackBehavior string

const (
	FallbackBenign FallbackBehavior = "benign" // Treat as benign, tag as outage (default)
	FallbackReview FallbackBehavior = "review" // Keep REVIEW decision, tag as outage
)

// Config holds global settings for the Rampart gateway.
type Config struct {
	// === Anomaly Scoring Thresholds ===
	// Additive severity scoring in the OWASP CRS style: matched rules
	// contribute CRITICAL=5 ERROR=4 WARNING=3 NOTICE=2 to a running total.
	BlockThreshold  int // Total score at or above this = BLOCK (default: 5)
	ReviewThreshold int // Total score at or above this (below block) = REVIEW (default: 3)
	CriticalScore   int // Blocked items at or above this report Critical severity (default: 15)

	// === Escalation Provider Configuration ===
	LLMProvider  LLMProvider // Which service resolves ambiguous items
	LLMAPIKey    string      // API key for cloud providers (env: RAMPART_LLM_API_KEY)
	LLMModel     string      // Model identifier
	LLMBaseURL   string      // Custom base URL for self-hosted providers
	LLMTimeoutMs int         // Timeout for escalation calls in milliseconds (default: 30000)

	// === Fallback & Error Handling ===
	FallbackBehavior FallbackBehavior // Verdict when escalation is down (default: benign)

	// === Result Cache ===
	RedisAddr     string        // Redis address; empty = in-process memory cache
	RedisPassword string        //
	CacheTTL      time.Duration // Entry lifetime in Redis; 0 = no expiry (default: 24h)

	// === Context Retrieval ===
	EnableRetrieval bool   // Fetch similar historical examples for escalated items
	RetrievalK      int    // Number of similar examples per lookup (default: 3)
	SeedDir         string // Directory of YAML seed corpora for the example store

	// === Pattern Library ===
	PatternOverlayPath string // Optional YAML overlay replacing category rule lists

	// === Audit ===
	AuditLogPath string // JSONL audit file for finalized verdicts (default: rampart_audit.jsonl)
	PostgresDSN  string // Optional Postgres DSN for the audit sink; empty = file only

	// === Pipeline ===
	BatchConcurrency int // Max items analyzed concurrently per batch (default: 16)
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		BlockThreshold:  GetEnvInt("RAMPART_BLOCK_THRESHOLD", 5),
		ReviewThreshold: GetEnvInt("RAMPART_REVIEW_THRESHOLD", 3),
		CriticalScore:   GetEnvInt("RAMPART_CRITICAL_SCORE", 15),

		LLMProvider:  detectLLMProvider(),
		LLMAPIKey:    GetEnv("RAMPART_LLM_API_KEY", os.Getenv("GROQ_API_KEY")),
		LLMModel:     GetEnv("RAMPART_LLM_MODEL", "llama-3.3-70b-versatile"),
		LLMBaseURL:   GetEnv("RAMPART_LLM_BASE_URL", ""),
		LLMTimeoutMs: GetEnvInt("RAMPART_LLM_TIMEOUT_MS", 30000),

		FallbackBehavior: FallbackBehavior(GetEnv("RAMPART_FALLBACK", "benign")),

		RedisAddr:     GetEnv("RAMPART_REDIS_ADDR", ""),
		RedisPassword: GetEnv("RAMPART_REDIS_PASSWORD", ""),
		CacheTTL:      time.Duration(GetEnvInt("RAMPART_CACHE_TTL_SECONDS", 86400)) * time.Second,

		EnableRetrieval: GetEnvBool("RAMPART_ENABLE_RETRIEVAL", true),
		RetrievalK:      clampInt(GetEnvInt("RAMPART_RETRIEVAL_K", 3), 1, 20),
		SeedDir:         GetEnv("RAMPART_SEED_DIR", ""),

		PatternOverlayPath: GetEnv("RAMPART_PATTERN_OVERLAY", ""),

		AuditLogPath: GetEnv("RAMPART_AUDIT_LOG", "rampart_audit.jsonl"),
		PostgresDSN:  GetEnv("RAMPART_POSTGRES_DSN", ""),

		BatchConcurrency: clampInt(GetEnvInt("RAMPART_BATCH_CONCURRENCY", 16), 1, 256),
	}
}

// NewRulesOnlyConfig creates a Config for air-gapped operation: no escalation,
// no retrieval, in-process cache. Rule verdicts are still complete; ambiguous
// items resolve through the fallback path.
func NewRulesOnlyConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.LLMProvider = ProviderNone
	cfg.EnableRetrieval = false
	cfg.RedisAddr = ""
	return cfg
}

// NewHighSecurityConfig creates a Config that blocks more aggressively
// (may have more false positives).
func NewHighSecurityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.BlockThreshold = 4
	cfg.ReviewThreshold = 2
	cfg.FallbackBehavior = FallbackReview
	return cfg
}

func detectLLMProvider() LLMProvider {
	if p := os.Getenv("RAMPART_LLM_PROVIDER"); p != "" {
		return LLMProvider(p)
	}
	if os.Getenv("GROQ_API_KEY") != "" {
		return ProviderGroq
	}
	if os.Getenv("OPENROUTER_API_KEY") != "" || os.Getenv("RAMPART_LLM_API_KEY") != "" {
		return ProviderOpenRouter
	}
	return ProviderOllama
}

func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Validate checks threshold ordering and provider settings.
// A misconfigured threshold table silently changes every decision, so the
// gateway refuses to start instead.
func (c *Config) Validate() error {
	var problems []string

	if c.BlockThreshold <= 0 {
		problems = append(problems, "RAMPART_BLOCK_THRESHOLD must be positive")
	}
	if c.ReviewThreshold <= 0 || c.ReviewThreshold >= c.BlockThreshold {
		problems = append(problems, "RAMPART_REVIEW_THRESHOLD must be positive and below the block threshold")
	}
	if c.CriticalScore < c.BlockThreshold {
		problems = append(problems, "RAMPART_CRITICAL_SCORE must be at least the block threshold")
	}

	switch c.LLMProvider {
	case ProviderNone, ProviderOllama, ProviderOpenRouter, ProviderGroq:
	default:
		problems = append(problems, fmt.Sprintf("unknown LLM provider %q", c.LLMProvider))
	}

	switch c.FallbackBehavior {
	case FallbackBenign, FallbackReview:
	default:
		problems = append(problems, fmt.Sprintf("unknown fallback behavior %q", c.FallbackBehavior))
	}

	if (c.LLMProvider == ProviderOpenRouter || c.LLMProvider == ProviderGroq) && c.LLMAPIKey == "" {
		log.Printf("[STARTUP] Warning: %s provider selected without RAMPART_LLM_API_KEY - escalation will use the fallback verdict", c.LLMProvider)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before serving.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: %v", err)
	}
	log.Println("[STARTUP] Configuration validated successfully")
}

// Helper functions for environment variable parsing.
// Exported for use by other packages.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
