package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config centralizes runtime settings for the API, the analysis pipeline and
// the report store. It is loaded once and passed by value into constructors.
type Config struct {
	Port string

	AuthToken          string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	LogLevel  string
	LogFormat string

	Timezone string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	SQLitePath    string

	TranscriptsBaseURL   string
	TranscriptsAPIKey    string
	TranscriptsProjectID string
	TranscriptsTimeoutMS int
	DialogFetchDelayMS   int

	LLMProvider string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIMaxRetries int

	OpenRouterAPIKey     string
	OpenRouterBaseURL    string
	OpenRouterTimeoutMS  int
	OpenRouterMaxRetries int
	OpenRouterSiteURL    string
	OpenRouterAppName    string

	ClusterModelPrimary  string
	ClusterModelFallback string
	PricePromptPer1K     float64
	PriceCompletionPer1K float64
	BatchDelayMS         int

	ClusterCacheTTLSeconds int
	ClusterCacheMaxEntries int
	PIIMaskingEnabled      bool

	DefaultTopN int
	MaxTopN     int

	ReportRetentionHours   int
	CleanupIntervalMinutes int
	ShutdownTimeoutSeconds int
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthToken:          getEnv("API_AUTH_TOKEN", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		Timezone: getEnv("TIMEZONE", "UTC"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "qi"),
		SQLitePath:    getEnv("SQLITE_PATH", ""),

		TranscriptsBaseURL:   getEnv("TRANSCRIPTS_BASE_URL", "https://api.voiceflow.com"),
		TranscriptsAPIKey:    getEnv("TRANSCRIPTS_API_KEY", ""),
		TranscriptsProjectID: getEnv("TRANSCRIPTS_PROJECT_ID", ""),
		TranscriptsTimeoutMS: getEnvInt("TRANSCRIPTS_TIMEOUT_MS", 15000),
		DialogFetchDelayMS:   getEnvInt("DIALOG_FETCH_DELAY_MS", 100),

		LLMProvider: strings.ToLower(getEnv("LLM_PROVIDER", "openai")),

		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIMaxRetries: getEnvInt("OPENAI_MAX_RETRIES", 2),

		OpenRouterAPIKey:     getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL:    getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterTimeoutMS:  getEnvInt("OPENROUTER_TIMEOUT_MS", 60000),
		OpenRouterMaxRetries: getEnvInt("OPENROUTER_MAX_RETRIES", 2),
		OpenRouterSiteURL:    getEnv("OPENROUTER_SITE_URL", ""),
		OpenRouterAppName:    getEnv("OPENROUTER_APP_NAME", "Question Insights"),

		ClusterModelPrimary:  getEnv("CLUSTER_MODEL_PRIMARY", "gpt-4o-mini"),
		ClusterModelFallback: getEnv("CLUSTER_MODEL_FALLBACK", "gpt-4.1-mini"),
		PricePromptPer1K:     getEnvFloat("PRICE_PROMPT_PER_1K", 0.00015),
		PriceCompletionPer1K: getEnvFloat("PRICE_COMPLETION_PER_1K", 0.0006),
		BatchDelayMS:         getEnvInt("BATCH_DELAY_MS", 500),

		ClusterCacheTTLSeconds: getEnvInt("CLUSTER_CACHE_TTL_SECONDS", 900),
		ClusterCacheMaxEntries: getEnvInt("CLUSTER_CACHE_MAX_ENTRIES", 500),
		PIIMaskingEnabled:      getEnvBool("PII_MASKING_ENABLED", true),

		DefaultTopN: getEnvInt("DEFAULT_TOP_N", 10),
		MaxTopN:     getEnvInt("MAX_TOP_N", 50),

		ReportRetentionHours:   getEnvInt("REPORT_RETENTION_HOURS", 72),
		CleanupIntervalMinutes: getEnvInt("CLEANUP_INTERVAL_MINUTES", 30),
		ShutdownTimeoutSeconds: getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30),
	}
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c Config) Location() *time.Location {
	location, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil || strings.TrimSpace(c.Timezone) == "" {
		return time.UTC
	}
	return location
}

func Millis(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Millisecond
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	items := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
