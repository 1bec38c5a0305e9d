package middleware

import (
	"net/http"
	"strings"

	chicors "github.com/go-chi/cors"
)

const defaultCORSMaxAgeSeconds = 600

var (
	defaultCORSAllowedMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodOptions,
	}
	defaultCORSAllowedHeaders = []string{
		"Accept",
		"Authorization",
		"Content-Type",
		"Idempotency-Key",
		"X-Request-Id",
	}
)

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAgeSeconds  int
}

// CORS answers preflights with 204 and never forwards them.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	methods := normalizeStringList(cfg.AllowedMethods)
	if len(methods) == 0 {
		methods = defaultCORSAllowedMethods
	}
	headers := normalizeStringList(cfg.AllowedHeaders)
	if len(headers) == 0 {
		headers = defaultCORSAllowedHeaders
	}
	maxAge := cfg.MaxAgeSeconds
	if maxAge <= 0 {
		maxAge = defaultCORSMaxAgeSeconds
	}

	return chicors.Handler(chicors.Options{
		AllowedOrigins:       normalizeStringList(cfg.AllowedOrigins),
		AllowedMethods:       methods,
		AllowedHeaders:       headers,
		ExposedHeaders:       []string{"X-Request-Id", "Retry-After"},
		MaxAge:               maxAge,
		OptionsSuccessStatus: http.StatusNoContent,
	})
}

func normalizeStringList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		result = append(result, value)
	}
	return result
}
