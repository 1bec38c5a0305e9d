package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iago/question-insights-back/internal/http/handlers"
	"github.com/iago/question-insights-back/internal/http/middleware"
)

// RouterDependencies carries everything NewRouter wires. Context bounds
// background middleware work such as limiter pruning.
type RouterDependencies struct {
	API            *handlers.API
	Logger         zerolog.Logger
	AuthToken      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	SlowRequest    time.Duration
	Context        context.Context
}

func NewRouter(deps RouterDependencies) http.Handler {
	ctx := deps.Context
	if ctx == nil {
		ctx = context.Background()
	}
	slow := deps.SlowRequest
	if slow <= 0 {
		slow = 2 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID(deps.Logger))
	r.Use(middleware.Trace(slow))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: deps.CORSOrigins}))
	r.Use(middleware.RateLimit(ctx, deps.RateLimitRPS, deps.RateLimitBurst))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", deps.API.Health)
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.AuthToken))
		r.Post("/analyze", deps.API.Analyze)
		r.Get("/reports/{reportID}", deps.API.GetReport)
	})

	return r
}
