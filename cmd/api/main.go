package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/iago/question-insights-back/internal/ai"
	"github.com/iago/question-insights-back/internal/analysis"
	"github.com/iago/question-insights-back/internal/clustering"
	"github.com/iago/question-insights-back/internal/config"
	httpserver "github.com/iago/question-insights-back/internal/http"
	"github.com/iago/question-insights-back/internal/http/handlers"
	"github.com/iago/question-insights-back/internal/logging"
	"github.com/iago/question-insights-back/internal/policy"
	"github.com/iago/question-insights-back/internal/repository"
	"github.com/iago/question-insights-back/internal/service"
	"github.com/iago/question-insights-back/internal/transcripts"
	"github.com/iago/question-insights-back/internal/window"
	"github.com/iago/question-insights-back/internal/worker"
)

func main() {
	_, dotEnvErr := config.LoadDotEnv(".env", ".env.local")
	cfg := config.Load()

	logger := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "question-insights",
		Writer:  os.Stdout,
	})
	if dotEnvErr != nil {
		logger.Warn().Err(dotEnvErr).Msg("failed loading .env files")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, repoCloser := setupRepository(ctx, cfg, logger)
	defer repoCloser()

	transcriptsClient := transcripts.NewClient(transcripts.ClientConfig{
		BaseURL: cfg.TranscriptsBaseURL,
		Timeout: config.Millis(cfg.TranscriptsTimeoutMS),
	})
	ingestor := transcripts.NewIngestor(transcriptsClient, transcripts.IngestorConfig{
		FetchDelay: config.Millis(cfg.DialogFetchDelayMS),
		Logger:     logger,
	})

	engine := clustering.NewEngine(clustering.EngineConfig{
		Generator: setupGenerator(cfg, logger),
		Router: ai.NewModelRouter(ai.ModelRouterConfig{
			ClusteringPrimary:  cfg.ClusterModelPrimary,
			ClusteringFallback: cfg.ClusterModelFallback,
		}),
		Pricing: clustering.Pricing{
			PromptPer1K:     cfg.PricePromptPer1K,
			CompletionPer1K: cfg.PriceCompletionPer1K,
		},
		Cache: clustering.NewResponseCache(clustering.CacheConfig{
			TTL:        time.Duration(cfg.ClusterCacheTTLSeconds) * time.Second,
			MaxEntries: cfg.ClusterCacheMaxEntries,
		}),
		Masker: policy.NewMasker(cfg.PIIMaskingEnabled),
		Logger: logger,
	})
	pipeline := analysis.NewPipeline(ingestor, engine, analysis.Config{
		BatchDelay: config.Millis(cfg.BatchDelayMS),
		Logger:     logger,
	})

	dispatcher := worker.NewDispatcher(repo, worker.DispatcherConfig{Logger: logger})
	reports := service.NewReportsService(repo, window.NewDefaultResolver(), transcriptsClient, pipeline, dispatcher, service.ReportsConfig{
		DefaultCredentials: transcripts.Credentials{
			APIKey:    cfg.TranscriptsAPIKey,
			ProjectID: cfg.TranscriptsProjectID,
		},
		DefaultTopN: cfg.DefaultTopN,
		MaxTopN:     cfg.MaxTopN,
		Location:    cfg.Location(),
		Logger:      logger,
	})

	janitor := worker.NewJanitor(reports, worker.JanitorConfig{
		Interval:  time.Duration(cfg.CleanupIntervalMinutes) * time.Minute,
		Retention: time.Duration(cfg.ReportRetentionHours) * time.Hour,
		Logger:    logger,
	})
	if janitor.Enabled() {
		go janitor.Start(ctx)
		logger.Info().Int("retention_hours", cfg.ReportRetentionHours).Msg("report janitor started")
	} else {
		logger.Info().Msg("report janitor disabled by configuration")
	}

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            handlers.NewAPI(reports, logger),
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Context:        ctx,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("api listening")
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
		}
	}

	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn().Int("in_flight", dispatcher.InFlight()).Msg("shutdown timed out with reports still pending")
	}
}

func setupGenerator(cfg config.Config, logger zerolog.Logger) ai.TextGenerator {
	switch cfg.LLMProvider {
	case "openrouter":
		logger.Info().Msg("cluster engine using openrouter chat completions")
		return ai.NewOpenRouterClient(ai.OpenRouterClientConfig{
			APIKey:     cfg.OpenRouterAPIKey,
			BaseURL:    cfg.OpenRouterBaseURL,
			Timeout:    config.Millis(cfg.OpenRouterTimeoutMS),
			MaxRetries: cfg.OpenRouterMaxRetries,
			SiteURL:    cfg.OpenRouterSiteURL,
			AppName:    cfg.OpenRouterAppName,
		})
	default:
		if cfg.LLMProvider != "openai" {
			logger.Warn().Str("provider", cfg.LLMProvider).Msg("unknown LLM_PROVIDER, using openai")
		}
		return ai.NewOpenAIClient(ai.OpenAIClientConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			MaxRetries: cfg.OpenAIMaxRetries,
		})
	}
}

// setupRepository picks the first configured backend in the order
// postgres, redis, sqlite. A backend that fails to start falls back to
// memory so the API stays up.
func setupRepository(
	ctx context.Context,
	cfg config.Config,
	logger zerolog.Logger,
) (repository.ReportsRepository, func()) {
	switch {
	case cfg.DatabaseURL != "":
		pgRepo, err := repository.NewPostgresReportsRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize postgres repository, fallback to memory")
			break
		}
		logger.Info().Msg("postgres repository initialized")
		return pgRepo, pgRepo.Close
	case cfg.RedisAddr != "":
		redisRepo, err := repository.NewRedisReportsRepository(ctx, repository.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize redis repository, fallback to memory")
			break
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("redis repository initialized")
		return redisRepo, func() { _ = redisRepo.Close() }
	case cfg.SQLitePath != "":
		sqliteRepo, err := repository.NewSQLiteReportsRepository(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize sqlite repository, fallback to memory")
			break
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("sqlite repository initialized")
		return sqliteRepo, func() { _ = sqliteRepo.Close() }
	default:
		logger.Info().Msg("no report store configured, using in-memory repository")
	}
	return repository.NewMemoryReportsRepository(), func() {}
}
