// Command load drives the analyze API in-process against stub transcript
// and completion providers and prints latency percentiles as JSON.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iago/question-insights-back/internal/ai"
	"github.com/iago/question-insights-back/internal/analysis"
	"github.com/iago/question-insights-back/internal/clustering"
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

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server      *httptest.Server
	transcripts *httptest.Server
	dispatcher  *worker.Dispatcher
	cancel      context.CancelFunc
}

func (e *benchmarkEnv) Close() {
	e.cancel()
	e.server.Close()
	e.transcripts.Close()
}

// stubGenerator answers every cluster call after a fixed latency.
type stubGenerator struct {
	latency time.Duration
}

func (g stubGenerator) Available() bool { return true }

func (g stubGenerator) Generate(ctx context.Context, _ ai.GenerateRequest) (ai.GenerateResult, error) {
	select {
	case <-time.After(g.latency):
	case <-ctx.Done():
		return ai.GenerateResult{}, ctx.Err()
	}
	return ai.GenerateResult{
		Text:    `{"clusters":[{"question":"How do I reset my password?","count":3},{"question":"Where is my order?","count":2}]}`,
		ModelID: "stub",
		Usage:   ai.TokenUsage{InputTokens: 400, OutputTokens: 40, TotalTokens: 440},
	}, nil
}

func main() {
	submitTotal := flag.Int("submit-total", 200, "total analyze submissions")
	submitConcurrency := flag.Int("submit-concurrency", 20, "concurrency for analyze submissions")
	pollTotal := flag.Int("poll-total", 400, "total report polls")
	pollConcurrency := flag.Int("poll-concurrency", 24, "concurrency for report polls")
	completeTotal := flag.Int("complete-total", 40, "reports followed until completion")
	completeConcurrency := flag.Int("complete-concurrency", 8, "concurrency for completion runs")
	llmLatency := flag.Duration("llm-latency", 150*time.Millisecond, "simulated latency of each cluster call")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	logger := logging.New(logging.Options{Format: "console", Level: "info", Writer: os.Stderr})

	env := startBenchmarkEnvironment(*llmLatency)
	defer env.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	submitURL := env.server.URL + "/v1/analyze"
	submitPayload := map[string]any{"range": "last7", "top": 5, "apiKey": "load-key", "projectId": "load-project"}

	var idsMu sync.Mutex
	reportIDs := make([]string, 0, *submitTotal)

	submitScenario := runScenario("analyze_submit", *submitTotal, *submitConcurrency, func(int) error {
		reportID, err := submit(client, submitURL, submitPayload)
		if err != nil {
			return err
		}
		idsMu.Lock()
		reportIDs = append(reportIDs, reportID)
		idsMu.Unlock()
		return nil
	})

	pollScenario := runScenario("report_poll", *pollTotal, *pollConcurrency, func(index int) error {
		idsMu.Lock()
		if len(reportIDs) == 0 {
			idsMu.Unlock()
			return fmt.Errorf("no report ids to poll")
		}
		reportID := reportIDs[index%len(reportIDs)]
		idsMu.Unlock()
		_, err := reportStatus(client, env.server.URL+"/v1/reports/"+reportID)
		return err
	})

	completeScenario := runScenario("analyze_to_completed", *completeTotal, *completeConcurrency, func(int) error {
		reportID, err := submit(client, submitURL, submitPayload)
		if err != nil {
			return err
		}
		deadline := time.Now().Add(30 * time.Second)
		for time.Now().Before(deadline) {
			status, err := reportStatus(client, env.server.URL+"/v1/reports/"+reportID)
			if err != nil {
				return err
			}
			switch status {
			case "completed":
				return nil
			case "failed":
				return fmt.Errorf("report %s failed", reportID)
			}
			time.Sleep(25 * time.Millisecond)
		}
		return fmt.Errorf("report %s still pending after 30s", reportID)
	})

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := env.dispatcher.Wait(drainCtx); err != nil {
		logger.Warn().Int("in_flight", env.dispatcher.InFlight()).Msg("jobs still running at exit")
	}
	drainCancel()

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        []scenarioResult{submitScenario, pollScenario, completeScenario},
		SLOEvaluation: map[string]bool{
			"analyze_submit_p95_le_500ms": submitScenario.P95MS <= 500,
			"report_poll_p95_le_100ms":    pollScenario.P95MS <= 100,
		},
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to marshal benchmark report")
	}
	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			logger.Fatal().Err(err).Msg("failed to write output file")
		}
	}
	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment(llmLatency time.Duration) *benchmarkEnv {
	ctx, cancel := context.WithCancel(context.Background())
	logger := zerolog.Nop()

	transcriptServer := httptest.NewServer(http.HandlerFunc(stubTranscripts))
	client := transcripts.NewClient(transcripts.ClientConfig{BaseURL: transcriptServer.URL, Timeout: 5 * time.Second})
	ingestor := transcripts.NewIngestor(client, transcripts.IngestorConfig{FetchDelay: time.Millisecond, Logger: logger})
	engine := clustering.NewEngine(clustering.EngineConfig{
		Generator: stubGenerator{latency: llmLatency},
		Pricing:   clustering.Pricing{PromptPer1K: 0.00015, CompletionPer1K: 0.0006},
		Masker:    policy.NewMasker(true),
		Logger:    logger,
	})
	pipeline := analysis.NewPipeline(ingestor, engine, analysis.Config{BatchDelay: 10 * time.Millisecond, Logger: logger})

	repo := repository.NewMemoryReportsRepository()
	dispatcher := worker.NewDispatcher(repo, worker.DispatcherConfig{Logger: logger})
	reports := service.NewReportsService(repo, window.NewDefaultResolver(), client, pipeline, dispatcher, service.ReportsConfig{
		Logger: logger,
	})

	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            handlers.NewAPI(reports, logger),
		Logger:         logger,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
		Context:        ctx,
	})

	return &benchmarkEnv{
		server:      httptest.NewServer(router),
		transcripts: transcriptServer,
		dispatcher:  dispatcher,
		cancel:      cancel,
	}
}

// stubTranscripts serves three transcripts spread over the last days.
func stubTranscripts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	now := time.Now().UTC()
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 3 {
		summaries := make([]map[string]string, 0, 3)
		for i := 0; i < 3; i++ {
			summaries = append(summaries, map[string]string{
				"_id":       fmt.Sprintf("t-%d", i),
				"createdAt": now.AddDate(0, 0, -i).Format(time.RFC3339),
			})
		}
		_ = json.NewEncoder(w).Encode(summaries)
		return
	}
	day := 0
	if len(parts) == 4 {
		_, _ = fmt.Sscanf(parts[3], "t-%d", &day)
	}
	at := now.AddDate(0, 0, -day).Add(-time.Minute)
	_ = json.NewEncoder(w).Encode([]map[string]any{
		{"type": "request", "startTime": at.Format(time.RFC3339), "payload": map[string]any{"payload": map[string]string{"query": "How do I reset my password?"}}},
		{"type": "request", "startTime": at.Add(time.Second).Format(time.RFC3339), "payload": map[string]any{"payload": map[string]string{"query": "Where is my order? Thanks."}}},
	})
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	throughput := 0.0
	if elapsed := time.Since(startedAt).Seconds(); elapsed > 0 {
		throughput = float64(total) / elapsed
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        total - success,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		ReportID string `json:"reportId"`
		Status   string `json:"status"`
	} `json:"data"`
}

func submit(client *http.Client, url string, payload any) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	body, err := doJSON(client, request, http.StatusAccepted)
	if err != nil {
		return "", err
	}
	return body.Data.ReportID, nil
}

func reportStatus(client *http.Client, url string) (string, error) {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	body, err := doJSON(client, request, http.StatusOK)
	if err != nil {
		return "", err
	}
	return body.Data.Status, nil
}

func doJSON(client *http.Client, request *http.Request, expectedStatus int) (envelope, error) {
	request.Header.Set("Accept", "application/json")
	response, err := client.Do(request)
	if err != nil {
		return envelope{}, err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return envelope{}, fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	var body envelope
	if err := json.NewDecoder(response.Body).Decode(&body); err != nil {
		return envelope{}, fmt.Errorf("decode response: %w", err)
	}
	return body, nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
