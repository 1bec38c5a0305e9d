// Package clustering groups extracted questions by intent through a
// completion provider and merges per-batch results into one ranking.
package clustering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iago/question-insights-back/internal/ai"
	"github.com/iago/question-insights-back/internal/domain"
	"github.com/iago/question-insights-back/internal/logging"
	"github.com/iago/question-insights-back/internal/policy"
	"github.com/iago/question-insights-back/internal/quality"
)

// Pricing holds per-1000-token rates.
type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*p.PromptPer1K + float64(completionTokens)/1000*p.CompletionPer1K
}

// clusterSchema is the shape requested from the provider.
type clusterSchema struct {
	Clusters []struct {
		Question string `json:"question" jsonschema:"description=Representative question of the group"`
		Count    int    `json:"count"`
	} `json:"clusters"`
}

// clusterPayload mirrors clusterSchema with pointers so absent fields are
// told apart from zero values.
type clusterPayload struct {
	Clusters *[]struct {
		Question *string `json:"question"`
		Count    *int    `json:"count"`
	} `json:"clusters"`
}

var responseSchema = &ai.ResponseSchema{
	Name:        "question_clusters",
	Description: "Questions grouped by intent with occurrence counts",
	Schema:      ai.GenerateSchema[clusterSchema](),
}

type EngineConfig struct {
	Generator ai.TextGenerator
	Router    *ai.ModelRouter
	Pricing   Pricing
	Cache     *ResponseCache
	Masker    *policy.Masker
	Logger    zerolog.Logger
}

type Engine struct {
	generator ai.TextGenerator
	router    *ai.ModelRouter
	pricing   Pricing
	cache     *ResponseCache
	masker    *policy.Masker
	validator *quality.ClusterValidator
	logger    zerolog.Logger
}

func NewEngine(config EngineConfig) *Engine {
	if config.Router == nil {
		config.Router = ai.NewModelRouter(ai.ModelRouterConfig{})
	}
	return &Engine{
		generator: config.Generator,
		router:    config.Router,
		pricing:   config.Pricing,
		cache:     config.Cache,
		masker:    config.Masker,
		validator: quality.NewClusterValidator(config.Masker),
		logger:    config.Logger,
	}
}

// Cluster asks the provider to group questions and returns at most topN
// clusters ordered by count desc, then question asc. Empty input makes no
// call and reports zero usage.
func (e *Engine) Cluster(ctx context.Context, questions []string, topN int) (domain.ClusteringResult, error) {
	prepared := prepareQuestions(e.masker.MaskAll(questions))
	if len(prepared) == 0 {
		return domain.ClusteringResult{Questions: []domain.QuestionFrequency{}}, nil
	}
	if topN <= 0 {
		return domain.ClusteringResult{}, domain.Validationf("topN must be positive, got %d", topN)
	}
	if e.generator == nil || !e.generator.Available() {
		return domain.ClusteringResult{}, ai.ErrProviderUnavailable
	}

	logger := logging.Ctx(ctx, e.logger)
	profile := e.router.Select(ai.TaskClustering)

	key := cacheKey(profile.PrimaryModel, topN, prepared)
	if cached, ok := e.cache.Get(key); ok {
		logger.Debug().Int("questions", len(prepared)).Msg("cluster cache hit")
		return domain.ClusteringResult{Questions: rank(cached, topN)}, nil
	}

	prompt, err := renderPrompt(prepared, topN)
	if err != nil {
		return domain.ClusteringResult{}, fmt.Errorf("render cluster prompt: %w", err)
	}

	request := ai.GenerateRequest{
		Model:           profile.PrimaryModel,
		Instructions:    instructions,
		Input:           prompt,
		Temperature:     profile.Temperature,
		MaxOutputTokens: profile.MaxOutputTokens,
		Schema:          responseSchema,
	}
	result, err := e.generator.Generate(ctx, request)
	if err != nil && profile.FallbackModel != "" && profile.FallbackModel != profile.PrimaryModel && ctx.Err() == nil {
		logger.Warn().Err(err).
			Str("model", profile.PrimaryModel).
			Str("fallback_model", profile.FallbackModel).
			Msg("cluster call failed, trying fallback model")
		request.Model = profile.FallbackModel
		result, err = e.generator.Generate(ctx, request)
	}
	if err != nil {
		return domain.ClusteringResult{}, fmt.Errorf("cluster call: %w", err)
	}

	parsed, err := parseClusters(result.Text)
	if err != nil {
		return domain.ClusteringResult{}, err
	}
	parsed, check := e.validator.Sanitize(parsed, len(prepared))
	if check.OverCounted {
		logger.Warn().Int("questions", len(prepared)).Msg("cluster counts exceed the questions sent")
	}
	e.cache.Set(key, parsed)

	usage := domain.UsageAccount{
		PromptTokens:     result.Usage.InputTokens,
		CompletionTokens: result.Usage.OutputTokens,
		TotalTokens:      result.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	usage.EstimatedCost = e.pricing.Cost(usage.PromptTokens, usage.CompletionTokens)

	logger.Debug().
		Str("model", firstModel(result.ModelID, request.Model)).
		Int("questions", len(prepared)).
		Int("clusters", len(parsed)).
		Int("total_tokens", usage.TotalTokens).
		Msg("batch clustered")

	return domain.ClusteringResult{Questions: rank(parsed, topN), Usage: usage}, nil
}

func prepareQuestions(questions []string) []string {
	out := make([]string, 0, len(questions))
	for _, question := range questions {
		// Collapse inner newlines so each question stays on one prompt line.
		if flat := strings.Join(strings.Fields(question), " "); flat != "" {
			out = append(out, flat)
		}
	}
	return out
}

func parseClusters(text string) ([]domain.QuestionFrequency, error) {
	body, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrClusterParse, err)
	}

	var payload clusterPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrClusterParse, err)
	}
	if payload.Clusters == nil {
		return nil, fmt.Errorf("%w: missing clusters", domain.ErrClusterParse)
	}

	out := make([]domain.QuestionFrequency, 0, len(*payload.Clusters))
	for i, item := range *payload.Clusters {
		if item.Question == nil || strings.TrimSpace(*item.Question) == "" {
			return nil, fmt.Errorf("%w: cluster %d has no question", domain.ErrClusterParse, i)
		}
		if item.Count == nil {
			return nil, fmt.Errorf("%w: cluster %d has no count", domain.ErrClusterParse, i)
		}
		if *item.Count < 0 {
			return nil, fmt.Errorf("%w: cluster %d has negative count", domain.ErrClusterParse, i)
		}
		out = append(out, domain.QuestionFrequency{Question: *item.Question, Count: *item.Count})
	}
	return out, nil
}

// extractJSONObject tolerates code fences and chatter around a single
// top-level object.
func extractJSONObject(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", errors.New("empty response")
	}
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start == -1 || end <= start {
		return "", errors.New("no JSON object in response")
	}
	return trimmed[start : end+1], nil
}

// rank sorts by count desc, then question asc, and truncates to topN.
func rank(items []domain.QuestionFrequency, topN int) []domain.QuestionFrequency {
	out := append([]domain.QuestionFrequency{}, items...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Question < out[j].Question
	})
	if topN >= 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

func firstModel(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
