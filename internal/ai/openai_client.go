package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

type OpenAIClientConfig struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	HTTPClient   *http.Client
	Organization string
}

// OpenAIClient calls the Responses API through the official SDK.
type OpenAIClient struct {
	client  *openai.Client
	apiKey  string
	timeout time.Duration
}

func NewOpenAIClient(config OpenAIClientConfig) *OpenAIClient {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	apiKey := strings.TrimSpace(config.APIKey)
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(config.MaxRetries),
	}
	if baseURL := strings.TrimSpace(config.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/"))
	}
	if config.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	}
	if org := strings.TrimSpace(config.Organization); org != "" {
		opts = append(opts, option.WithOrganization(org))
	}

	client := openai.NewClient(opts...)
	return &OpenAIClient{
		client:  &client,
		apiKey:  apiKey,
		timeout: config.Timeout,
	}
}

func (c *OpenAIClient) Available() bool {
	return c.apiKey != ""
}

func (c *OpenAIClient) Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error) {
	if !c.Available() {
		return GenerateResult{}, ErrProviderUnavailable
	}
	if err := validateRequest(request); err != nil {
		return GenerateResult{}, err
	}

	params := responses.ResponseNewParams{
		Model:       request.Model,
		Temperature: openai.Float(request.Temperature),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(request.Input, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if instructions := strings.TrimSpace(request.Instructions); instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	if request.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(request.MaxOutputTokens))
	}
	if request.Schema != nil {
		format := &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:   request.Schema.Name,
			Schema: request.Schema.Schema,
			Strict: openai.Bool(true),
			Type:   "json_schema",
		}
		if request.Schema.Description != "" {
			format.Description = openai.String(request.Schema.Description)
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{OfJSONSchema: format},
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Responses.New(timeoutCtx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return GenerateResult{}, &ProviderHTTPError{
				Provider:   "openai",
				StatusCode: apiErr.StatusCode,
				Message:    apiErr.Message,
			}
		}
		return GenerateResult{}, fmt.Errorf("openai transport error: %w", err)
	}

	return GenerateResult{
		Text:    strings.TrimSpace(resp.OutputText()),
		ModelID: firstNonEmpty(string(resp.Model), request.Model),
		Usage: TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}
