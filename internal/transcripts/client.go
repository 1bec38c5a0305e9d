package transcripts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iago/question-insights-back/internal/domain"
)

// Credentials scopes every transcript call to one project.
type Credentials struct {
	APIKey    string
	ProjectID string
}

// Merge fills empty fields of c from defaults.
func (c Credentials) Merge(defaults Credentials) Credentials {
	if strings.TrimSpace(c.APIKey) == "" {
		c.APIKey = defaults.APIKey
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		c.ProjectID = defaults.ProjectID
	}
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.ProjectID = strings.TrimSpace(c.ProjectID)
	return c
}

// Source is the credential-gated transcript service.
type Source interface {
	ListSummaries(ctx context.Context, creds Credentials, windowToken string) ([]domain.TranscriptSummary, error)
	FetchDialog(ctx context.Context, creds Credentials, transcriptID string) ([]domain.DialogTurn, error)
}

type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(config ClientConfig) *Client {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://api.voiceflow.com"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		timeout:    config.Timeout,
		httpClient: config.HTTPClient,
	}
}

// StatusError is a non-2xx answer from the transcript service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transcripts status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func (e *StatusError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

type summaryPayload struct {
	ID        string `json:"_id"`
	CreatedAt string `json:"createdAt"`
}

type turnPayload struct {
	Type      string `json:"type"`
	StartTime string `json:"startTime"`
	Payload   struct {
		Payload struct {
			Query string `json:"query"`
		} `json:"payload"`
	} `json:"payload"`
}

func (c *Client) ListSummaries(
	ctx context.Context,
	creds Credentials,
	windowToken string,
) ([]domain.TranscriptSummary, error) {
	endpoint := fmt.Sprintf("%s/v2/transcripts/%s", c.baseURL, url.PathEscape(creds.ProjectID))
	if windowToken != "" {
		endpoint += "?" + url.Values{"range": []string{windowToken}}.Encode()
	}

	var raw []summaryPayload
	if err := c.getJSON(ctx, creds, endpoint, &raw); err != nil {
		return nil, err
	}

	summaries := make([]domain.TranscriptSummary, 0, len(raw))
	for _, item := range raw {
		if strings.TrimSpace(item.ID) == "" {
			continue
		}
		createdAt, _ := time.Parse(time.RFC3339Nano, item.CreatedAt)
		summaries = append(summaries, domain.TranscriptSummary{ID: item.ID, CreatedAt: createdAt})
	}
	return summaries, nil
}

func (c *Client) FetchDialog(
	ctx context.Context,
	creds Credentials,
	transcriptID string,
) ([]domain.DialogTurn, error) {
	endpoint := fmt.Sprintf(
		"%s/v2/transcripts/%s/%s",
		c.baseURL,
		url.PathEscape(creds.ProjectID),
		url.PathEscape(transcriptID),
	)

	var raw []turnPayload
	if err := c.getJSON(ctx, creds, endpoint, &raw); err != nil {
		return nil, err
	}

	turns := make([]domain.DialogTurn, 0, len(raw))
	for _, item := range raw {
		turn := domain.DialogTurn{Type: item.Type, Timestamp: item.StartTime}
		if item.Type == domain.TurnTypeRequest {
			turn.Query = item.Payload.Payload.Query
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (c *Client) getJSON(ctx context.Context, creds Credentials, endpoint string, target any) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create transcripts request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+creds.APIKey)
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("transcripts timeout: %w", err)
		}
		return fmt.Errorf("transcripts transport error: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read transcripts body: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if len(message) > 500 {
			message = message[:500]
		}
		return &StatusError{StatusCode: response.StatusCode, Message: message}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode transcripts response: %w", err)
	}
	return nil
}

// ClassifyCredentialError maps a listing failure onto the credential
// taxonomy: 401 means a bad key, 404 a bad project, anything else a failed
// validation.
func ClassifyCredentialError(err error) *domain.CredentialError {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Unauthorized():
			return &domain.CredentialError{Reason: domain.CredentialInvalidKey, Err: err}
		case statusErr.NotFound():
			return &domain.CredentialError{Reason: domain.CredentialInvalidProject, Err: err}
		}
	}
	return &domain.CredentialError{Reason: domain.CredentialValidationFailed, Err: err}
}
