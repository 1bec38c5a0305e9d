package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/iago/question-insights-back/internal/domain"
	"github.com/iago/question-insights-back/internal/logging"
	"github.com/iago/question-insights-back/internal/service"
)

const minIdempotencyKeyLength = 16

type analyzeRequest struct {
	Range     string `json:"range" validate:"required"`
	Top       *int   `json:"top" validate:"omitempty,min=1"`
	APIKey    string `json:"apiKey"`
	ProjectID string `json:"projectId"`
}

type analyzeResponse struct {
	ReportID string              `json:"reportId"`
	Status   domain.ReportStatus `json:"status"`
}

func (api *API) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "request body must be a JSON object with a range field")
		return
	}
	if err := api.validator.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	input := service.SubmitInput{
		Range:     strings.TrimSpace(req.Range),
		TopN:      api.reports.DefaultTopN(),
		APIKey:    req.APIKey,
		ProjectID: req.ProjectID,
	}
	if req.Top != nil {
		input.TopN = *req.Top
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		if len(idempotencyKey) < minIdempotencyKeyLength {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "Idempotency-Key must have at least 16 characters")
			return
		}
		payloadHash := hashPayload(input)
		entry, reserved := api.idempotency.Reserve(idempotencyKey, payloadHash)
		if !reserved {
			switch {
			case entry.PayloadHash != payloadHash:
				writeError(w, r, http.StatusConflict, "idempotency_conflict", "Idempotency-Key was already used with a different payload")
			case entry.ReportID == "":
				writeError(w, r, http.StatusConflict, "idempotency_conflict", "a request with this Idempotency-Key is still in progress")
			default:
				writeData(w, http.StatusAccepted, analyzeResponse{ReportID: entry.ReportID, Status: domain.ReportStatusPending})
			}
			return
		}
	}

	report, err := api.reports.Submit(r.Context(), input)
	if err != nil {
		if idempotencyKey != "" {
			api.idempotency.Release(idempotencyKey)
		}
		api.writeSubmitError(w, r, err)
		return
	}
	if idempotencyKey != "" {
		api.idempotency.Complete(idempotencyKey, report.ID)
	}
	writeData(w, http.StatusAccepted, analyzeResponse{ReportID: report.ID, Status: report.Status})
}

func (api *API) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var credErr *domain.CredentialError
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.As(err, &credErr):
		switch credErr.Reason {
		case domain.CredentialInvalidKey:
			writeError(w, r, http.StatusUnauthorized, "invalid_api_key", "transcript service rejected the API key")
		case domain.CredentialInvalidProject:
			writeError(w, r, http.StatusNotFound, "invalid_project", "project was not found for this API key")
		default:
			writeError(w, r, http.StatusBadGateway, "credential_validation_failed", "could not validate credentials with the transcript service")
		}
	case errors.Is(err, context.Canceled):
		writeError(w, r, http.StatusServiceUnavailable, "request_canceled", "request was canceled")
	default:
		logging.Ctx(r.Context(), api.logger).Error().Err(err).Msg("submit analyze failed")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "could not create report")
	}
}
