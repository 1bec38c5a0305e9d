package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iago/question-insights-back/internal/domain"
	"github.com/iago/question-insights-back/internal/logging"
	"github.com/iago/question-insights-back/internal/repository"
)

type reportView struct {
	ReportID  string                   `json:"reportId"`
	Status    domain.ReportStatus      `json:"status"`
	Range     string                   `json:"range"`
	Top       int                      `json:"top"`
	CreatedAt time.Time                `json:"createdAt"`
	UpdatedAt time.Time                `json:"updatedAt"`
	Result    *domain.ClusteringResult `json:"result,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

func newReportView(report *domain.Report) reportView {
	return reportView{
		ReportID:  report.ID,
		Status:    report.Status,
		Range:     report.Range,
		Top:       report.TopN,
		CreatedAt: report.CreatedAt,
		UpdatedAt: report.UpdatedAt,
		Result:    report.Result,
		Error:     report.ErrorMessage,
	}
}

func (api *API) GetReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportID")
	report, err := api.reports.Get(r.Context(), reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "report not found")
			return
		}
		logging.Ctx(r.Context(), api.logger).Error().Err(err).Str("report_id", reportID).Msg("load report failed")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "could not load report")
		return
	}
	writeData(w, http.StatusOK, newReportView(report))
}
