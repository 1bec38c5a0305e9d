package domain

import "time"

type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusCompleted ReportStatus = "completed"
	ReportStatusFailed    ReportStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusCompleted || s == ReportStatusFailed
}

// Report is the persisted record of one analyze submission.
// Result is set only when completed, ErrorMessage only when failed.
type Report struct {
	ID           string
	Range        string
	TopN         int
	Status       ReportStatus
	Result       *ClusteringResult
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReportOutcome is the single terminal write applied to a pending report.
type ReportOutcome struct {
	Status       ReportStatus
	Result       *ClusteringResult
	ErrorMessage string
}

func CompletedOutcome(result ClusteringResult) ReportOutcome {
	return ReportOutcome{Status: ReportStatusCompleted, Result: &result}
}

func FailedOutcome(message string) ReportOutcome {
	return ReportOutcome{Status: ReportStatusFailed, ErrorMessage: message}
}

// Apply copies the outcome into r and refreshes UpdatedAt, keeping it
// at or after CreatedAt.
func (r *Report) Apply(outcome ReportOutcome, now time.Time) {
	r.Status = outcome.Status
	r.Result = nil
	r.ErrorMessage = ""
	switch outcome.Status {
	case ReportStatusCompleted:
		r.Result = outcome.Result.Clone()
	case ReportStatusFailed:
		r.ErrorMessage = outcome.ErrorMessage
	}
	if now.Before(r.CreatedAt) {
		now = r.CreatedAt
	}
	r.UpdatedAt = now
}

func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Result = r.Result.Clone()
	return &clone
}
