package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iago/question-insights-back/internal/domain"
)

var (
	ErrNotFound    = errors.New("report not found")
	ErrDuplicateID = errors.New("report id already exists")
)

// ReportsRepository persists reports. Update is last-write-wins; callers
// are expected to write a terminal outcome once per report.
type ReportsRepository interface {
	Create(ctx context.Context, id, rangeLabel string, topN int) (*domain.Report, error)
	Update(ctx context.Context, id string, outcome domain.ReportOutcome) error
	Get(ctx context.Context, id string) (*domain.Report, error)
	// Cleanup deletes reports created more than maxAge ago and returns how
	// many were removed.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// Clock returns the current time; tests replace it.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

func newPendingReport(id, rangeLabel string, topN int, now time.Time) *domain.Report {
	return &domain.Report{
		ID:        id,
		Range:     rangeLabel,
		TopN:      topN,
		Status:    domain.ReportStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// outcomeColumns flattens an outcome so that exactly one of result and
// message is set, and only for a terminal status.
func outcomeColumns(outcome domain.ReportOutcome) (status string, result []byte, message string, err error) {
	var applied domain.Report
	applied.Apply(outcome, time.Time{})
	result, err = encodeResult(applied.Result)
	if err != nil {
		return "", nil, "", err
	}
	return string(applied.Status), result, applied.ErrorMessage, nil
}

func encodeResult(result *domain.ClusteringResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode report result: %w", err)
	}
	return encoded, nil
}

func decodeResult(raw []byte) (*domain.ClusteringResult, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var result domain.ClusteringResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode report result: %w", err)
	}
	if result.Questions == nil {
		result.Questions = []domain.QuestionFrequency{}
	}
	return &result, nil
}

// MemoryReportsRepository keeps reports in process memory. Reports are lost
// on restart.
type MemoryReportsRepository struct {
	mu      sync.RWMutex
	reports map[string]*domain.Report
	now     Clock
}

func NewMemoryReportsRepository() *MemoryReportsRepository {
	return &MemoryReportsRepository{
		reports: make(map[string]*domain.Report),
		now:     systemClock,
	}
}

func (r *MemoryReportsRepository) Create(_ context.Context, id, rangeLabel string, topN int) (*domain.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reports[id]; exists {
		return nil, ErrDuplicateID
	}
	report := newPendingReport(id, rangeLabel, topN, r.now())
	r.reports[id] = report
	return report.Clone(), nil
}

func (r *MemoryReportsRepository) Update(_ context.Context, id string, outcome domain.ReportOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	report, ok := r.reports[id]
	if !ok {
		return ErrNotFound
	}
	updated := report.Clone()
	updated.Apply(outcome, r.now())
	r.reports[id] = updated
	return nil
}

func (r *MemoryReportsRepository) Get(_ context.Context, id string) (*domain.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, ok := r.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return report.Clone(), nil
}

func (r *MemoryReportsRepository) Cleanup(_ context.Context, maxAge time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	removed := 0
	for id, report := range r.reports {
		if report.CreatedAt.Before(cutoff) {
			delete(r.reports, id)
			removed++
		}
	}
	return removed, nil
}
