package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/question-insights-back/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id            TEXT PRIMARY KEY,
	range_label   TEXT NOT NULL,
	top_n         INTEGER NOT NULL,
	status        TEXT NOT NULL,
	result        JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_created_at_idx ON reports (created_at);
`

type PostgresReportsRepository struct {
	pool *pgxpool.Pool
	now  Clock
}

func NewPostgresReportsRepository(ctx context.Context, databaseURL string) (*PostgresReportsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	repo := &PostgresReportsRepository{pool: pool, now: systemClock}
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *PostgresReportsRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create reports schema: %w", err)
	}
	return nil
}

func (r *PostgresReportsRepository) Close() {
	r.pool.Close()
}

func (r *PostgresReportsRepository) Create(ctx context.Context, id, rangeLabel string, topN int) (*domain.Report, error) {
	report := newPendingReport(id, rangeLabel, topN, r.now())
	command, err := r.pool.Exec(ctx, `
		INSERT INTO reports (id, range_label, top_n, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, report.ID, report.Range, report.TopN, string(report.Status), report.CreatedAt, report.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	if command.RowsAffected() == 0 {
		return nil, ErrDuplicateID
	}
	return report, nil
}

// Update rewrites the row in one statement so readers never observe a
// partial change. updated_at is clamped to created_at.
func (r *PostgresReportsRepository) Update(ctx context.Context, id string, outcome domain.ReportOutcome) error {
	status, result, message, err := outcomeColumns(outcome)
	if err != nil {
		return err
	}

	command, err := r.pool.Exec(ctx, `
		UPDATE reports
		SET status = $2,
			result = $3,
			error_message = $4,
			updated_at = GREATEST($5, created_at)
		WHERE id = $1
	`, id, status, result, message, r.now())
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresReportsRepository) Get(ctx context.Context, id string) (*domain.Report, error) {
	var (
		report domain.Report
		status string
		result []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, range_label, top_n, status, result, error_message, created_at, updated_at
		FROM reports
		WHERE id = $1
	`, id).Scan(
		&report.ID,
		&report.Range,
		&report.TopN,
		&status,
		&result,
		&report.ErrorMessage,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query report: %w", err)
	}

	report.Status = domain.ReportStatus(status)
	if report.Result, err = decodeResult(result); err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *PostgresReportsRepository) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	command, err := r.pool.Exec(ctx, `DELETE FROM reports WHERE created_at < $1`, r.now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("cleanup reports: %w", err)
	}
	return int(command.RowsAffected()), nil
}
