package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iago/question-insights-back/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id            TEXT PRIMARY KEY,
	range_label   TEXT NOT NULL,
	top_n         INTEGER NOT NULL,
	status        TEXT NOT NULL,
	result        TEXT,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_created_at_idx ON reports (created_at);
`

// SQLiteReportsRepository is the single-node durable store. Timestamps are
// kept as unix nanoseconds in UTC.
type SQLiteReportsRepository struct {
	db   *sql.DB
	path string
	now  Clock
}

func NewSQLiteReportsRepository(ctx context.Context, path string) (*SQLiteReportsRepository, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create reports schema: %w", err)
	}

	return &SQLiteReportsRepository{db: db, path: path, now: systemClock}, nil
}

func (r *SQLiteReportsRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLiteReportsRepository) Create(ctx context.Context, id, rangeLabel string, topN int) (*domain.Report, error) {
	report := newPendingReport(id, rangeLabel, topN, r.now())
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO reports (id, range_label, top_n, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, report.ID, report.Range, report.TopN, string(report.Status),
		report.CreatedAt.UnixNano(), report.UpdatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	if affected == 0 {
		return nil, ErrDuplicateID
	}
	return report, nil
}

func (r *SQLiteReportsRepository) Update(ctx context.Context, id string, outcome domain.ReportOutcome) error {
	status, result, message, err := outcomeColumns(outcome)
	if err != nil {
		return err
	}

	var resultText sql.NullString
	if result != nil {
		resultText = sql.NullString{String: string(result), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE reports
		SET status = ?,
			result = ?,
			error_message = ?,
			updated_at = MAX(?, created_at)
		WHERE id = ?
	`, status, resultText, message, r.now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteReportsRepository) Get(ctx context.Context, id string) (*domain.Report, error) {
	var (
		report    domain.Report
		status    string
		result    sql.NullString
		createdAt int64
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, range_label, top_n, status, result, error_message, created_at, updated_at
		FROM reports
		WHERE id = ?
	`, id).Scan(&report.ID, &report.Range, &report.TopN, &status, &result, &report.ErrorMessage, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query report: %w", err)
	}

	report.Status = domain.ReportStatus(status)
	report.CreatedAt = time.Unix(0, createdAt).UTC()
	report.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if result.Valid {
		if report.Result, err = decodeResult([]byte(result.String)); err != nil {
			return nil, err
		}
	}
	return &report, nil
}

func (r *SQLiteReportsRepository) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE created_at < ?`, r.now().Add(-maxAge).UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cleanup reports: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup reports: %w", err)
	}
	return int(affected), nil
}
