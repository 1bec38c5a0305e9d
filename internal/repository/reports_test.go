package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iago/question-insights-back/internal/domain"
)

var baseTime = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

// exerciseReportsRepository runs the shared store behaviour against one
// backend. setClock swaps the backend's clock.
func exerciseReportsRepository(t *testing.T, repo ReportsRepository, setClock func(Clock)) {
	t.Helper()
	ctx := context.Background()
	now := baseTime
	setClock(func() time.Time { return now })

	completedID := uuid.NewString()
	created, err := repo.Create(ctx, completedID, "last7", 5)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != domain.ReportStatusPending || created.Result != nil || created.ErrorMessage != "" {
		t.Fatalf("expected clean pending report, got %+v", created)
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("expected equal timestamps on create, got %v / %v", created.CreatedAt, created.UpdatedAt)
	}

	if _, err := repo.Create(ctx, completedID, "last7", 5); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	pending, err := repo.Get(ctx, completedID)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if pending.Status != domain.ReportStatusPending || pending.Range != "last7" || pending.TopN != 5 {
		t.Fatalf("unexpected pending report %+v", pending)
	}
	if pending.Result != nil || pending.ErrorMessage != "" {
		t.Fatalf("pending report must carry neither result nor error: %+v", pending)
	}

	now = baseTime.Add(time.Minute)
	result := domain.ClusteringResult{
		Questions: []domain.QuestionFrequency{{Question: "where is my order?", Count: 4}},
		Usage:     domain.UsageAccount{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120, EstimatedCost: 0.5},
	}
	if err := repo.Update(ctx, completedID, domain.CompletedOutcome(result)); err != nil {
		t.Fatalf("update completed: %v", err)
	}
	completed, err := repo.Get(ctx, completedID)
	if err != nil {
		t.Fatalf("get completed: %v", err)
	}
	if completed.Status != domain.ReportStatusCompleted || completed.ErrorMessage != "" {
		t.Fatalf("unexpected completed report %+v", completed)
	}
	if completed.Result == nil || len(completed.Result.Questions) != 1 || completed.Result.Questions[0].Count != 4 {
		t.Fatalf("unexpected completed result %+v", completed.Result)
	}
	if completed.Result.Usage != result.Usage {
		t.Fatalf("expected usage %+v, got %+v", result.Usage, completed.Result.Usage)
	}
	if !completed.UpdatedAt.Equal(baseTime.Add(time.Minute)) {
		t.Fatalf("expected refreshed updatedAt, got %v", completed.UpdatedAt)
	}

	failedID := uuid.NewString()
	if _, err := repo.Create(ctx, failedID, "today", 10); err != nil {
		t.Fatalf("create failed report: %v", err)
	}
	// A clock behind createdAt must not push updatedAt before it.
	now = baseTime.Add(-time.Hour)
	if err := repo.Update(ctx, failedID, domain.FailedOutcome("cluster parse error")); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	failed, err := repo.Get(ctx, failedID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if failed.Status != domain.ReportStatusFailed || failed.ErrorMessage != "cluster parse error" || failed.Result != nil {
		t.Fatalf("unexpected failed report %+v", failed)
	}
	if failed.UpdatedAt.Before(failed.CreatedAt) {
		t.Fatalf("updatedAt %v before createdAt %v", failed.UpdatedAt, failed.CreatedAt)
	}

	emptyID := uuid.NewString()
	now = baseTime.Add(time.Minute)
	if _, err := repo.Create(ctx, emptyID, "yesterday", 3); err != nil {
		t.Fatalf("create empty report: %v", err)
	}
	if err := repo.Update(ctx, emptyID, domain.CompletedOutcome(domain.ClusteringResult{})); err != nil {
		t.Fatalf("update empty: %v", err)
	}
	empty, err := repo.Get(ctx, emptyID)
	if err != nil {
		t.Fatalf("get empty: %v", err)
	}
	if empty.Result == nil || empty.Result.Questions == nil {
		t.Fatalf("expected empty but present result, got %+v", empty.Result)
	}

	missing := uuid.NewString()
	if _, err := repo.Get(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on get, got %v", err)
	}
	if err := repo.Update(ctx, missing, domain.FailedOutcome("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}

	oldID := uuid.NewString()
	now = baseTime.Add(-10 * time.Hour)
	if _, err := repo.Create(ctx, oldID, "alltime", 10); err != nil {
		t.Fatalf("create old report: %v", err)
	}
	now = baseTime.Add(time.Minute)
	removed, err := repo.Cleanup(ctx, 5*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one report removed, got %d", removed)
	}
	if _, err := repo.Get(ctx, oldID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old report to be gone, got %v", err)
	}
	if _, err := repo.Get(ctx, completedID); err != nil {
		t.Fatalf("expected recent report to survive cleanup: %v", err)
	}
}

func TestMemoryReportsRepository(t *testing.T) {
	repo := NewMemoryReportsRepository()
	exerciseReportsRepository(t, repo, func(c Clock) { repo.now = c })
}

func TestMemoryReportsRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryReportsRepository()
	ctx := context.Background()
	if _, err := repo.Create(ctx, "r1", "today", 5); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, _ := repo.Get(ctx, "r1")
	got.Status = domain.ReportStatusFailed

	again, _ := repo.Get(ctx, "r1")
	if again.Status != domain.ReportStatusPending {
		t.Fatalf("expected stored report to be isolated from callers")
	}
}

func TestRedisReportsRepository(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newRedisReportsRepository(client, "test")
	exerciseReportsRepository(t, repo, func(c Clock) { repo.now = c })

	if !server.Exists("test:reports:created") {
		t.Fatalf("expected created-at index to exist")
	}
}

func TestRedisCreateRemovesReportWhenIndexFails(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// A string under the index key makes ZADD fail with WRONGTYPE.
	if err := server.Set("test:reports:created", "not-a-zset"); err != nil {
		t.Fatalf("seed index key: %v", err)
	}
	repo := newRedisReportsRepository(client, "test")

	if _, err := repo.Create(context.Background(), "r-orphan", "last7", 5); err == nil {
		t.Fatalf("expected create to fail when the index write fails")
	}
	if server.Exists("test:report:r-orphan") {
		t.Fatalf("expected report key to be removed after failed index write")
	}
	if _, err := repo.Get(context.Background(), "r-orphan"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewRedisReportsRepositoryRequiresAddr(t *testing.T) {
	if _, err := NewRedisReportsRepository(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error without address")
	}
}

func TestSQLiteReportsRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reports.db")
	repo, err := NewSQLiteReportsRepository(context.Background(), path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	exerciseReportsRepository(t, repo, func(c Clock) { repo.now = c })
}

func TestSQLiteReportsRepositorySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reports.db")

	repo, err := NewSQLiteReportsRepository(ctx, path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := repo.Create(ctx, "persisted", "last30", 7); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteReportsRepository(ctx, path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer reopened.Close()

	report, err := reopened.Get(ctx, "persisted")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if report.Range != "last30" || report.TopN != 7 {
		t.Fatalf("unexpected report after reopen %+v", report)
	}
}

func TestPostgresReportsRepository(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	repo, err := NewPostgresReportsRepository(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(repo.Close)
	if _, err := repo.pool.Exec(ctx, `DELETE FROM reports`); err != nil {
		t.Fatalf("reset reports table: %v", err)
	}

	exerciseReportsRepository(t, repo, func(c Clock) { repo.now = c })
}
