package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iago/question-insights-back/internal/domain"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisReportsRepository stores each report as one JSON string and keeps a
// sorted set of ids scored by creation time for cleanup.
type RedisReportsRepository struct {
	client *redis.Client
	prefix string
	now    Clock
}

type redisReport struct {
	ID           string          `json:"id"`
	Range        string          `json:"range"`
	TopN         int             `json:"topN"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func NewRedisReportsRepository(ctx context.Context, cfg RedisConfig) (*RedisReportsRepository, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedisReportsRepository(client, cfg.Prefix), nil
}

func newRedisReportsRepository(client *redis.Client, prefix string) *RedisReportsRepository {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "qi"
	}
	return &RedisReportsRepository{client: client, prefix: prefix, now: systemClock}
}

func (r *RedisReportsRepository) Close() error {
	return r.client.Close()
}

func (r *RedisReportsRepository) reportKey(id string) string {
	return r.prefix + ":report:" + id
}

func (r *RedisReportsRepository) indexKey() string {
	return r.prefix + ":reports:created"
}

func (r *RedisReportsRepository) Create(ctx context.Context, id, rangeLabel string, topN int) (*domain.Report, error) {
	report := newPendingReport(id, rangeLabel, topN, r.now())
	encoded, err := json.Marshal(redisReport{
		ID:        report.ID,
		Range:     report.Range,
		TopN:      report.TopN,
		Status:    string(report.Status),
		CreatedAt: report.CreatedAt,
		UpdatedAt: report.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.reportKey(id), encoded, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	if !created {
		return nil, ErrDuplicateID
	}
	if err := r.client.ZAdd(ctx, r.indexKey(), redis.Z{
		Score:  float64(report.CreatedAt.UnixMilli()),
		Member: id,
	}).Err(); err != nil {
		// An unindexed key would never be cleaned up.
		if delErr := r.client.Del(context.WithoutCancel(ctx), r.reportKey(id)).Err(); delErr != nil {
			return nil, fmt.Errorf("index report: %w (rollback: %v)", err, delErr)
		}
		return nil, fmt.Errorf("index report: %w", err)
	}
	return report, nil
}

// Update replaces the stored JSON with a single SET XX, so a concurrent Get
// sees either the old or the new document.
func (r *RedisReportsRepository) Update(ctx context.Context, id string, outcome domain.ReportOutcome) error {
	current, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	status, result, message, err := outcomeColumns(outcome)
	if err != nil {
		return err
	}

	updatedAt := r.now()
	if updatedAt.Before(current.CreatedAt) {
		updatedAt = current.CreatedAt
	}
	current.Status = status
	current.Result = result
	current.ErrorMessage = message
	current.UpdatedAt = updatedAt

	encoded, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	err = r.client.SetArgs(ctx, r.reportKey(id), encoded, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	return nil
}

func (r *RedisReportsRepository) Get(ctx context.Context, id string) (*domain.Report, error) {
	stored, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := decodeResult(stored.Result)
	if err != nil {
		return nil, err
	}
	return &domain.Report{
		ID:           stored.ID,
		Range:        stored.Range,
		TopN:         stored.TopN,
		Status:       domain.ReportStatus(stored.Status),
		Result:       result,
		ErrorMessage: stored.ErrorMessage,
		CreatedAt:    stored.CreatedAt,
		UpdatedAt:    stored.UpdatedAt,
	}, nil
}

func (r *RedisReportsRepository) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := r.now().Add(-maxAge).UnixMilli()
	ids, err := r.client.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list expired reports: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.reportKey(id))
		members = append(members, id)
	}

	var deleted *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, r.indexKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup reports: %w", err)
	}
	return int(deleted.Val()), nil
}

func (r *RedisReportsRepository) load(ctx context.Context, id string) (*redisReport, error) {
	raw, err := r.client.Get(ctx, r.reportKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	var stored redisReport
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &stored, nil
}
