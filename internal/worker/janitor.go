package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Cleaner interface {
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

type JanitorConfig struct {
	Interval  time.Duration
	Retention time.Duration
	Logger    zerolog.Logger
}

// Janitor deletes reports older than the retention on a fixed interval.
type Janitor struct {
	cleaner   Cleaner
	interval  time.Duration
	retention time.Duration
	logger    zerolog.Logger
}

func NewJanitor(cleaner Cleaner, config JanitorConfig) *Janitor {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Minute
	}
	return &Janitor{
		cleaner:   cleaner,
		interval:  config.Interval,
		retention: config.Retention,
		logger:    config.Logger,
	}
}

func (j *Janitor) Enabled() bool {
	return j.retention > 0
}

// Start runs until ctx is cancelled. It does nothing when retention is off.
func (j *Janitor) Start(ctx context.Context) {
	if !j.Enabled() {
		return
	}
	for {
		timer := time.NewTimer(j.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		_, _ = j.RunOnce(ctx)
	}
}

func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	removed, err := j.cleaner.Cleanup(ctx, j.retention)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Warn().Err(err).Msg("report cleanup failed")
		}
		return 0, err
	}
	if removed > 0 {
		j.logger.Info().Int("removed", removed).Dur("retention", j.retention).Msg("expired reports removed")
	}
	return removed, nil
}
