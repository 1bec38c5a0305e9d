package transcripts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iago/question-insights-back/internal/domain"
	"github.com/iago/question-insights-back/internal/logging"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type IngestorConfig struct {
	FetchDelay time.Duration
	Sleep      SleepFunc
	Logger     zerolog.Logger
}

// Ingestor lists the transcripts of a window and fetches their dialogs one
// at a time, skipping transcripts that fail to load.
type Ingestor struct {
	source     Source
	fetchDelay time.Duration
	sleep      SleepFunc
	logger     zerolog.Logger
}

func NewIngestor(source Source, config IngestorConfig) *Ingestor {
	if config.Sleep == nil {
		config.Sleep = Sleep
	}
	return &Ingestor{
		source:     source,
		fetchDelay: config.FetchDelay,
		sleep:      config.Sleep,
		logger:     config.Logger,
	}
}

func (i *Ingestor) Ingest(ctx context.Context, creds Credentials, windowToken string) ([]domain.Dialog, error) {
	summaries, err := i.source.ListSummaries(ctx, creds, windowToken)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && (statusErr.Unauthorized() || statusErr.NotFound()) {
			return nil, ClassifyCredentialError(err)
		}
		return nil, fmt.Errorf("%w: list transcripts: %w", domain.ErrIngestion, err)
	}

	logger := logging.Ctx(ctx, i.logger)
	dialogs := make([]domain.Dialog, 0, len(summaries))
	skipped := 0
	for index, summary := range summaries {
		if index > 0 {
			if err := i.sleep(ctx, i.fetchDelay); err != nil {
				return nil, err
			}
		}

		turns, err := i.source.FetchDialog(ctx, creds, summary.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			skipped++
			logger.Warn().
				Err(err).
				Str("transcript_id", summary.ID).
				Msg("transcript fetch failed, skipping")
			continue
		}
		dialogs = append(dialogs, domain.Dialog{TranscriptID: summary.ID, Turns: turns})
	}

	logger.Debug().
		Int("listed", len(summaries)).
		Int("fetched", len(dialogs)).
		Int("skipped", skipped).
		Msg("transcripts ingested")
	return dialogs, nil
}
