// Package analysis runs one report job: ingest the window's transcripts,
// batch their questions by day, cluster every batch and merge the results.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iago/question-insights-back/internal/clustering"
	"github.com/iago/question-insights-back/internal/domain"
	"github.com/iago/question-insights-back/internal/logging"
	"github.com/iago/question-insights-back/internal/questions"
	"github.com/iago/question-insights-back/internal/transcripts"
	"github.com/iago/question-insights-back/internal/window"
)

type Ingester interface {
	Ingest(ctx context.Context, creds transcripts.Credentials, windowToken string) ([]domain.Dialog, error)
}

type Clusterer interface {
	Cluster(ctx context.Context, questions []string, topN int) (domain.ClusteringResult, error)
}

// Job is everything a pipeline run needs; nothing is read from globals.
type Job struct {
	ReportID    string
	Window      window.Window
	TopN        int
	Credentials transcripts.Credentials
}

type Config struct {
	BatchDelay time.Duration
	Sleep      transcripts.SleepFunc
	Logger     zerolog.Logger
}

type Pipeline struct {
	ingester   Ingester
	batcher    *questions.Batcher
	clusterer  Clusterer
	batchDelay time.Duration
	sleep      transcripts.SleepFunc
	logger     zerolog.Logger
}

func NewPipeline(ingester Ingester, clusterer Clusterer, config Config) *Pipeline {
	if config.Sleep == nil {
		config.Sleep = transcripts.Sleep
	}
	return &Pipeline{
		ingester:   ingester,
		batcher:    questions.NewBatcher(config.Logger),
		clusterer:  clusterer,
		batchDelay: config.BatchDelay,
		sleep:      config.Sleep,
		logger:     config.Logger,
	}
}

// Run processes batches one at a time with a pause between cluster calls.
// Any error aborts the job.
func (p *Pipeline) Run(ctx context.Context, job Job) (domain.ClusteringResult, error) {
	logger := logging.Ctx(ctx, p.logger)
	started := time.Now()

	dialogs, err := p.ingester.Ingest(ctx, job.Credentials, job.Window.Token)
	if err != nil {
		return domain.ClusteringResult{}, err
	}

	batches := p.batcher.Batch(dialogs, job.Window)
	logger.Info().
		Int("dialogs", len(dialogs)).
		Int("batches", len(batches)).
		Msg("questions batched")

	results := make([]domain.ClusteringResult, 0, len(batches))
	for i, batch := range batches {
		if i > 0 {
			if err := p.sleep(ctx, p.batchDelay); err != nil {
				return domain.ClusteringResult{}, err
			}
		}
		result, err := p.clusterer.Cluster(ctx, batch.Questions, job.TopN)
		if err != nil {
			if batch.Day != "" {
				return domain.ClusteringResult{}, fmt.Errorf("cluster batch %s: %w", batch.Day, err)
			}
			return domain.ClusteringResult{}, fmt.Errorf("cluster batch: %w", err)
		}
		results = append(results, result)
	}

	aggregated := clustering.Aggregate(results, job.TopN)
	logger.Info().
		Int("questions", len(aggregated.Questions)).
		Int("total_tokens", aggregated.Usage.TotalTokens).
		Float64("estimated_cost", aggregated.Usage.EstimatedCost).
		Dur("elapsed", time.Since(started)).
		Msg("analysis finished")
	return aggregated, nil
}
