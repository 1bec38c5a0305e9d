// Package worker runs detached report jobs and periodic housekeeping.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/iago/question-insights-back/internal/domain"
	"github.com/iago/question-insights-back/internal/logging"
)

// Task computes a report result. It runs once and is never retried.
type Task func(ctx context.Context) (domain.ClusteringResult, error)

// OutcomeWriter receives the terminal write of a report.
type OutcomeWriter interface {
	Update(ctx context.Context, id string, outcome domain.ReportOutcome) error
}

type DispatcherConfig struct {
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// Dispatcher starts one goroutine per report and writes its outcome once.
type Dispatcher struct {
	store        OutcomeWriter
	writeTimeout time.Duration
	logger       zerolog.Logger
	wg           sync.WaitGroup
	inFlight     atomic.Int64
}

type taskResult struct {
	result domain.ClusteringResult
	err    error
}

func NewDispatcher(store OutcomeWriter, config DispatcherConfig) *Dispatcher {
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	return &Dispatcher{
		store:        store,
		writeTimeout: config.WriteTimeout,
		logger:       config.Logger,
	}
}

// Dispatch returns immediately. The task sees ctx values but not its
// cancellation, so an aborted request does not abort the job.
func (d *Dispatcher) Dispatch(ctx context.Context, reportID string, task Task) {
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	d.inFlight.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.inFlight.Add(-1)

		done := make(chan taskResult, 1)
		go run(detached, task, done)
		d.finish(detached, reportID, <-done)
	}()
}

func run(ctx context.Context, task Task, done chan<- taskResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			done <- taskResult{err: fmt.Errorf("analysis panicked: %v", recovered)}
		}
	}()
	result, err := task(ctx)
	done <- taskResult{result: result, err: err}
}

func (d *Dispatcher) finish(ctx context.Context, reportID string, outcome taskResult) {
	logger := logging.Ctx(ctx, d.logger).With().Str("report_id", reportID).Logger()

	write := domain.CompletedOutcome(outcome.result)
	if outcome.err != nil {
		write = domain.FailedOutcome(outcome.err.Error())
		logger.Warn().Err(outcome.err).Msg("report failed")
	}

	writeCtx, cancel := context.WithTimeout(ctx, d.writeTimeout)
	defer cancel()
	if err := d.store.Update(writeCtx, reportID, write); err != nil {
		// The job's outcome is lost to pollers; the report stays pending.
		logger.Error().Err(err).
			Str("status", string(write.Status)).
			Bool("alarm", true).
			Msg("terminal report write failed")
		return
	}
	logger.Info().Str("status", string(write.Status)).Msg("report finished")
}

func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Wait blocks until every dispatched job has written its outcome or ctx
// ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
