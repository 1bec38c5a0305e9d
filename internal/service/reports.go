package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iago/question-insights-back/internal/analysis"
	"github.com/iago/question-insights-back/internal/domain"
	"github.com/iago/question-insights-back/internal/logging"
	"github.com/iago/question-insights-back/internal/repository"
	"github.com/iago/question-insights-back/internal/transcripts"
	"github.com/iago/question-insights-back/internal/window"
	"github.com/iago/question-insights-back/internal/worker"
)

// CredentialProber lists transcript summaries; a cheap call over the
// "today" window is enough to check a key and project.
type CredentialProber interface {
	ListSummaries(ctx context.Context, creds transcripts.Credentials, windowToken string) ([]domain.TranscriptSummary, error)
}

type PipelineRunner interface {
	Run(ctx context.Context, job analysis.Job) (domain.ClusteringResult, error)
}

type TaskDispatcher interface {
	Dispatch(ctx context.Context, reportID string, task worker.Task)
}

type ReportsConfig struct {
	DefaultCredentials transcripts.Credentials
	DefaultTopN        int
	MaxTopN            int
	Location           *time.Location
	Now                func() time.Time
	NewID              func() string
	Logger             zerolog.Logger
}

type SubmitInput struct {
	Range     string
	TopN      int
	APIKey    string
	ProjectID string
}

// ReportsService accepts analyze submissions and serves report state.
type ReportsService struct {
	repo       repository.ReportsRepository
	resolver   *window.Resolver
	prober     CredentialProber
	runner     PipelineRunner
	dispatcher TaskDispatcher
	config     ReportsConfig
}

func NewReportsService(
	repo repository.ReportsRepository,
	resolver *window.Resolver,
	prober CredentialProber,
	runner PipelineRunner,
	dispatcher TaskDispatcher,
	config ReportsConfig,
) *ReportsService {
	if config.DefaultTopN <= 0 {
		config.DefaultTopN = 10
	}
	if config.MaxTopN <= 0 {
		config.MaxTopN = 50
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	return &ReportsService{
		repo:       repo,
		resolver:   resolver,
		prober:     prober,
		runner:     runner,
		dispatcher: dispatcher,
		config:     config,
	}
}

func (s *ReportsService) DefaultTopN() int {
	return s.config.DefaultTopN
}

func (s *ReportsService) MaxTopN() int {
	return s.config.MaxTopN
}

// Submit validates the request and the credentials, stores a pending
// report and starts the analysis in the background. No report is created
// when any check fails.
func (s *ReportsService) Submit(ctx context.Context, input SubmitInput) (*domain.Report, error) {
	label := strings.TrimSpace(input.Range)
	if !s.resolver.Supports(label) {
		return nil, domain.Validationf("unsupported range %q, expected one of %s",
			label, strings.Join(s.resolver.Labels(), ", "))
	}
	if input.TopN < 1 || input.TopN > s.config.MaxTopN {
		return nil, domain.Validationf("top must be between 1 and %d", s.config.MaxTopN)
	}
	creds := transcripts.Credentials{APIKey: input.APIKey, ProjectID: input.ProjectID}.Merge(s.config.DefaultCredentials)
	if creds.APIKey == "" || creds.ProjectID == "" {
		return nil, domain.Validationf("apiKey and projectId are required")
	}

	now := s.config.Now().In(s.config.Location)
	target, err := s.resolver.Resolve(label, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.probe(ctx, creds, now); err != nil {
		return nil, err
	}

	id := s.config.NewID()
	report, err := s.repo.Create(ctx, id, label, input.TopN)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	logger := logging.Ctx(ctx, s.config.Logger).With().Str("report_id", id).Str("range", label).Logger()
	logger.Info().Int("top", input.TopN).Msg("report accepted")

	job := analysis.Job{ReportID: id, Window: target, TopN: input.TopN, Credentials: creds}
	s.dispatcher.Dispatch(logger.WithContext(ctx), id, func(taskCtx context.Context) (domain.ClusteringResult, error) {
		return s.runner.Run(taskCtx, job)
	})
	return report, nil
}

func (s *ReportsService) probe(ctx context.Context, creds transcripts.Credentials, now time.Time) error {
	today, err := s.resolver.Resolve(window.Today, now)
	if err != nil {
		return fmt.Errorf("resolve probe window: %w", err)
	}
	if _, err := s.prober.ListSummaries(ctx, creds, today.Token); err != nil {
		// Only the caller giving up passes through; a slow transcript
		// service is a failed validation like any other.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return transcripts.ClassifyCredentialError(err)
	}
	return nil
}

func (s *ReportsService) Get(ctx context.Context, id string) (*domain.Report, error) {
	return s.repo.Get(ctx, strings.TrimSpace(id))
}

func (s *ReportsService) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	return s.repo.Cleanup(ctx, maxAge)
}
