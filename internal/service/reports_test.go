package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iago/question-insights-back/internal/analysis"
	"github.com/iago/question-insights-back/internal/domain"
	"github.com/iago/question-insights-back/internal/repository"
	"github.com/iago/question-insights-back/internal/transcripts"
	"github.com/iago/question-insights-back/internal/window"
	"github.com/iago/question-insights-back/internal/worker"
)

type stubProber struct {
	err   error
	calls int
	token string
	creds transcripts.Credentials
}

func (p *stubProber) ListSummaries(_ context.Context, creds transcripts.Credentials, token string) ([]domain.TranscriptSummary, error) {
	p.calls++
	p.token = token
	p.creds = creds
	return nil, p.err
}

type stubRunner struct {
	jobs    chan analysis.Job
	release chan struct{}
	result  domain.ClusteringResult
	err     error
}

func newStubRunner() *stubRunner {
	return &stubRunner{jobs: make(chan analysis.Job, 4), release: make(chan struct{})}
}

func (r *stubRunner) Run(_ context.Context, job analysis.Job) (domain.ClusteringResult, error) {
	r.jobs <- job
	<-r.release
	return r.result, r.err
}

type fixture struct {
	repo       *repository.MemoryReportsRepository
	prober     *stubProber
	runner     *stubRunner
	dispatcher *worker.Dispatcher
	service    *ReportsService
}

func newFixture(defaults transcripts.Credentials) *fixture {
	repo := repository.NewMemoryReportsRepository()
	prober := &stubProber{}
	runner := newStubRunner()
	dispatcher := worker.NewDispatcher(repo, worker.DispatcherConfig{})
	svc := NewReportsService(repo, window.NewDefaultResolver(), prober, runner, dispatcher, ReportsConfig{
		DefaultCredentials: defaults,
		MaxTopN:            50,
		Now:                func() time.Time { return time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC) },
	})
	return &fixture{repo: repo, prober: prober, runner: runner, dispatcher: dispatcher, service: svc}
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.dispatcher.Wait(ctx); err != nil {
		t.Fatalf("wait for dispatcher: %v", err)
	}
}

var validCreds = transcripts.Credentials{APIKey: "VF.key", ProjectID: "project-1"}

func TestSubmitCreatesPendingReportAndCompletes(t *testing.T) {
	f := newFixture(validCreds)
	f.runner.result = domain.ClusteringResult{Questions: []domain.QuestionFrequency{{Question: "a", Count: 2}}}

	report, err := f.service.Submit(context.Background(), SubmitInput{Range: "last7", TopN: 5})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if report.ID == "" || report.Status != domain.ReportStatusPending {
		t.Fatalf("expected pending report with id, got %+v", report)
	}

	job := <-f.runner.jobs
	if job.ReportID != report.ID || job.TopN != 5 || job.Window.Token != "Last 7 Days" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Credentials != validCreds {
		t.Fatalf("expected default credentials, got %+v", job.Credentials)
	}

	pending, err := f.service.Get(context.Background(), report.ID)
	if err != nil || pending.Status != domain.ReportStatusPending {
		t.Fatalf("expected pending while running, got %+v err=%v", pending, err)
	}

	close(f.runner.release)
	f.drain(t)

	done, err := f.service.Get(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.Status != domain.ReportStatusCompleted || done.Result == nil || len(done.Result.Questions) != 1 {
		t.Fatalf("expected completed report, got %+v", done)
	}
}

func TestSubmitProbesWithTodayWindowAndOverrides(t *testing.T) {
	f := newFixture(validCreds)
	close(f.runner.release)

	_, err := f.service.Submit(context.Background(), SubmitInput{Range: "last30", TopN: 3, ProjectID: "override"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.drain(t)

	if f.prober.token != "Today" {
		t.Fatalf("expected probe on today window, got %q", f.prober.token)
	}
	if f.prober.creds.ProjectID != "override" || f.prober.creds.APIKey != "VF.key" {
		t.Fatalf("expected per-call override merged with defaults, got %+v", f.prober.creds)
	}
}

func TestSubmitPipelineFailureMarksReportFailed(t *testing.T) {
	f := newFixture(validCreds)
	f.runner.err = errors.New("cluster parse error: missing clusters")
	close(f.runner.release)

	report, err := f.service.Submit(context.Background(), SubmitInput{Range: "today", TopN: 5})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.drain(t)

	failed, _ := f.service.Get(context.Background(), report.ID)
	if failed.Status != domain.ReportStatusFailed || failed.ErrorMessage == "" || failed.Result != nil {
		t.Fatalf("expected failed report, got %+v", failed)
	}
}

func TestSubmitValidationErrors(t *testing.T) {
	cases := map[string]SubmitInput{
		"unknown range": {Range: "fortnight", TopN: 5},
		"zero top":      {Range: "today", TopN: 0},
		"top too large": {Range: "today", TopN: 51},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(validCreds)
			_, err := f.service.Submit(context.Background(), input)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if f.prober.calls != 0 {
				t.Fatalf("expected no credential probe on invalid input")
			}
		})
	}
}

func TestSubmitRequiresCredentials(t *testing.T) {
	f := newFixture(transcripts.Credentials{})
	_, err := f.service.Submit(context.Background(), SubmitInput{Range: "today", TopN: 5, APIKey: "only-key"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitCredentialFailuresCreateNoReport(t *testing.T) {
	cases := []struct {
		status int
		reason domain.CredentialReason
	}{
		{http.StatusUnauthorized, domain.CredentialInvalidKey},
		{http.StatusNotFound, domain.CredentialInvalidProject},
		{http.StatusInternalServerError, domain.CredentialValidationFailed},
	}
	for _, tc := range cases {
		f := newFixture(validCreds)
		ids := 0
		f.service.config.NewID = func() string {
			ids++
			return "fabricated"
		}
		f.prober.err = &transcripts.StatusError{StatusCode: tc.status, Message: "nope"}

		report, err := f.service.Submit(context.Background(), SubmitInput{Range: "last7", TopN: 5})
		if report != nil {
			t.Fatalf("status %d: expected no report, got %+v", tc.status, report)
		}
		var credErr *domain.CredentialError
		if !errors.As(err, &credErr) || credErr.Reason != tc.reason {
			t.Fatalf("status %d: expected reason %q, got %v", tc.status, tc.reason, err)
		}
		if !errors.Is(err, domain.ErrCredential) {
			t.Fatalf("status %d: expected ErrCredential in chain", tc.status)
		}
		if ids != 0 {
			t.Fatalf("status %d: report id must not be generated", tc.status)
		}
		if _, err := f.service.Get(context.Background(), "fabricated"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("status %d: expected not found, got %v", tc.status, err)
		}
	}
}

func TestSubmitCredentialCheckTimeoutIsFailedValidation(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer slow.Close()

	f := newFixture(validCreds)
	client := transcripts.NewClient(transcripts.ClientConfig{BaseURL: slow.URL, Timeout: 50 * time.Millisecond})
	f.service.prober = client

	report, err := f.service.Submit(context.Background(), SubmitInput{Range: "last7", TopN: 5})
	if report != nil {
		t.Fatalf("expected no report, got %+v", report)
	}
	var credErr *domain.CredentialError
	if !errors.As(err, &credErr) || credErr.Reason != domain.CredentialValidationFailed {
		t.Fatalf("expected failed validation, got %v", err)
	}
}

func TestSubmitCanceledCallerIsNotCredentialError(t *testing.T) {
	f := newFixture(validCreds)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.prober.err = context.Canceled

	_, err := f.service.Submit(ctx, SubmitInput{Range: "last7", TopN: 5})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, domain.ErrCredential) {
		t.Fatalf("caller cancellation must not be a credential error")
	}
}

func TestCleanupDelegatesToRepository(t *testing.T) {
	f := newFixture(validCreds)
	removed, err := f.service.Cleanup(context.Background(), time.Hour)
	if err != nil || removed != 0 {
		t.Fatalf("expected empty cleanup, got removed=%d err=%v", removed, err)
	}
}
