// Package scheduler runs batch evaluations and detection passes on cron
// schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/hybrid"
	"github.com/khannas43/smart-eligibility/internal/metrics"
	"github.com/robfig/cron/v3"
)

// Job names.
const (
	JobBatch     = "batch"
	JobDetection = "detection"
)

// BatchRunner runs one batch evaluation.
type BatchRunner interface {
	Run(ctx context.Context, req hybrid.BatchRequest) (*domain.BatchJob, error)
}

// DetectionRunner runs a detection pass over a scheme.
type DetectionRunner interface {
	RunScheme(ctx context.Context, schemeCode string) (*domain.DetectionRun, error)
}

// Scheduler owns the cron entries of the unattended jobs.
type Scheduler struct {
	cron     *cron.Cron
	cfg      domain.SchedulerConfig
	batches  BatchRunner
	detector DetectionRunner
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

// parser accepts standard 5-field expressions and descriptors like @daily.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New registers the configured schedules. An empty schedule disables its job;
// an invalid one is an error. Overlapping runs of the same job are skipped.
func New(cfg domain.SchedulerConfig, batches BatchRunner, detector DetectionRunner, m *metrics.Metrics) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		cfg:      cfg,
		batches:  batches,
		detector: detector,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := s.add(JobBatch, cfg.BatchSchedule, batches != nil, s.RunBatches); err != nil {
		cancel()
		return nil, err
	}
	if err := s.add(JobDetection, cfg.DetectionSchedule, detector != nil, s.RunDetection); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) add(job, spec string, enabled bool, run func(context.Context) error) error {
	spec = strings.TrimSpace(spec)
	if spec == "" || !enabled {
		slog.Info("scheduled job disabled", "job", job)
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { _ = run(s.ctx) }); err != nil {
		return fmt.Errorf("invalid %s schedule %q: %w", job, spec, err)
	}
	slog.Info("scheduled job registered", "job", job, "schedule", spec)
	return nil
}

// Start starts the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// RunBatches evaluates every family against each configured scheme, one
// scheme at a time. A failing scheme does not stop the others.
func (s *Scheduler) RunBatches(ctx context.Context) error {
	var errs []error
	for _, scheme := range s.cfg.Schemes {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		start := time.Now()
		job, err := s.batches.Run(ctx, hybrid.BatchRequest{SchemeCode: scheme, UseML: s.cfg.UseML})
		if err != nil {
			s.metrics.IncrementSchedulerRuns(JobBatch, "error")
			slog.Error("scheduled batch failed", "scheme_code", scheme, "error", err)
			errs = append(errs, fmt.Errorf("batch %s: %w", scheme, err))
			continue
		}
		s.metrics.IncrementSchedulerRuns(JobBatch, "ok")
		slog.Info("scheduled batch finished",
			"scheme_code", scheme,
			"job_id", job.ID,
			"status", job.Status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return errors.Join(errs...)
}

// RunDetection runs a detection pass over each configured scheme.
func (s *Scheduler) RunDetection(ctx context.Context) error {
	var errs []error
	for _, scheme := range s.cfg.Schemes {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		run, err := s.detector.RunScheme(ctx, scheme)
		if err != nil {
			s.metrics.IncrementSchedulerRuns(JobDetection, "error")
			slog.Error("scheduled detection failed", "scheme_code", scheme, "error", err)
			errs = append(errs, fmt.Errorf("detection %s: %w", scheme, err))
			continue
		}
		s.metrics.IncrementSchedulerRuns(JobDetection, "ok")
		slog.Info("scheduled detection finished",
			"scheme_code", scheme,
			"run_id", run.ID,
			"checked", run.Checked,
			"flagged", run.Flagged,
		)
	}
	return errors.Join(errs...)
}
