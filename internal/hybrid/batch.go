package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// BatchRequest selects the families of a batch run. When FamilyIDs is empty
// every family of DistrictID (or of all districts) is evaluated.
type BatchRequest struct {
	SchemeCode string   `json:"schemeCode"`
	DistrictID string   `json:"districtId,omitempty"`
	FamilyIDs  []string `json:"familyIds,omitempty"`
	UseML      bool     `json:"useML"`
	Workers    int      `json:"workers,omitempty"`
}

// FamilyLister lists the families of a district.
type FamilyLister interface {
	ListFamilyIDs(ctx context.Context, districtID string) ([]string, error)
}

// Recorder evaluates and records one (family, scheme) pair.
type Recorder interface {
	EvaluateAndRecord(ctx context.Context, schemeCode, familyID string, useML bool) (*domain.EvaluationResult, error)
}

// Runner executes batch evaluations and tracks their progress in a job row.
type Runner struct {
	eval          Recorder
	families      FamilyLister
	jobs          domain.BatchJobStore
	progressEvery int
	workers       int
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewRunner creates a batch runner.
func NewRunner(eval Recorder, families FamilyLister, jobs domain.BatchJobStore, defaults domain.EngineDefaults, m *metrics.Metrics) *Runner {
	r := &Runner{
		eval:          eval,
		families:      families,
		jobs:          jobs,
		progressEvery: defaults.ProgressEvery,
		workers:       defaults.BatchWorkers,
		metrics:       m,
		now:           time.Now,
	}
	if r.progressEvery <= 0 {
		r.progressEvery = 100
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	return r
}

// Run evaluates every selected family and returns the finished job.
// A failed snapshot write is counted and the run continues. A cancelled
// context stops the run and leaves the job CANCELLED.
func (r *Runner) Run(ctx context.Context, req BatchRequest) (*domain.BatchJob, error) {
	job, ids, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return job, r.execute(ctx, job, ids, req)
}

// Start creates the job and runs it in the background. The returned job is
// the initial RUNNING row.
func (r *Runner) Start(ctx context.Context, req BatchRequest) (*domain.BatchJob, error) {
	job, ids, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := *job

	go func() {
		if err := r.execute(context.WithoutCancel(ctx), job, ids, req); err != nil {
			slog.Error("batch job failed", "job_id", job.ID, "error", err)
		}
	}()
	return &snapshot, nil
}

func (r *Runner) prepare(ctx context.Context, req BatchRequest) (*domain.BatchJob, []string, error) {
	if req.SchemeCode == "" {
		return nil, nil, fmt.Errorf("scheme code is required: %w", domain.ErrInvalidInput)
	}

	ids := req.FamilyIDs
	if len(ids) == 0 {
		var err error
		ids, err = r.families.ListFamilyIDs(ctx, req.DistrictID)
		if err != nil {
			return nil, nil, fmt.Errorf("list families: %w", err)
		}
	}

	job := &domain.BatchJob{
		ID:         uuid.New().String(),
		SchemeCode: req.SchemeCode,
		DistrictID: req.DistrictID,
		Status:     domain.JobRunning,
		Total:      len(ids),
		StartedAt:  r.now().UTC(),
	}
	if r.jobs != nil {
		if err := r.jobs.CreateBatchJob(ctx, job); err != nil {
			return nil, nil, &domain.PersistenceError{Op: "create batch job", Cause: err}
		}
	}

	slog.Info("batch job started",
		"job_id", job.ID,
		"scheme_code", job.SchemeCode,
		"district_id", job.DistrictID,
		"total", job.Total,
	)
	return job, ids, nil
}

func (r *Runner) execute(ctx context.Context, job *domain.BatchJob, ids []string, req BatchRequest) error {
	workers := req.Workers
	if workers <= 0 {
		workers = r.workers
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := r.eval.EvaluateAndRecord(gctx, req.SchemeCode, id, req.UseML)

			mu.Lock()
			defer mu.Unlock()
			job.Tally(res)
			if err != nil {
				job.PersistFailures++
			}
			if job.Processed%r.progressEvery == 0 {
				r.update(gctx, job)
			}
			return nil
		})
	}
	_ = g.Wait()

	finished := r.now().UTC()
	job.FinishedAt = &finished
	switch {
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(ctx.Err(), context.DeadlineExceeded):
		job.Status = domain.JobCancelled
		job.Message = ctx.Err().Error()
	default:
		job.Status = domain.JobCompleted
	}

	r.metrics.ObserveBatchJob(job.Status, job.Processed)
	slog.Info("batch job finished",
		"job_id", job.ID,
		"status", job.Status,
		"processed", job.Processed,
		"eligible", job.Eligible,
		"possible", job.Possible,
		"ineligible", job.Ineligible,
		"errors", job.Errors,
		"persist_failures", job.PersistFailures,
	)

	if r.jobs == nil {
		return nil
	}
	if err := r.jobs.UpdateBatchJob(context.WithoutCancel(ctx), job); err != nil {
		return &domain.PersistenceError{Op: "update batch job", Cause: err}
	}
	return nil
}

// update writes intermediate progress. Failures are logged only.
func (r *Runner) update(ctx context.Context, job *domain.BatchJob) {
	if r.jobs == nil {
		return
	}
	if err := r.jobs.UpdateBatchJob(ctx, job); err != nil {
		slog.Warn("failed to record batch progress", "job_id", job.ID, "error", err)
		return
	}
	slog.Debug("batch progress", "job_id", job.ID, "processed", job.Processed, "total", job.Total)
}
