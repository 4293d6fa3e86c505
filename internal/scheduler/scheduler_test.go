package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/hybrid"
	"github.com/khannas43/smart-eligibility/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBatches struct {
	reqs []hybrid.BatchRequest
	fail string
}

func (f *fakeBatches) Run(ctx context.Context, req hybrid.BatchRequest) (*domain.BatchJob, error) {
	f.reqs = append(f.reqs, req)
	if req.SchemeCode == f.fail {
		return nil, errors.New("repository down")
	}
	return &domain.BatchJob{ID: "job-" + req.SchemeCode, SchemeCode: req.SchemeCode, Status: domain.JobCompleted}, nil
}

type fakeDetection struct {
	schemes []string
}

func (f *fakeDetection) RunScheme(ctx context.Context, schemeCode string) (*domain.DetectionRun, error) {
	f.schemes = append(f.schemes, schemeCode)
	return &domain.DetectionRun{ID: "run-" + schemeCode, SchemeCode: schemeCode, Checked: 3, Flagged: 1}, nil
}

func TestNew(t *testing.T) {
	t.Run("RegistersSchedules", func(t *testing.T) {
		s, err := New(domain.SchedulerConfig{
			BatchSchedule:     "0 2 * * *",
			DetectionSchedule: "@weekly",
		}, &fakeBatches{}, &fakeDetection{}, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, s.Entries())

		s.Start()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, s.Stop(ctx))
	})

	t.Run("EmptySchedulesDisabled", func(t *testing.T) {
		s, err := New(domain.SchedulerConfig{BatchSchedule: "  "}, &fakeBatches{}, &fakeDetection{}, nil)
		require.NoError(t, err)
		assert.Zero(t, s.Entries())
	})

	t.Run("MissingRunnerDisables", func(t *testing.T) {
		s, err := New(domain.SchedulerConfig{BatchSchedule: "0 2 * * *", DetectionSchedule: "0 3 * * *"}, &fakeBatches{}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, s.Entries())
	})

	t.Run("InvalidSchedule", func(t *testing.T) {
		_, err := New(domain.SchedulerConfig{DetectionSchedule: "every tuesday"}, &fakeBatches{}, &fakeDetection{}, nil)
		assert.ErrorContains(t, err, "invalid detection schedule")
	})
}

func TestRunBatches(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	batches := &fakeBatches{fail: "WIDOW"}
	s, err := New(domain.SchedulerConfig{Schemes: []string{"OAP", "WIDOW", "HOUSING"}, UseML: true}, batches, nil, m)
	require.NoError(t, err)

	err = s.RunBatches(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "batch WIDOW")

	require.Len(t, batches.reqs, 3)
	for _, req := range batches.reqs {
		assert.True(t, req.UseML)
		assert.Empty(t, req.FamilyIDs)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SchedulerRuns.WithLabelValues(JobBatch, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerRuns.WithLabelValues(JobBatch, "error")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batches.reqs = nil
	assert.ErrorIs(t, s.RunBatches(ctx), context.Canceled)
	assert.Empty(t, batches.reqs)
}

func TestRunDetection(t *testing.T) {
	det := &fakeDetection{}
	s, err := New(domain.SchedulerConfig{Schemes: []string{"OAP", "WIDOW"}}, nil, det, nil)
	require.NoError(t, err)

	require.NoError(t, s.RunDetection(context.Background()))
	assert.Equal(t, []string{"OAP", "WIDOW"}, det.schemes)
}
