package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

// fakeSource is an in-memory DetectionSource. When err is set every read fails.
type fakeSource struct {
	enrollments []domain.Enrollment
	statuses    map[string]*domain.BeneficiaryStatus
	incomes     map[string]*domain.IncomeRecord
	limits      map[string]*domain.SchemeLimits
	exclusions  map[string][]string
	err         error
	panicOn     string
}

func (f *fakeSource) ListEnrollmentsByFamily(ctx context.Context, familyID string) ([]domain.Enrollment, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Enrollment
	for _, e := range f.enrollments {
		if e.FamilyID == familyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) ListEnrollmentsByBeneficiary(ctx context.Context, beneficiaryID string) ([]domain.Enrollment, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Enrollment
	for _, e := range f.enrollments {
		if e.BeneficiaryID == beneficiaryID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) ListActiveEnrollmentsByScheme(ctx context.Context, schemeCode string) ([]domain.Enrollment, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Enrollment
	for _, e := range f.enrollments {
		if e.SchemeCode == schemeCode && e.Status == domain.EnrollmentActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) GetBeneficiaryStatus(ctx context.Context, beneficiaryID string) (*domain.BeneficiaryStatus, error) {
	if f.panicOn == "status" {
		panic("status store corrupted")
	}
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.statuses[beneficiaryID]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSource) GetIncomeRecord(ctx context.Context, familyID string) (*domain.IncomeRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.incomes[familyID]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSource) GetSchemeLimits(ctx context.Context, schemeCode string) (*domain.SchemeLimits, error) {
	if f.err != nil {
		return nil, f.err
	}
	if l, ok := f.limits[schemeCode]; ok {
		return l, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSource) ListSchemeExclusions(ctx context.Context, schemeCode string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.exclusions[schemeCode], nil
}

type fakeFamilies struct {
	err error
}

func (f *fakeFamilies) Load(ctx context.Context, familyID string) (*domain.FamilyRecord, error) {
	if f.err != nil {
		return nil, &domain.DataUnavailableError{Entity: "family", ID: familyID, Cause: f.err}
	}
	return &domain.FamilyRecord{FamilyID: familyID, Age: ptr(70)}, nil
}

type fakeRules struct {
	eligible bool
	err      error
}

func (f *fakeRules) EvaluateRules(ctx context.Context, schemeCode string, family *domain.FamilyRecord) (*domain.RuleEvalResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := &domain.RuleEvalResult{RuleEligible: f.eligible}
	if !f.eligible {
		res.MandatoryFails = []string{"AGE"}
	}
	return res, nil
}

type fakeCases struct {
	cases []*domain.DetectedCase
	runs  []domain.DetectionRun
	err   error
}

func (f *fakeCases) SaveDetectedCase(ctx context.Context, c *domain.DetectedCase) error {
	if f.err != nil {
		return f.err
	}
	f.cases = append(f.cases, c)
	return nil
}

func (f *fakeCases) ListDetectedCases(ctx context.Context, schemeCode string, since time.Time) ([]*domain.DetectedCase, error) {
	return f.cases, nil
}

func (f *fakeCases) CreateDetectionRun(ctx context.Context, run *domain.DetectionRun) error {
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeCases) UpdateDetectionRun(ctx context.Context, run *domain.DetectionRun) error {
	f.runs = append(f.runs, *run)
	return nil
}

func cleanSource() *fakeSource {
	return &fakeSource{
		enrollments: []domain.Enrollment{
			{ID: "E-1", BeneficiaryID: "B-1", FamilyID: "F-1", SchemeCode: "OAP", Status: domain.EnrollmentActive, MonthlyAmount: 1000},
		},
		statuses: map[string]*domain.BeneficiaryStatus{
			"B-1": {BeneficiaryID: "B-1", PreviousStatus: "ALIVE", CurrentStatus: "ALIVE"},
		},
		incomes: map[string]*domain.IncomeRecord{
			"F-1": {FamilyID: "F-1", AnnualIncome: 80_000},
		},
		limits: map[string]*domain.SchemeLimits{
			"OAP": {SchemeCode: "OAP", MaxAnnualIncome: ptr(100_000.0), MaxBeneficiariesPerFamily: ptr(1)},
		},
		exclusions: map[string][]string{"OAP": {"WIDOW"}},
	}
}

func newDetector(src *fakeSource, rules *fakeRules, cases domain.CaseStore) *Detector {
	return NewDetector(src, &fakeFamilies{}, rules, cases, domain.DefaultEngineDefaults(), nil)
}

func request() Request {
	return Request{BeneficiaryID: "B-1", FamilyID: "F-1", SchemeCode: "OAP"}
}

func resultByName(t *testing.T, sum *domain.DetectionSummary, name string) domain.RuleDetectionResult {
	t.Helper()
	for _, r := range sum.Results {
		if r.RuleName == name {
			return r
		}
	}
	t.Fatalf("no result for %s", name)
	return domain.RuleDetectionResult{}
}

func TestDetectAllPass(t *testing.T) {
	d := newDetector(cleanSource(), &fakeRules{eligible: true}, nil)
	sum := d.Detect(context.Background(), request())

	require.Len(t, sum.Results, 6)
	for i, r := range sum.Results {
		assert.Equal(t, domain.DetectionChecks[i], r.RuleName)
		assert.True(t, r.Passed, r.RuleName)
	}
	assert.True(t, sum.AllPassed)
	assert.Equal(t, 6, sum.PassedCount)
	assert.Empty(t, sum.CriticalFailures)
	assert.Zero(t, sum.RiskScore)
	assert.Empty(t, sum.CaseType)
	assert.InDelta(t, 12_000, sum.FinancialExposure, 1e-9)
}

func TestDetectDeceased(t *testing.T) {
	src := cleanSource()
	src.statuses["B-1"] = &domain.BeneficiaryStatus{
		BeneficiaryID:  "B-1",
		IsDeceased:     true,
		PreviousStatus: "ALIVE",
		CurrentStatus:  "DECEASED",
	}
	d := newDetector(src, &fakeRules{eligible: true}, nil)
	sum := d.Detect(context.Background(), Request{
		BeneficiaryID:  "B-1",
		FamilyID:       "F-1",
		SchemeCode:     "OAP",
		CurrentBenefit: &domain.BenefitData{MonthlyAmount: 5000},
	})

	status := resultByName(t, sum, domain.CheckStatusChange)
	assert.False(t, status.Passed)
	assert.Equal(t, domain.SeverityCritical, status.Severity)
	assert.True(t, status.ChangeDetected)
	assert.Equal(t, "DECEASED", status.CurrentValue)

	assert.Equal(t, []string{domain.CheckStatusChange}, sum.CriticalFailures)
	assert.Equal(t, 5, sum.PassedCount)
	assert.Equal(t, 1, sum.FailedCount)
	assert.False(t, sum.AllPassed)
	assert.Equal(t, 1.0, sum.RiskScore)
	assert.Equal(t, domain.CaseHardIneligible, sum.CaseType)
	assert.Equal(t, domain.ConfidenceHigh, sum.ConfidenceLevel)
	assert.Equal(t, 1, sum.Priority)
	assert.InDelta(t, 60_000, sum.FinancialExposure, 1e-9)
}

func TestDetectSourceFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	d := NewDetector(src, &fakeFamilies{err: errors.New("connection refused")}, &fakeRules{eligible: true}, nil, domain.DefaultEngineDefaults(), nil)
	sum := d.Detect(context.Background(), request())

	require.Len(t, sum.Results, 6)
	for i, r := range sum.Results {
		assert.Equal(t, domain.DetectionChecks[i], r.RuleName)
		assert.False(t, r.Passed, r.RuleName)
		assert.Equal(t, domain.SeverityHigh, r.Severity, r.RuleName)
		assert.NotEmpty(t, r.Error, r.RuleName)
	}
	assert.Equal(t, 6, sum.FailedCount)
	assert.Equal(t, domain.CaseLowConfidenceFlag, sum.CaseType)
	assert.Equal(t, domain.ConfidenceLow, sum.ConfidenceLevel)
	assert.Zero(t, sum.FinancialExposure)
}

func TestDetectPanicIsIsolated(t *testing.T) {
	src := cleanSource()
	src.panicOn = "status"
	d := newDetector(src, &fakeRules{eligible: true}, nil)
	sum := d.Detect(context.Background(), request())

	require.Len(t, sum.Results, 6)
	status := resultByName(t, sum, domain.CheckStatusChange)
	assert.False(t, status.Passed)
	assert.Equal(t, domain.SeverityHigh, status.Severity)
	assert.Contains(t, status.Error, "panicked")
	assert.Equal(t, 5, sum.PassedCount)
}

func TestDetectMissingDataPasses(t *testing.T) {
	src := &fakeSource{}
	d := NewDetector(src, &fakeFamilies{err: domain.ErrNotFound}, &fakeRules{eligible: true}, nil, domain.DefaultEngineDefaults(), nil)
	sum := d.Detect(context.Background(), request())

	assert.True(t, sum.AllPassed)
	for _, name := range []string{
		domain.CheckEligibilityRecheck,
		domain.CheckSchemeOverlap,
		domain.CheckStatusChange,
		domain.CheckIncomeThreshold,
		domain.CheckFamilyBeneficiaryCap,
	} {
		assert.Equal(t, noData, resultByName(t, sum, name).Detail, name)
	}
}

func TestChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("EligibilityRecheck", func(t *testing.T) {
		d := newDetector(cleanSource(), &fakeRules{eligible: false}, nil)
		r := resultByName(t, d.Detect(ctx, request()), domain.CheckEligibilityRecheck)
		assert.False(t, r.Passed)
		assert.Equal(t, domain.SeverityHigh, r.Severity)
		assert.Equal(t, "INELIGIBLE", r.CurrentValue)
		assert.Contains(t, r.Detail, "AGE")

		d = newDetector(cleanSource(), &fakeRules{err: domain.ErrNoActiveRules}, nil)
		r = resultByName(t, d.Detect(ctx, request()), domain.CheckEligibilityRecheck)
		assert.True(t, r.Passed)
	})

	t.Run("SchemeOverlap", func(t *testing.T) {
		src := cleanSource()
		src.enrollments = append(src.enrollments, domain.Enrollment{
			ID: "E-2", BeneficiaryID: "B-1", FamilyID: "F-1", SchemeCode: "WIDOW", Status: domain.EnrollmentActive,
		})
		sum := newDetector(src, &fakeRules{eligible: true}, nil).Detect(ctx, request())
		r := resultByName(t, sum, domain.CheckSchemeOverlap)
		assert.False(t, r.Passed)
		assert.Equal(t, domain.SeverityCritical, r.Severity)
		assert.Equal(t, "WIDOW", r.CurrentValue)
		assert.Contains(t, sum.CriticalFailures, domain.CheckSchemeOverlap)
	})

	t.Run("DuplicateEnrollment", func(t *testing.T) {
		src := cleanSource()
		src.enrollments = append(src.enrollments, domain.Enrollment{
			ID: "E-3", BeneficiaryID: "B-1", FamilyID: "F-1", SchemeCode: "OAP", Status: domain.EnrollmentActive, MonthlyAmount: 1000,
		})
		sum := newDetector(src, &fakeRules{eligible: true}, nil).Detect(ctx, request())
		r := resultByName(t, sum, domain.CheckDuplicateEnrollment)
		assert.False(t, r.Passed)
		assert.Equal(t, "2", r.CurrentValue)
		assert.Equal(t, domain.CaseLikelyMisTargeted, sum.CaseType)
		assert.InDelta(t, 24_000, sum.FinancialExposure, 1e-9)
	})

	t.Run("Migrated", func(t *testing.T) {
		src := cleanSource()
		src.statuses["B-1"] = &domain.BeneficiaryStatus{IsMigrated: true, PreviousStatus: "RESIDENT", CurrentStatus: "MIGRATED"}
		r := resultByName(t, newDetector(src, &fakeRules{eligible: true}, nil).Detect(ctx, request()), domain.CheckStatusChange)
		assert.False(t, r.Passed)
		assert.Equal(t, domain.SeverityHigh, r.Severity)
	})

	t.Run("IncomeThreshold", func(t *testing.T) {
		src := cleanSource()
		src.incomes["F-1"].AnnualIncome = 150_000
		r := resultByName(t, newDetector(src, &fakeRules{eligible: true}, nil).Detect(ctx, request()), domain.CheckIncomeThreshold)
		assert.False(t, r.Passed)
		assert.Equal(t, domain.SeverityHigh, r.Severity)
		assert.Equal(t, "100000.00", r.PreviousValue)
		assert.Equal(t, "150000.00", r.CurrentValue)

		// Supplied income overrides the recorded one.
		req := request()
		req.CurrentBenefit = &domain.BenefitData{AnnualIncome: ptr(90_000.0)}
		r = resultByName(t, newDetector(src, &fakeRules{eligible: true}, nil).Detect(ctx, req), domain.CheckIncomeThreshold)
		assert.True(t, r.Passed)
	})

	t.Run("IncomeTolerance", func(t *testing.T) {
		src := cleanSource()
		src.incomes["F-1"].AnnualIncome = 105_000
		defaults := domain.DefaultEngineDefaults()
		defaults.IncomeTolerance = 0.1
		d := NewDetector(src, &fakeFamilies{}, &fakeRules{eligible: true}, nil, defaults, nil)
		r := resultByName(t, d.Detect(ctx, request()), domain.CheckIncomeThreshold)
		assert.True(t, r.Passed)
	})

	t.Run("FamilyBeneficiaryLimit", func(t *testing.T) {
		src := cleanSource()
		src.enrollments = append(src.enrollments, domain.Enrollment{
			ID: "E-4", BeneficiaryID: "B-2", FamilyID: "F-1", SchemeCode: "OAP", Status: domain.EnrollmentActive,
		})
		r := resultByName(t, newDetector(src, &fakeRules{eligible: true}, nil).Detect(ctx, request()), domain.CheckFamilyBeneficiaryCap)
		assert.False(t, r.Passed)
		assert.Equal(t, domain.SeverityMedium, r.Severity)
		assert.Equal(t, "2", r.CurrentValue)
	})
}

func TestRiskAggregation(t *testing.T) {
	assert.Equal(t, 1, casePriority(1, 0))
	assert.Equal(t, 4, casePriority(0.7, 0))
	assert.Equal(t, 3, casePriority(0.7, 60_000))
	assert.Equal(t, 10, casePriority(0, 0))

	src := cleanSource()
	src.statuses["B-1"] = &domain.BeneficiaryStatus{IsMigrated: true}
	src.enrollments = append(src.enrollments, domain.Enrollment{
		ID: "E-4", BeneficiaryID: "B-2", FamilyID: "F-1", SchemeCode: "OAP", Status: domain.EnrollmentActive,
	})
	sum := newDetector(src, &fakeRules{eligible: true}, nil).Detect(context.Background(), request())

	// HIGH and MEDIUM: 1 - (1-0.7)*(1-0.4)
	assert.InDelta(t, 0.82, sum.RiskScore, 1e-9)
	assert.Equal(t, domain.CaseLikelyMisTargeted, sum.CaseType)
	assert.Equal(t, domain.ConfidenceMedium, sum.ConfidenceLevel)
}

func TestDetectAndRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("NoCaseWhenClean", func(t *testing.T) {
		cases := &fakeCases{}
		_, c, err := newDetector(cleanSource(), &fakeRules{eligible: true}, cases).DetectAndRecord(ctx, request())
		require.NoError(t, err)
		assert.Nil(t, c)
		assert.Empty(t, cases.cases)
	})

	t.Run("RecordsCase", func(t *testing.T) {
		cases := &fakeCases{}
		sum, c, err := newDetector(cleanSource(), &fakeRules{eligible: false}, cases).DetectAndRecord(ctx, request())
		require.NoError(t, err)
		require.NotNil(t, c)
		require.Len(t, cases.cases, 1)
		assert.Equal(t, domain.CaseStatusOpen, c.Status)
		assert.Equal(t, sum.RiskScore, c.RiskScore)
		assert.Len(t, c.Results, 6)
	})

	t.Run("PersistenceFailure", func(t *testing.T) {
		cases := &fakeCases{err: errors.New("disk full")}
		sum, c, err := newDetector(cleanSource(), &fakeRules{eligible: false}, cases).DetectAndRecord(ctx, request())
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.NotNil(t, sum)
		assert.NotNil(t, c)
	})
}

func TestRunScheme(t *testing.T) {
	src := cleanSource()
	src.enrollments = append(src.enrollments,
		domain.Enrollment{ID: "E-5", BeneficiaryID: "B-9", FamilyID: "F-9", SchemeCode: "OAP", Status: domain.EnrollmentActive, MonthlyAmount: 800},
		domain.Enrollment{ID: "E-6", BeneficiaryID: "B-8", FamilyID: "F-8", SchemeCode: "OAP", Status: "CLOSED"},
	)
	src.statuses["B-9"] = &domain.BeneficiaryStatus{BeneficiaryID: "B-9", IsDeceased: true}

	cases := &fakeCases{}
	run, err := newDetector(src, &fakeRules{eligible: true}, cases).RunScheme(context.Background(), "OAP")
	require.NoError(t, err)

	assert.Equal(t, domain.JobCompleted, run.Status)
	assert.Equal(t, 2, run.Checked)
	assert.Equal(t, 1, run.Flagged)
	assert.Equal(t, 1, run.Critical)
	require.Len(t, cases.cases, 1)
	assert.Equal(t, run.ID, cases.cases[0].RunID)
	require.Len(t, cases.runs, 2)
	assert.Equal(t, domain.JobRunning, cases.runs[0].Status)

	_, err = newDetector(src, &fakeRules{eligible: true}, cases).RunScheme(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
