// Package detection re-checks enrolled beneficiaries for ineligibility and
// mis-targeting.
package detection

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/history"
	"github.com/khannas43/smart-eligibility/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("smart-eligibility/detection")

// highExposure moves a case one step up the review queue.
const highExposure = 50_000

// FamilyLoader builds family records.
type FamilyLoader interface {
	Load(ctx context.Context, familyID string) (*domain.FamilyRecord, error)
}

// RuleEvaluator evaluates a scheme's active rules against a family.
type RuleEvaluator interface {
	EvaluateRules(ctx context.Context, schemeCode string, family *domain.FamilyRecord) (*domain.RuleEvalResult, error)
}

// Request identifies the enrollment to check.
type Request struct {
	BeneficiaryID  string              `json:"beneficiaryId"`
	FamilyID       string              `json:"familyId"`
	SchemeCode     string              `json:"schemeCode"`
	CurrentBenefit *domain.BenefitData `json:"currentBenefit,omitempty"`
}

// Detector runs the detection checks.
type Detector struct {
	src             domain.DetectionSource
	history         *history.Service
	families        FamilyLoader
	rules           RuleEvaluator
	cases           domain.CaseStore
	exposureMonths  int
	incomeTolerance float64
	metrics         *metrics.Metrics
	now             func() time.Time
}

// NewDetector creates a detector. cases may be nil when nothing is recorded.
func NewDetector(src domain.DetectionSource, families FamilyLoader, rules RuleEvaluator, cases domain.CaseStore, defaults domain.EngineDefaults, m *metrics.Metrics) *Detector {
	d := &Detector{
		src:             src,
		history:         history.NewService(src),
		families:        families,
		rules:           rules,
		cases:           cases,
		exposureMonths:  defaults.ExposureMonths,
		incomeTolerance: defaults.IncomeTolerance,
		metrics:         m,
		now:             time.Now,
	}
	if d.exposureMonths <= 0 {
		d.exposureMonths = 12
	}
	return d
}

// Detect runs every check and aggregates the results. The summary always
// carries exactly six results in a fixed order; a check that fails to run
// is reported as FAILED with severity HIGH and does not stop the others.
func (d *Detector) Detect(ctx context.Context, req Request) *domain.DetectionSummary {
	ctx, span := tracer.Start(ctx, "detection.Detect",
		trace.WithAttributes(
			attribute.String("beneficiary_id", req.BeneficiaryID),
			attribute.String("scheme_code", req.SchemeCode),
		),
	)
	defer span.End()

	sum := &domain.DetectionSummary{
		BeneficiaryID:    req.BeneficiaryID,
		FamilyID:         req.FamilyID,
		SchemeCode:       req.SchemeCode,
		Results:          make([]domain.RuleDetectionResult, 0, len(domain.DetectionChecks)),
		CriticalFailures: []string{},
		DetectedAt:       d.now().UTC(),
	}

	for _, c := range d.checks() {
		r := d.runCheck(ctx, &req, c)
		sum.Results = append(sum.Results, r)
	}

	d.aggregate(ctx, &req, sum)

	span.SetAttributes(
		attribute.Int("failed_count", sum.FailedCount),
		attribute.Float64("risk_score", sum.RiskScore),
	)
	return sum
}

// runCheck isolates one check: a panic becomes a FAILED result.
func (d *Detector) runCheck(ctx context.Context, req *Request, c check) (r domain.RuleDetectionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("detection check panicked",
				"check", c.name,
				"beneficiary_id", req.BeneficiaryID,
				"panic", rec,
			)
			r = errored(fmt.Errorf("check panicked: %v", rec))
		}
		r.RuleName = c.name
		r.Category = c.category
		d.metrics.ObserveDetectionCheck(c.name, outcome(r))
	}()
	return c.run(ctx, req)
}

func outcome(r domain.RuleDetectionResult) string {
	switch {
	case r.Error != "":
		return "error"
	case r.Passed:
		return "passed"
	default:
		return "failed"
	}
}

func (d *Detector) aggregate(ctx context.Context, req *Request, sum *domain.DetectionSummary) {
	survive := 1.0
	allErrors := true
	for _, r := range sum.Results {
		if r.Passed {
			sum.PassedCount++
			continue
		}
		sum.FailedCount++
		survive *= 1 - r.Severity.Weight()
		if r.Severity == domain.SeverityCritical {
			sum.CriticalFailures = append(sum.CriticalFailures, r.RuleName)
		}
		if r.Error == "" {
			allErrors = false
		}
	}
	sum.AllPassed = sum.FailedCount == 0
	sum.RiskScore = 1 - survive
	sum.FinancialExposure = d.monthlyAmount(ctx, req) * float64(d.exposureMonths)

	if sum.AllPassed {
		return
	}

	hasHigh := false
	for _, r := range sum.Results {
		if !r.Passed && r.Severity == domain.SeverityHigh && r.Error == "" {
			hasHigh = true
		}
	}
	switch {
	case len(sum.CriticalFailures) > 0:
		sum.CaseType = domain.CaseHardIneligible
	case hasHigh:
		sum.CaseType = domain.CaseLikelyMisTargeted
	default:
		sum.CaseType = domain.CaseLowConfidenceFlag
	}

	switch {
	case allErrors:
		sum.ConfidenceLevel = domain.ConfidenceLow
	case len(sum.CriticalFailures) > 0:
		sum.ConfidenceLevel = domain.ConfidenceHigh
	case sum.RiskScore >= 0.5:
		sum.ConfidenceLevel = domain.ConfidenceMedium
	default:
		sum.ConfidenceLevel = domain.ConfidenceLow
	}

	sum.Priority = casePriority(sum.RiskScore, sum.FinancialExposure)
}

// casePriority maps risk onto 1 (most urgent) to 10.
func casePriority(risk, exposure float64) int {
	p := 1 + int(math.Round(9*(1-risk)))
	if exposure >= highExposure {
		p--
	}
	return min(max(p, 1), 10)
}

// monthlyAmount is the benefit at stake. Without a supplied benefit the
// beneficiary's active enrollments in the scheme are summed.
func (d *Detector) monthlyAmount(ctx context.Context, req *Request) float64 {
	if req.CurrentBenefit != nil {
		return req.CurrentBenefit.MonthlyAmount
	}
	enrollments, err := d.src.ListEnrollmentsByBeneficiary(ctx, req.BeneficiaryID)
	if err != nil {
		slog.Warn("failed to load enrollments for exposure",
			"beneficiary_id", req.BeneficiaryID,
			"error", err,
		)
		return 0
	}
	total := 0.0
	for _, e := range enrollments {
		if e.SchemeCode == req.SchemeCode && e.Status == domain.EnrollmentActive {
			total += e.MonthlyAmount
		}
	}
	return total
}

// DetectAndRecord runs Detect and persists a DetectedCase when any check
// failed. The case is nil when all checks passed. On a failed write the
// summary and case are returned with a *domain.PersistenceError.
func (d *Detector) DetectAndRecord(ctx context.Context, req Request) (*domain.DetectionSummary, *domain.DetectedCase, error) {
	return d.detectAndRecord(ctx, req, "")
}

func (d *Detector) detectAndRecord(ctx context.Context, req Request, runID string) (*domain.DetectionSummary, *domain.DetectedCase, error) {
	sum := d.Detect(ctx, req)
	if sum.AllPassed {
		return sum, nil, nil
	}

	c := &domain.DetectedCase{
		ID:                uuid.New().String(),
		RunID:             runID,
		BeneficiaryID:     sum.BeneficiaryID,
		FamilyID:          sum.FamilyID,
		SchemeCode:        sum.SchemeCode,
		CaseType:          sum.CaseType,
		ConfidenceLevel:   sum.ConfidenceLevel,
		Priority:          sum.Priority,
		FinancialExposure: sum.FinancialExposure,
		RiskScore:         sum.RiskScore,
		Status:            domain.CaseStatusOpen,
		Results:           sum.Results,
		DetectedAt:        sum.DetectedAt,
	}
	if d.cases == nil {
		return sum, c, nil
	}
	if err := d.cases.SaveDetectedCase(ctx, c); err != nil {
		d.metrics.IncrementPersistFailures("detected_case")
		slog.Error("failed to save detected case",
			"beneficiary_id", c.BeneficiaryID,
			"scheme_code", c.SchemeCode,
			"error", err,
		)
		return sum, c, &domain.PersistenceError{Op: "save detected case", Cause: err}
	}

	d.metrics.IncrementDetectedCases(c.CaseType)
	slog.Info("detected case recorded",
		"case_id", c.ID,
		"beneficiary_id", c.BeneficiaryID,
		"scheme_code", c.SchemeCode,
		"case_type", c.CaseType,
		"priority", c.Priority,
		"risk_score", c.RiskScore,
	)
	return sum, c, nil
}

// RunScheme checks every active enrollment of a scheme and records the pass
// as a detection run.
func (d *Detector) RunScheme(ctx context.Context, schemeCode string) (*domain.DetectionRun, error) {
	if schemeCode == "" {
		return nil, fmt.Errorf("scheme code is required: %w", domain.ErrInvalidInput)
	}

	enrollments, err := d.src.ListActiveEnrollmentsByScheme(ctx, schemeCode)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}

	run := &domain.DetectionRun{
		ID:         uuid.New().String(),
		SchemeCode: schemeCode,
		Status:     domain.JobRunning,
		StartedAt:  d.now().UTC(),
	}
	if d.cases != nil {
		if err := d.cases.CreateDetectionRun(ctx, run); err != nil {
			return nil, &domain.PersistenceError{Op: "create detection run", Cause: err}
		}
	}

	for _, e := range enrollments {
		if ctx.Err() != nil {
			break
		}
		_, c, err := d.detectAndRecord(ctx, Request{
			BeneficiaryID:  e.BeneficiaryID,
			FamilyID:       e.FamilyID,
			SchemeCode:     schemeCode,
			CurrentBenefit: &domain.BenefitData{MonthlyAmount: e.MonthlyAmount},
		}, run.ID)
		run.Checked++
		if c == nil {
			continue
		}
		if err == nil {
			run.Flagged++
		}
		if c.CaseType == domain.CaseHardIneligible {
			run.Critical++
		}
	}

	finished := d.now().UTC()
	run.FinishedAt = &finished
	run.Status = domain.JobCompleted
	if ctx.Err() != nil {
		run.Status = domain.JobCancelled
	}

	slog.Info("detection run finished",
		"run_id", run.ID,
		"scheme_code", schemeCode,
		"status", run.Status,
		"checked", run.Checked,
		"flagged", run.Flagged,
		"critical", run.Critical,
	)

	if d.cases != nil {
		if err := d.cases.UpdateDetectionRun(context.WithoutCancel(ctx), run); err != nil {
			return run, &domain.PersistenceError{Op: "update detection run", Cause: err}
		}
	}
	return run, nil
}
