package hybrid

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/metrics"
	"github.com/khannas43/smart-eligibility/internal/mlscore"
	"github.com/khannas43/smart-eligibility/internal/priority"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("smart-eligibility/hybrid")

// FamilyLoader builds family records.
type FamilyLoader interface {
	Load(ctx context.Context, familyID string) (*domain.FamilyRecord, error)
}

// RuleEvaluator evaluates a scheme's active rules against a family.
type RuleEvaluator interface {
	EvaluateRules(ctx context.Context, schemeCode string, family *domain.FamilyRecord) (*domain.RuleEvalResult, error)
}

// Evaluator produces hybrid eligibility verdicts.
type Evaluator struct {
	families FamilyLoader
	rules    RuleEvaluator
	scorer   mlscore.Scorer
	store    domain.SnapshotStore
	combiner *Combiner
	metrics  *metrics.Metrics

	ruleSetFallback string
	datasetFallback string
	now             func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMetrics records evaluation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// NewEvaluator creates an evaluator. scorer and store may be nil: without a
// scorer every evaluation is rules-only, without a store nothing is recorded.
func NewEvaluator(families FamilyLoader, rules RuleEvaluator, scorer mlscore.Scorer, store domain.SnapshotStore, defaults domain.EngineDefaults, opts ...Option) *Evaluator {
	e := &Evaluator{
		families:        families,
		rules:           rules,
		scorer:          scorer,
		store:           store,
		combiner:        NewCombiner(defaults),
		ruleSetFallback: defaults.RuleSetVersionFallback,
		datasetFallback: defaults.DatasetVersionFallback,
		now:             time.Now,
	}
	if e.ruleSetFallback == "" {
		e.ruleSetFallback = "CURRENT"
	}
	if e.datasetFallback == "" {
		e.datasetFallback = "CURRENT"
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate loads the family and evaluates it under a scheme. It never fails:
// a family that cannot be loaded or a rule set that cannot be evaluated
// yields a result with status ERROR.
func (e *Evaluator) Evaluate(ctx context.Context, schemeCode, familyID string, useML bool) *domain.EvaluationResult {
	ctx, span := tracer.Start(ctx, "hybrid.Evaluate",
		trace.WithAttributes(
			attribute.String("scheme_code", schemeCode),
			attribute.String("family_id", familyID),
			attribute.Bool("use_ml", useML),
		),
	)
	defer span.End()

	start := e.now()

	family, err := e.families.Load(ctx, familyID)
	var res *domain.EvaluationResult
	if err != nil {
		slog.Warn("family data unavailable",
			"family_id", familyID,
			"scheme_code", schemeCode,
			"error", err,
		)
		res = e.errorResult(schemeCode, familyID, domain.ReasonDataUnavailable, err)
	} else {
		res = e.evaluate(ctx, schemeCode, family, useML)
	}

	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Float64("eligibility_score", res.EligibilityScore),
	)
	if res.Status == domain.StatusError {
		span.SetStatus(codes.Error, res.Error)
	}
	e.metrics.ObserveEvaluation(schemeCode, string(res.Status), time.Since(start))
	return res
}

// EvaluateFamily evaluates an already loaded family.
func (e *Evaluator) EvaluateFamily(ctx context.Context, schemeCode string, family *domain.FamilyRecord, useML bool) *domain.EvaluationResult {
	if family == nil {
		return e.errorResult(schemeCode, "", domain.ReasonDataUnavailable, domain.ErrInvalidInput)
	}
	return e.evaluate(ctx, schemeCode, family, useML)
}

// EvaluateAndRecord evaluates and persists the result as a snapshot. The
// snapshot is written in its own transaction; on failure the result is
// returned with Persisted=false together with a *domain.PersistenceError.
func (e *Evaluator) EvaluateAndRecord(ctx context.Context, schemeCode, familyID string, useML bool) (*domain.EvaluationResult, error) {
	res := e.Evaluate(ctx, schemeCode, familyID, useML)
	return res, e.Record(ctx, res)
}

// Record persists an evaluation result.
func (e *Evaluator) Record(ctx context.Context, res *domain.EvaluationResult) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.SaveSnapshot(ctx, res); err != nil {
		res.Persisted = false
		e.metrics.IncrementPersistFailures("snapshot")
		slog.Error("failed to save eligibility snapshot",
			"snapshot_id", res.SnapshotID,
			"family_id", res.FamilyID,
			"scheme_code", res.SchemeCode,
			"error", err,
		)
		return &domain.PersistenceError{Op: "save snapshot", Cause: err}
	}
	res.Persisted = true
	return nil
}

func (e *Evaluator) evaluate(ctx context.Context, schemeCode string, family *domain.FamilyRecord, useML bool) *domain.EvaluationResult {
	res := e.newResult(schemeCode, family.FamilyID)
	res.DatasetVersionGoldenRecords = orDefault(family.GoldenRecordsVersion, e.datasetFallback)
	res.DatasetVersionProfile360 = orDefault(family.Profile360Version, e.datasetFallback)
	res.VulnerabilityLevel = family.Vulnerability()
	res.UnderCoverage = family.IsUnderCovered()
	res.DistrictID = family.District()

	rules, err := e.rules.EvaluateRules(ctx, schemeCode, family)
	if err != nil {
		reason := domain.ReasonRuleEvalError
		if errors.Is(err, domain.ErrNoActiveRules) {
			reason = domain.ReasonNoActiveRules
		}
		slog.Warn("rule evaluation failed",
			"family_id", family.FamilyID,
			"scheme_code", schemeCode,
			"error", err,
		)
		res.Status = domain.StatusError
		res.Error = err.Error()
		res.ReasonCodes = []string{reason}
		return res
	}

	res.RuleSetVersion = orDefault(rules.RuleSetVersion, e.ruleSetFallback)
	res.RuleEligible = rules.RuleEligible
	res.RuleScore = rules.RuleScore
	res.RulesPassed = rules.RulesPassed
	res.RulesFailed = rules.RulesFailed
	res.ReasonCodes = append(res.ReasonCodes, rules.ReasonCodes...)
	res.PriorityScore = priority.Score(family, rules.RuleScore)

	var pred *domain.MLPrediction
	switch {
	case !useML:
	case !rules.RuleEligible:
		res.ReasonCodes = append(res.ReasonCodes, domain.ReasonMLSkipped)
	case e.scorer == nil:
		res.ReasonCodes = append(res.ReasonCodes, domain.ReasonMLUnavailable)
		e.metrics.IncrementMLFallbacks()
	default:
		pred, err = e.scorer.Score(ctx, family, schemeCode)
		if err != nil {
			slog.Debug("ml scoring unavailable, using rules only",
				"scheme_code", schemeCode,
				"family_id", family.FamilyID,
				"error", err,
			)
			pred = nil
			res.ReasonCodes = append(res.ReasonCodes, domain.ReasonMLUnavailable)
			e.metrics.IncrementMLFallbacks()
		}
	}

	if pred != nil {
		p := pred.Probability
		res.MLProbability = &p
		res.MLModelVersion = pred.ModelVersion
		res.MLTopFeatures = pred.TopFeatures
	}

	v := e.combiner.Combine(rules, pred)
	res.Status = v.Status
	res.EligibilityScore = v.Score
	res.ConfidenceScore = v.Confidence
	res.ReasonCodes = append(res.ReasonCodes, v.Reasons...)
	return res
}

func (e *Evaluator) newResult(schemeCode, familyID string) *domain.EvaluationResult {
	return &domain.EvaluationResult{
		SnapshotID:                  uuid.New().String(),
		FamilyID:                    familyID,
		SchemeCode:                  schemeCode,
		RulesPassed:                 []string{},
		RulesFailed:                 []string{},
		RuleSetVersion:              e.ruleSetFallback,
		DatasetVersionGoldenRecords: e.datasetFallback,
		DatasetVersionProfile360:    e.datasetFallback,
		EvaluatedAt:                 e.now().UTC(),
	}
}

func (e *Evaluator) errorResult(schemeCode, familyID, reason string, err error) *domain.EvaluationResult {
	res := e.newResult(schemeCode, familyID)
	res.Status = domain.StatusError
	res.ReasonCodes = []string{reason}
	res.Error = err.Error()
	return res
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
