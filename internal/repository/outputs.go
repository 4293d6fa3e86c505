package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/khannas43/smart-eligibility/internal/domain"
)

// --- Candidate lists -----------------------------------------------------------

type candidateListRow struct {
	ID          string    `db:"id"`
	ListType    string    `db:"list_type"`
	SchemeCode  string    `db:"scheme_code"`
	FamilyID    string    `db:"family_id"`
	DistrictID  string    `db:"district_id"`
	MinScore    float64   `db:"min_score"`
	GeneratedBy string    `db:"generated_by"`
	GeneratedAt time.Time `db:"generated_at"`
	Summary     string    `db:"summary"`
}

type candidateEntryRow struct {
	ListID string `db:"list_id"`
	domain.CandidateEntry
}

// SaveCandidateList persists a list and its entries atomically.
func (r *SQLRepository) SaveCandidateList(ctx context.Context, l *domain.CandidateList) error {
	if l.ID == "" || l.ListType == "" {
		return fmt.Errorf("%w: id and list_type are required", ErrInvalidInput)
	}
	summary, err := json.Marshal(l.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	row := candidateListRow{
		ID:          l.ID,
		ListType:    l.ListType,
		SchemeCode:  l.SchemeCode,
		FamilyID:    l.FamilyID,
		DistrictID:  l.DistrictID,
		MinScore:    l.MinScore,
		GeneratedBy: l.GeneratedBy,
		GeneratedAt: l.GeneratedAt.UTC(),
		Summary:     string(summary),
	}

	return r.inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO candidate_lists (id, list_type, scheme_code, family_id, district_id,
				min_score, generated_by, generated_at, summary)
			VALUES (:id, :list_type, :scheme_code, :family_id, :district_id,
				:min_score, :generated_by, :generated_at, :summary)
		`, row)
		if err != nil {
			return fmt.Errorf("insert candidate list: %w", err)
		}

		for _, e := range l.Entries {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO candidate_list_entries (list_id, rank, family_id, scheme_code, snapshot_id,
					status, eligibility_score, priority_score, vulnerability_level, under_coverage,
					promoted, evaluated_at)
				VALUES (:list_id, :rank, :family_id, :scheme_code, :snapshot_id,
					:status, :eligibility_score, :priority_score, :vulnerability_level, :under_coverage,
					:promoted, :evaluated_at)
			`, candidateEntryRow{ListID: l.ID, CandidateEntry: e})
			if err != nil {
				return fmt.Errorf("insert candidate entry %d: %w", e.Rank, err)
			}
		}
		return nil
	})
}

// GetCandidateList returns a list with its entries in rank order.
func (r *SQLRepository) GetCandidateList(ctx context.Context, listID string) (*domain.CandidateList, error) {
	var row candidateListRow
	err := r.get(ctx, &row, `
		SELECT id, list_type, scheme_code, family_id, district_id, min_score,
			generated_by, generated_at, summary
		FROM candidate_lists WHERE id = ?
	`, listID)
	if err != nil {
		return nil, err
	}

	l := &domain.CandidateList{
		ID:          row.ID,
		ListType:    row.ListType,
		SchemeCode:  row.SchemeCode,
		FamilyID:    row.FamilyID,
		DistrictID:  row.DistrictID,
		MinScore:    row.MinScore,
		GeneratedBy: row.GeneratedBy,
		GeneratedAt: row.GeneratedAt,
	}
	if err := json.Unmarshal([]byte(row.Summary), &l.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}

	err = r.selectAll(ctx, &l.Entries, `
		SELECT rank, family_id, scheme_code, snapshot_id, status, eligibility_score,
			priority_score, vulnerability_level, under_coverage, promoted, evaluated_at
		FROM candidate_list_entries
		WHERE list_id = ?
		ORDER BY rank
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("candidate entries %s: %w", listID, err)
	}
	return l, nil
}

// --- Batch jobs ----------------------------------------------------------------

// CreateBatchJob inserts a job row.
func (r *SQLRepository) CreateBatchJob(ctx context.Context, job *domain.BatchJob) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO batch_jobs (id, scheme_code, district_id, status, total, processed, eligible,
			possible, ineligible, errors, persist_failures, started_at, finished_at, message)
		VALUES (:id, :scheme_code, :district_id, :status, :total, :processed, :eligible,
			:possible, :ineligible, :errors, :persist_failures, :started_at, :finished_at, :message)
	`, job)
	return err
}

// UpdateBatchJob writes the job's progress counters and status.
func (r *SQLRepository) UpdateBatchJob(ctx context.Context, job *domain.BatchJob) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.NamedExecContext(ctx, `
		UPDATE batch_jobs SET
			status = :status, total = :total, processed = :processed, eligible = :eligible,
			possible = :possible, ineligible = :ineligible, errors = :errors,
			persist_failures = :persist_failures, finished_at = :finished_at, message = :message
		WHERE id = :id
	`, job)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetBatchJob returns a job row.
func (r *SQLRepository) GetBatchJob(ctx context.Context, jobID string) (*domain.BatchJob, error) {
	var job domain.BatchJob
	err := r.get(ctx, &job, `
		SELECT id, scheme_code, district_id, status, total, processed, eligible, possible,
			ineligible, errors, persist_failures, started_at, finished_at, message
		FROM batch_jobs WHERE id = ?
	`, jobID)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// --- Detection -----------------------------------------------------------------

type detectedCaseRow struct {
	ID                string    `db:"id"`
	RunID             string    `db:"run_id"`
	BeneficiaryID     string    `db:"beneficiary_id"`
	FamilyID          string    `db:"family_id"`
	SchemeCode        string    `db:"scheme_code"`
	CaseType          string    `db:"case_type"`
	ConfidenceLevel   string    `db:"confidence_level"`
	Priority          int       `db:"priority"`
	FinancialExposure float64   `db:"financial_exposure"`
	RiskScore         float64   `db:"risk_score"`
	Status            string    `db:"status"`
	Results           string    `db:"results"`
	DetectedAt        time.Time `db:"detected_at"`
}

// SaveDetectedCase appends a detected case.
func (r *SQLRepository) SaveDetectedCase(ctx context.Context, c *domain.DetectedCase) error {
	results, err := json.Marshal(c.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	row := detectedCaseRow{
		ID:                c.ID,
		RunID:             c.RunID,
		BeneficiaryID:     c.BeneficiaryID,
		FamilyID:          c.FamilyID,
		SchemeCode:        c.SchemeCode,
		CaseType:          c.CaseType,
		ConfidenceLevel:   c.ConfidenceLevel,
		Priority:          c.Priority,
		FinancialExposure: c.FinancialExposure,
		RiskScore:         c.RiskScore,
		Status:            c.Status,
		Results:           string(results),
		DetectedAt:        c.DetectedAt.UTC(),
	}

	return r.inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO detected_cases (id, run_id, beneficiary_id, family_id, scheme_code, case_type,
				confidence_level, priority, financial_exposure, risk_score, status, results, detected_at)
			VALUES (:id, :run_id, :beneficiary_id, :family_id, :scheme_code, :case_type,
				:confidence_level, :priority, :financial_exposure, :risk_score, :status, :results, :detected_at)
		`, row)
		return err
	})
}

// ListDetectedCases returns a scheme's cases detected since a time, most urgent first.
func (r *SQLRepository) ListDetectedCases(ctx context.Context, schemeCode string, since time.Time) ([]*domain.DetectedCase, error) {
	var rows []detectedCaseRow
	err := r.selectAll(ctx, &rows, `
		SELECT id, run_id, beneficiary_id, family_id, scheme_code, case_type, confidence_level,
			priority, financial_exposure, risk_score, status, results, detected_at
		FROM detected_cases
		WHERE scheme_code = ? AND detected_at >= ?
		ORDER BY priority ASC, financial_exposure DESC, id ASC
	`, schemeCode, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("detected cases %s: %w", schemeCode, err)
	}

	out := make([]*domain.DetectedCase, 0, len(rows))
	for _, row := range rows {
		c := &domain.DetectedCase{
			ID:                row.ID,
			RunID:             row.RunID,
			BeneficiaryID:     row.BeneficiaryID,
			FamilyID:          row.FamilyID,
			SchemeCode:        row.SchemeCode,
			CaseType:          row.CaseType,
			ConfidenceLevel:   row.ConfidenceLevel,
			Priority:          row.Priority,
			FinancialExposure: row.FinancialExposure,
			RiskScore:         row.RiskScore,
			Status:            row.Status,
			DetectedAt:        row.DetectedAt,
		}
		if err := json.Unmarshal([]byte(row.Results), &c.Results); err != nil {
			return nil, fmt.Errorf("decode case %s results: %w", row.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// CreateDetectionRun inserts a detection run row.
func (r *SQLRepository) CreateDetectionRun(ctx context.Context, run *domain.DetectionRun) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO detection_runs (id, scheme_code, status, checked, flagged, critical, started_at, finished_at)
		VALUES (:id, :scheme_code, :status, :checked, :flagged, :critical, :started_at, :finished_at)
	`, run)
	return err
}

// UpdateDetectionRun writes a run's counters and status.
func (r *SQLRepository) UpdateDetectionRun(ctx context.Context, run *domain.DetectionRun) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		UPDATE detection_runs SET
			status = :status, checked = :checked, flagged = :flagged,
			critical = :critical, finished_at = :finished_at
		WHERE id = :id
	`, run)
	return err
}

// --- Decision configs ----------------------------------------------------------

const decisionConfigColumns = `scheme_code, low_risk_max, medium_risk_min, medium_risk_max, high_risk_min,
	enable_auto_approval, enable_auto_rejection, auto_reject_min, route_medium_risk_to_officer,
	route_high_risk_to_fraud, require_human_review_high, require_human_review_rejection,
	default_decision, is_active`

// GetDecisionConfig returns the active decision config of a scheme.
func (r *SQLRepository) GetDecisionConfig(ctx context.Context, schemeCode string) (*domain.DecisionConfig, error) {
	var cfg domain.DecisionConfig
	err := r.get(ctx, &cfg, `
		SELECT `+decisionConfigColumns+`
		FROM decision_configs
		WHERE scheme_code = ? AND is_active = ?
	`, schemeCode, true)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveDecisionConfig inserts a config unless the scheme already has one.
func (r *SQLRepository) SaveDecisionConfig(ctx context.Context, cfg *domain.DecisionConfig) (bool, error) {
	if cfg.SchemeCode == "" {
		return false, fmt.Errorf("%w: scheme_code is required", ErrInvalidInput)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO decision_configs (`+decisionConfigColumns+`)
		VALUES (:scheme_code, :low_risk_max, :medium_risk_min, :medium_risk_max, :high_risk_min,
			:enable_auto_approval, :enable_auto_rejection, :auto_reject_min, :route_medium_risk_to_officer,
			:route_high_risk_to_fraud, :require_human_review_high, :require_human_review_rejection,
			:default_decision, :is_active)
		ON CONFLICT (scheme_code) DO NOTHING
	`, cfg)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- ML models -----------------------------------------------------------------

type modelRow struct {
	SchemeCode   string    `db:"scheme_code"`
	ModelVersion string    `db:"model_version"`
	Intercept    float64   `db:"intercept"`
	Coefficients string    `db:"coefficients"`
	IsActive     bool      `db:"is_active"`
	TrainedAt    time.Time `db:"trained_at"`
}

// GetActiveModel returns the most recently trained active model of a scheme.
func (r *SQLRepository) GetActiveModel(ctx context.Context, schemeCode string) (*domain.MLModel, error) {
	var row modelRow
	err := r.get(ctx, &row, `
		SELECT scheme_code, model_version, intercept, coefficients, is_active, trained_at
		FROM ml_models
		WHERE scheme_code = ? AND is_active = ?
		ORDER BY trained_at DESC, model_version DESC
		LIMIT 1
	`, schemeCode, true)
	if err != nil {
		return nil, err
	}

	m := &domain.MLModel{
		SchemeCode:   row.SchemeCode,
		ModelVersion: row.ModelVersion,
		Intercept:    row.Intercept,
		IsActive:     row.IsActive,
		TrainedAt:    row.TrainedAt,
	}
	if err := json.Unmarshal([]byte(row.Coefficients), &m.Coefficients); err != nil {
		return nil, fmt.Errorf("decode coefficients for %s/%s: %w", row.SchemeCode, row.ModelVersion, err)
	}
	return m, nil
}

// SaveModel inserts a trained model.
func (r *SQLRepository) SaveModel(ctx context.Context, m *domain.MLModel) error {
	coef, err := json.Marshal(m.Coefficients)
	if err != nil {
		return fmt.Errorf("encode coefficients: %w", err)
	}
	if m.TrainedAt.IsZero() {
		m.TrainedAt = time.Now().UTC()
	}
	row := modelRow{
		SchemeCode:   m.SchemeCode,
		ModelVersion: m.ModelVersion,
		Intercept:    m.Intercept,
		Coefficients: string(coef),
		IsActive:     m.IsActive,
		TrainedAt:    m.TrainedAt.UTC(),
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO ml_models (scheme_code, model_version, intercept, coefficients, is_active, trained_at)
		VALUES (:scheme_code, :model_version, :intercept, :coefficients, :is_active, :trained_at)
	`, row)
	return err
}
