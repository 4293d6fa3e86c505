package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/khannas43/smart-eligibility/internal/domain"
)

// snapshotRow is the flat storage form of an EligibilitySnapshot.
type snapshotRow struct {
	SnapshotID                  string          `db:"snapshot_id"`
	FamilyID                    string          `db:"family_id"`
	SchemeCode                  string          `db:"scheme_code"`
	Status                      string          `db:"status"`
	RuleEligible                bool            `db:"rule_eligible"`
	RuleScore                   float64         `db:"rule_score"`
	EligibilityScore            float64         `db:"eligibility_score"`
	ConfidenceScore             float64         `db:"confidence_score"`
	RulesPassed                 string          `db:"rules_passed"`
	RulesFailed                 string          `db:"rules_failed"`
	MLProbability               sql.NullFloat64 `db:"ml_probability"`
	MLModelVersion              string          `db:"ml_model_version"`
	MLTopFeatures               sql.NullString  `db:"ml_top_features"`
	PriorityScore               float64         `db:"priority_score"`
	VulnerabilityLevel          string          `db:"vulnerability_level"`
	UnderCoverage               bool            `db:"under_coverage"`
	DistrictID                  string          `db:"district_id"`
	ReasonCodes                 string          `db:"reason_codes"`
	RuleSetVersion              string          `db:"rule_set_version"`
	DatasetVersionGoldenRecords string          `db:"dataset_version_golden_records"`
	DatasetVersionProfile360    string          `db:"dataset_version_profile_360"`
	Error                       string          `db:"error"`
	EvaluatedAt                 time.Time       `db:"evaluated_at"`
}

const snapshotColumns = `snapshot_id, family_id, scheme_code, status, rule_eligible, rule_score,
	eligibility_score, confidence_score, rules_passed, rules_failed, ml_probability, ml_model_version,
	ml_top_features, priority_score, vulnerability_level, under_coverage, district_id, reason_codes,
	rule_set_version, dataset_version_golden_records, dataset_version_profile_360, error, evaluated_at`

func toSnapshotRow(s *domain.EligibilitySnapshot) (*snapshotRow, error) {
	passed, err := marshalStrings(s.RulesPassed)
	if err != nil {
		return nil, err
	}
	failed, err := marshalStrings(s.RulesFailed)
	if err != nil {
		return nil, err
	}
	reasons, err := marshalStrings(s.ReasonCodes)
	if err != nil {
		return nil, err
	}

	row := &snapshotRow{
		SnapshotID:                  s.SnapshotID,
		FamilyID:                    s.FamilyID,
		SchemeCode:                  s.SchemeCode,
		Status:                      string(s.Status),
		RuleEligible:                s.RuleEligible,
		RuleScore:                   s.RuleScore,
		EligibilityScore:            s.EligibilityScore,
		ConfidenceScore:             s.ConfidenceScore,
		RulesPassed:                 passed,
		RulesFailed:                 failed,
		MLModelVersion:              s.MLModelVersion,
		PriorityScore:               s.PriorityScore,
		VulnerabilityLevel:          s.VulnerabilityLevel,
		UnderCoverage:               s.UnderCoverage,
		DistrictID:                  s.DistrictID,
		ReasonCodes:                 reasons,
		RuleSetVersion:              s.RuleSetVersion,
		DatasetVersionGoldenRecords: s.DatasetVersionGoldenRecords,
		DatasetVersionProfile360:    s.DatasetVersionProfile360,
		Error:                       s.Error,
		EvaluatedAt:                 s.EvaluatedAt.UTC(),
	}
	if s.MLProbability != nil {
		row.MLProbability = sql.NullFloat64{Float64: *s.MLProbability, Valid: true}
	}
	if len(s.MLTopFeatures) > 0 {
		b, err := json.Marshal(s.MLTopFeatures)
		if err != nil {
			return nil, err
		}
		row.MLTopFeatures = sql.NullString{String: string(b), Valid: true}
	}
	return row, nil
}

func (row *snapshotRow) toDomain() (*domain.EligibilitySnapshot, error) {
	s := &domain.EligibilitySnapshot{
		SnapshotID:                  row.SnapshotID,
		FamilyID:                    row.FamilyID,
		SchemeCode:                  row.SchemeCode,
		Status:                      domain.EligibilityStatus(row.Status),
		RuleEligible:                row.RuleEligible,
		RuleScore:                   row.RuleScore,
		EligibilityScore:            row.EligibilityScore,
		ConfidenceScore:             row.ConfidenceScore,
		MLModelVersion:              row.MLModelVersion,
		PriorityScore:               row.PriorityScore,
		VulnerabilityLevel:          row.VulnerabilityLevel,
		UnderCoverage:               row.UnderCoverage,
		DistrictID:                  row.DistrictID,
		RuleSetVersion:              row.RuleSetVersion,
		DatasetVersionGoldenRecords: row.DatasetVersionGoldenRecords,
		DatasetVersionProfile360:    row.DatasetVersionProfile360,
		Error:                       row.Error,
		EvaluatedAt:                 row.EvaluatedAt,
		Persisted:                   true,
	}
	if err := unmarshalStrings(row.RulesPassed, &s.RulesPassed); err != nil {
		return nil, err
	}
	if err := unmarshalStrings(row.RulesFailed, &s.RulesFailed); err != nil {
		return nil, err
	}
	if err := unmarshalStrings(row.ReasonCodes, &s.ReasonCodes); err != nil {
		return nil, err
	}
	if row.MLProbability.Valid {
		p := row.MLProbability.Float64
		s.MLProbability = &p
	}
	if row.MLTopFeatures.Valid && row.MLTopFeatures.String != "" {
		if err := json.Unmarshal([]byte(row.MLTopFeatures.String), &s.MLTopFeatures); err != nil {
			return nil, fmt.Errorf("decode ml_top_features: %w", err)
		}
	}
	return s, nil
}

// SaveSnapshot inserts one snapshot in its own transaction. A failure rolls back
// only this insert.
func (r *SQLRepository) SaveSnapshot(ctx context.Context, s *domain.EligibilitySnapshot) error {
	if s.SnapshotID == "" || s.FamilyID == "" || s.SchemeCode == "" {
		return fmt.Errorf("%w: snapshot_id, family_id and scheme_code are required", ErrInvalidInput)
	}
	row, err := toSnapshotRow(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return r.inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO eligibility_snapshots (`+snapshotColumns+`)
			VALUES (:snapshot_id, :family_id, :scheme_code, :status, :rule_eligible, :rule_score,
				:eligibility_score, :confidence_score, :rules_passed, :rules_failed, :ml_probability,
				:ml_model_version, :ml_top_features, :priority_score, :vulnerability_level,
				:under_coverage, :district_id, :reason_codes, :rule_set_version,
				:dataset_version_golden_records, :dataset_version_profile_360, :error, :evaluated_at)
		`, row)
		return err
	})
}

// GetSnapshot returns one snapshot by id.
func (r *SQLRepository) GetSnapshot(ctx context.Context, snapshotID string) (*domain.EligibilitySnapshot, error) {
	var row snapshotRow
	if err := r.get(ctx, &row, `SELECT `+snapshotColumns+` FROM eligibility_snapshots WHERE snapshot_id = ?`, snapshotID); err != nil {
		return nil, err
	}
	return row.toDomain()
}

// ListSnapshotsByFamily returns a family's snapshots, newest first.
func (r *SQLRepository) ListSnapshotsByFamily(ctx context.Context, familyID string) ([]*domain.EligibilitySnapshot, error) {
	var rows []snapshotRow
	err := r.selectAll(ctx, &rows, `
		SELECT `+snapshotColumns+` FROM eligibility_snapshots
		WHERE family_id = ?
		ORDER BY evaluated_at DESC, snapshot_id ASC
	`, familyID)
	if err != nil {
		return nil, fmt.Errorf("snapshots for family %s: %w", familyID, err)
	}
	return rowsToSnapshots(rows)
}

// LatestSnapshots returns the newest snapshot per family for a scheme.
// Ties on evaluated_at resolve to the smallest snapshot_id.
func (r *SQLRepository) LatestSnapshots(ctx context.Context, schemeCode, districtID string) ([]*domain.EligibilitySnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + ` FROM eligibility_snapshots s
		WHERE s.scheme_code = ?
		AND s.evaluated_at = (
			SELECT MAX(s2.evaluated_at) FROM eligibility_snapshots s2
			WHERE s2.family_id = s.family_id AND s2.scheme_code = s.scheme_code
		)`
	args := []any{schemeCode}
	if districtID != "" {
		query += ` AND s.district_id = ?`
		args = append(args, districtID)
	}
	query += ` ORDER BY s.family_id, s.snapshot_id`

	var rows []snapshotRow
	if err := r.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("latest snapshots for %s: %w", schemeCode, err)
	}

	out := make([]*domain.EligibilitySnapshot, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for i := range rows {
		if seen[rows[i].FamilyID] {
			continue
		}
		seen[rows[i].FamilyID] = true
		s, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func rowsToSnapshots(rows []snapshotRow) ([]*domain.EligibilitySnapshot, error) {
	out := make([]*domain.EligibilitySnapshot, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func unmarshalStrings(s string, dst *[]string) error {
	if s == "" {
		*dst = []string{}
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}
