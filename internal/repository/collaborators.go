package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/khannas43/smart-eligibility/internal/domain"
)

// Read side of the golden-records, 360-profile, benefit-history and
// beneficiary-status stores.

// GetGoldenRecord returns the master demographic row of a family.
func (r *SQLRepository) GetGoldenRecord(ctx context.Context, familyID string) (*domain.GoldenRecord, error) {
	var gr domain.GoldenRecord
	err := r.get(ctx, &gr, `
		SELECT family_id, head_member_id, age, gender, district_id, caste_category, is_urban,
			family_size, children_count, elderly_count, disabled_count, attributes
		FROM golden_records
		WHERE family_id = ?
	`, familyID)
	if err != nil {
		return nil, err
	}
	return &gr, nil
}

// GetProfile360 returns the derived profile of a family.
func (r *SQLRepository) GetProfile360(ctx context.Context, familyID string) (*domain.Profile360, error) {
	var p domain.Profile360
	err := r.get(ctx, &p, `
		SELECT family_id, income_band, annual_income, vulnerability_level,
			under_coverage_indicator, cluster_id
		FROM profile_360
		WHERE family_id = ?
	`, familyID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DatasetVersion returns the current version string of a dataset.
func (r *SQLRepository) DatasetVersion(ctx context.Context, dataset string) (string, error) {
	var version string
	if err := r.get(ctx, &version, `SELECT version FROM dataset_versions WHERE dataset = ?`, dataset); err != nil {
		return "", err
	}
	return version, nil
}

// ListFamilyIDs returns all family ids, optionally restricted to a district.
func (r *SQLRepository) ListFamilyIDs(ctx context.Context, districtID string) ([]string, error) {
	var ids []string
	var err error
	if districtID == "" {
		err = r.selectAll(ctx, &ids, `SELECT family_id FROM golden_records ORDER BY family_id`)
	} else {
		err = r.selectAll(ctx, &ids, `SELECT family_id FROM golden_records WHERE district_id = ? ORDER BY family_id`, districtID)
	}
	if err != nil {
		return nil, fmt.Errorf("list families: %w", err)
	}
	return ids, nil
}

const enrollmentColumns = `id, beneficiary_id, family_id, scheme_code, status, monthly_amount, enrolled_at`

// ListEnrollmentsByFamily returns every enrollment of a family.
func (r *SQLRepository) ListEnrollmentsByFamily(ctx context.Context, familyID string) ([]domain.Enrollment, error) {
	var out []domain.Enrollment
	err := r.selectAll(ctx, &out, `
		SELECT `+enrollmentColumns+` FROM benefit_enrollments
		WHERE family_id = ?
		ORDER BY enrolled_at, id
	`, familyID)
	if err != nil {
		return nil, fmt.Errorf("enrollments for family %s: %w", familyID, err)
	}
	return out, nil
}

// ListEnrollmentsByBeneficiary returns every enrollment of a beneficiary.
func (r *SQLRepository) ListEnrollmentsByBeneficiary(ctx context.Context, beneficiaryID string) ([]domain.Enrollment, error) {
	var out []domain.Enrollment
	err := r.selectAll(ctx, &out, `
		SELECT `+enrollmentColumns+` FROM benefit_enrollments
		WHERE beneficiary_id = ?
		ORDER BY enrolled_at, id
	`, beneficiaryID)
	if err != nil {
		return nil, fmt.Errorf("enrollments for beneficiary %s: %w", beneficiaryID, err)
	}
	return out, nil
}

// ListActiveEnrollmentsByScheme returns the active enrollments of a scheme.
func (r *SQLRepository) ListActiveEnrollmentsByScheme(ctx context.Context, schemeCode string) ([]domain.Enrollment, error) {
	var out []domain.Enrollment
	err := r.selectAll(ctx, &out, `
		SELECT `+enrollmentColumns+` FROM benefit_enrollments
		WHERE scheme_code = ? AND status = ?
		ORDER BY beneficiary_id, id
	`, schemeCode, domain.EnrollmentActive)
	if err != nil {
		return nil, fmt.Errorf("active enrollments for %s: %w", schemeCode, err)
	}
	return out, nil
}

// GetBeneficiaryStatus returns the latest life-event status of a beneficiary.
func (r *SQLRepository) GetBeneficiaryStatus(ctx context.Context, beneficiaryID string) (*domain.BeneficiaryStatus, error) {
	var s domain.BeneficiaryStatus
	err := r.get(ctx, &s, `
		SELECT beneficiary_id, is_deceased, is_migrated, previous_status, current_status, updated_at
		FROM beneficiary_status
		WHERE beneficiary_id = ?
	`, beneficiaryID)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetIncomeRecord returns the most recent income record of a family.
func (r *SQLRepository) GetIncomeRecord(ctx context.Context, familyID string) (*domain.IncomeRecord, error) {
	var rec domain.IncomeRecord
	err := r.get(ctx, &rec, `
		SELECT family_id, annual_income, asset_value, source, recorded_at
		FROM income_records
		WHERE family_id = ?
		ORDER BY recorded_at DESC
		LIMIT 1
	`, familyID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetSchemeLimits returns the financial and household limits of a scheme.
func (r *SQLRepository) GetSchemeLimits(ctx context.Context, schemeCode string) (*domain.SchemeLimits, error) {
	var l domain.SchemeLimits
	err := r.get(ctx, &l, `
		SELECT scheme_code, max_annual_income, max_assets, max_beneficiaries_per_family
		FROM scheme_limits
		WHERE scheme_code = ?
	`, schemeCode)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListSchemeExclusions returns the schemes mutually exclusive with schemeCode.
// Exclusions are symmetric: a row in either direction counts.
func (r *SQLRepository) ListSchemeExclusions(ctx context.Context, schemeCode string) ([]string, error) {
	var out []string
	err := r.selectAll(ctx, &out, `
		SELECT excluded_scheme_code FROM scheme_exclusions WHERE scheme_code = ?
		UNION
		SELECT scheme_code FROM scheme_exclusions WHERE excluded_scheme_code = ?
		ORDER BY 1
	`, schemeCode, schemeCode)
	if err != nil {
		return nil, fmt.Errorf("exclusions for %s: %w", schemeCode, err)
	}
	return out, nil
}

// --- Collaborator writes, used to load fixtures --------------------------------

// SaveGoldenRecord inserts or replaces a golden record.
func (r *SQLRepository) SaveGoldenRecord(ctx context.Context, gr *domain.GoldenRecord) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO golden_records (family_id, head_member_id, age, gender, district_id, caste_category,
			is_urban, family_size, children_count, elderly_count, disabled_count, attributes)
		VALUES (:family_id, :head_member_id, :age, :gender, :district_id, :caste_category,
			:is_urban, :family_size, :children_count, :elderly_count, :disabled_count, :attributes)
		ON CONFLICT (family_id) DO UPDATE SET
			head_member_id = excluded.head_member_id,
			age = excluded.age,
			gender = excluded.gender,
			district_id = excluded.district_id,
			caste_category = excluded.caste_category,
			is_urban = excluded.is_urban,
			family_size = excluded.family_size,
			children_count = excluded.children_count,
			elderly_count = excluded.elderly_count,
			disabled_count = excluded.disabled_count,
			attributes = excluded.attributes
	`, gr)
	return err
}

// SaveProfile360 inserts or replaces a derived profile.
func (r *SQLRepository) SaveProfile360(ctx context.Context, p *domain.Profile360) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO profile_360 (family_id, income_band, annual_income, vulnerability_level,
			under_coverage_indicator, cluster_id)
		VALUES (:family_id, :income_band, :annual_income, :vulnerability_level,
			:under_coverage_indicator, :cluster_id)
		ON CONFLICT (family_id) DO UPDATE SET
			income_band = excluded.income_band,
			annual_income = excluded.annual_income,
			vulnerability_level = excluded.vulnerability_level,
			under_coverage_indicator = excluded.under_coverage_indicator,
			cluster_id = excluded.cluster_id
	`, p)
	return err
}

// SaveEnrollment inserts an enrollment.
func (r *SQLRepository) SaveEnrollment(ctx context.Context, e *domain.Enrollment) error {
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now().UTC()
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO benefit_enrollments (`+enrollmentColumns+`)
		VALUES (:id, :beneficiary_id, :family_id, :scheme_code, :status, :monthly_amount, :enrolled_at)
	`, e)
	return err
}

// SaveBeneficiaryStatus inserts or replaces a beneficiary status.
func (r *SQLRepository) SaveBeneficiaryStatus(ctx context.Context, s *domain.BeneficiaryStatus) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO beneficiary_status (beneficiary_id, is_deceased, is_migrated, previous_status, current_status, updated_at)
		VALUES (:beneficiary_id, :is_deceased, :is_migrated, :previous_status, :current_status, :updated_at)
		ON CONFLICT (beneficiary_id) DO UPDATE SET
			is_deceased = excluded.is_deceased,
			is_migrated = excluded.is_migrated,
			previous_status = excluded.previous_status,
			current_status = excluded.current_status,
			updated_at = excluded.updated_at
	`, s)
	return err
}

// SaveIncomeRecord appends an income record.
func (r *SQLRepository) SaveIncomeRecord(ctx context.Context, rec *domain.IncomeRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO income_records (family_id, annual_income, asset_value, source, recorded_at)
		VALUES (:family_id, :annual_income, :asset_value, :source, :recorded_at)
	`, rec)
	return err
}

// SaveSchemeLimits inserts or replaces the limits of a scheme.
func (r *SQLRepository) SaveSchemeLimits(ctx context.Context, l *domain.SchemeLimits) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO scheme_limits (scheme_code, max_annual_income, max_assets, max_beneficiaries_per_family)
		VALUES (:scheme_code, :max_annual_income, :max_assets, :max_beneficiaries_per_family)
		ON CONFLICT (scheme_code) DO UPDATE SET
			max_annual_income = excluded.max_annual_income,
			max_assets = excluded.max_assets,
			max_beneficiaries_per_family = excluded.max_beneficiaries_per_family
	`, l)
	return err
}

// SaveSchemeExclusion records that two schemes are mutually exclusive.
func (r *SQLRepository) SaveSchemeExclusion(ctx context.Context, schemeCode, excluded string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO scheme_exclusions (scheme_code, excluded_scheme_code) VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`), schemeCode, excluded)
	return err
}

// SetDatasetVersion records the current version of a dataset.
func (r *SQLRepository) SetDatasetVersion(ctx context.Context, dataset, version string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO dataset_versions (dataset, version, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (dataset) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at
	`), dataset, version, time.Now().UTC())
	return err
}
