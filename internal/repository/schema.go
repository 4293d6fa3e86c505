package repository

// Schema definitions for the eligibility engine.
// Compatible with both SQLite and PostgreSQL.

// Collaborator stores. The engine only reads these; they are created here so a
// fresh database is usable for local runs and tests.
const schemaCollaborators = `
CREATE TABLE IF NOT EXISTS golden_records (
    family_id TEXT PRIMARY KEY,
    head_member_id TEXT NOT NULL DEFAULT '',
    age INTEGER,
    gender TEXT,
    district_id TEXT,
    caste_category TEXT,
    is_urban BOOLEAN,
    family_size INTEGER,
    children_count INTEGER,
    elderly_count INTEGER,
    disabled_count INTEGER,
    attributes TEXT
);

CREATE INDEX IF NOT EXISTS idx_golden_records_district ON golden_records(district_id);

CREATE TABLE IF NOT EXISTS profile_360 (
    family_id TEXT PRIMARY KEY,
    income_band TEXT,
    annual_income DOUBLE PRECISION,
    vulnerability_level TEXT,
    under_coverage_indicator BOOLEAN,
    cluster_id TEXT
);

CREATE TABLE IF NOT EXISTS benefit_enrollments (
    id TEXT PRIMARY KEY,
    beneficiary_id TEXT NOT NULL,
    family_id TEXT NOT NULL,
    scheme_code TEXT NOT NULL,
    status TEXT NOT NULL,
    monthly_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
    enrolled_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrollments_family ON benefit_enrollments(family_id);
CREATE INDEX IF NOT EXISTS idx_enrollments_beneficiary ON benefit_enrollments(beneficiary_id);
CREATE INDEX IF NOT EXISTS idx_enrollments_scheme ON benefit_enrollments(scheme_code, status);

CREATE TABLE IF NOT EXISTS beneficiary_status (
    beneficiary_id TEXT PRIMARY KEY,
    is_deceased BOOLEAN NOT NULL DEFAULT FALSE,
    is_migrated BOOLEAN NOT NULL DEFAULT FALSE,
    previous_status TEXT NOT NULL DEFAULT '',
    current_status TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS income_records (
    family_id TEXT NOT NULL,
    annual_income DOUBLE PRECISION NOT NULL,
    asset_value DOUBLE PRECISION,
    source TEXT NOT NULL DEFAULT '',
    recorded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_income_records_family ON income_records(family_id, recorded_at);

CREATE TABLE IF NOT EXISTS dataset_versions (
    dataset TEXT PRIMARY KEY,
    version TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaRules = `
CREATE TABLE IF NOT EXISTS scheme_rules (
    rule_id TEXT PRIMARY KEY,
    scheme_code TEXT NOT NULL,
    name TEXT NOT NULL,
    rule_type TEXT NOT NULL,
    expression TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    is_mandatory BOOLEAN NOT NULL DEFAULT FALSE,
    weight DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    version TEXT NOT NULL DEFAULT '1',
    effective_from TIMESTAMP NOT NULL,
    effective_to TIMESTAMP,
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_scheme_rules_scheme ON scheme_rules(scheme_code, is_active);

CREATE TABLE IF NOT EXISTS scheme_exclusions (
    scheme_code TEXT NOT NULL,
    excluded_scheme_code TEXT NOT NULL,
    PRIMARY KEY (scheme_code, excluded_scheme_code)
);

CREATE TABLE IF NOT EXISTS scheme_limits (
    scheme_code TEXT PRIMARY KEY,
    max_annual_income DOUBLE PRECISION,
    max_assets DOUBLE PRECISION,
    max_beneficiaries_per_family INTEGER
);
`

const schemaDecisionConfigs = `
CREATE TABLE IF NOT EXISTS decision_configs (
    scheme_code TEXT PRIMARY KEY,
    low_risk_max DOUBLE PRECISION NOT NULL,
    medium_risk_min DOUBLE PRECISION NOT NULL,
    medium_risk_max DOUBLE PRECISION NOT NULL,
    high_risk_min DOUBLE PRECISION NOT NULL,
    enable_auto_approval BOOLEAN NOT NULL DEFAULT FALSE,
    enable_auto_rejection BOOLEAN NOT NULL DEFAULT FALSE,
    auto_reject_min DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    route_medium_risk_to_officer BOOLEAN NOT NULL DEFAULT TRUE,
    route_high_risk_to_fraud BOOLEAN NOT NULL DEFAULT FALSE,
    require_human_review_high BOOLEAN NOT NULL DEFAULT TRUE,
    require_human_review_rejection BOOLEAN NOT NULL DEFAULT TRUE,
    default_decision TEXT NOT NULL DEFAULT 'ROUTE_TO_OFFICER',
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);
`

const schemaModels = `
CREATE TABLE IF NOT EXISTS ml_models (
    scheme_code TEXT NOT NULL,
    model_version TEXT NOT NULL,
    intercept DOUBLE PRECISION NOT NULL DEFAULT 0,
    coefficients TEXT NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    trained_at TIMESTAMP NOT NULL,
    PRIMARY KEY (scheme_code, model_version)
);
`

const schemaSnapshots = `
CREATE TABLE IF NOT EXISTS eligibility_snapshots (
    snapshot_id TEXT PRIMARY KEY,
    family_id TEXT NOT NULL,
    scheme_code TEXT NOT NULL,
    status TEXT NOT NULL,
    rule_eligible BOOLEAN NOT NULL,
    rule_score DOUBLE PRECISION NOT NULL,
    eligibility_score DOUBLE PRECISION NOT NULL,
    confidence_score DOUBLE PRECISION NOT NULL,
    rules_passed TEXT NOT NULL,
    rules_failed TEXT NOT NULL,
    ml_probability DOUBLE PRECISION,
    ml_model_version TEXT NOT NULL DEFAULT '',
    ml_top_features TEXT,
    priority_score DOUBLE PRECISION NOT NULL,
    vulnerability_level TEXT NOT NULL DEFAULT '',
    under_coverage BOOLEAN NOT NULL DEFAULT FALSE,
    district_id TEXT NOT NULL DEFAULT '',
    reason_codes TEXT NOT NULL,
    rule_set_version TEXT NOT NULL,
    dataset_version_golden_records TEXT NOT NULL,
    dataset_version_profile_360 TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    evaluated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_family ON eligibility_snapshots(family_id, evaluated_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_scheme ON eligibility_snapshots(scheme_code, district_id, evaluated_at);
`

const schemaCandidateLists = `
CREATE TABLE IF NOT EXISTS candidate_lists (
    id TEXT PRIMARY KEY,
    list_type TEXT NOT NULL,
    scheme_code TEXT NOT NULL DEFAULT '',
    family_id TEXT NOT NULL DEFAULT '',
    district_id TEXT NOT NULL DEFAULT '',
    min_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    generated_by TEXT NOT NULL DEFAULT '',
    generated_at TIMESTAMP NOT NULL,
    summary TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS candidate_list_entries (
    list_id TEXT NOT NULL,
    rank INTEGER NOT NULL,
    family_id TEXT NOT NULL,
    scheme_code TEXT NOT NULL,
    snapshot_id TEXT NOT NULL,
    status TEXT NOT NULL,
    eligibility_score DOUBLE PRECISION NOT NULL,
    priority_score DOUBLE PRECISION NOT NULL,
    vulnerability_level TEXT NOT NULL DEFAULT '',
    under_coverage BOOLEAN NOT NULL DEFAULT FALSE,
    promoted BOOLEAN NOT NULL DEFAULT FALSE,
    evaluated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (list_id, rank)
);
`

const schemaDetection = `
CREATE TABLE IF NOT EXISTS detected_cases (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL DEFAULT '',
    beneficiary_id TEXT NOT NULL,
    family_id TEXT NOT NULL,
    scheme_code TEXT NOT NULL,
    case_type TEXT NOT NULL,
    confidence_level TEXT NOT NULL,
    priority INTEGER NOT NULL,
    financial_exposure DOUBLE PRECISION NOT NULL,
    risk_score DOUBLE PRECISION NOT NULL,
    status TEXT NOT NULL,
    results TEXT NOT NULL,
    detected_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detected_cases_scheme ON detected_cases(scheme_code, detected_at);
CREATE INDEX IF NOT EXISTS idx_detected_cases_beneficiary ON detected_cases(beneficiary_id);

CREATE TABLE IF NOT EXISTS detection_runs (
    id TEXT PRIMARY KEY,
    scheme_code TEXT NOT NULL,
    status TEXT NOT NULL,
    checked INTEGER NOT NULL DEFAULT 0,
    flagged INTEGER NOT NULL DEFAULT 0,
    critical INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);
`

const schemaBatchJobs = `
CREATE TABLE IF NOT EXISTS batch_jobs (
    id TEXT PRIMARY KEY,
    scheme_code TEXT NOT NULL,
    district_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    total INTEGER NOT NULL DEFAULT 0,
    processed INTEGER NOT NULL DEFAULT 0,
    eligible INTEGER NOT NULL DEFAULT 0,
    possible INTEGER NOT NULL DEFAULT 0,
    ineligible INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0,
    persist_failures INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    message TEXT NOT NULL DEFAULT ''
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCollaborators,
		schemaRules,
		schemaDecisionConfigs,
		schemaModels,
		schemaSnapshots,
		schemaCandidateLists,
		schemaDetection,
		schemaBatchJobs,
	}
}
