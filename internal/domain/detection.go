package domain

import "time"

// Detection check names. Order is fixed: every summary carries exactly these six.
const (
	CheckEligibilityRecheck   = "ELIGIBILITY_RECHECK"
	CheckSchemeOverlap        = "SCHEME_OVERLAP_CHECK"
	CheckDuplicateEnrollment  = "DUPLICATE_ENROLLMENT_CHECK"
	CheckStatusChange         = "STATUS_CHANGE_CHECK"
	CheckIncomeThreshold      = "INCOME_THRESHOLD_CHECK"
	CheckFamilyBeneficiaryCap = "FAMILY_BENEFICIARY_LIMIT_CHECK"
)

// DetectionChecks lists the checks in execution order.
var DetectionChecks = []string{
	CheckEligibilityRecheck,
	CheckSchemeOverlap,
	CheckDuplicateEnrollment,
	CheckStatusChange,
	CheckIncomeThreshold,
	CheckFamilyBeneficiaryCap,
}

// Severity of a failed detection check.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Weight maps a severity onto its contribution to a case risk score.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.7
	case SeverityMedium:
		return 0.4
	case SeverityLow:
		return 0.2
	default:
		return 0
	}
}

// Case types for detected cases.
const (
	CaseHardIneligible    = "HARD_INELIGIBLE"
	CaseLikelyMisTargeted = "LIKELY_MIS_TARGETED"
	CaseLowConfidenceFlag = "LOW_CONFIDENCE_FLAG"
)

// Confidence levels for detected cases.
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// RuleDetectionResult is the outcome of one detection check.
type RuleDetectionResult struct {
	RuleName       string   `json:"ruleName"`
	Category       string   `json:"category"`
	Passed         bool     `json:"rulePassed"`
	Severity       Severity `json:"ruleSeverity,omitempty"`
	PreviousValue  string   `json:"previousValue,omitempty"`
	CurrentValue   string   `json:"currentValue,omitempty"`
	ChangeDetected bool     `json:"changeDetected"`
	Detail         string   `json:"detail,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// BenefitData describes the benefit a beneficiary currently receives.
type BenefitData struct {
	MonthlyAmount float64  `json:"monthlyAmount"`
	AnnualIncome  *float64 `json:"annualIncome,omitempty"`
	AssetValue    *float64 `json:"assetValue,omitempty"`
}

// DetectionSummary aggregates the six check results for a beneficiary.
type DetectionSummary struct {
	BeneficiaryID     string                `json:"beneficiaryId"`
	FamilyID          string                `json:"familyId"`
	SchemeCode        string                `json:"schemeCode"`
	Results           []RuleDetectionResult `json:"results"`
	PassedCount       int                   `json:"passedCount"`
	FailedCount       int                   `json:"failedCount"`
	AllPassed         bool                  `json:"allPassed"`
	CriticalFailures  []string              `json:"criticalFailures"`
	RiskScore         float64               `json:"riskScore"`
	CaseType          string                `json:"caseType,omitempty"`
	ConfidenceLevel   string                `json:"confidenceLevel,omitempty"`
	Priority          int                   `json:"priority,omitempty"`
	FinancialExposure float64               `json:"financialExposure"`
	DetectedAt        time.Time             `json:"detectedAt"`
}

// DetectedCase is a persisted mis-targeting flag awaiting human review.
type DetectedCase struct {
	ID                string                `json:"id" db:"id"`
	RunID             string                `json:"runId,omitempty" db:"run_id"`
	BeneficiaryID     string                `json:"beneficiaryId" db:"beneficiary_id"`
	FamilyID          string                `json:"familyId" db:"family_id"`
	SchemeCode        string                `json:"schemeCode" db:"scheme_code"`
	CaseType          string                `json:"caseType" db:"case_type"`
	ConfidenceLevel   string                `json:"confidenceLevel" db:"confidence_level"`
	Priority          int                   `json:"priority" db:"priority"`
	FinancialExposure float64               `json:"financialExposure" db:"financial_exposure"`
	RiskScore         float64               `json:"riskScore" db:"risk_score"`
	Status            string                `json:"status" db:"status"`
	Results           []RuleDetectionResult `json:"results"`
	DetectedAt        time.Time             `json:"detectedAt" db:"detected_at"`
}

// CaseStatusOpen is the initial status of a detected case.
const CaseStatusOpen = "OPEN"

// DetectionRun records a detection pass over a scheme's beneficiaries.
type DetectionRun struct {
	ID         string     `json:"id" db:"id"`
	SchemeCode string     `json:"schemeCode" db:"scheme_code"`
	Status     string     `json:"status" db:"status"`
	Checked    int        `json:"checked" db:"checked"`
	Flagged    int        `json:"flagged" db:"flagged"`
	Critical   int        `json:"critical" db:"critical"`
	StartedAt  time.Time  `json:"startedAt" db:"started_at"`
	FinishedAt *time.Time `json:"finishedAt,omitempty" db:"finished_at"`
}

// Enrollment is an existing benefit enrollment.
type Enrollment struct {
	ID            string    `json:"id" db:"id"`
	BeneficiaryID string    `json:"beneficiaryId" db:"beneficiary_id"`
	FamilyID      string    `json:"familyId" db:"family_id"`
	SchemeCode    string    `json:"schemeCode" db:"scheme_code"`
	Status        string    `json:"status" db:"status"`
	MonthlyAmount float64   `json:"monthlyAmount" db:"monthly_amount"`
	EnrolledAt    time.Time `json:"enrolledAt" db:"enrolled_at"`
}

// EnrollmentActive is the status of a live enrollment.
const EnrollmentActive = "ACTIVE"

// BeneficiaryStatus is the latest life-event status of a beneficiary.
type BeneficiaryStatus struct {
	BeneficiaryID  string    `json:"beneficiaryId" db:"beneficiary_id"`
	IsDeceased     bool      `json:"isDeceased" db:"is_deceased"`
	IsMigrated     bool      `json:"isMigrated" db:"is_migrated"`
	PreviousStatus string    `json:"previousStatus" db:"previous_status"`
	CurrentStatus  string    `json:"currentStatus" db:"current_status"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// SchemeLimits are the financial and household limits of a scheme.
type SchemeLimits struct {
	SchemeCode                string   `json:"schemeCode" db:"scheme_code"`
	MaxAnnualIncome           *float64 `json:"maxAnnualIncome,omitempty" db:"max_annual_income"`
	MaxAssets                 *float64 `json:"maxAssets,omitempty" db:"max_assets"`
	MaxBeneficiariesPerFamily *int     `json:"maxBeneficiariesPerFamily,omitempty" db:"max_beneficiaries_per_family"`
}
