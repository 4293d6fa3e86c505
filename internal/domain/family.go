package domain

import "time"

// FamilyRecord is the flattened household view that eligibility rules run against.
// It is rebuilt from the golden-records, 360-profile and benefit-history stores on
// every evaluation and is never persisted by the engine.
//
// Nullable source columns are pointers: a nil field is absent from the record and
// any rule that references it fails with a missing-field reason.
type FamilyRecord struct {
	FamilyID     string `json:"familyId" db:"family_id"`
	HeadMemberID string `json:"headMemberId" db:"head_member_id"`

	// Demographics (golden records)
	Age           *int    `json:"age,omitempty" db:"age"`
	Gender        *string `json:"gender,omitempty" db:"gender"`
	DistrictID    *string `json:"districtId,omitempty" db:"district_id"`
	CasteCategory *string `json:"casteCategory,omitempty" db:"caste_category"`
	IsUrban       *bool   `json:"isUrban,omitempty" db:"is_urban"`

	// Household composition (golden records)
	FamilySize    *int `json:"familySize,omitempty" db:"family_size"`
	ChildrenCount *int `json:"childrenCount,omitempty" db:"children_count"`
	ElderlyCount  *int `json:"elderlyCount,omitempty" db:"elderly_count"`
	DisabledCount *int `json:"disabledCount,omitempty" db:"disabled_count"`

	// Derived socio-economic signals (360 profile)
	IncomeBand         *string  `json:"incomeBand,omitempty" db:"income_band"`
	AnnualIncome       *float64 `json:"annualIncome,omitempty" db:"annual_income"`
	VulnerabilityLevel *string  `json:"vulnerabilityLevel,omitempty" db:"vulnerability_level"`
	UnderCoverage      *bool    `json:"underCoverage,omitempty" db:"under_coverage_indicator"`
	ClusterID          *string  `json:"clusterId,omitempty" db:"cluster_id"`

	// Enrollment history (benefit history)
	EnrolledSchemes       []string `json:"enrolledSchemes"`
	PreviousSchemes       []string `json:"previousSchemes"`
	BenefitsReceived      int      `json:"benefitsReceived"`
	TotalBenefitsReceived float64  `json:"totalBenefitsReceived"`

	// Attributes carries source columns without a typed field.
	Attributes map[string]any `json:"attributes,omitempty"`

	// Versions of the datasets this record was built from.
	GoldenRecordsVersion string `json:"goldenRecordsVersion"`
	Profile360Version    string `json:"profile360Version"`
}

// Vulnerability levels as produced by the 360 profile.
const (
	VulnerabilityLow      = "LOW"
	VulnerabilityMedium   = "MEDIUM"
	VulnerabilityHigh     = "HIGH"
	VulnerabilityVeryHigh = "VERY_HIGH"
)

// Income bands.
const (
	IncomeBandBPL = "BPL"
	IncomeBandAPL = "APL"
	IncomeBandLIG = "LIG"
	IncomeBandMIG = "MIG"
	IncomeBandHIG = "HIG"
)

// Vulnerability returns the vulnerability level or "" when unknown.
func (f *FamilyRecord) Vulnerability() string {
	if f == nil || f.VulnerabilityLevel == nil {
		return ""
	}
	return *f.VulnerabilityLevel
}

// IsUnderCovered reports the under-coverage indicator; absent means false.
func (f *FamilyRecord) IsUnderCovered() bool {
	return f != nil && f.UnderCoverage != nil && *f.UnderCoverage
}

// District returns the district id or "".
func (f *FamilyRecord) District() string {
	if f == nil || f.DistrictID == nil {
		return ""
	}
	return *f.DistrictID
}

// IsHighlyVulnerable reports HIGH or VERY_HIGH vulnerability.
func IsHighlyVulnerable(level string) bool {
	return level == VulnerabilityHigh || level == VulnerabilityVeryHigh
}

// GoldenRecord is a household's master demographic row.
type GoldenRecord struct {
	FamilyID      string  `db:"family_id"`
	HeadMemberID  string  `db:"head_member_id"`
	Age           *int    `db:"age"`
	Gender        *string `db:"gender"`
	DistrictID    *string `db:"district_id"`
	CasteCategory *string `db:"caste_category"`
	IsUrban       *bool   `db:"is_urban"`
	FamilySize    *int    `db:"family_size"`
	ChildrenCount *int    `db:"children_count"`
	ElderlyCount  *int    `db:"elderly_count"`
	DisabledCount *int    `db:"disabled_count"`
	// Attributes is a JSON object of extra columns.
	Attributes *string `db:"attributes"`
}

// Profile360 is the derived socio-economic profile of a household.
type Profile360 struct {
	FamilyID           string   `db:"family_id"`
	IncomeBand         *string  `db:"income_band"`
	AnnualIncome       *float64 `db:"annual_income"`
	VulnerabilityLevel *string  `db:"vulnerability_level"`
	UnderCoverage      *bool    `db:"under_coverage_indicator"`
	ClusterID          *string  `db:"cluster_id"`
}

// IncomeRecord is the latest declared or verified income of a household.
type IncomeRecord struct {
	FamilyID     string    `json:"familyId" db:"family_id"`
	AnnualIncome float64   `json:"annualIncome" db:"annual_income"`
	AssetValue   *float64  `json:"assetValue,omitempty" db:"asset_value"`
	Source       string    `json:"source" db:"source"`
	RecordedAt   time.Time `json:"recordedAt" db:"recorded_at"`
}

// Dataset names used for version stamps.
const (
	DatasetGoldenRecords = "golden_records"
	DatasetProfile360    = "profile_360"
)
