package domain

import "time"

// Candidate list types.
const (
	ListDepartmentWorklist = "DEPARTMENT_WORKLIST"
	ListCitizenHints       = "CITIZEN_HINTS"
)

// CandidateList is an append-only snapshot of a ranking at generation time.
type CandidateList struct {
	ID          string           `json:"id" db:"id"`
	ListType    string           `json:"listType" db:"list_type"`
	SchemeCode  string           `json:"schemeCode,omitempty" db:"scheme_code"`
	FamilyID    string           `json:"familyId,omitempty" db:"family_id"`
	DistrictID  string           `json:"districtId,omitempty" db:"district_id"`
	MinScore    float64          `json:"minScore" db:"min_score"`
	GeneratedBy string           `json:"generatedBy,omitempty" db:"generated_by"`
	GeneratedAt time.Time        `json:"generatedAt" db:"generated_at"`
	Summary     ListSummary      `json:"summary"`
	Entries     []CandidateEntry `json:"entries"`
}

// CandidateEntry is one ranked row of a candidate list.
type CandidateEntry struct {
	Rank               int               `json:"rank" db:"rank"`
	FamilyID           string            `json:"familyId" db:"family_id"`
	SchemeCode         string            `json:"schemeCode" db:"scheme_code"`
	SnapshotID         string            `json:"snapshotId" db:"snapshot_id"`
	Status             EligibilityStatus `json:"status" db:"status"`
	EligibilityScore   float64           `json:"eligibilityScore" db:"eligibility_score"`
	PriorityScore      float64           `json:"priorityScore" db:"priority_score"`
	VulnerabilityLevel string            `json:"vulnerabilityLevel,omitempty" db:"vulnerability_level"`
	UnderCoverage      bool              `json:"underCoverage" db:"under_coverage"`
	Promoted           bool              `json:"promoted" db:"promoted"`
	EvaluatedAt        time.Time         `json:"evaluatedAt" db:"evaluated_at"`
}

// ListSummary holds descriptive statistics of a candidate list.
type ListSummary struct {
	Count         int     `json:"count"`
	PromotedCount int     `json:"promotedCount"`
	ExcludedCount int     `json:"excludedCount"`
	MeanScore     float64 `json:"meanScore"`
	MedianScore   float64 `json:"medianScore"`
	P90Score      float64 `json:"p90Score"`
	MeanPriority  float64 `json:"meanPriority"`
}
