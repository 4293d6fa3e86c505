package domain

import (
	"time"
)

// EligibilityStatus is the verdict of one (family, scheme) evaluation.
type EligibilityStatus string

const (
	StatusRuleEligible     EligibilityStatus = "RULE_ELIGIBLE"
	StatusPossibleEligible EligibilityStatus = "POSSIBLE_ELIGIBLE"
	StatusRuleIneligible   EligibilityStatus = "RULE_INELIGIBLE"
	StatusError            EligibilityStatus = "ERROR"
)

// Candidate reports whether the status can appear on a candidate list.
func (s EligibilityStatus) Candidate() bool {
	return s == StatusRuleEligible || s == StatusPossibleEligible
}

// MLPrediction is the output of the optional ML scorer.
type MLPrediction struct {
	Probability  float64          `json:"probability"`
	ModelVersion string           `json:"modelVersion"`
	TopFeatures  []FeatureContrib `json:"topFeatures,omitempty"`
}

// FeatureContrib is one feature's contribution to an ML prediction.
type FeatureContrib struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// EvaluationResult is the hybrid verdict for one (family, scheme) pair and the
// body of an EligibilitySnapshot once persisted.
type EvaluationResult struct {
	SnapshotID string            `json:"snapshotId"`
	FamilyID   string            `json:"familyId"`
	SchemeCode string            `json:"schemeCode"`
	Status     EligibilityStatus `json:"status"`

	RuleEligible     bool     `json:"ruleEligible"`
	RuleScore        float64  `json:"ruleScore"`
	EligibilityScore float64  `json:"eligibilityScore"`
	ConfidenceScore  float64  `json:"confidenceScore"`
	RulesPassed      []string `json:"rulesPassed"`
	RulesFailed      []string `json:"rulesFailed"`

	MLProbability  *float64         `json:"mlProbability,omitempty"`
	MLModelVersion string           `json:"mlModelVersion,omitempty"`
	MLTopFeatures  []FeatureContrib `json:"mlTopFeatures,omitempty"`

	PriorityScore      float64  `json:"priorityScore"`
	VulnerabilityLevel string   `json:"vulnerabilityLevel,omitempty"`
	UnderCoverage      bool     `json:"underCoverage"`
	DistrictID         string   `json:"districtId,omitempty"`
	ReasonCodes        []string `json:"reasonCodes,omitempty"`

	// Provenance: a verdict is reproducible given these stamps.
	RuleSetVersion              string `json:"ruleSetVersion"`
	DatasetVersionGoldenRecords string `json:"datasetVersionGoldenRecords"`
	DatasetVersionProfile360    string `json:"datasetVersionProfile360"`

	EvaluatedAt time.Time `json:"evaluatedAt"`
	Error       string    `json:"error,omitempty"`
	Persisted   bool      `json:"persisted"`
}

// EligibilitySnapshot is the immutable, append-only record of an evaluation.
type EligibilitySnapshot = EvaluationResult

// EvaluationMetadata carries request processing information for API responses.
type EvaluationMetadata struct {
	TraceID       string `json:"traceId"`
	RulesMs       int64  `json:"rulesMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}

// BatchJob tracks a batch evaluation run. Progress is written periodically.
type BatchJob struct {
	ID              string     `json:"id" db:"id"`
	SchemeCode      string     `json:"schemeCode" db:"scheme_code"`
	DistrictID      string     `json:"districtId,omitempty" db:"district_id"`
	Status          string     `json:"status" db:"status"`
	Total           int        `json:"total" db:"total"`
	Processed       int        `json:"processed" db:"processed"`
	Eligible        int        `json:"eligible" db:"eligible"`
	Possible        int        `json:"possible" db:"possible"`
	Ineligible      int        `json:"ineligible" db:"ineligible"`
	Errors          int        `json:"errors" db:"errors"`
	PersistFailures int        `json:"persistFailures" db:"persist_failures"`
	StartedAt       time.Time  `json:"startedAt" db:"started_at"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty" db:"finished_at"`
	Message         string     `json:"message,omitempty" db:"message"`
}

// Batch job statuses.
const (
	JobRunning   = "RUNNING"
	JobCompleted = "COMPLETED"
	JobFailed    = "FAILED"
	JobCancelled = "CANCELLED"
)

// Tally counts a result into the job counters.
func (j *BatchJob) Tally(r *EvaluationResult) {
	j.Processed++
	switch r.Status {
	case StatusRuleEligible:
		j.Eligible++
	case StatusPossibleEligible:
		j.Possible++
	case StatusRuleIneligible:
		j.Ineligible++
	default:
		j.Errors++
	}
}
