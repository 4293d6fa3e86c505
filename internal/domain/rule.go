package domain

import "time"

// RuleType classifies a scheme eligibility rule.
type RuleType string

const (
	RuleTypeMandatory RuleType = "MANDATORY"
	RuleTypeOptional  RuleType = "OPTIONAL"
)

// SchemeEligibilityRule is one eligibility criterion of a scheme.
// Expression is a CEL boolean expression over FamilyRecord fields, e.g.
// `age >= 60` or `income_band in ['BPL']`.
type SchemeEligibilityRule struct {
	RuleID        string     `json:"ruleId" db:"rule_id"`
	SchemeCode    string     `json:"schemeCode" db:"scheme_code"`
	Name          string     `json:"name" db:"name"`
	RuleType      RuleType   `json:"ruleType" db:"rule_type"`
	Expression    string     `json:"expression" db:"expression"`
	Priority      int        `json:"priority" db:"priority"`
	IsMandatory   bool       `json:"isMandatory" db:"is_mandatory"`
	Weight        float64    `json:"weight" db:"weight"`
	Version       string     `json:"version" db:"version"`
	EffectiveFrom time.Time  `json:"effectiveFrom" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effectiveTo,omitempty" db:"effective_to"`
	IsActive      bool       `json:"isActive" db:"is_active"`
}

// Mandatory reports whether a failure of this rule makes the family ineligible.
func (r *SchemeEligibilityRule) Mandatory() bool {
	return r.IsMandatory || r.RuleType == RuleTypeMandatory
}

// EffectiveAt reports whether the rule applies at t.
func (r *SchemeEligibilityRule) EffectiveAt(t time.Time) bool {
	if !r.IsActive {
		return false
	}
	if !r.EffectiveFrom.IsZero() && t.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !t.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// RuleOutcome is the outcome of a single rule.
type RuleOutcome string

const (
	RuleOutcomePassed RuleOutcome = "PASSED"
	RuleOutcomeFailed RuleOutcome = "FAILED"
)

// RuleResult is the output of one rule evaluation.
type RuleResult struct {
	RuleID     string      `json:"ruleId"`
	Name       string      `json:"name"`
	Mandatory  bool        `json:"mandatory"`
	Outcome    RuleOutcome `json:"outcome"`
	Weight     float64     `json:"weight"`
	ReasonCode string      `json:"reasonCode,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Reason codes attached to rule and evaluation results.
const (
	ReasonMandatoryFailed = "MANDATORY_RULE_FAILED"
	ReasonOptionalFailed  = "OPTIONAL_RULE_FAILED"
	ReasonMissingField    = "MISSING_FIELD"
	ReasonRuleEvalError   = "RULE_EVAL_ERROR"
	ReasonRuleInvalid     = "RULE_INVALID"
	ReasonDataUnavailable = "DATA_UNAVAILABLE"
	ReasonNoActiveRules   = "NO_ACTIVE_RULES"
	ReasonMLSkipped       = "ML_SKIPPED"
	ReasonMLUnavailable   = "ML_UNAVAILABLE"
	ReasonBelowThreshold  = "BELOW_ACCEPTANCE_THRESHOLD"
	ReasonAllRulesPassed  = "ALL_RULES_PASSED"
)

// RuleEvalResult aggregates the rule results of one (family, scheme) pair.
type RuleEvalResult struct {
	SchemeCode     string       `json:"schemeCode"`
	RuleSetVersion string       `json:"ruleSetVersion"`
	RuleEligible   bool         `json:"ruleEligible"`
	RuleScore      float64      `json:"ruleScore"`
	RulesPassed    []string     `json:"rulesPassed"`
	RulesFailed    []string     `json:"rulesFailed"`
	MandatoryFails []string     `json:"mandatoryFails,omitempty"`
	ErroredRules   int          `json:"erroredRules"`
	Results        []RuleResult `json:"results"`
	ReasonCodes    []string     `json:"reasonCodes,omitempty"`
}
