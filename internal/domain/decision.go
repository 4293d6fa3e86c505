package domain

// RiskBand is the LOW/MEDIUM/HIGH classification of a risk score.
type RiskBand string

const (
	RiskLow    RiskBand = "LOW"
	RiskMedium RiskBand = "MEDIUM"
	RiskHigh   RiskBand = "HIGH"
)

// DecisionType is the routing outcome of a banded risk score.
type DecisionType string

const (
	DecisionAutoApprove    DecisionType = "AUTO_APPROVE"
	DecisionRouteToOfficer DecisionType = "ROUTE_TO_OFFICER"
	DecisionRouteToFraud   DecisionType = "ROUTE_TO_FRAUD"
	DecisionAutoReject     DecisionType = "AUTO_REJECT"
)

// Config sources recorded on a Decision.
const (
	ConfigSourceScheme  = "SCHEME"
	ConfigSourceDefault = "DEFAULT"
)

// DecisionConfig holds a scheme's risk-band thresholds and routing toggles.
// Bands are [0, LowRiskMax], (LowRiskMax, MediumRiskMax], (MediumRiskMax, 1].
type DecisionConfig struct {
	SchemeCode                  string       `json:"schemeCode" db:"scheme_code" mapstructure:"scheme_code"`
	LowRiskMax                  float64      `json:"lowRiskMax" db:"low_risk_max" mapstructure:"low_risk_max"`
	MediumRiskMin               float64      `json:"mediumRiskMin" db:"medium_risk_min" mapstructure:"medium_risk_min"`
	MediumRiskMax               float64      `json:"mediumRiskMax" db:"medium_risk_max" mapstructure:"medium_risk_max"`
	HighRiskMin                 float64      `json:"highRiskMin" db:"high_risk_min" mapstructure:"high_risk_min"`
	EnableAutoApproval          bool         `json:"enableAutoApproval" db:"enable_auto_approval" mapstructure:"enable_auto_approval"`
	EnableAutoRejection         bool         `json:"enableAutoRejection" db:"enable_auto_rejection" mapstructure:"enable_auto_rejection"`
	AutoRejectMin               float64      `json:"autoRejectMin" db:"auto_reject_min" mapstructure:"auto_reject_min"`
	RouteMediumRiskToOfficer    bool         `json:"routeMediumRiskToOfficer" db:"route_medium_risk_to_officer" mapstructure:"route_medium_risk_to_officer"`
	RouteHighRiskToFraud        bool         `json:"routeHighRiskToFraud" db:"route_high_risk_to_fraud" mapstructure:"route_high_risk_to_fraud"`
	RequireHumanReviewHigh      bool         `json:"requireHumanReviewHigh" db:"require_human_review_high" mapstructure:"require_human_review_high"`
	RequireHumanReviewRejection bool         `json:"requireHumanReviewRejection" db:"require_human_review_rejection" mapstructure:"require_human_review_rejection"`
	DefaultDecision             DecisionType `json:"defaultDecision" db:"default_decision" mapstructure:"default_decision"`
	IsActive                    bool         `json:"isActive" db:"is_active" mapstructure:"is_active"`
}

// Decision is the banded, routed outcome for one risk score.
type Decision struct {
	SchemeCode   string       `json:"schemeCode"`
	RiskScore    float64      `json:"riskScore"`
	RiskBand     RiskBand     `json:"riskBand"`
	DecisionType DecisionType `json:"decisionType"`
	ConfigSource string       `json:"configSource"`
	Reason       string       `json:"reason,omitempty"`
}
