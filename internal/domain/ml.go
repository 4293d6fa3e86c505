package domain

import "time"

// MLModel is a trained logistic model for one scheme. Coefficients are keyed by
// feature name; features without a coefficient contribute nothing.
type MLModel struct {
	SchemeCode   string             `json:"schemeCode" db:"scheme_code"`
	ModelVersion string             `json:"modelVersion" db:"model_version"`
	Intercept    float64            `json:"intercept" db:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
	IsActive     bool               `json:"isActive" db:"is_active"`
	TrainedAt    time.Time          `json:"trainedAt" db:"trained_at"`
}
