// Package mlscore scores families with per-scheme logistic models.
package mlscore

import (
	"cmp"
	"math"
	"slices"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"gonum.org/v1/gonum/floats"
)

// TopFeatureCount is the number of contributions reported per prediction.
const TopFeatureCount = 5

// Model is a logistic model with coefficients aligned to FeatureNames.
type Model struct {
	SchemeCode string
	Version    string
	intercept  float64
	coef       []float64
}

// NewModel aligns stored coefficients to FeatureNames. Unknown coefficient
// names are ignored.
func NewModel(m *domain.MLModel) *Model {
	coef := make([]float64, len(FeatureNames))
	for i, name := range FeatureNames {
		coef[i] = m.Coefficients[name]
	}
	return &Model{
		SchemeCode: m.SchemeCode,
		Version:    m.ModelVersion,
		intercept:  m.Intercept,
		coef:       coef,
	}
}

// Predict returns sigmoid(intercept + coef·x) with the largest absolute
// contributions.
func (m *Model) Predict(x []float64) *domain.MLPrediction {
	z := m.intercept + floats.Dot(m.coef, x)

	contrib := make([]float64, len(x))
	floats.MulTo(contrib, m.coef, x)

	top := make([]domain.FeatureContrib, 0, len(x))
	for i, c := range contrib {
		if c == 0 {
			continue
		}
		top = append(top, domain.FeatureContrib{
			Feature:      FeatureNames[i],
			Value:        x[i],
			Contribution: c,
		})
	}
	slices.SortStableFunc(top, func(a, b domain.FeatureContrib) int {
		return cmp.Compare(math.Abs(b.Contribution), math.Abs(a.Contribution))
	})
	if len(top) > TopFeatureCount {
		top = top[:TopFeatureCount]
	}

	return &domain.MLPrediction{
		Probability:  sigmoid(z),
		ModelVersion: m.Version,
		TopFeatures:  top,
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
