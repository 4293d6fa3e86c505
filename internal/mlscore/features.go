package mlscore

import "github.com/khannas43/smart-eligibility/internal/domain"

// FeatureNames is the fixed order of the model feature vector.
var FeatureNames = []string{
	"age",
	"family_size",
	"children_count",
	"elderly_count",
	"disabled_count",
	"is_urban",
	"income_band",
	"vulnerability",
	"under_coverage",
	"benefits_received_count",
	"enrolled_scheme_count",
	"annual_income_lakhs",
}

var incomeBandOrdinal = map[string]float64{
	domain.IncomeBandBPL: 0,
	domain.IncomeBandLIG: 1,
	domain.IncomeBandAPL: 2,
	domain.IncomeBandMIG: 3,
	domain.IncomeBandHIG: 4,
}

var vulnerabilityOrdinal = map[string]float64{
	domain.VulnerabilityLow:      0,
	domain.VulnerabilityMedium:   1,
	domain.VulnerabilityHigh:     2,
	domain.VulnerabilityVeryHigh: 3,
}

// FeatureVector encodes a family in FeatureNames order. Absent values encode
// as zero.
func FeatureVector(f *domain.FamilyRecord) []float64 {
	x := make([]float64, len(FeatureNames))
	x[0] = intOrZero(f.Age)
	x[1] = intOrZero(f.FamilySize)
	x[2] = intOrZero(f.ChildrenCount)
	x[3] = intOrZero(f.ElderlyCount)
	x[4] = intOrZero(f.DisabledCount)
	x[5] = boolOrZero(f.IsUrban)
	if f.IncomeBand != nil {
		x[6] = incomeBandOrdinal[*f.IncomeBand]
	}
	x[7] = vulnerabilityOrdinal[f.Vulnerability()]
	x[8] = boolOrZero(f.UnderCoverage)
	x[9] = float64(f.BenefitsReceived)
	x[10] = float64(len(f.EnrolledSchemes))
	if f.AnnualIncome != nil {
		x[11] = *f.AnnualIncome / 100_000
	}
	return x
}

func intOrZero(v *int) float64 {
	if v == nil {
		return 0
	}
	return float64(*v)
}

func boolOrZero(v *bool) float64 {
	if v != nil && *v {
		return 1
	}
	return 0
}
