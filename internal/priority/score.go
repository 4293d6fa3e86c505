// Package priority scores and ranks eligible families into candidate lists.
package priority

import "github.com/khannas43/smart-eligibility/internal/domain"

// Need weights. They sum to 1.
var (
	vulnerabilityWeight = map[string]float64{
		domain.VulnerabilityVeryHigh: 0.35,
		domain.VulnerabilityHigh:     0.25,
		domain.VulnerabilityMedium:   0.10,
	}
	incomeBandWeight = map[string]float64{
		domain.IncomeBandBPL: 0.10,
		domain.IncomeBandLIG: 0.05,
	}
)

const (
	underCoverageWeight = 0.20
	elderlyWeight       = 0.10
	childrenWeight      = 0.10
	disabilityWeight    = 0.15

	// needShare is the part of the priority score driven by household need;
	// the rest follows the rule score.
	needShare = 0.9
)

// Score returns a priority score in [0,1]. Household need dominates; the rule
// score breaks ties between equally needy families.
func Score(f *domain.FamilyRecord, ruleScore float64) float64 {
	if f == nil {
		return 0
	}

	need := vulnerabilityWeight[f.Vulnerability()]
	if f.IsUnderCovered() {
		need += underCoverageWeight
	}
	if positive(f.ElderlyCount) {
		need += elderlyWeight
	}
	if positive(f.ChildrenCount) {
		need += childrenWeight
	}
	if positive(f.DisabledCount) {
		need += disabilityWeight
	}
	if f.IncomeBand != nil {
		need += incomeBandWeight[*f.IncomeBand]
	}

	return clamp(needShare*need + (1-needShare)*clamp(ruleScore))
}

// Promotable reports whether a candidate may be included below the priority
// threshold.
func Promotable(vulnerabilityLevel string, underCoverage bool) bool {
	return domain.IsHighlyVulnerable(vulnerabilityLevel) || underCoverage
}

func positive(v *int) bool {
	return v != nil && *v > 0
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
