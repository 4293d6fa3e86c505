// Package hybrid combines rule and ML scoring into one eligibility verdict per
// (family, scheme) pair.
package hybrid

import (
	"math"

	"github.com/khannas43/smart-eligibility/internal/domain"
)

// Combiner merges a rule evaluation and an optional ML prediction.
type Combiner struct {
	// Score at or above which a family is RULE_ELIGIBLE.
	AcceptanceThreshold float64

	RuleWeight float64
	MLWeight   float64
}

// NewCombiner creates a combiner from the engine defaults.
func NewCombiner(defaults domain.EngineDefaults) *Combiner {
	c := &Combiner{
		AcceptanceThreshold: defaults.AcceptanceThreshold,
		RuleWeight:          defaults.RuleScoreWeight,
		MLWeight:            defaults.MLScoreWeight,
	}
	if c.AcceptanceThreshold <= 0 {
		c.AcceptanceThreshold = 0.7
	}
	if c.RuleWeight <= 0 && c.MLWeight <= 0 {
		c.RuleWeight, c.MLWeight = 0.6, 0.4
	}
	return c
}

// Verdict is the combined outcome.
type Verdict struct {
	Status     domain.EligibilityStatus
	Score      float64
	Confidence float64
	Reasons    []string
}

// Combine applies the precedence policy. A failed mandatory rule makes the
// family RULE_INELIGIBLE with score 0 regardless of pred. Otherwise the rule
// score and the ML probability are averaged by weight and compared against
// the acceptance threshold. pred may be nil.
func (c *Combiner) Combine(rules *domain.RuleEvalResult, pred *domain.MLPrediction) Verdict {
	v := Verdict{Confidence: ruleConfidence(rules)}

	if !rules.RuleEligible {
		v.Status = domain.StatusRuleIneligible
		return v
	}

	v.Score = c.aggregate(rules.RuleScore, pred)
	if pred != nil {
		v.Confidence = (v.Confidence + math.Max(clamp(pred.Probability), 1-clamp(pred.Probability))) / 2
	}

	if v.Score >= c.AcceptanceThreshold {
		v.Status = domain.StatusRuleEligible
		if len(rules.RulesFailed) == 0 {
			v.Reasons = append(v.Reasons, domain.ReasonAllRulesPassed)
		}
	} else {
		v.Status = domain.StatusPossibleEligible
		v.Reasons = append(v.Reasons, domain.ReasonBelowThreshold)
	}
	return v
}

// aggregate computes the weighted, normalised score.
func (c *Combiner) aggregate(ruleScore float64, pred *domain.MLPrediction) float64 {
	if pred == nil {
		return clamp(ruleScore)
	}

	var total, weight float64
	if c.RuleWeight > 0 {
		total += clamp(ruleScore) * c.RuleWeight
		weight += c.RuleWeight
	}
	if c.MLWeight > 0 {
		total += clamp(pred.Probability) * c.MLWeight
		weight += c.MLWeight
	}
	if weight == 0 {
		return clamp(ruleScore)
	}
	return clamp(total / weight)
}

// ruleConfidence is the share of rules that evaluated without error.
func ruleConfidence(rules *domain.RuleEvalResult) float64 {
	if len(rules.Results) == 0 {
		return 0
	}
	clean := 0
	for _, r := range rules.Results {
		if r.Error == "" {
			clean++
		}
	}
	return float64(clean) / float64(len(rules.Results))
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
