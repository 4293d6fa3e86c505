// Package decision bands risk scores and routes them per scheme configuration.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/metrics"
)

// Bander maps risk scores onto bands and routing decisions.
type Bander struct {
	store    domain.DecisionConfigStore
	fallback domain.DecisionConfig
	metrics  *metrics.Metrics
}

// NewBander creates a bander. Schemes without an active config use
// defaults.DefaultDecisionConfig.
func NewBander(store domain.DecisionConfigStore, defaults domain.EngineDefaults, m *metrics.Metrics) *Bander {
	fallback := defaults.DefaultDecisionConfig
	if ValidateConfig(&fallback) != nil {
		fallback = domain.ConservativeDecisionConfig()
	}
	return &Bander{store: store, fallback: fallback, metrics: m}
}

// Config resolves the configuration of a scheme and reports its source. A
// stored config that fails ValidateConfig is replaced by the default.
func (b *Bander) Config(ctx context.Context, schemeCode string) (domain.DecisionConfig, string, error) {
	if b.store != nil && schemeCode != "" {
		cfg, err := b.store.GetDecisionConfig(ctx, schemeCode)
		switch {
		case err == nil && cfg.IsActive:
			verr := ValidateConfig(cfg)
			if verr == nil {
				return *cfg, domain.ConfigSourceScheme, nil
			}
			slog.Error("invalid decision config, using default",
				"scheme_code", schemeCode,
				"error", verr,
			)
		case err == nil, errors.Is(err, domain.ErrNotFound):
		default:
			return domain.DecisionConfig{}, "", fmt.Errorf("load decision config for %s: %w", schemeCode, err)
		}
	}
	cfg := b.fallback
	cfg.SchemeCode = schemeCode
	return cfg, domain.ConfigSourceDefault, nil
}

// Band resolves the scheme's config once and bands the score against it.
func (b *Bander) Band(ctx context.Context, riskScore float64, schemeCode string) (*domain.Decision, error) {
	cfg, source, err := b.Config(ctx, schemeCode)
	if err != nil {
		return nil, err
	}
	d := BandWith(cfg, riskScore)
	d.SchemeCode = schemeCode
	d.ConfigSource = source

	b.metrics.IncrementDecisions(string(d.RiskBand), string(d.DecisionType))
	slog.Debug("risk banded",
		"scheme_code", schemeCode,
		"risk_score", d.RiskScore,
		"band", d.RiskBand,
		"decision", d.DecisionType,
		"config_source", source,
	)
	return d, nil
}

// BandWith bands a score against a fixed config. Scores outside [0,1] are
// clamped.
func BandWith(cfg domain.DecisionConfig, riskScore float64) *domain.Decision {
	s := clamp(riskScore)
	d := &domain.Decision{SchemeCode: cfg.SchemeCode, RiskScore: s}

	switch {
	case s <= cfg.LowRiskMax:
		d.RiskBand = domain.RiskLow
	case s <= cfg.MediumRiskMax:
		d.RiskBand = domain.RiskMedium
	default:
		d.RiskBand = domain.RiskHigh
	}

	d.DecisionType, d.Reason = route(cfg, d.RiskBand, s)
	return d
}

func route(cfg domain.DecisionConfig, band domain.RiskBand, s float64) (domain.DecisionType, string) {
	switch band {
	case domain.RiskLow:
		if cfg.EnableAutoApproval {
			return domain.DecisionAutoApprove, "low risk, auto approval enabled"
		}
	case domain.RiskMedium:
		if cfg.RouteMediumRiskToOfficer {
			return domain.DecisionRouteToOfficer, "medium risk"
		}
	case domain.RiskHigh:
		if cfg.EnableAutoRejection && s >= cfg.AutoRejectMin && !cfg.RequireHumanReviewRejection {
			return domain.DecisionAutoReject, "high risk above auto rejection threshold"
		}
		if cfg.RouteHighRiskToFraud {
			return domain.DecisionRouteToFraud, "high risk"
		}
		if cfg.RequireHumanReviewHigh {
			return domain.DecisionRouteToOfficer, "high risk requires human review"
		}
	}
	return defaultDecision(cfg), "scheme default"
}

func defaultDecision(cfg domain.DecisionConfig) domain.DecisionType {
	if cfg.DefaultDecision == "" {
		return domain.DecisionRouteToOfficer
	}
	return cfg.DefaultDecision
}

// ValidateConfig checks that the bands cover [0,1] without gap or overlap.
// Zero MediumRiskMin and HighRiskMin are derived from the band maxima.
func ValidateConfig(cfg *domain.DecisionConfig) error {
	if cfg == nil {
		return fmt.Errorf("decision config is required: %w", domain.ErrInvalidInput)
	}
	if cfg.LowRiskMax < 0 || cfg.LowRiskMax > 1 {
		return fmt.Errorf("low_risk_max %.3f outside [0,1]: %w", cfg.LowRiskMax, domain.ErrInvalidInput)
	}
	if cfg.MediumRiskMax < cfg.LowRiskMax || cfg.MediumRiskMax > 1 {
		return fmt.Errorf("medium_risk_max %.3f must lie in [low_risk_max, 1]: %w", cfg.MediumRiskMax, domain.ErrInvalidInput)
	}
	if cfg.MediumRiskMin != 0 && cfg.MediumRiskMin != cfg.LowRiskMax {
		return fmt.Errorf("medium_risk_min %.3f must equal low_risk_max %.3f: %w", cfg.MediumRiskMin, cfg.LowRiskMax, domain.ErrInvalidInput)
	}
	if cfg.HighRiskMin != 0 && cfg.HighRiskMin != cfg.MediumRiskMax {
		return fmt.Errorf("high_risk_min %.3f must equal medium_risk_max %.3f: %w", cfg.HighRiskMin, cfg.MediumRiskMax, domain.ErrInvalidInput)
	}
	if cfg.EnableAutoRejection && (cfg.AutoRejectMin < cfg.MediumRiskMax || cfg.AutoRejectMin > 1) {
		return fmt.Errorf("auto_reject_min %.3f must lie in [medium_risk_max, 1]: %w", cfg.AutoRejectMin, domain.ErrInvalidInput)
	}
	switch cfg.DefaultDecision {
	case "", domain.DecisionRouteToOfficer, domain.DecisionRouteToFraud, domain.DecisionAutoApprove, domain.DecisionAutoReject:
	default:
		return fmt.Errorf("unknown default decision %q: %w", cfg.DefaultDecision, domain.ErrInvalidInput)
	}
	return nil
}

// InitializeDefaults inserts the default config for every scheme that has
// none. Existing configs are left untouched. It returns the schemes that
// were initialized.
func (b *Bander) InitializeDefaults(ctx context.Context, schemes []string) ([]string, error) {
	if b.store == nil {
		return nil, fmt.Errorf("decision config store not configured")
	}

	var created []string
	for _, scheme := range schemes {
		if scheme == "" {
			continue
		}
		cfg := b.fallback
		cfg.SchemeCode = scheme
		cfg.IsActive = true
		if cfg.MediumRiskMin == 0 {
			cfg.MediumRiskMin = cfg.LowRiskMax
		}
		if cfg.HighRiskMin == 0 {
			cfg.HighRiskMin = cfg.MediumRiskMax
		}

		inserted, err := b.store.SaveDecisionConfig(ctx, &cfg)
		if err != nil {
			return created, &domain.PersistenceError{Op: "save decision config " + scheme, Cause: err}
		}
		if inserted {
			created = append(created, scheme)
			slog.Info("decision config initialized", "scheme_code", scheme)
		}
	}
	return created, nil
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
