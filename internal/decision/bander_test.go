package decision

import (
	"context"
	"errors"
	"testing"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memConfigs struct {
	configs map[string]*domain.DecisionConfig
	err     error
	reads   int
}

func (m *memConfigs) GetDecisionConfig(ctx context.Context, schemeCode string) (*domain.DecisionConfig, error) {
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	cfg, ok := m.configs[schemeCode]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cfg, nil
}

func (m *memConfigs) SaveDecisionConfig(ctx context.Context, cfg *domain.DecisionConfig) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.configs[cfg.SchemeCode]; ok {
		return false, nil
	}
	c := *cfg
	m.configs[cfg.SchemeCode] = &c
	return true, nil
}

func schemeConfig() domain.DecisionConfig {
	return domain.DecisionConfig{
		SchemeCode:               "OAP",
		LowRiskMax:               0.3,
		MediumRiskMin:            0.3,
		MediumRiskMax:            0.7,
		HighRiskMin:              0.7,
		EnableAutoApproval:       true,
		RouteMediumRiskToOfficer: true,
		RouteHighRiskToFraud:     true,
		DefaultDecision:          domain.DecisionRouteToOfficer,
		IsActive:                 true,
	}
}

func TestBandWithBoundaries(t *testing.T) {
	cfg := schemeConfig()

	tests := []struct {
		score    float64
		band     domain.RiskBand
		decision domain.DecisionType
	}{
		{0, domain.RiskLow, domain.DecisionAutoApprove},
		{0.3, domain.RiskLow, domain.DecisionAutoApprove},
		{0.3000001, domain.RiskMedium, domain.DecisionRouteToOfficer},
		{0.7, domain.RiskMedium, domain.DecisionRouteToOfficer},
		{0.7000001, domain.RiskHigh, domain.DecisionRouteToFraud},
		{1, domain.RiskHigh, domain.DecisionRouteToFraud},
		{-0.5, domain.RiskLow, domain.DecisionAutoApprove},
		{1.8, domain.RiskHigh, domain.DecisionRouteToFraud},
	}
	for _, tt := range tests {
		d := BandWith(cfg, tt.score)
		assert.Equal(t, tt.band, d.RiskBand, "score %v", tt.score)
		assert.Equal(t, tt.decision, d.DecisionType, "score %v", tt.score)
		assert.GreaterOrEqual(t, d.RiskScore, 0.0)
		assert.LessOrEqual(t, d.RiskScore, 1.0)
	}
}

func TestRouting(t *testing.T) {
	t.Run("DisabledTogglesUseDefault", func(t *testing.T) {
		cfg := schemeConfig()
		cfg.EnableAutoApproval = false
		cfg.RouteHighRiskToFraud = false
		assert.Equal(t, domain.DecisionRouteToOfficer, BandWith(cfg, 0.1).DecisionType)
		assert.Equal(t, domain.DecisionRouteToOfficer, BandWith(cfg, 0.9).DecisionType)
	})

	t.Run("AutoRejection", func(t *testing.T) {
		cfg := schemeConfig()
		cfg.EnableAutoRejection = true
		cfg.AutoRejectMin = 0.9
		assert.Equal(t, domain.DecisionAutoReject, BandWith(cfg, 0.95).DecisionType)
		assert.Equal(t, domain.DecisionRouteToFraud, BandWith(cfg, 0.8).DecisionType)

		cfg.RequireHumanReviewRejection = true
		assert.Equal(t, domain.DecisionRouteToFraud, BandWith(cfg, 0.95).DecisionType)
	})

	t.Run("EmptyDefault", func(t *testing.T) {
		cfg := schemeConfig()
		cfg.RouteMediumRiskToOfficer = false
		cfg.DefaultDecision = ""
		assert.Equal(t, domain.DecisionRouteToOfficer, BandWith(cfg, 0.5).DecisionType)
	})
}

func TestBand(t *testing.T) {
	ctx := context.Background()
	cfg := schemeConfig()
	store := &memConfigs{configs: map[string]*domain.DecisionConfig{"OAP": &cfg}}
	b := NewBander(store, domain.DefaultEngineDefaults(), nil)

	d, err := b.Band(ctx, 0.2, "OAP")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfigSourceScheme, d.ConfigSource)
	assert.Equal(t, domain.DecisionAutoApprove, d.DecisionType)
	assert.Equal(t, 1, store.reads)

	// The default config never auto-approves.
	d, err = b.Band(ctx, 0.2, "WIDOW")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfigSourceDefault, d.ConfigSource)
	assert.Equal(t, domain.RiskLow, d.RiskBand)
	assert.Equal(t, domain.DecisionRouteToOfficer, d.DecisionType)
	assert.Equal(t, "WIDOW", d.SchemeCode)

	inactive := schemeConfig()
	inactive.IsActive = false
	store.configs["HOUSING"] = &inactive
	d, err = b.Band(ctx, 0.2, "HOUSING")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfigSourceDefault, d.ConfigSource)

	b = NewBander(&memConfigs{err: errors.New("timeout")}, domain.DefaultEngineDefaults(), nil)
	_, err = b.Band(ctx, 0.2, "OAP")
	assert.Error(t, err)
}

func TestBandInvalidStoredConfig(t *testing.T) {
	ctx := context.Background()

	inverted := schemeConfig()
	inverted.LowRiskMax, inverted.MediumRiskMin = 0.9, 0
	inverted.MediumRiskMax, inverted.HighRiskMin = 0.5, 0.5

	gap := schemeConfig()
	gap.MediumRiskMax, gap.HighRiskMin = 0.6, 0.8

	store := &memConfigs{configs: map[string]*domain.DecisionConfig{"OAP": &inverted, "WIDOW": &gap}}
	b := NewBander(store, domain.DefaultEngineDefaults(), nil)

	tests := []struct {
		scheme string
		score  float64
		band   domain.RiskBand
	}{
		{"OAP", 0.85, domain.RiskHigh},
		{"WIDOW", 0.7, domain.RiskMedium},
	}
	for _, tt := range tests {
		t.Run(tt.scheme, func(t *testing.T) {
			d, err := b.Band(ctx, tt.score, tt.scheme)
			require.NoError(t, err)
			assert.Equal(t, domain.ConfigSourceDefault, d.ConfigSource)
			assert.Equal(t, tt.band, d.RiskBand)
			assert.NotEqual(t, domain.DecisionAutoApprove, d.DecisionType)
			assert.Equal(t, tt.scheme, d.SchemeCode)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	good := schemeConfig()
	require.NoError(t, ValidateConfig(&good))

	conservative := domain.ConservativeDecisionConfig()
	require.NoError(t, ValidateConfig(&conservative))

	tests := map[string]func(*domain.DecisionConfig){
		"LowOutOfRange":    func(c *domain.DecisionConfig) { c.LowRiskMax = 1.2 },
		"MediumBelowLow":   func(c *domain.DecisionConfig) { c.MediumRiskMax = 0.2 },
		"GapBetweenBands":  func(c *domain.DecisionConfig) { c.MediumRiskMin = 0.35 },
		"OverlapHigh":      func(c *domain.DecisionConfig) { c.HighRiskMin = 0.6 },
		"AutoRejectTooLow": func(c *domain.DecisionConfig) { c.AutoRejectMin, c.EnableAutoRejection = 0.5, true },
		"UnknownDefault":   func(c *domain.DecisionConfig) { c.DefaultDecision = "ESCALATE" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := schemeConfig()
			mutate(&cfg)
			assert.ErrorIs(t, ValidateConfig(&cfg), domain.ErrInvalidInput)
		})
	}
	assert.Error(t, ValidateConfig(nil))
}

func TestInitializeDefaults(t *testing.T) {
	ctx := context.Background()
	existing := schemeConfig()
	store := &memConfigs{configs: map[string]*domain.DecisionConfig{"OAP": &existing}}
	b := NewBander(store, domain.DefaultEngineDefaults(), nil)

	created, err := b.InitializeDefaults(ctx, []string{"OAP", "WIDOW", "", "DISABILITY"})
	require.NoError(t, err)
	assert.Equal(t, []string{"WIDOW", "DISABILITY"}, created)

	assert.True(t, store.configs["OAP"].EnableAutoApproval)
	widow := store.configs["WIDOW"]
	require.NotNil(t, widow)
	assert.Equal(t, "WIDOW", widow.SchemeCode)
	assert.Equal(t, widow.LowRiskMax, widow.MediumRiskMin)
	require.NoError(t, ValidateConfig(widow))

	created, err = b.InitializeDefaults(ctx, []string{"WIDOW"})
	require.NoError(t, err)
	assert.Empty(t, created)
}
