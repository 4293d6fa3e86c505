package mlscore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/sony/gobreaker"
)

// Scorer produces an eligibility probability for a family under a scheme.
// It returns domain.ErrModelUnavailable when the scheme has no usable model.
type Scorer interface {
	Score(ctx context.Context, family *domain.FamilyRecord, schemeCode string) (*domain.MLPrediction, error)
}

// Registry loads active models per scheme through the cache and a circuit
// breaker. An open breaker reads as an unavailable model.
type Registry struct {
	src   domain.ModelSource
	cache domain.Cache
	ttl   time.Duration
	cb    *gobreaker.CircuitBreaker
}

// NewRegistry creates a model registry. cache may be nil.
func NewRegistry(src domain.ModelSource, cache domain.Cache, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	settings := gobreaker.Settings{
		Name:        "ml-model-registry",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.5
		},
		// A scheme without a model is an answer, not a failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &Registry{
		src:   src,
		cache: cache,
		ttl:   ttl,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

// Score implements Scorer.
func (r *Registry) Score(ctx context.Context, family *domain.FamilyRecord, schemeCode string) (*domain.MLPrediction, error) {
	if family == nil {
		return nil, fmt.Errorf("family record is required: %w", domain.ErrInvalidInput)
	}
	m, err := r.Model(ctx, schemeCode)
	if err != nil {
		return nil, err
	}
	return m.Predict(FeatureVector(family)), nil
}

// Model returns the active model of a scheme.
func (r *Registry) Model(ctx context.Context, schemeCode string) (*Model, error) {
	if stored := r.fromCache(ctx, schemeCode); stored != nil {
		return NewModel(stored), nil
	}

	out, err := r.cb.Execute(func() (interface{}, error) {
		return r.src.GetActiveModel(ctx, schemeCode)
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("no active model for %s: %w", schemeCode, domain.ErrModelUnavailable)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("model registry unavailable: %w: %w", domain.ErrModelUnavailable, err)
	case err != nil:
		return nil, fmt.Errorf("load model for %s: %w: %w", schemeCode, domain.ErrModelUnavailable, err)
	}

	stored := out.(*domain.MLModel)
	r.toCache(ctx, stored)
	return NewModel(stored), nil
}

// Invalidate drops a scheme's cached model.
func (r *Registry) Invalidate(ctx context.Context, schemeCode string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Delete(ctx, domain.CacheNamespaceModels, schemeCode)
}

// BreakerState reports the circuit breaker state.
func (r *Registry) BreakerState() string {
	return r.cb.State().String()
}

func (r *Registry) fromCache(ctx context.Context, schemeCode string) *domain.MLModel {
	if r.cache == nil {
		return nil
	}
	data, err := r.cache.Get(ctx, domain.CacheNamespaceModels, schemeCode)
	if err != nil || data == nil {
		return nil
	}
	var m domain.MLModel
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Warn("discarding unreadable cached model", "scheme_code", schemeCode, "error", err)
		return nil
	}
	return &m
}

func (r *Registry) toCache(ctx context.Context, m *domain.MLModel) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, domain.CacheNamespaceModels, m.SchemeCode, data, r.ttl); err != nil {
		slog.Warn("failed to cache model", "scheme_code", m.SchemeCode, "error", err)
	}
}
