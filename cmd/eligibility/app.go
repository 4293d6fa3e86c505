package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/khannas43/smart-eligibility/internal/bus"
	"github.com/khannas43/smart-eligibility/internal/cache"
	"github.com/khannas43/smart-eligibility/internal/decision"
	"github.com/khannas43/smart-eligibility/internal/detection"
	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/family"
	"github.com/khannas43/smart-eligibility/internal/history"
	"github.com/khannas43/smart-eligibility/internal/hybrid"
	"github.com/khannas43/smart-eligibility/internal/metrics"
	"github.com/khannas43/smart-eligibility/internal/mlscore"
	"github.com/khannas43/smart-eligibility/internal/priority"
	"github.com/khannas43/smart-eligibility/internal/repository"
	"github.com/khannas43/smart-eligibility/internal/rules"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg     *domain.Config
	repo    *repository.SQLRepository
	cache   domain.Cache
	bus     domain.EventBus
	metrics *metrics.Metrics

	rules       *rules.Engine
	families    *family.Loader
	models      *mlscore.Registry
	evaluator   *hybrid.Evaluator
	batches     *hybrid.Runner
	prioritizer *priority.Prioritizer
	detector    *detection.Detector
	bander      *decision.Bander
}

// newApp opens the store, cache and bus and builds the engine components.
// withBus is false for one-shot commands that never publish.
func newApp(ctx context.Context, cfg *domain.Config, withBus bool) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New(nil)}
	defaults := cfg.Engine

	repo, err := repository.New(ctx, cfg.Repository, repository.WithQueryTimeout(defaults.QueryTimeout))
	if err != nil {
		return nil, fmt.Errorf("initialize repository: %w", err)
	}
	a.repo = repo
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	a.cache, err = cache.New(ctx, cfg.Cache)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initialize cache: %w", err)
	}
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	if withBus {
		a.bus, err = bus.New(ctx, cfg.EventBus)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("initialize event bus: %w", err)
		}
		slog.Info("event bus initialized", "type", cfg.EventBus.Type)
	}

	a.rules, err = rules.NewEngine(repo, rules.WithVersionFallback(defaults.RuleSetVersionFallback))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initialize rule engine: %w", err)
	}

	a.families = family.NewLoader(repo, history.NewService(repo), defaults.DatasetVersionFallback)
	a.models = mlscore.NewRegistry(repo, a.cache, defaults.ModelCacheTTL)

	a.evaluator = hybrid.NewEvaluator(a.families, a.rules, a.models, repo, defaults, hybrid.WithMetrics(a.metrics))
	a.batches = hybrid.NewRunner(a.evaluator, a.families, repo, defaults, a.metrics)
	a.prioritizer = priority.NewPrioritizer(repo, defaults, priority.WithMetrics(a.metrics))
	a.detector = detection.NewDetector(repo, a.families, a.rules, repo, defaults, a.metrics)
	a.bander = decision.NewBander(repo, defaults, a.metrics)

	return a, nil
}

func (a *app) close() {
	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("failed to release resources", "error", err)
	}
}
