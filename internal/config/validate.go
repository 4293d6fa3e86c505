package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/khannas43/smart-eligibility/internal/decision"
	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/robfig/cron/v3"
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Validate checks a loaded configuration and reports every problem found.
func Validate(cfg *domain.Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RateLimit < 0 {
		add("server.rate_limit", "rate limit must be non-negative")
	}

	switch cfg.Repository.Driver {
	case "sqlite":
		if cfg.Repository.SQLitePath == "" {
			add("repository.sqlite_path", "path is required for sqlite")
		}
	case "postgres":
		if cfg.Repository.PostgresHost == "" || cfg.Repository.PostgresDB == "" {
			add("repository.postgres_host", "host and database are required for postgres")
		}
	default:
		add("repository.driver", "unknown driver %q (supported: sqlite, postgres)", cfg.Repository.Driver)
	}

	switch cfg.Cache.Type {
	case "memory", "":
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			add("cache.redis_addr", "address is required for redis")
		}
	default:
		add("cache.type", "unknown cache type %q (supported: memory, redis)", cfg.Cache.Type)
	}

	switch cfg.EventBus.Type {
	case "channel", "":
	case "nats":
		if cfg.EventBus.NATSUrl == "" {
			add("event_bus.nats_url", "url is required for nats")
		}
	default:
		add("event_bus.type", "unknown event bus type %q (supported: channel, nats)", cfg.EventBus.Type)
	}

	for field, spec := range map[string]string{
		"scheduler.batch_schedule":     cfg.Scheduler.BatchSchedule,
		"scheduler.detection_schedule": cfg.Scheduler.DetectionSchedule,
	} {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			add(field, "invalid cron expression %q: %v", spec, err)
		}
	}

	validateEngine(cfg.Engine, add)

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		add("logging.level", "unknown level %q", cfg.Logging.Level)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func validateEngine(e domain.EngineDefaults, add func(field, format string, args ...any)) {
	if e.AcceptanceThreshold < 0 || e.AcceptanceThreshold > 1 {
		add("engine.acceptance_threshold", "must lie in [0,1], got %.3f", e.AcceptanceThreshold)
	}
	if e.PriorityThreshold < 0 || e.PriorityThreshold > 1 {
		add("engine.priority_threshold", "must lie in [0,1], got %.3f", e.PriorityThreshold)
	}
	if e.RuleScoreWeight < 0 || e.MLScoreWeight < 0 || e.RuleScoreWeight+e.MLScoreWeight == 0 {
		add("engine.rule_score_weight", "weights must be non-negative and not both zero")
	}
	if e.QueryTimeout < 0 {
		add("engine.query_timeout", "must be non-negative")
	}
	if e.IncomeTolerance < 0 {
		add("engine.income_tolerance", "must be non-negative")
	}
	if e.BatchWorkers < 0 {
		add("engine.batch_workers", "must be non-negative")
	}
	if err := decision.ValidateConfig(&e.DefaultDecisionConfig); err != nil {
		add("engine.default_decision_config", "%v", err)
	}
}
