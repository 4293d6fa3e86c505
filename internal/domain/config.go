package domain

import "time"

// Config holds the complete engine configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"event_bus"`
	Scheduler  SchedulerConfig  `json:"scheduler" mapstructure:"scheduler"`

	// Engine holds every scoring fallback and threshold.
	Engine EngineDefaults `json:"engine" mapstructure:"engine"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string  `json:"host" mapstructure:"host"`
	Port         int     `json:"port" mapstructure:"port"`
	ReadTimeout  int     `json:"readTimeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int     `json:"writeTimeout" mapstructure:"write_timeout"` // seconds
	RateLimit    float64 `json:"rateLimit" mapstructure:"rate_limit"`       // requests/sec, 0 disables
	RateBurst    int     `json:"rateBurst" mapstructure:"rate_burst"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" mapstructure:"service_name"`
}

// SchedulerConfig holds cron schedules for unattended runs.
// Empty schedules disable the corresponding job.
type SchedulerConfig struct {
	BatchSchedule     string   `json:"batchSchedule" mapstructure:"batch_schedule"`
	DetectionSchedule string   `json:"detectionSchedule" mapstructure:"detection_schedule"`
	Schemes           []string `json:"schemes" mapstructure:"schemes"`
	UseML             bool     `json:"useML" mapstructure:"use_ml"`
}

// EngineDefaults consolidates the fallbacks and thresholds used by the scoring,
// ranking, detection and banding components. Each component receives it at
// construction.
type EngineDefaults struct {
	RuleSetVersionFallback string `json:"ruleSetVersionFallback" mapstructure:"rule_set_version_fallback"`
	DatasetVersionFallback string `json:"datasetVersionFallback" mapstructure:"dataset_version_fallback"`

	// Hybrid scoring
	AcceptanceThreshold float64       `json:"acceptanceThreshold" mapstructure:"acceptance_threshold"`
	RuleScoreWeight     float64       `json:"ruleScoreWeight" mapstructure:"rule_score_weight"`
	MLScoreWeight       float64       `json:"mlScoreWeight" mapstructure:"ml_score_weight"`
	ModelCacheTTL       time.Duration `json:"modelCacheTTL" mapstructure:"model_cache_ttl"`

	// Ranking
	PriorityThreshold float64 `json:"priorityThreshold" mapstructure:"priority_threshold"`
	CitizenHintsLimit int     `json:"citizenHintsLimit" mapstructure:"citizen_hints_limit"`
	WorklistLimit     int     `json:"worklistLimit" mapstructure:"worklist_limit"`

	// Batch
	ProgressEvery int `json:"progressEvery" mapstructure:"progress_every"`
	BatchWorkers  int `json:"batchWorkers" mapstructure:"batch_workers"`

	// QueryTimeout bounds every database call.
	QueryTimeout time.Duration `json:"queryTimeout" mapstructure:"query_timeout"`

	// Detection
	ExposureMonths  int     `json:"exposureMonths" mapstructure:"exposure_months"`
	IncomeTolerance float64 `json:"incomeTolerance" mapstructure:"income_tolerance"`

	// DefaultDecisionConfig applies to schemes without a decision_configs row.
	DefaultDecisionConfig DecisionConfig `json:"defaultDecisionConfig" mapstructure:"default_decision_config"`
}

// DefaultEngineDefaults returns the documented fallback values.
func DefaultEngineDefaults() EngineDefaults {
	return EngineDefaults{
		RuleSetVersionFallback: "CURRENT",
		DatasetVersionFallback: "CURRENT",
		AcceptanceThreshold:    0.7,
		RuleScoreWeight:        0.6,
		MLScoreWeight:          0.4,
		ModelCacheTTL:          10 * time.Minute,
		PriorityThreshold:      0.5,
		CitizenHintsLimit:      3,
		WorklistLimit:          500,
		ProgressEvery:          100,
		BatchWorkers:           1,
		QueryTimeout:           10 * time.Second,
		ExposureMonths:         12,
		IncomeTolerance:        0,
		DefaultDecisionConfig:  ConservativeDecisionConfig(),
	}
}

// ConservativeDecisionConfig routes every band to an officer.
func ConservativeDecisionConfig() DecisionConfig {
	return DecisionConfig{
		LowRiskMax:               0.3,
		MediumRiskMin:            0.3,
		MediumRiskMax:            0.7,
		HighRiskMin:              0.7,
		EnableAutoApproval:       false,
		RouteMediumRiskToOfficer: true,
		RouteHighRiskToFraud:     false,
		RequireHumanReviewHigh:   true,
		DefaultDecision:          DecisionRouteToOfficer,
		IsActive:                 true,
	}
}

// DefaultConfig returns a local configuration: SQLite, in-memory cache and
// channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			RateLimit:    100,
			RateBurst:    200,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./eligibility.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Engine: DefaultEngineDefaults(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "smart-eligibility",
		},
	}
}

// ProductionConfig returns a configuration for PostgreSQL + Redis + NATS.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "smart_eligibility",
		MaxOpenConns: 20,
		MaxIdleConns: 5,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
