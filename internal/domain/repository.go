// Package domain defines the core types and interfaces of the eligibility engine.
package domain

import (
	"context"
	"time"
)

// RuleSource loads scheme eligibility rules.
type RuleSource interface {
	// ListRules returns every rule of a scheme, active or not.
	ListRules(ctx context.Context, schemeCode string) ([]SchemeEligibilityRule, error)
	// ActiveRules returns the active rules of a scheme ordered by priority DESC, rule_id ASC.
	ActiveRules(ctx context.Context, schemeCode string) ([]SchemeEligibilityRule, error)
}

// FamilySource reads the collaborator stores a FamilyRecord is built from.
// Get methods return ErrNotFound when the row does not exist.
type FamilySource interface {
	GetGoldenRecord(ctx context.Context, familyID string) (*GoldenRecord, error)
	GetProfile360(ctx context.Context, familyID string) (*Profile360, error)
	DatasetVersion(ctx context.Context, dataset string) (string, error)
	ListFamilyIDs(ctx context.Context, districtID string) ([]string, error)
}

// EnrollmentSource reads benefit enrollments.
type EnrollmentSource interface {
	ListEnrollmentsByFamily(ctx context.Context, familyID string) ([]Enrollment, error)
	ListEnrollmentsByBeneficiary(ctx context.Context, beneficiaryID string) ([]Enrollment, error)
	ListActiveEnrollmentsByScheme(ctx context.Context, schemeCode string) ([]Enrollment, error)
}

// DetectionSource reads the cross-database facts the detection checks need.
// Get methods return ErrNotFound when nothing is recorded.
type DetectionSource interface {
	EnrollmentSource
	GetBeneficiaryStatus(ctx context.Context, beneficiaryID string) (*BeneficiaryStatus, error)
	GetIncomeRecord(ctx context.Context, familyID string) (*IncomeRecord, error)
	GetSchemeLimits(ctx context.Context, schemeCode string) (*SchemeLimits, error)
	ListSchemeExclusions(ctx context.Context, schemeCode string) ([]string, error)
}

// SnapshotStore persists eligibility snapshots. Snapshots are append-only.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s *EligibilitySnapshot) error
	GetSnapshot(ctx context.Context, snapshotID string) (*EligibilitySnapshot, error)
	ListSnapshotsByFamily(ctx context.Context, familyID string) ([]*EligibilitySnapshot, error)
	// LatestSnapshots returns the most recent snapshot per family for a scheme,
	// optionally restricted to a district.
	LatestSnapshots(ctx context.Context, schemeCode, districtID string) ([]*EligibilitySnapshot, error)
}

// CandidateListStore persists ranked candidate lists.
type CandidateListStore interface {
	SaveCandidateList(ctx context.Context, l *CandidateList) error
	GetCandidateList(ctx context.Context, listID string) (*CandidateList, error)
}

// BatchJobStore persists batch job progress rows.
type BatchJobStore interface {
	CreateBatchJob(ctx context.Context, job *BatchJob) error
	UpdateBatchJob(ctx context.Context, job *BatchJob) error
	GetBatchJob(ctx context.Context, jobID string) (*BatchJob, error)
}

// CaseStore persists detection output.
type CaseStore interface {
	SaveDetectedCase(ctx context.Context, c *DetectedCase) error
	ListDetectedCases(ctx context.Context, schemeCode string, since time.Time) ([]*DetectedCase, error)
	CreateDetectionRun(ctx context.Context, run *DetectionRun) error
	UpdateDetectionRun(ctx context.Context, run *DetectionRun) error
}

// DecisionConfigStore reads and initializes per-scheme decision configs.
type DecisionConfigStore interface {
	// GetDecisionConfig returns the active config or ErrNotFound.
	GetDecisionConfig(ctx context.Context, schemeCode string) (*DecisionConfig, error)
	// SaveDecisionConfig inserts a config if none exists for the scheme.
	// It reports whether a row was inserted.
	SaveDecisionConfig(ctx context.Context, cfg *DecisionConfig) (bool, error)
}

// ModelSource reads trained ML model parameters.
type ModelSource interface {
	// GetActiveModel returns the active model of a scheme or ErrNotFound.
	GetActiveModel(ctx context.Context, schemeCode string) (*MLModel, error)
}

// Repository is the complete persistence surface.
type Repository interface {
	RuleSource
	FamilySource
	DetectionSource
	SnapshotStore
	CandidateListStore
	BatchJobStore
	CaseStore
	DecisionConfigStore
	ModelSource

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// ConnectRetries bounds startup connection attempts.
	ConnectRetries int `mapstructure:"connect_retries"`
}
