package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels or NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `mapstructure:"type"`

	// Channel settings
	ChannelBufferSize int `mapstructure:"channel_buffer_size"`

	// NATS settings
	NATSUrl           string `mapstructure:"nats_url"`
	NATSToken         string `mapstructure:"nats_token"`
	NATSMaxReconnects int    `mapstructure:"nats_max_reconnects"`
	NATSReconnectWait int    `mapstructure:"nats_reconnect_wait"` // seconds
}

// Topic names for the event-driven evaluator.
const (
	TopicFamilyUpdated      = "eligibility.family.updated"
	TopicSnapshotCreated    = "eligibility.snapshot.created"
	TopicDetectionRequested = "detection.requested"
	TopicCaseDetected       = "detection.case.detected"
)

// FamilyUpdatedEvent asks for re-evaluation of a family.
type FamilyUpdatedEvent struct {
	FamilyID    string   `json:"family_id"`
	SchemeCodes []string `json:"scheme_codes"`
	UseML       bool     `json:"use_ml"`
}

// SnapshotCreatedEvent announces a persisted snapshot.
type SnapshotCreatedEvent struct {
	SnapshotID       string            `json:"snapshot_id"`
	FamilyID         string            `json:"family_id"`
	SchemeCode       string            `json:"scheme_code"`
	Status           EligibilityStatus `json:"status"`
	EligibilityScore float64           `json:"eligibility_score"`
}

// DetectionRequestedEvent asks for a detection pass on one beneficiary.
type DetectionRequestedEvent struct {
	BeneficiaryID  string       `json:"beneficiary_id"`
	FamilyID       string       `json:"family_id"`
	SchemeCode     string       `json:"scheme_code"`
	CurrentBenefit *BenefitData `json:"current_benefit,omitempty"`
}

// CaseDetectedEvent announces a persisted detected case.
type CaseDetectedEvent struct {
	CaseID        string  `json:"case_id"`
	BeneficiaryID string  `json:"beneficiary_id"`
	SchemeCode    string  `json:"scheme_code"`
	CaseType      string  `json:"case_type"`
	Priority      int     `json:"priority"`
	RiskScore     float64 `json:"risk_score"`
}
