// Package worker re-evaluates families and re-checks beneficiaries in
// response to events on the bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/khannas43/smart-eligibility/internal/bus"
	"github.com/khannas43/smart-eligibility/internal/detection"
	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/metrics"
)

// Evaluator evaluates and persists one (family, scheme) pair.
type Evaluator interface {
	EvaluateAndRecord(ctx context.Context, schemeCode, familyID string, useML bool) (*domain.EvaluationResult, error)
}

// Detector runs and persists a detection pass.
type Detector interface {
	DetectAndRecord(ctx context.Context, req detection.Request) (*domain.DetectionSummary, *domain.DetectedCase, error)
}

// Worker consumes family and detection events from the EventBus.
type Worker struct {
	bus       domain.EventBus
	evaluator Evaluator
	detector  Detector
	cache     domain.Cache
	metrics   *metrics.Metrics
	cfg       Config

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Schemes are evaluated when a family event names none.
	Schemes []string

	// DebounceWindow drops repeated events for the same family and scheme
	// inside the window. Zero disables debouncing.
	DebounceWindow time.Duration
}

// NewWorker creates a worker. detector and cache may be nil.
func NewWorker(eventBus domain.EventBus, evaluator Evaluator, detector Detector, cache domain.Cache, m *metrics.Metrics) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       eventBus,
		evaluator: evaluator,
		detector:  detector,
		cache:     cache,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the family-updated topic and, when a detector is
// configured, the detection-requested topic.
func (w *Worker) Start(cfg Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg = cfg

	if err := w.subscribe(domain.TopicFamilyUpdated, w.handleFamilyUpdated); err != nil {
		return err
	}
	if w.detector != nil {
		if err := w.subscribe(domain.TopicDetectionRequested, w.handleDetectionRequested); err != nil {
			return err
		}
	}

	slog.Info("worker started",
		"subscriptions", len(w.subscriptions),
		"schemes", cfg.Schemes,
		"debounce_window", cfg.DebounceWindow,
	)
	return nil
}

func (w *Worker) subscribe(topic string, handler domain.MessageHandler) error {
	sub, err := w.bus.Subscribe(w.ctx, topic, handler)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	w.subscriptions = append(w.subscriptions, sub)
	return nil
}

// handleFamilyUpdated evaluates the family against each scheme and announces
// every persisted snapshot.
func (w *Worker) handleFamilyUpdated(ctx context.Context, msg *domain.Message) error {
	var evt domain.FamilyUpdatedEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		slog.Error("failed to parse family event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if evt.FamilyID == "" {
		return fmt.Errorf("family event %s without family_id: %w", msg.ID, domain.ErrInvalidInput)
	}

	schemes := evt.SchemeCodes
	if len(schemes) == 0 {
		schemes = w.cfg.Schemes
	}

	for _, scheme := range schemes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if w.debounced(ctx, evt.FamilyID, scheme) {
			continue
		}
		w.evaluate(ctx, scheme, evt)
	}
	return nil
}

func (w *Worker) evaluate(ctx context.Context, scheme string, evt domain.FamilyUpdatedEvent) {
	start := time.Now()

	res, err := w.evaluator.EvaluateAndRecord(ctx, scheme, evt.FamilyID, evt.UseML)
	if err != nil {
		slog.Error("family re-evaluation not recorded",
			"family_id", evt.FamilyID,
			"scheme_code", scheme,
			"error", err,
		)
		return
	}

	created := domain.SnapshotCreatedEvent{
		SnapshotID:       res.SnapshotID,
		FamilyID:         res.FamilyID,
		SchemeCode:       res.SchemeCode,
		Status:           res.Status,
		EligibilityScore: res.EligibilityScore,
	}
	if err := bus.PublishJSON(ctx, w.bus, domain.TopicSnapshotCreated, created); err != nil {
		slog.Error("failed to publish snapshot event",
			"snapshot_id", res.SnapshotID,
			"error", err,
		)
	}

	slog.Info("family re-evaluated",
		"family_id", evt.FamilyID,
		"scheme_code", scheme,
		"snapshot_id", res.SnapshotID,
		"status", res.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// debounced reports whether an event for the same family and scheme was
// already handled inside the window. Cache failures never drop an event.
func (w *Worker) debounced(ctx context.Context, familyID, scheme string) bool {
	if w.cache == nil || w.cfg.DebounceWindow <= 0 {
		return false
	}
	n, err := w.cache.IncrementCounter(ctx, domain.CacheNamespaceEvents, familyID+":"+scheme, w.cfg.DebounceWindow)
	if err != nil {
		slog.Warn("debounce counter unavailable",
			"family_id", familyID,
			"scheme_code", scheme,
			"error", err,
		)
		return false
	}
	if n > 1 {
		w.metrics.IncrementEventsDebounced()
		slog.Debug("family event debounced",
			"family_id", familyID,
			"scheme_code", scheme,
		)
		return true
	}
	return false
}

// handleDetectionRequested runs detection for one beneficiary and announces
// the recorded case, if any.
func (w *Worker) handleDetectionRequested(ctx context.Context, msg *domain.Message) error {
	var evt domain.DetectionRequestedEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		slog.Error("failed to parse detection event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if evt.BeneficiaryID == "" || evt.SchemeCode == "" {
		return fmt.Errorf("detection event %s without beneficiary or scheme: %w", msg.ID, domain.ErrInvalidInput)
	}

	sum, c, err := w.detector.DetectAndRecord(ctx, detection.Request{
		BeneficiaryID:  evt.BeneficiaryID,
		FamilyID:       evt.FamilyID,
		SchemeCode:     evt.SchemeCode,
		CurrentBenefit: evt.CurrentBenefit,
	})
	if err != nil {
		return err
	}
	if c == nil {
		slog.Debug("detection passed",
			"beneficiary_id", evt.BeneficiaryID,
			"scheme_code", evt.SchemeCode,
			"passed", sum.PassedCount,
		)
		return nil
	}

	return bus.PublishJSON(ctx, w.bus, domain.TopicCaseDetected, domain.CaseDetectedEvent{
		CaseID:        c.ID,
		BeneficiaryID: c.BeneficiaryID,
		SchemeCode:    c.SchemeCode,
		CaseType:      c.CaseType,
		Priority:      c.Priority,
		RiskScore:     c.RiskScore,
	})
}

// Stop unsubscribes and cancels in-flight handlers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
