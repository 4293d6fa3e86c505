// Package metrics holds the Prometheus collectors of the eligibility engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Evaluations       *prometheus.CounterVec
	EvaluationLatency prometheus.Histogram
	MLFallbacks       prometheus.Counter
	PersistFailures   *prometheus.CounterVec

	BatchJobs       *prometheus.CounterVec
	BatchFamilies   prometheus.Counter
	CandidateLists  *prometheus.CounterVec
	DetectionChecks *prometheus.CounterVec
	DetectedCases   *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	EndpointLatency *prometheus.HistogramVec
	EventsDebounced prometheus.Counter
	SchedulerRuns   *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_evaluations_total",
			Help: "Total number of hybrid evaluations, labeled by scheme and status",
		}, []string{"scheme", "status"}),
		EvaluationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "eligibility_evaluation_latency_seconds",
			Help:    "Latency of a single (family, scheme) evaluation in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		MLFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "eligibility_ml_fallbacks_total",
			Help: "Total number of evaluations that fell back to rules only",
		}),
		PersistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_persist_failures_total",
			Help: "Total number of failed writes, labeled by record kind",
		}, []string{"kind"}),
		BatchJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_batch_jobs_total",
			Help: "Total number of finished batch jobs, labeled by final status",
		}, []string{"status"}),
		BatchFamilies: f.NewCounter(prometheus.CounterOpts{
			Name: "eligibility_batch_families_total",
			Help: "Total number of families processed by batch jobs",
		}),
		CandidateLists: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_candidate_lists_total",
			Help: "Total number of generated candidate lists, labeled by list type",
		}, []string{"list_type"}),
		DetectionChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_detection_checks_total",
			Help: "Total number of detection checks, labeled by check and outcome",
		}, []string{"check", "outcome"}),
		DetectedCases: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_detected_cases_total",
			Help: "Total number of persisted detected cases, labeled by case type",
		}, []string{"case_type"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_decisions_total",
			Help: "Total number of banded decisions, labeled by band and decision",
		}, []string{"band", "decision"}),
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eligibility_endpoint_latency_seconds",
			Help:    "Latency of HTTP endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
		EventsDebounced: f.NewCounter(prometheus.CounterOpts{
			Name: "eligibility_events_debounced_total",
			Help: "Total number of family update events dropped as duplicates",
		}),
		SchedulerRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_scheduler_runs_total",
			Help: "Total number of scheduled runs, labeled by job and outcome",
		}, []string{"job", "outcome"}),
	}
}

// ObserveEvaluation records one evaluation outcome.
func (m *Metrics) ObserveEvaluation(scheme, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(scheme, status).Inc()
	m.EvaluationLatency.Observe(d.Seconds())
}

func (m *Metrics) IncrementMLFallbacks() {
	if m == nil {
		return
	}
	m.MLFallbacks.Inc()
}

func (m *Metrics) IncrementPersistFailures(kind string) {
	if m == nil {
		return
	}
	m.PersistFailures.WithLabelValues(kind).Inc()
}

// ObserveBatchJob records a finished batch job.
func (m *Metrics) ObserveBatchJob(status string, families int) {
	if m == nil {
		return
	}
	m.BatchJobs.WithLabelValues(status).Inc()
	m.BatchFamilies.Add(float64(families))
}

func (m *Metrics) IncrementCandidateLists(listType string) {
	if m == nil {
		return
	}
	m.CandidateLists.WithLabelValues(listType).Inc()
}

// ObserveDetectionCheck records one check outcome: passed, failed or error.
func (m *Metrics) ObserveDetectionCheck(check, outcome string) {
	if m == nil {
		return
	}
	m.DetectionChecks.WithLabelValues(check, outcome).Inc()
}

func (m *Metrics) IncrementDetectedCases(caseType string) {
	if m == nil {
		return
	}
	m.DetectedCases.WithLabelValues(caseType).Inc()
}

func (m *Metrics) IncrementDecisions(band, decision string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(band, decision).Inc()
}

// ObserveEndpointLatency records the latency of one HTTP request.
func (m *Metrics) ObserveEndpointLatency(route, method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.EndpointLatency.WithLabelValues(route, method, code).Observe(d.Seconds())
}

func (m *Metrics) IncrementEventsDebounced() {
	if m == nil {
		return
	}
	m.EventsDebounced.Inc()
}

func (m *Metrics) IncrementSchedulerRuns(job, outcome string) {
	if m == nil {
		return
	}
	m.SchedulerRuns.WithLabelValues(job, outcome).Inc()
}
