package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. gatherer backs GET /metrics; nil uses
// the default registry.
func NewServer(cfg domain.ServerConfig, d Deps, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	handler := NewHandler(d)
	router := chi.NewRouter()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(MetricsMiddleware(m))
	router.Use(middleware.RealIP)

	// Probes and scrapes are not rate limited.
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
		r.Use(OperatorMiddleware)
		r.Use(middleware.Compress(5, "application/json"))

		// Evaluation
		r.Post("/evaluate", handler.Evaluate)
		r.Post("/batches", handler.StartBatch)
		r.Get("/batches/{id}", handler.GetBatch)
		r.Get("/snapshots/{id}", handler.GetSnapshot)
		r.Get("/families/{id}/snapshots", handler.ListFamilySnapshots)

		// Ranking
		r.Post("/families/{id}/hints", handler.CitizenHints)
		r.Post("/worklists", handler.GenerateWorklist)
		r.Get("/candidate-lists/{id}", handler.GetCandidateList)
		r.Get("/candidate-lists/{id}/export", handler.ExportCandidateList)

		// Detection
		r.Post("/detect", handler.Detect)
		r.Post("/detection-runs", handler.RunDetection)

		// Decisions
		r.Post("/decisions/band", handler.Band)
		r.Get("/decision-configs/{scheme}", handler.GetDecisionConfig)

		// Rules
		r.Get("/schemes/{code}/rules", handler.ListSchemeRules)
		r.Post("/schemes/{code}/reload", handler.ReloadScheme)
		r.Post("/rules/validate", handler.ValidateRule)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
