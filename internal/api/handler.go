package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/khannas43/smart-eligibility/internal/decision"
	"github.com/khannas43/smart-eligibility/internal/detection"
	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/hybrid"
	"github.com/khannas43/smart-eligibility/internal/mlscore"
	"github.com/khannas43/smart-eligibility/internal/priority"
	"github.com/khannas43/smart-eligibility/internal/rules"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Deps are the components the API serves. Repo, Cache, Bus and Models may be
// nil in tests; the remaining fields are required.
type Deps struct {
	Repo        domain.Repository
	Cache       domain.Cache
	Bus         domain.EventBus
	Evaluator   *hybrid.Evaluator
	Batches     *hybrid.Runner
	Prioritizer *priority.Prioritizer
	Detector    *detection.Detector
	Bander      *decision.Bander
	Rules       *rules.Engine
	Models      *mlscore.Registry
	Version     string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	evaluator   *hybrid.Evaluator
	batches     *hybrid.Runner
	prioritizer *priority.Prioritizer
	detector    *detection.Detector
	bander      *decision.Bander
	rules       *rules.Engine
	models      *mlscore.Registry
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		repo:        d.Repo,
		cache:       d.Cache,
		bus:         d.Bus,
		evaluator:   d.Evaluator,
		batches:     d.Batches,
		prioritizer: d.Prioritizer,
		detector:    d.Detector,
		bander:      d.Bander,
		rules:       d.Rules,
		models:      d.Models,
		version:     d.Version,
	}
}

// EvaluateRequest is the request body for POST /evaluate.
type EvaluateRequest struct {
	FamilyID   string `json:"familyId"`
	SchemeCode string `json:"schemeCode"`
	UseML      bool   `json:"useML"`
}

// EvaluateResponse is the response for POST /evaluate.
type EvaluateResponse struct {
	*domain.EvaluationResult
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Evaluate handles POST /evaluate. The snapshot is persisted; a failed write
// still returns the result with persisted=false.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req EvaluateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.FamilyID == "" || req.SchemeCode == "" {
		writeError(w, http.StatusBadRequest, "familyId and schemeCode are required")
		return
	}

	res, err := h.evaluator.EvaluateAndRecord(ctx, req.SchemeCode, req.FamilyID, req.UseML)
	if err != nil {
		slog.Error("evaluation not persisted",
			"family_id", req.FamilyID,
			"scheme_code", req.SchemeCode,
			"error", err,
		)
	}

	resp := EvaluateResponse{EvaluationResult: res}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// StartBatch handles POST /batches. The batch runs in the background and the
// initial job row is returned.
func (h *Handler) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req hybrid.BatchRequest
	if !decode(w, r, &req) {
		return
	}

	job, err := h.batches.Start(r.Context(), req)
	if err != nil {
		writeDomainError(w, "start batch", err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// GetBatch handles GET /batches/{id}.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	job, err := h.repo.GetBatchJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "get batch job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetSnapshot handles GET /snapshots/{id}.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	snap, err := h.repo.GetSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "get snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListFamilySnapshots handles GET /families/{id}/snapshots.
func (h *Handler) ListFamilySnapshots(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	snaps, err := h.repo.ListSnapshotsByFamily(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "list snapshots", err)
		return
	}
	if snaps == nil {
		snaps = []*domain.EligibilitySnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

// HintsRequest is the request body for POST /families/{id}/hints.
// With no SchemeCodes the family's latest snapshots are ranked.
type HintsRequest struct {
	SchemeCodes []string `json:"schemeCodes,omitempty"`
	UseML       bool     `json:"useML"`
}

// CitizenHints handles POST /families/{id}/hints.
func (h *Handler) CitizenHints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	familyID := chi.URLParam(r, "id")

	var req HintsRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	var evals []*domain.EvaluationResult
	for _, scheme := range req.SchemeCodes {
		res, err := h.evaluator.EvaluateAndRecord(ctx, scheme, familyID, req.UseML)
		if err != nil {
			slog.Error("evaluation not persisted",
				"family_id", familyID,
				"scheme_code", scheme,
				"error", err,
			)
		}
		evals = append(evals, res)
	}

	list, err := h.prioritizer.GenerateCitizenHints(ctx, familyID, evals)
	if err != nil && list == nil {
		writeDomainError(w, "generate citizen hints", err)
		return
	}
	if err != nil {
		slog.Error("citizen hints not persisted", "family_id", familyID, "error", err)
	}
	writeJSON(w, http.StatusOK, list)
}

// GenerateWorklist handles POST /worklists.
func (h *Handler) GenerateWorklist(w http.ResponseWriter, r *http.Request) {
	var req priority.WorklistRequest
	if !decode(w, r, &req) {
		return
	}
	if req.GeneratedBy == "" {
		req.GeneratedBy = GetOperatorID(r.Context())
	}

	list, err := h.prioritizer.GenerateDepartmentalWorklist(r.Context(), req)
	if err != nil {
		writeDomainError(w, "generate worklist", err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

// GetCandidateList handles GET /candidate-lists/{id}.
func (h *Handler) GetCandidateList(w http.ResponseWriter, r *http.Request) {
	list, ok := h.candidateList(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ExportCandidateList handles GET /candidate-lists/{id}/export as XLSX.
func (h *Handler) ExportCandidateList(w http.ResponseWriter, r *http.Request) {
	list, ok := h.candidateList(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := priority.ExportXLSX(list, &buf); err != nil {
		slog.Error("failed to export candidate list", "list_id", list.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export candidate list")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+list.ListType+"-"+list.ID+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) candidateList(w http.ResponseWriter, r *http.Request) (*domain.CandidateList, bool) {
	if !h.requireRepo(w) {
		return nil, false
	}
	list, err := h.repo.GetCandidateList(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "get candidate list", err)
		return nil, false
	}
	return list, true
}

// DetectResponse is the response for POST /detect.
type DetectResponse struct {
	Summary *domain.DetectionSummary `json:"summary"`
	Case    *domain.DetectedCase     `json:"case,omitempty"`
}

// Detect handles POST /detect.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	var req detection.Request
	if !decode(w, r, &req) {
		return
	}
	if req.BeneficiaryID == "" || req.SchemeCode == "" {
		writeError(w, http.StatusBadRequest, "beneficiaryId and schemeCode are required")
		return
	}

	sum, c, err := h.detector.DetectAndRecord(r.Context(), req)
	if err != nil {
		writeDomainError(w, "record detected case", err)
		return
	}
	writeJSON(w, http.StatusOK, DetectResponse{Summary: sum, Case: c})
}

// DetectionRunRequest is the request body for POST /detection-runs.
type DetectionRunRequest struct {
	SchemeCode string `json:"schemeCode"`
}

// RunDetection handles POST /detection-runs. It checks every active
// enrollment of the scheme before responding.
func (h *Handler) RunDetection(w http.ResponseWriter, r *http.Request) {
	var req DetectionRunRequest
	if !decode(w, r, &req) {
		return
	}

	run, err := h.detector.RunScheme(r.Context(), req.SchemeCode)
	if err != nil {
		writeDomainError(w, "run detection", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// BandRequest is the request body for POST /decisions/band.
type BandRequest struct {
	RiskScore  float64 `json:"riskScore"`
	SchemeCode string  `json:"schemeCode"`
}

// Band handles POST /decisions/band.
func (h *Handler) Band(w http.ResponseWriter, r *http.Request) {
	var req BandRequest
	if !decode(w, r, &req) {
		return
	}

	d, err := h.bander.Band(r.Context(), req.RiskScore, req.SchemeCode)
	if err != nil {
		writeDomainError(w, "band risk score", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetDecisionConfig handles GET /decision-configs/{scheme}.
func (h *Handler) GetDecisionConfig(w http.ResponseWriter, r *http.Request) {
	scheme := chi.URLParam(r, "scheme")
	cfg, source, err := h.bander.Config(r.Context(), scheme)
	if err != nil {
		writeDomainError(w, "get decision config", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"config": cfg,
		"source": source,
	})
}

// ListSchemeRules handles GET /schemes/{code}/rules. The rule-set version is
// computed over the rules active now.
func (h *Handler) ListSchemeRules(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	scheme := chi.URLParam(r, "code")

	all, err := h.repo.ListRules(ctx, scheme)
	if err != nil {
		writeDomainError(w, "list rules", err)
		return
	}
	active, err := h.rules.ActiveRules(ctx, scheme)
	if err != nil {
		writeDomainError(w, "list active rules", err)
		return
	}
	if all == nil {
		all = []domain.SchemeEligibilityRule{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"schemeCode":     scheme,
		"rules":          all,
		"count":          len(all),
		"activeCount":    len(active),
		"ruleSetVersion": rules.RuleSetVersion(active),
	})
}

// ValidateRule handles POST /rules/validate by compiling the expression.
func (h *Handler) ValidateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.SchemeEligibilityRule
	if !decode(w, r, &rule) {
		return
	}
	if err := h.rules.ValidateRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// ReloadScheme handles POST /schemes/{code}/reload. Compiled rule programs
// are dropped and the scheme's cached model is evicted, so the next
// evaluation reads both from the store.
func (h *Handler) ReloadScheme(w http.ResponseWriter, r *http.Request) {
	scheme := chi.URLParam(r, "code")

	dropped := h.rules.CompiledCount()
	h.rules.Reset()

	resp := map[string]any{
		"schemeCode":       scheme,
		"programsDropped":  dropped,
		"modelInvalidated": false,
	}
	if h.models != nil {
		if err := h.models.Invalidate(r.Context(), scheme); err != nil {
			writeDomainError(w, "invalidate model", err)
			return
		}
		resp["modelInvalidated"] = true
		resp["mlBreaker"] = h.models.BreakerState()
	}

	slog.Info("scheme reloaded",
		"scheme_code", scheme,
		"programs_dropped", dropped,
		"operator", GetOperatorID(r.Context()),
	)
	writeJSON(w, http.StatusOK, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	resp := map[string]string{
		"status":  status,
		"version": h.version,
	}
	if h.models != nil {
		resp["mlBreaker"] = h.models.BreakerState()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready reports whether the repository is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// writeDomainError maps domain sentinels onto status codes.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrDataUnavailable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
