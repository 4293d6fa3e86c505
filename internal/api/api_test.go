package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"
)

func ptr[T any](v T) *T { return &v }

type APISuite struct {
	suite.Suite
	repo   *repository.SQLRepository
	server *Server
}

func TestAPI(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	ctx := context.Background()
	repo, err := repository.New(ctx, domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(s.T().TempDir(), "api-test.db"),
	}, repository.WithQueryTimeout(5*time.Second))
	s.Require().NoError(err)
	s.T().Cleanup(func() { repo.Close() })
	s.repo = repo

	s.seed(ctx)

	defaults := domain.DefaultEngineDefaults()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	lru := cache.NewLRUCache(100)

	engine, err := rules.NewEngine(repo)
	s.Require().NoError(err)
	loader := family.NewLoader(repo, history.NewService(repo), defaults.DatasetVersionFallback)
	models := mlscore.NewRegistry(repo, lru, time.Minute)
	evaluator := hybrid.NewEvaluator(loader, engine, models, repo, defaults, hybrid.WithMetrics(m))

	s.server = NewServer(domain.ServerConfig{Host: "localhost", Port: 8080}, Deps{
		Repo:        repo,
		Cache:       lru,
		Evaluator:   evaluator,
		Batches:     hybrid.NewRunner(evaluator, loader, repo, defaults, m),
		Prioritizer: priority.NewPrioritizer(repo, defaults, priority.WithMetrics(m)),
		Detector:    detection.NewDetector(repo, loader, engine, repo, defaults, m),
		Bander:      decision.NewBander(repo, defaults, m),
		Rules:       engine,
		Models:      models,
		Version:     "test-v1",
	}, m, reg)
}

func (s *APISuite) seed(ctx context.Context) {
	r := s.Require()
	for _, rule := range []domain.SchemeEligibilityRule{
		{RuleID: "AGE", SchemeCode: "OAP", Name: "Senior citizen", RuleType: domain.RuleTypeMandatory, IsMandatory: true, Expression: "age >= 60", Priority: 10, Weight: 1, IsActive: true},
		{RuleID: "BPL", SchemeCode: "OAP", Name: "Below poverty line", RuleType: domain.RuleTypeOptional, Expression: "income_band in ['BPL']", Priority: 5, Weight: 1, IsActive: true},
	} {
		r.NoError(s.repo.SaveRule(ctx, &rule))
	}

	r.NoError(s.repo.SaveGoldenRecord(ctx, &domain.GoldenRecord{FamilyID: "F-1", HeadMemberID: "B-1", Age: ptr(67), DistrictID: ptr("D-1"), ElderlyCount: ptr(1)}))
	r.NoError(s.repo.SaveProfile360(ctx, &domain.Profile360{FamilyID: "F-1", IncomeBand: ptr(domain.IncomeBandBPL), VulnerabilityLevel: ptr(domain.VulnerabilityHigh)}))
	r.NoError(s.repo.SaveGoldenRecord(ctx, &domain.GoldenRecord{FamilyID: "F-2", HeadMemberID: "B-2", Age: ptr(41), DistrictID: ptr("D-1")}))

	r.NoError(s.repo.SaveEnrollment(ctx, &domain.Enrollment{ID: "E-1", BeneficiaryID: "B-1", FamilyID: "F-1", SchemeCode: "OAP", Status: domain.EnrollmentActive, MonthlyAmount: 1500, EnrolledAt: time.Now().UTC()}))
	r.NoError(s.repo.SaveBeneficiaryStatus(ctx, &domain.BeneficiaryStatus{BeneficiaryID: "B-1", IsDeceased: true, PreviousStatus: "ALIVE", CurrentStatus: "DECEASED", UpdatedAt: time.Now().UTC()}))
}

func (s *APISuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(OperatorIDHeader, "officer-7")
	rec := httptest.NewRecorder()
	s.server.Router().ServeHTTP(rec, req)
	return rec
}

func (s *APISuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *APISuite) TestHealthAndReady() {
	rec := s.do(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, rec.Code)
	var health map[string]string
	s.decode(rec, &health)
	s.Equal("healthy", health["status"])
	s.Equal("test-v1", health["version"])
	s.Equal("closed", health["mlBreaker"])

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/ready", nil).Code)
}

func (s *APISuite) TestEvaluate() {
	rec := s.do(http.MethodPost, "/evaluate", EvaluateRequest{FamilyID: "F-1", SchemeCode: "OAP"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var res domain.EvaluationResult
	s.decode(rec, &res)
	s.Equal(domain.StatusRuleEligible, res.Status)
	s.Equal(1.0, res.EligibilityScore)
	s.True(res.Persisted)
	s.True(strings.HasPrefix(res.RuleSetVersion, "rs-"))
	s.NotEmpty(rec.Header().Get(RequestIDHeader))

	rec = s.do(http.MethodGet, "/snapshots/"+res.SnapshotID, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var snap domain.EligibilitySnapshot
	s.decode(rec, &snap)
	s.Equal(res.SnapshotID, snap.SnapshotID)

	rec = s.do(http.MethodPost, "/evaluate", EvaluateRequest{FamilyID: "F-2", SchemeCode: "OAP"})
	s.decode(rec, &res)
	s.Equal(domain.StatusRuleIneligible, res.Status)
	s.Contains(res.ReasonCodes, domain.ReasonMandatoryFailed+":AGE")

	rec = s.do(http.MethodGet, "/families/F-1/snapshots", nil)
	var list struct {
		Count int `json:"count"`
	}
	s.decode(rec, &list)
	s.Equal(1, list.Count)
}

func (s *APISuite) TestEvaluateValidation() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/evaluate", EvaluateRequest{FamilyID: "F-1"}).Code)

	req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.server.Router().ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/snapshots/missing", nil).Code)
}

func (s *APISuite) TestBatch() {
	rec := s.do(http.MethodPost, "/batches", hybrid.BatchRequest{SchemeCode: "OAP", DistrictID: "D-1"})
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	var job domain.BatchJob
	s.decode(rec, &job)
	s.Equal(2, job.Total)

	s.Require().Eventually(func() bool {
		rec := s.do(http.MethodGet, "/batches/"+job.ID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var got domain.BatchJob
		s.decode(rec, &got)
		job = got
		return got.Status == domain.JobCompleted
	}, 5*time.Second, 20*time.Millisecond)
	s.Equal(2, job.Processed)
	s.Equal(1, job.Eligible)
	s.Equal(1, job.Ineligible)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/batches", hybrid.BatchRequest{}).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/batches/missing", nil).Code)
}

func (s *APISuite) TestWorklistAndExport() {
	for _, id := range []string{"F-1", "F-2"} {
		s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/evaluate", EvaluateRequest{FamilyID: id, SchemeCode: "OAP"}).Code)
	}

	rec := s.do(http.MethodPost, "/worklists", priority.WorklistRequest{SchemeCode: "OAP", DistrictID: "D-1"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var list domain.CandidateList
	s.decode(rec, &list)
	s.Equal(domain.ListDepartmentWorklist, list.ListType)
	s.Equal("officer-7", list.GeneratedBy)
	s.Require().Len(list.Entries, 1)
	s.Equal("F-1", list.Entries[0].FamilyID)
	s.Equal(1, list.Entries[0].Rank)

	rec = s.do(http.MethodGet, "/candidate-lists/"+list.ID, nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/candidate-lists/"+list.ID+"/export", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(xlsxContentType, rec.Header().Get("Content-Type"))
	f, err := excelize.OpenReader(rec.Body)
	s.Require().NoError(err)
	defer f.Close()
	s.NotEmpty(f.GetSheetList())

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/candidate-lists/missing/export", nil).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/worklists", priority.WorklistRequest{}).Code)
}

func (s *APISuite) TestCitizenHints() {
	rec := s.do(http.MethodPost, "/families/F-1/hints", HintsRequest{SchemeCodes: []string{"OAP"}})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var list domain.CandidateList
	s.decode(rec, &list)
	s.Equal(domain.ListCitizenHints, list.ListType)
	s.Require().Len(list.Entries, 1)
	s.Equal("OAP", list.Entries[0].SchemeCode)

	// Without schemes the latest snapshots are ranked.
	rec = s.do(http.MethodPost, "/families/F-1/hints", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.decode(rec, &list)
	s.Len(list.Entries, 1)
}

func (s *APISuite) TestDetect() {
	rec := s.do(http.MethodPost, "/detect", detection.Request{BeneficiaryID: "B-1", FamilyID: "F-1", SchemeCode: "OAP"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp DetectResponse
	s.decode(rec, &resp)
	s.Len(resp.Summary.Results, len(domain.DetectionChecks))
	s.Contains(resp.Summary.CriticalFailures, domain.CheckStatusChange)
	s.Require().NotNil(resp.Case)
	s.Equal(domain.CaseHardIneligible, resp.Case.CaseType)
	s.Equal(18000.0, resp.Case.FinancialExposure)

	rec = s.do(http.MethodPost, "/detection-runs", DetectionRunRequest{SchemeCode: "OAP"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var run domain.DetectionRun
	s.decode(rec, &run)
	s.Equal(1, run.Checked)
	s.Equal(1, run.Critical)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/detect", detection.Request{SchemeCode: "OAP"}).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/detection-runs", DetectionRunRequest{}).Code)
}

func (s *APISuite) TestDecisions() {
	rec := s.do(http.MethodPost, "/decisions/band", BandRequest{RiskScore: 0.85, SchemeCode: "OAP"})
	s.Require().Equal(http.StatusOK, rec.Code)
	var d domain.Decision
	s.decode(rec, &d)
	s.Equal(domain.RiskHigh, d.RiskBand)
	s.Equal(domain.DecisionRouteToOfficer, d.DecisionType)
	s.Equal(domain.ConfigSourceDefault, d.ConfigSource)

	cfg := domain.DecisionConfig{
		SchemeCode: "OAP", LowRiskMax: 0.2, MediumRiskMin: 0.2, MediumRiskMax: 0.6, HighRiskMin: 0.6,
		EnableAutoApproval: true, RouteMediumRiskToOfficer: true, RouteHighRiskToFraud: true,
		DefaultDecision: domain.DecisionRouteToOfficer, IsActive: true,
	}
	_, err := s.repo.SaveDecisionConfig(context.Background(), &cfg)
	s.Require().NoError(err)

	s.decode(s.do(http.MethodPost, "/decisions/band", BandRequest{RiskScore: 0.85, SchemeCode: "OAP"}), &d)
	s.Equal(domain.DecisionRouteToFraud, d.DecisionType)
	s.Equal(domain.ConfigSourceScheme, d.ConfigSource)

	rec = s.do(http.MethodGet, "/decision-configs/OAP", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var got struct {
		Config domain.DecisionConfig `json:"config"`
		Source string                `json:"source"`
	}
	s.decode(rec, &got)
	s.Equal(0.2, got.Config.LowRiskMax)
	s.Equal(domain.ConfigSourceScheme, got.Source)
}

func (s *APISuite) TestRules() {
	rec := s.do(http.MethodGet, "/schemes/OAP/rules", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var got struct {
		Count          int    `json:"count"`
		ActiveCount    int    `json:"activeCount"`
		RuleSetVersion string `json:"ruleSetVersion"`
	}
	s.decode(rec, &got)
	s.Equal(2, got.Count)
	s.Equal(2, got.ActiveCount)
	s.True(strings.HasPrefix(got.RuleSetVersion, "rs-"))

	rec = s.do(http.MethodPost, "/rules/validate", domain.SchemeEligibilityRule{RuleID: "X", Expression: "family_size <= 5"})
	s.Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/rules/validate", domain.SchemeEligibilityRule{RuleID: "X", Expression: "age +"})
	s.Equal(http.StatusBadRequest, rec.Code)
	var invalid map[string]any
	s.decode(rec, &invalid)
	s.Equal(false, invalid["valid"])
}

func (s *APISuite) TestReloadScheme() {
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/evaluate", EvaluateRequest{FamilyID: "F-1", SchemeCode: "OAP"}).Code)

	rec := s.do(http.MethodPost, "/schemes/OAP/reload", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	s.decode(rec, &body)
	s.Equal("OAP", body["schemeCode"])
	s.Equal(2.0, body["programsDropped"])
	s.Equal(true, body["modelInvalidated"])
	s.Equal("closed", body["mlBreaker"])

	rec = s.do(http.MethodPost, "/schemes/OAP/reload", nil)
	s.decode(rec, &body)
	s.Equal(0.0, body["programsDropped"])
}

func (s *APISuite) TestMetricsEndpoint() {
	s.do(http.MethodPost, "/evaluate", EvaluateRequest{FamilyID: "F-1", SchemeCode: "OAP"})

	rec := s.do(http.MethodGet, "/metrics", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	body := rec.Body.String()
	s.Contains(body, "eligibility_evaluations_total")
	s.Contains(body, `route="/evaluate"`)
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status codes %v", codes)
	}

	open := RateLimitMiddleware(0, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for range 10 {
		rec := httptest.NewRecorder()
		open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("disabled limiter rejected request: %d", rec.Code)
		}
	}
}
