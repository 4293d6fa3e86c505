package priority

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/metrics"
	"github.com/montanaflynn/stats"
)

// Store is the persistence the prioritizer reads snapshots from and writes
// lists to.
type Store interface {
	domain.SnapshotStore
	domain.CandidateListStore
}

// WorklistRequest selects the evaluations of a departmental worklist.
// When Evaluations is nil the latest snapshot per family is loaded.
type WorklistRequest struct {
	SchemeCode  string                     `json:"schemeCode"`
	Evaluations []*domain.EvaluationResult `json:"-"`
	DistrictID  string                     `json:"districtId,omitempty"`
	MinScore    float64                    `json:"minScore"`
	Limit       int                        `json:"limit,omitempty"`
	GeneratedBy string                     `json:"generatedBy,omitempty"`
}

// Prioritizer builds ranked candidate lists.
type Prioritizer struct {
	store             Store
	priorityThreshold float64
	hintsLimit        int
	worklistLimit     int
	metrics           *metrics.Metrics
	now               func() time.Time
}

// Option configures a Prioritizer.
type Option func(*Prioritizer)

// WithMetrics records generated lists on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Prioritizer) { p.metrics = m }
}

// NewPrioritizer creates a prioritizer with thresholds from defaults.
func NewPrioritizer(store Store, defaults domain.EngineDefaults, opts ...Option) *Prioritizer {
	p := &Prioritizer{
		store:             store,
		priorityThreshold: defaults.PriorityThreshold,
		hintsLimit:        defaults.CitizenHintsLimit,
		worklistLimit:     defaults.WorklistLimit,
		now:               time.Now,
	}
	if p.hintsLimit <= 0 {
		p.hintsLimit = 3
	}
	if p.worklistLimit <= 0 {
		p.worklistLimit = 500
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GenerateDepartmentalWorklist ranks a scheme's candidates for officers.
// Candidates below the priority threshold are kept and marked Promoted when
// they are highly vulnerable or under-covered, and dropped otherwise.
// A failed save returns the list together with a *domain.PersistenceError.
func (p *Prioritizer) GenerateDepartmentalWorklist(ctx context.Context, req WorklistRequest) (*domain.CandidateList, error) {
	if req.SchemeCode == "" {
		return nil, fmt.Errorf("scheme code is required: %w", domain.ErrInvalidInput)
	}

	evals := req.Evaluations
	if evals == nil {
		var err error
		evals, err = p.store.LatestSnapshots(ctx, req.SchemeCode, req.DistrictID)
		if err != nil {
			return nil, fmt.Errorf("load snapshots: %w", err)
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = p.worklistLimit
	}

	var entries []domain.CandidateEntry
	excluded := 0
	for _, ev := range evals {
		if ev == nil || ev.SchemeCode != req.SchemeCode || !ev.Status.Candidate() {
			continue
		}
		if req.DistrictID != "" && ev.DistrictID != req.DistrictID {
			continue
		}
		if ev.EligibilityScore < req.MinScore {
			continue
		}
		entry := entryFrom(ev)
		if ev.PriorityScore < p.priorityThreshold {
			if !Promotable(ev.VulnerabilityLevel, ev.UnderCoverage) {
				excluded++
				continue
			}
			entry.Promoted = true
		}
		entries = append(entries, entry)
	}

	Rank(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}

	list := &domain.CandidateList{
		ID:          uuid.New().String(),
		ListType:    domain.ListDepartmentWorklist,
		SchemeCode:  req.SchemeCode,
		DistrictID:  req.DistrictID,
		MinScore:    req.MinScore,
		GeneratedBy: req.GeneratedBy,
		GeneratedAt: p.now().UTC(),
		Entries:     nonNil(entries),
	}
	list.Summary = Summarize(list.Entries)
	list.Summary.ExcludedCount = excluded

	return list, p.save(ctx, list)
}

// GenerateCitizenHints returns the top schemes a family is likely eligible
// for. When evaluations is nil the family's latest snapshot per scheme is used.
func (p *Prioritizer) GenerateCitizenHints(ctx context.Context, familyID string, evaluations []*domain.EvaluationResult) (*domain.CandidateList, error) {
	if familyID == "" {
		return nil, fmt.Errorf("family id is required: %w", domain.ErrInvalidInput)
	}

	if evaluations == nil {
		all, err := p.store.ListSnapshotsByFamily(ctx, familyID)
		if err != nil {
			return nil, fmt.Errorf("load snapshots: %w", err)
		}
		evaluations = latestPerScheme(all)
	}

	var entries []domain.CandidateEntry
	for _, ev := range evaluations {
		if ev == nil || ev.FamilyID != familyID || !ev.Status.Candidate() {
			continue
		}
		entries = append(entries, entryFrom(ev))
	}

	Rank(entries)
	if len(entries) > p.hintsLimit {
		entries = entries[:p.hintsLimit]
	}

	list := &domain.CandidateList{
		ID:          uuid.New().String(),
		ListType:    domain.ListCitizenHints,
		FamilyID:    familyID,
		GeneratedAt: p.now().UTC(),
		Entries:     nonNil(entries),
	}
	list.Summary = Summarize(list.Entries)

	return list, p.save(ctx, list)
}

func (p *Prioritizer) save(ctx context.Context, list *domain.CandidateList) error {
	if p.store == nil {
		return nil
	}
	if err := p.store.SaveCandidateList(ctx, list); err != nil {
		p.metrics.IncrementPersistFailures("candidate_list")
		slog.Error("failed to save candidate list",
			"list_id", list.ID,
			"list_type", list.ListType,
			"error", err,
		)
		return &domain.PersistenceError{Op: "save candidate list", Cause: err}
	}
	p.metrics.IncrementCandidateLists(list.ListType)
	slog.Info("candidate list generated",
		"list_id", list.ID,
		"list_type", list.ListType,
		"scheme_code", list.SchemeCode,
		"count", list.Summary.Count,
		"promoted", list.Summary.PromotedCount,
	)
	return nil
}

// Rank sorts entries into their total order and numbers them from 1:
// eligibility score DESC, priority score DESC, evaluation time ASC,
// snapshot id ASC.
func Rank(entries []domain.CandidateEntry) {
	slices.SortFunc(entries, func(a, b domain.CandidateEntry) int {
		if c := cmp.Compare(b.EligibilityScore, a.EligibilityScore); c != 0 {
			return c
		}
		if c := cmp.Compare(b.PriorityScore, a.PriorityScore); c != 0 {
			return c
		}
		if c := a.EvaluatedAt.Compare(b.EvaluatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.SnapshotID, b.SnapshotID)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// Summarize computes descriptive statistics of a list.
func Summarize(entries []domain.CandidateEntry) domain.ListSummary {
	sum := domain.ListSummary{Count: len(entries)}
	if len(entries) == 0 {
		return sum
	}

	scores := make(stats.Float64Data, 0, len(entries))
	priorities := make(stats.Float64Data, 0, len(entries))
	for _, e := range entries {
		scores = append(scores, e.EligibilityScore)
		priorities = append(priorities, e.PriorityScore)
		if e.Promoted {
			sum.PromotedCount++
		}
	}

	sum.MeanScore, _ = stats.Mean(scores)
	sum.MedianScore, _ = stats.Median(scores)
	sum.P90Score, _ = stats.Percentile(scores, 90)
	sum.MeanPriority, _ = stats.Mean(priorities)
	return sum
}

func entryFrom(ev *domain.EvaluationResult) domain.CandidateEntry {
	return domain.CandidateEntry{
		FamilyID:           ev.FamilyID,
		SchemeCode:         ev.SchemeCode,
		SnapshotID:         ev.SnapshotID,
		Status:             ev.Status,
		EligibilityScore:   ev.EligibilityScore,
		PriorityScore:      ev.PriorityScore,
		VulnerabilityLevel: ev.VulnerabilityLevel,
		UnderCoverage:      ev.UnderCoverage,
		EvaluatedAt:        ev.EvaluatedAt,
	}
}

// latestPerScheme keeps the most recent snapshot of each scheme.
func latestPerScheme(snaps []*domain.EvaluationResult) []*domain.EvaluationResult {
	latest := make(map[string]*domain.EvaluationResult)
	for _, s := range snaps {
		cur, ok := latest[s.SchemeCode]
		if !ok || s.EvaluatedAt.After(cur.EvaluatedAt) {
			latest[s.SchemeCode] = s
		}
	}
	out := make([]*domain.EvaluationResult, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	return out
}

func nonNil(e []domain.CandidateEntry) []domain.CandidateEntry {
	if e == nil {
		return []domain.CandidateEntry{}
	}
	return e
}
