package priority

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func ptr[T any](v T) *T { return &v }

type memStore struct {
	domain.SnapshotStore
	snapshots []*domain.EvaluationResult
	saved     []*domain.CandidateList
	saveErr   error
}

func (m *memStore) LatestSnapshots(ctx context.Context, schemeCode, districtID string) ([]*domain.EvaluationResult, error) {
	return m.snapshots, nil
}

func (m *memStore) ListSnapshotsByFamily(ctx context.Context, familyID string) ([]*domain.EvaluationResult, error) {
	var out []*domain.EvaluationResult
	for _, s := range m.snapshots {
		if s.FamilyID == familyID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) SaveCandidateList(ctx context.Context, l *domain.CandidateList) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, l)
	return nil
}

func (m *memStore) GetCandidateList(ctx context.Context, listID string) (*domain.CandidateList, error) {
	return nil, domain.ErrNotFound
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func eval(id, family string, score, priority float64, at time.Duration) *domain.EvaluationResult {
	return &domain.EvaluationResult{
		SnapshotID:       id,
		FamilyID:         family,
		SchemeCode:       "OAP",
		Status:           domain.StatusRuleEligible,
		EligibilityScore: score,
		PriorityScore:    priority,
		DistrictID:       "D-01",
		EvaluatedAt:      t0.Add(at),
	}
}

func TestScore(t *testing.T) {
	needy := &domain.FamilyRecord{
		VulnerabilityLevel: ptr(domain.VulnerabilityVeryHigh),
		UnderCoverage:      ptr(true),
		ElderlyCount:       ptr(1),
		ChildrenCount:      ptr(2),
		DisabledCount:      ptr(1),
		IncomeBand:         ptr(domain.IncomeBandBPL),
	}
	assert.InDelta(t, 1.0, Score(needy, 1.0), 1e-9)

	comfortable := &domain.FamilyRecord{
		VulnerabilityLevel: ptr(domain.VulnerabilityLow),
		IncomeBand:         ptr(domain.IncomeBandHIG),
	}
	assert.InDelta(t, 0.05, Score(comfortable, 0.5), 1e-9)
	assert.Greater(t, Score(needy, 0), Score(comfortable, 1))

	for _, rs := range []float64{-1, 0, 0.3, 1, 7} {
		s := Score(needy, rs)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Zero(t, Score(nil, 1))
}

func TestRankTotalOrder(t *testing.T) {
	entries := []domain.CandidateEntry{
		{SnapshotID: "s5", EligibilityScore: 0.9, PriorityScore: 0.2, EvaluatedAt: t0},
		{SnapshotID: "s4", EligibilityScore: 0.9, PriorityScore: 0.8, EvaluatedAt: t0.Add(time.Hour)},
		{SnapshotID: "s3", EligibilityScore: 0.9, PriorityScore: 0.8, EvaluatedAt: t0},
		{SnapshotID: "s2", EligibilityScore: 0.9, PriorityScore: 0.8, EvaluatedAt: t0},
		{SnapshotID: "s1", EligibilityScore: 0.95, PriorityScore: 0.1, EvaluatedAt: t0.Add(2 * time.Hour)},
	}
	want := []string{"s1", "s2", "s3", "s4", "s5"}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]domain.CandidateEntry(nil), entries...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		Rank(shuffled)
		var got []string
		for j, e := range shuffled {
			got = append(got, e.SnapshotID)
			assert.Equal(t, j+1, e.Rank)
		}
		assert.Equal(t, want, got)
	}
}

func TestDepartmentalWorklist(t *testing.T) {
	ctx := context.Background()
	defaults := domain.DefaultEngineDefaults()

	vulnerable := eval("s-vuln", "F-3", 0.8, 0.2, 0)
	vulnerable.VulnerabilityLevel = domain.VulnerabilityHigh
	uncovered := eval("s-uc", "F-4", 0.75, 0.1, 0)
	uncovered.UnderCoverage = true
	ineligible := eval("s-inel", "F-5", 0, 0.9, 0)
	ineligible.Status = domain.StatusRuleIneligible
	otherDistrict := eval("s-d2", "F-6", 0.9, 0.9, 0)
	otherDistrict.DistrictID = "D-02"

	evals := []*domain.EvaluationResult{
		eval("s-1", "F-1", 0.9, 0.7, 0),
		eval("s-low", "F-2", 0.85, 0.3, 0),
		vulnerable,
		uncovered,
		ineligible,
		otherDistrict,
		eval("s-min", "F-7", 0.4, 0.9, 0),
	}

	t.Run("LenientInclusion", func(t *testing.T) {
		store := &memStore{}
		p := NewPrioritizer(store, defaults)
		list, err := p.GenerateDepartmentalWorklist(ctx, WorklistRequest{
			SchemeCode:  "OAP",
			Evaluations: evals,
			DistrictID:  "D-01",
			MinScore:    0.5,
		})
		require.NoError(t, err)

		var ids []string
		for _, e := range list.Entries {
			ids = append(ids, e.SnapshotID)
		}
		assert.Equal(t, []string{"s-1", "s-vuln", "s-uc"}, ids)
		assert.False(t, list.Entries[0].Promoted)
		assert.True(t, list.Entries[1].Promoted)
		assert.True(t, list.Entries[2].Promoted)

		assert.Equal(t, domain.ListDepartmentWorklist, list.ListType)
		assert.Equal(t, 3, list.Summary.Count)
		assert.Equal(t, 2, list.Summary.PromotedCount)
		assert.Equal(t, 1, list.Summary.ExcludedCount)
		assert.InDelta(t, 0.8, list.Summary.MedianScore, 1e-9)
		require.Len(t, store.saved, 1)
	})

	t.Run("Limit", func(t *testing.T) {
		p := NewPrioritizer(&memStore{}, defaults)
		list, err := p.GenerateDepartmentalWorklist(ctx, WorklistRequest{SchemeCode: "OAP", Evaluations: evals, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, list.Entries, 2)
		assert.Equal(t, "s-d2", list.Entries[0].SnapshotID)
	})

	t.Run("LoadsLatestSnapshots", func(t *testing.T) {
		store := &memStore{snapshots: evals}
		p := NewPrioritizer(store, defaults)
		list, err := p.GenerateDepartmentalWorklist(ctx, WorklistRequest{SchemeCode: "OAP", MinScore: 0.5})
		require.NoError(t, err)
		assert.Len(t, list.Entries, 4)
	})

	t.Run("PersistenceFailure", func(t *testing.T) {
		p := NewPrioritizer(&memStore{saveErr: errors.New("disk full")}, defaults)
		list, err := p.GenerateDepartmentalWorklist(ctx, WorklistRequest{SchemeCode: "OAP", Evaluations: evals})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.NotNil(t, list)
	})

	t.Run("SchemeRequired", func(t *testing.T) {
		p := NewPrioritizer(&memStore{}, defaults)
		_, err := p.GenerateDepartmentalWorklist(ctx, WorklistRequest{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestCitizenHints(t *testing.T) {
	ctx := context.Background()

	older := eval("s-old", "F-1", 0.99, 0.5, 0)
	newer := eval("s-new", "F-1", 0.6, 0.5, time.Hour)
	widow := eval("s-w", "F-1", 0.8, 0.5, 0)
	widow.SchemeCode = "WIDOW"
	food := eval("s-f", "F-1", 0.7, 0.5, 0)
	food.SchemeCode = "FOOD"
	housing := eval("s-h", "F-1", 0.95, 0.5, 0)
	housing.SchemeCode = "HOUSING"
	housing.Status = domain.StatusError
	disability := eval("s-d", "F-1", 0.5, 0.5, 0)
	disability.SchemeCode = "DISABILITY"

	store := &memStore{snapshots: []*domain.EvaluationResult{older, newer, widow, food, housing, disability}}
	p := NewPrioritizer(store, domain.DefaultEngineDefaults())

	list, err := p.GenerateCitizenHints(ctx, "F-1", nil)
	require.NoError(t, err)

	var schemes []string
	for _, e := range list.Entries {
		schemes = append(schemes, e.SchemeCode)
	}
	// Latest OAP snapshot (0.6) replaces the older 0.99 one; ERROR is skipped.
	assert.Equal(t, []string{"WIDOW", "FOOD", "OAP"}, schemes)
	assert.Equal(t, domain.ListCitizenHints, list.ListType)
	assert.Equal(t, "F-1", list.FamilyID)

	_, err = p.GenerateCitizenHints(ctx, "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExportXLSX(t *testing.T) {
	list := &domain.CandidateList{
		Entries: []domain.CandidateEntry{
			{Rank: 1, FamilyID: "F-1", SchemeCode: "OAP", Status: domain.StatusRuleEligible, EligibilityScore: 0.9, EvaluatedAt: t0},
			{Rank: 2, FamilyID: "F-2", SchemeCode: "OAP", Status: domain.StatusPossibleEligible, EligibilityScore: 0.6, Promoted: true, EvaluatedAt: t0},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(list, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Rank", rows[0][0])
	assert.Equal(t, "F-1", rows[1][1])
	assert.Equal(t, "POSSIBLE_ELIGIBLE", rows[2][3])
}
