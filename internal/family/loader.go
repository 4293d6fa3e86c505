// Package family builds FamilyRecords from the collaborator stores.
package family

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/history"
)

// Loader joins golden records, the 360 profile and benefit history into a
// FamilyRecord. Records are rebuilt on every call.
type Loader struct {
	src             domain.FamilySource
	history         *history.Service
	versionFallback string
}

// NewLoader creates a loader. versionFallback stamps datasets with no
// recorded version.
func NewLoader(src domain.FamilySource, hist *history.Service, versionFallback string) *Loader {
	if versionFallback == "" {
		versionFallback = "CURRENT"
	}
	return &Loader{
		src:             src,
		history:         hist,
		versionFallback: versionFallback,
	}
}

// Load builds the record of one family. A missing golden record or any
// failed read yields a *domain.DataUnavailableError. A missing 360 profile
// leaves its fields absent.
func (l *Loader) Load(ctx context.Context, familyID string) (*domain.FamilyRecord, error) {
	if familyID == "" {
		return nil, fmt.Errorf("familyID is required: %w", domain.ErrInvalidInput)
	}

	gr, err := l.src.GetGoldenRecord(ctx, familyID)
	if err != nil {
		return nil, &domain.DataUnavailableError{Entity: "family", ID: familyID, Cause: err}
	}

	rec := &domain.FamilyRecord{
		FamilyID:        gr.FamilyID,
		HeadMemberID:    gr.HeadMemberID,
		Age:             gr.Age,
		Gender:          gr.Gender,
		DistrictID:      gr.DistrictID,
		CasteCategory:   gr.CasteCategory,
		IsUrban:         gr.IsUrban,
		FamilySize:      gr.FamilySize,
		ChildrenCount:   gr.ChildrenCount,
		ElderlyCount:    gr.ElderlyCount,
		DisabledCount:   gr.DisabledCount,
		EnrolledSchemes: []string{},
		PreviousSchemes: []string{},
	}

	if gr.Attributes != nil && *gr.Attributes != "" {
		if err := json.Unmarshal([]byte(*gr.Attributes), &rec.Attributes); err != nil {
			// Typed fields are still usable; rules on attributes see them as absent.
			slog.Warn("invalid golden record attributes", "family_id", familyID, "error", err)
		}
	}

	profile, err := l.src.GetProfile360(ctx, familyID)
	switch {
	case err == nil:
		rec.IncomeBand = profile.IncomeBand
		rec.AnnualIncome = profile.AnnualIncome
		rec.VulnerabilityLevel = profile.VulnerabilityLevel
		rec.UnderCoverage = profile.UnderCoverage
		rec.ClusterID = profile.ClusterID
	case errors.Is(err, domain.ErrNotFound):
		slog.Debug("no 360 profile", "family_id", familyID)
	default:
		return nil, &domain.DataUnavailableError{Entity: "profile_360", ID: familyID, Cause: err}
	}

	if l.history != nil {
		sum, err := l.history.FamilySummary(ctx, familyID)
		if err != nil {
			return nil, &domain.DataUnavailableError{Entity: "benefit_history", ID: familyID, Cause: err}
		}
		rec.EnrolledSchemes = sum.EnrolledSchemes
		rec.PreviousSchemes = sum.PreviousSchemes
		rec.BenefitsReceived = sum.BenefitsReceived
		rec.TotalBenefitsReceived = sum.MonthlyTotal
	}

	if rec.GoldenRecordsVersion, err = l.datasetVersion(ctx, domain.DatasetGoldenRecords); err != nil {
		return nil, &domain.DataUnavailableError{Entity: "dataset_version", ID: domain.DatasetGoldenRecords, Cause: err}
	}
	if rec.Profile360Version, err = l.datasetVersion(ctx, domain.DatasetProfile360); err != nil {
		return nil, &domain.DataUnavailableError{Entity: "dataset_version", ID: domain.DatasetProfile360, Cause: err}
	}

	return rec, nil
}

func (l *Loader) datasetVersion(ctx context.Context, dataset string) (string, error) {
	v, err := l.src.DatasetVersion(ctx, dataset)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && v == "") {
		return l.versionFallback, nil
	}
	return v, err
}

// ListFamilyIDs returns the families of a district, or all families when
// districtID is empty.
func (l *Loader) ListFamilyIDs(ctx context.Context, districtID string) ([]string, error) {
	return l.src.ListFamilyIDs(ctx, districtID)
}
