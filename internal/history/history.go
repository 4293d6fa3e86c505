// Package history derives benefit-history counters from enrollments.
package history

import (
	"context"
	"fmt"
	"slices"

	"github.com/khannas43/smart-eligibility/internal/domain"
)

// Summary is the enrollment history of one family.
type Summary struct {
	// EnrolledSchemes are schemes with at least one active enrollment.
	EnrolledSchemes []string
	// PreviousSchemes are schemes the family left and is not enrolled in now.
	PreviousSchemes []string
	// BenefitsReceived counts every enrollment the family ever had.
	BenefitsReceived int
	// MonthlyTotal sums the monthly amounts of active enrollments.
	MonthlyTotal float64
}

// Service computes enrollment counters for families and schemes.
type Service struct {
	src domain.EnrollmentSource
}

// NewService creates a history service over an enrollment source.
func NewService(src domain.EnrollmentSource) *Service {
	return &Service{src: src}
}

// FamilySummary returns the enrollment history of a family. A family with no
// enrollments yields an empty summary.
func (s *Service) FamilySummary(ctx context.Context, familyID string) (*Summary, error) {
	if familyID == "" {
		return nil, fmt.Errorf("familyID is required: %w", domain.ErrInvalidInput)
	}

	enrollments, err := s.src.ListEnrollmentsByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollments: %w", err)
	}

	active := make(map[string]bool)
	seen := make(map[string]bool)
	sum := &Summary{
		EnrolledSchemes: []string{},
		PreviousSchemes: []string{},
	}
	for _, e := range enrollments {
		seen[e.SchemeCode] = true
		if e.Status == domain.EnrollmentActive {
			active[e.SchemeCode] = true
			sum.MonthlyTotal += e.MonthlyAmount
		}
	}
	for code := range seen {
		if active[code] {
			sum.EnrolledSchemes = append(sum.EnrolledSchemes, code)
		} else {
			sum.PreviousSchemes = append(sum.PreviousSchemes, code)
		}
	}
	slices.Sort(sum.EnrolledSchemes)
	slices.Sort(sum.PreviousSchemes)
	sum.BenefitsReceived = len(enrollments)

	return sum, nil
}

// ActiveBeneficiaries returns the distinct beneficiaries of a family holding
// an active enrollment in a scheme.
func (s *Service) ActiveBeneficiaries(ctx context.Context, familyID, schemeCode string) ([]string, error) {
	enrollments, err := s.src.ListEnrollmentsByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollments: %w", err)
	}

	var ids []string
	for _, e := range enrollments {
		if e.SchemeCode == schemeCode && e.Status == domain.EnrollmentActive && !slices.Contains(ids, e.BeneficiaryID) {
			ids = append(ids, e.BeneficiaryID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// ActiveSchemes returns the schemes a beneficiary is actively enrolled in,
// with the number of active enrollments per scheme.
func (s *Service) ActiveSchemes(ctx context.Context, beneficiaryID string) (map[string]int, error) {
	enrollments, err := s.src.ListEnrollmentsByBeneficiary(ctx, beneficiaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollments: %w", err)
	}

	out := make(map[string]int)
	for _, e := range enrollments {
		if e.Status == domain.EnrollmentActive {
			out[e.SchemeCode]++
		}
	}
	return out, nil
}
