package detection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/khannas43/smart-eligibility/internal/domain"
)

// Check categories.
const (
	categoryEligibility = "ELIGIBILITY"
	categoryOverlap     = "SCHEME_OVERLAP"
	categoryDuplicate   = "DUPLICATE"
	categoryStatus      = "STATUS_CHANGE"
	categoryFinancial   = "FINANCIAL"
	categoryHousehold   = "HOUSEHOLD"
)

// noData marks a check that passed because the data it needs is absent.
const noData = "NO_DATA"

type checkFunc func(ctx context.Context, req *Request) domain.RuleDetectionResult

type check struct {
	name     string
	category string
	run      checkFunc
}

// checks returns the six checks in their fixed order.
func (d *Detector) checks() []check {
	return []check{
		{domain.CheckEligibilityRecheck, categoryEligibility, d.eligibilityRecheck},
		{domain.CheckSchemeOverlap, categoryOverlap, d.schemeOverlap},
		{domain.CheckDuplicateEnrollment, categoryDuplicate, d.duplicateEnrollment},
		{domain.CheckStatusChange, categoryStatus, d.statusChange},
		{domain.CheckIncomeThreshold, categoryFinancial, d.incomeThreshold},
		{domain.CheckFamilyBeneficiaryCap, categoryHousehold, d.familyBeneficiaryLimit},
	}
}

func passed(detail string) domain.RuleDetectionResult {
	return domain.RuleDetectionResult{Passed: true, Detail: detail}
}

func failed(sev domain.Severity, detail string) domain.RuleDetectionResult {
	return domain.RuleDetectionResult{Severity: sev, Detail: detail}
}

// errored isolates a check failure. Absent data is not a failure.
func errored(err error) domain.RuleDetectionResult {
	if errors.Is(err, domain.ErrNotFound) {
		return passed(noData)
	}
	return domain.RuleDetectionResult{Severity: domain.SeverityHigh, Error: err.Error()}
}

// eligibilityRecheck re-runs the scheme's rules against the current family record.
func (d *Detector) eligibilityRecheck(ctx context.Context, req *Request) domain.RuleDetectionResult {
	if req.FamilyID == "" {
		return passed(noData)
	}
	fam, err := d.families.Load(ctx, req.FamilyID)
	if err != nil {
		return errored(err)
	}
	res, err := d.rules.EvaluateRules(ctx, req.SchemeCode, fam)
	if errors.Is(err, domain.ErrNoActiveRules) {
		return passed(noData)
	}
	if err != nil {
		return errored(err)
	}
	if res.RuleEligible {
		r := passed("")
		r.PreviousValue, r.CurrentValue = "ELIGIBLE", "ELIGIBLE"
		return r
	}
	r := failed(domain.SeverityHigh, "mandatory rules failed: "+strings.Join(res.MandatoryFails, ", "))
	r.PreviousValue, r.CurrentValue = "ELIGIBLE", "INELIGIBLE"
	r.ChangeDetected = true
	return r
}

// schemeOverlap flags enrollment in a scheme that excludes this one.
func (d *Detector) schemeOverlap(ctx context.Context, req *Request) domain.RuleDetectionResult {
	excluded, err := d.src.ListSchemeExclusions(ctx, req.SchemeCode)
	if err != nil {
		return errored(err)
	}
	if len(excluded) == 0 {
		return passed(noData)
	}
	active, err := d.history.ActiveSchemes(ctx, req.BeneficiaryID)
	if err != nil {
		return errored(err)
	}

	var overlap []string
	for _, s := range excluded {
		if active[s] > 0 {
			overlap = append(overlap, s)
		}
	}
	if len(overlap) == 0 {
		return passed("")
	}
	slices.Sort(overlap)
	r := failed(domain.SeverityCritical, "enrolled in mutually exclusive schemes")
	r.CurrentValue = strings.Join(overlap, ",")
	return r
}

// duplicateEnrollment flags more than one active enrollment in the scheme.
func (d *Detector) duplicateEnrollment(ctx context.Context, req *Request) domain.RuleDetectionResult {
	active, err := d.history.ActiveSchemes(ctx, req.BeneficiaryID)
	if err != nil {
		return errored(err)
	}
	n := active[req.SchemeCode]
	if n <= 1 {
		return passed("")
	}
	r := failed(domain.SeverityHigh, fmt.Sprintf("%d active enrollments in %s", n, req.SchemeCode))
	r.PreviousValue, r.CurrentValue = "1", strconv.Itoa(n)
	return r
}

// statusChange flags deceased or migrated beneficiaries.
func (d *Detector) statusChange(ctx context.Context, req *Request) domain.RuleDetectionResult {
	st, err := d.src.GetBeneficiaryStatus(ctx, req.BeneficiaryID)
	if err != nil {
		return errored(err)
	}

	var r domain.RuleDetectionResult
	switch {
	case st.IsDeceased:
		r = failed(domain.SeverityCritical, "beneficiary is deceased")
	case st.IsMigrated:
		r = failed(domain.SeverityHigh, "beneficiary has migrated")
	default:
		r = passed("")
	}
	r.PreviousValue = st.PreviousStatus
	r.CurrentValue = st.CurrentStatus
	r.ChangeDetected = st.PreviousStatus != "" && st.PreviousStatus != st.CurrentStatus
	return r
}

// incomeThreshold flags income or assets above the scheme's limits. Income
// supplied with the request takes precedence over the recorded income.
func (d *Detector) incomeThreshold(ctx context.Context, req *Request) domain.RuleDetectionResult {
	limits, err := d.src.GetSchemeLimits(ctx, req.SchemeCode)
	if err != nil {
		return errored(err)
	}
	if limits.MaxAnnualIncome == nil && limits.MaxAssets == nil {
		return passed(noData)
	}

	var income, assets *float64
	if req.CurrentBenefit != nil {
		income, assets = req.CurrentBenefit.AnnualIncome, req.CurrentBenefit.AssetValue
	}
	if income == nil && req.FamilyID != "" {
		rec, err := d.src.GetIncomeRecord(ctx, req.FamilyID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return errored(err)
		default:
			income = &rec.AnnualIncome
			if assets == nil {
				assets = rec.AssetValue
			}
		}
	}
	if income == nil && assets == nil {
		return passed(noData)
	}

	tolerance := 1 + d.incomeTolerance
	if limits.MaxAnnualIncome != nil && income != nil && *income > *limits.MaxAnnualIncome*tolerance {
		r := failed(domain.SeverityHigh, "annual income exceeds scheme limit")
		r.PreviousValue = formatAmount(*limits.MaxAnnualIncome)
		r.CurrentValue = formatAmount(*income)
		r.ChangeDetected = true
		return r
	}
	if limits.MaxAssets != nil && assets != nil && *assets > *limits.MaxAssets*tolerance {
		r := failed(domain.SeverityMedium, "asset value exceeds scheme limit")
		r.PreviousValue = formatAmount(*limits.MaxAssets)
		r.CurrentValue = formatAmount(*assets)
		r.ChangeDetected = true
		return r
	}
	r := passed("")
	if income != nil {
		r.CurrentValue = formatAmount(*income)
	}
	return r
}

// familyBeneficiaryLimit flags households above the scheme's beneficiary cap.
func (d *Detector) familyBeneficiaryLimit(ctx context.Context, req *Request) domain.RuleDetectionResult {
	if req.FamilyID == "" {
		return passed(noData)
	}
	limits, err := d.src.GetSchemeLimits(ctx, req.SchemeCode)
	if err != nil {
		return errored(err)
	}
	if limits.MaxBeneficiariesPerFamily == nil {
		return passed(noData)
	}
	ids, err := d.history.ActiveBeneficiaries(ctx, req.FamilyID, req.SchemeCode)
	if err != nil {
		return errored(err)
	}

	limit := *limits.MaxBeneficiariesPerFamily
	if len(ids) <= limit {
		return passed("")
	}
	r := failed(domain.SeverityMedium, fmt.Sprintf("%d beneficiaries in household, limit %d", len(ids), limit))
	r.PreviousValue = strconv.Itoa(limit)
	r.CurrentValue = strconv.Itoa(len(ids))
	return r
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
