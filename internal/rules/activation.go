package rules

import (
	"github.com/google/cel-go/cel"
	"github.com/khannas43/smart-eligibility/internal/domain"
)

// field is one FamilyRecord attribute visible to rule expressions.
type field struct {
	name string
	typ  *cel.Type
}

// familyFields declares every variable a rule expression may reference.
var familyFields = []field{
	{"family_id", cel.StringType},
	{"head_member_id", cel.StringType},
	{"age", cel.IntType},
	{"gender", cel.StringType},
	{"district_id", cel.StringType},
	{"caste_category", cel.StringType},
	{"is_urban", cel.BoolType},
	{"family_size", cel.IntType},
	{"children_count", cel.IntType},
	{"elderly_count", cel.IntType},
	{"disabled_count", cel.IntType},
	{"income_band", cel.StringType},
	{"annual_income", cel.DoubleType},
	{"vulnerability_level", cel.StringType},
	{"under_coverage", cel.BoolType},
	{"under_coverage_indicator", cel.BoolType},
	{"cluster_id", cel.StringType},
	{"enrolled_schemes", cel.ListType(cel.StringType)},
	{"previous_schemes", cel.ListType(cel.StringType)},
	{"benefits_received", cel.IntType},
	{"total_benefits_received", cel.DoubleType},
	{"attributes", cel.MapType(cel.StringType, cel.DynType)},
}

// declaredFields indexes familyFields by name. Comprehension locals such as
// the iteration variable and @result are not in it.
var declaredFields = func() map[string]bool {
	m := make(map[string]bool, len(familyFields))
	for _, f := range familyFields {
		m[f.name] = true
	}
	return m
}()

func envOptions() []cel.EnvOption {
	opts := make([]cel.EnvOption, 0, len(familyFields))
	for _, f := range familyFields {
		opts = append(opts, cel.Variable(f.name, f.typ))
	}
	return opts
}

// activation flattens a family record into CEL variables. Absent (nil)
// fields are left out so rules referencing them can be reported.
func activation(f *domain.FamilyRecord) map[string]any {
	vars := map[string]any{
		"family_id":               f.FamilyID,
		"head_member_id":          f.HeadMemberID,
		"enrolled_schemes":        nonNil(f.EnrolledSchemes),
		"previous_schemes":        nonNil(f.PreviousSchemes),
		"benefits_received":       int64(f.BenefitsReceived),
		"total_benefits_received": f.TotalBenefitsReceived,
	}

	putInt(vars, "age", f.Age)
	putInt(vars, "family_size", f.FamilySize)
	putInt(vars, "children_count", f.ChildrenCount)
	putInt(vars, "elderly_count", f.ElderlyCount)
	putInt(vars, "disabled_count", f.DisabledCount)

	putString(vars, "gender", f.Gender)
	putString(vars, "district_id", f.DistrictID)
	putString(vars, "caste_category", f.CasteCategory)
	putString(vars, "income_band", f.IncomeBand)
	putString(vars, "vulnerability_level", f.VulnerabilityLevel)
	putString(vars, "cluster_id", f.ClusterID)

	if f.IsUrban != nil {
		vars["is_urban"] = *f.IsUrban
	}
	if f.UnderCoverage != nil {
		vars["under_coverage"] = *f.UnderCoverage
		vars["under_coverage_indicator"] = *f.UnderCoverage
	}
	if f.AnnualIncome != nil {
		vars["annual_income"] = *f.AnnualIncome
	}
	if f.Attributes != nil {
		vars["attributes"] = f.Attributes
	}
	return vars
}

func putInt(vars map[string]any, name string, v *int) {
	if v != nil {
		vars[name] = int64(*v)
	}
}

func putString(vars map[string]any, name string, v *string) {
	if v != nil {
		vars[name] = *v
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
