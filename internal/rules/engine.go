// Package rules provides the CEL-Go based eligibility rule evaluator.
package rules

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/khannas43/smart-eligibility/internal/domain"
)

// costLimit bounds the runtime cost of a single rule expression.
const costLimit = 100_000

// Engine evaluates scheme eligibility rules against family records.
type Engine struct {
	mu              sync.RWMutex
	env             *cel.Env
	repo            domain.RuleSource
	compiled        map[string]*compiledRule
	versionFallback string
	now             func() time.Time
}

// compiledRule holds a pre-compiled CEL program and the family fields it reads.
type compiledRule struct {
	expression string
	program    cel.Program
	fields     []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithVersionFallback sets the rule-set version used when no rules are loaded.
func WithVersionFallback(v string) Option {
	return func(e *Engine) { e.versionFallback = v }
}

// NewEngine creates a rule engine over a rule source.
func NewEngine(repo domain.RuleSource, opts ...Option) (*Engine, error) {
	env, err := cel.NewEnv(envOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{
		env:             env,
		repo:            repo,
		compiled:        make(map[string]*compiledRule),
		versionFallback: "CURRENT",
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ValidateRule compiles a rule. The expression must produce a bool.
func (e *Engine) ValidateRule(rule *domain.SchemeEligibilityRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required: %w", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(rule.Expression) == "" {
		return fmt.Errorf("rule %s: expression is required: %w", rule.RuleID, domain.ErrInvalidInput)
	}
	_, err := e.compile(rule)
	return err
}

// EvaluateRules loads the scheme's active rules effective now and evaluates
// them against the family. It returns domain.ErrNoActiveRules when the scheme
// has none.
func (e *Engine) EvaluateRules(ctx context.Context, schemeCode string, family *domain.FamilyRecord) (*domain.RuleEvalResult, error) {
	if e.repo == nil {
		return nil, fmt.Errorf("rule source not configured")
	}
	all, err := e.repo.ActiveRules(ctx, schemeCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for %s: %w", schemeCode, err)
	}

	now := e.now()
	effective := make([]domain.SchemeEligibilityRule, 0, len(all))
	for _, r := range all {
		if r.EffectiveAt(now) {
			effective = append(effective, r)
		}
	}
	if len(effective) == 0 {
		return nil, fmt.Errorf("scheme %s: %w", schemeCode, domain.ErrNoActiveRules)
	}

	res, err := e.EvaluateRuleSet(effective, family)
	if err != nil {
		return nil, err
	}
	res.SchemeCode = schemeCode
	return res, nil
}

// ActiveRules returns the scheme's rules effective now, in evaluation order.
func (e *Engine) ActiveRules(ctx context.Context, schemeCode string) ([]domain.SchemeEligibilityRule, error) {
	all, err := e.repo.ActiveRules(ctx, schemeCode)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := all[:0:0]
	for _, r := range all {
		if r.EffectiveAt(now) {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out, nil
}

// EvaluateRuleSet evaluates a supplied rule set sequentially in
// priority DESC, rule_id ASC order. A rule that cannot be evaluated is
// recorded as FAILED and evaluation continues.
func (e *Engine) EvaluateRuleSet(rules []domain.SchemeEligibilityRule, family *domain.FamilyRecord) (*domain.RuleEvalResult, error) {
	if family == nil {
		return nil, fmt.Errorf("family record is required: %w", domain.ErrInvalidInput)
	}
	if len(rules) == 0 {
		return nil, domain.ErrNoActiveRules
	}

	ordered := slices.Clone(rules)
	sortRules(ordered)

	res := &domain.RuleEvalResult{
		RuleSetVersion: e.ruleSetVersion(ordered),
		RuleEligible:   true,
		RulesPassed:    []string{},
		RulesFailed:    []string{},
		Results:        make([]domain.RuleResult, 0, len(ordered)),
		SchemeCode:     ordered[0].SchemeCode,
	}

	vars := activation(family)
	var optTotal, optPassed float64

	for i := range ordered {
		rule := &ordered[i]
		rr := e.evaluateRule(rule, vars)
		res.Results = append(res.Results, rr)

		name := ruleName(rule)
		if rr.Outcome == domain.RuleOutcomePassed {
			res.RulesPassed = append(res.RulesPassed, name)
		} else {
			res.RulesFailed = append(res.RulesFailed, name)
			res.ReasonCodes = append(res.ReasonCodes, rr.ReasonCode)
			if rr.Error != "" {
				res.ErroredRules++
			}
		}

		if rr.Mandatory {
			if rr.Outcome != domain.RuleOutcomePassed {
				res.RuleEligible = false
				res.MandatoryFails = append(res.MandatoryFails, name)
			}
			continue
		}
		optTotal += rr.Weight
		if rr.Outcome == domain.RuleOutcomePassed {
			optPassed += rr.Weight
		}
	}

	res.RuleScore = 1.0
	if optTotal > 0 {
		res.RuleScore = optPassed / optTotal
	}
	return res, nil
}

func (e *Engine) evaluateRule(rule *domain.SchemeEligibilityRule, vars map[string]any) domain.RuleResult {
	rr := domain.RuleResult{
		RuleID:    rule.RuleID,
		Name:      ruleName(rule),
		Mandatory: rule.Mandatory(),
		Weight:    rule.Weight,
		Outcome:   domain.RuleOutcomeFailed,
	}
	if rr.Weight <= 0 {
		rr.Weight = 1
	}

	compiled, err := e.compile(rule)
	if err != nil {
		rr.ReasonCode = domain.ReasonRuleInvalid + ":" + rule.RuleID
		rr.Error = err.Error()
		return rr
	}

	for _, f := range compiled.fields {
		if _, ok := vars[f]; !ok {
			mf := &domain.MissingFieldError{RuleID: rule.RuleID, Field: f}
			rr.ReasonCode = domain.ReasonMissingField + ":" + f
			rr.Error = mf.Error()
			return rr
		}
	}

	out, _, err := compiled.program.Eval(vars)
	if err != nil {
		if key, ok := strings.CutPrefix(err.Error(), "no such key: "); ok {
			mf := &domain.MissingFieldError{RuleID: rule.RuleID, Field: "attributes." + key}
			rr.ReasonCode = domain.ReasonMissingField + ":" + mf.Field
			rr.Error = mf.Error()
			return rr
		}
		ree := &domain.RuleEvaluationError{RuleID: rule.RuleID, Cause: err}
		rr.ReasonCode = domain.ReasonRuleEvalError + ":" + rule.RuleID
		rr.Error = ree.Error()
		return rr
	}

	passed, ok := out.(types.Bool)
	if !ok {
		ree := &domain.RuleEvaluationError{RuleID: rule.RuleID, Cause: fmt.Errorf("expression returned %s, want bool", out.Type().TypeName())}
		rr.ReasonCode = domain.ReasonRuleEvalError + ":" + rule.RuleID
		rr.Error = ree.Error()
		return rr
	}

	if bool(passed) {
		rr.Outcome = domain.RuleOutcomePassed
		return rr
	}
	if rr.Mandatory {
		rr.ReasonCode = domain.ReasonMandatoryFailed + ":" + rule.RuleID
	} else {
		rr.ReasonCode = domain.ReasonOptionalFailed + ":" + rule.RuleID
	}
	return rr
}

// compile returns the cached program for (rule_id, version), compiling it on
// first use or when the expression changed.
func (e *Engine) compile(rule *domain.SchemeEligibilityRule) (*compiledRule, error) {
	key := rule.RuleID + "@" + rule.Version

	e.mu.RLock()
	c, ok := e.compiled[key]
	e.mu.RUnlock()
	if ok && c.expression == rule.Expression {
		return c, nil
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.RuleID, issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.RuleID, out)
	}

	program, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(costLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.RuleID, err)
	}

	c = &compiledRule{
		expression: rule.Expression,
		program:    program,
		fields:     referencedFields(ast),
	}

	e.mu.Lock()
	e.compiled[key] = c
	e.mu.Unlock()
	return c, nil
}

// referencedFields returns the declared variables an expression reads, sorted.
func referencedFields(ast *cel.Ast) []string {
	seen := make(map[string]bool)
	for _, ref := range ast.NativeRep().ReferenceMap() {
		if ref.Name != "" && len(ref.OverloadIDs) == 0 && declaredFields[ref.Name] {
			seen[ref.Name] = true
		}
	}
	fields := make([]string, 0, len(seen))
	for name := range seen {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// CompiledCount returns the number of cached programs.
func (e *Engine) CompiledCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Reset drops every cached program.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*compiledRule)
}

func (e *Engine) ruleSetVersion(rules []domain.SchemeEligibilityRule) string {
	if v := RuleSetVersion(rules); v != "" {
		return v
	}
	return e.versionFallback
}

// RuleSetVersion returns a content hash of the ordered rule set, or "" for an
// empty set. Reordering the input does not change the hash.
func RuleSetVersion(rules []domain.SchemeEligibilityRule) string {
	if len(rules) == 0 {
		return ""
	}
	ordered := slices.Clone(rules)
	sortRules(ordered)

	h := sha256.New()
	for _, r := range ordered {
		for _, part := range []string{
			r.RuleID,
			r.Version,
			string(r.RuleType),
			strconv.FormatBool(r.Mandatory()),
			strconv.Itoa(r.Priority),
			strconv.FormatFloat(r.Weight, 'g', -1, 64),
			r.Expression,
		} {
			h.Write([]byte(part))
			h.Write([]byte{0})
		}
	}
	return "rs-" + hex.EncodeToString(h.Sum(nil))[:12]
}

// sortRules orders rules by priority DESC, rule_id ASC.
func sortRules(rules []domain.SchemeEligibilityRule) {
	slices.SortStableFunc(rules, func(a, b domain.SchemeEligibilityRule) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.RuleID, b.RuleID)
	})
}

func ruleName(r *domain.SchemeEligibilityRule) string {
	if r.Name != "" {
		return r.Name
	}
	return r.RuleID
}
