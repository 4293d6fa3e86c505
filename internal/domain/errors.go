package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers can
// branch with errors.Is.
var (
	ErrNotFound             = errors.New("record not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrDataUnavailable      = errors.New("data unavailable")
	ErrRuleEvaluation       = errors.New("rule evaluation failed")
	ErrMissingField         = errors.New("missing field")
	ErrPersistence          = errors.New("persistence failed")
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrNoActiveRules        = errors.New("no active rules for scheme")
	ErrModelUnavailable     = errors.New("ml model unavailable")
)

// MissingFieldError reports a rule that references a field absent from the
// family record.
type MissingFieldError struct {
	RuleID string
	Field  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("rule %s: field %q not present in family record", e.RuleID, e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// RuleEvaluationError wraps a failure evaluating a single rule expression.
type RuleEvaluationError struct {
	RuleID string
	Cause  error
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleID, e.Cause)
}

func (e *RuleEvaluationError) Unwrap() []error { return []error{ErrRuleEvaluation, e.Cause} }

// PersistenceError wraps a failed write. The write was rolled back.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Cause} }

// DataUnavailableError reports a family or scheme record that could not be loaded.
type DataUnavailableError struct {
	Entity string
	ID     string
	Cause  error
}

func (e *DataUnavailableError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s %s unavailable", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s %s unavailable: %v", e.Entity, e.ID, e.Cause)
}

func (e *DataUnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrDataUnavailable}
	}
	return []error{ErrDataUnavailable, e.Cause}
}
