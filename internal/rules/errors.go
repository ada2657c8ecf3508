package rules

import "fmt"

// RuleDefinitionError reports a malformed rule found while loading a
// ruleset. A ruleset containing one cannot be used.
type RuleDefinitionError struct {
	RuleID string
	// File is the ruleset file the rule came from, when known.
	File   string
	Field  string
	Reason string
}

func (e *RuleDefinitionError) Error() string {
	id := e.RuleID
	if id == "" {
		id = "<unnamed>"
	}
	if e.File != "" {
		return fmt.Sprintf("rule %s (%s): field %q: %s", id, e.File, e.Field, e.Reason)
	}
	return fmt.Sprintf("rule %s: field %q: %s", id, e.Field, e.Reason)
}

// RuleEvaluationError reports a condition that could not be evaluated
// against one node, for example an ordering comparison against a
// non-numeric string. The node is skipped; the run continues.
type RuleEvaluationError struct {
	RuleID string
	Path   string
	Err    error
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("rule %s at %s: %v", e.RuleID, e.Path, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error { return e.Err }
