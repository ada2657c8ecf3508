package rules

import (
	"strings"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// Rule is one declarative check. It targets every node matched by Pattern
// inside a service snapshot and reports a finding wherever Condition holds.
// Rules are built by the loader and must not be modified afterwards; use
// WithSeverity to derive a variant.
type Rule struct {
	// ID is the unique, stable identifier (e.g. "iam-unused-role").
	ID string

	// Service is the snapshot the rule reads.
	Service snapshot.Service

	// Path is the target pattern as written, e.g. "IAM.Roles[*]".
	Path    string
	Pattern tree.Pattern

	Severity    models.Severity
	Description string
	Remediation string
	Condition   Condition

	// Items select, relative to the matched node, the values reported in a
	// finding. When empty the finding reports the matched path.
	Items []tree.Pattern

	// Source is the ruleset file the rule was read from.
	Source string
}

// WithSeverity returns a copy of r reporting at sev.
func (r *Rule) WithSeverity(sev models.Severity) *Rule {
	cp := *r
	cp.Severity = sev
	return &cp
}

// Evaluate applies the rule to every node its pattern matches under root,
// in match order. A node whose condition cannot be evaluated is skipped and
// reported as a *RuleEvaluationError. Evaluate is safe for concurrent use.
func (r *Rule) Evaluate(root *tree.Node, env Env) ([]models.Finding, []error) {
	var findings []models.Finding
	var errs []error
	for _, m := range tree.MatchAll(root, r.Pattern) {
		at := m.Path.String()
		violated, err := r.Condition.Eval(m.Node, env)
		if err != nil {
			errs = append(errs, &RuleEvaluationError{RuleID: r.ID, Path: at, Err: err})
			continue
		}
		if !violated {
			continue
		}
		findings = append(findings, models.Finding{
			RuleID:      r.ID,
			Service:     string(r.Service),
			Path:        at,
			Severity:    r.Severity,
			Description: r.Description,
			Remediation: r.Remediation,
			Items:       r.items(m),
		})
	}
	return findings, errs
}

func (r *Rule) items(m tree.Match) []string {
	if len(r.Items) == 0 {
		return []string{m.Path.String()}
	}
	var out []string
	for _, p := range r.Items {
		for _, sub := range tree.MatchAll(m.Node, p) {
			out = append(out, itemText(sub.Node))
		}
	}
	return out
}

func itemText(n *tree.Node) string {
	if n.IsLeaf() {
		return n.Text()
	}
	b, err := n.MarshalJSON()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
