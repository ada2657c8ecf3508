package models

import (
	"sort"
	"time"
)

// Finding is one rule violation tied to a specific resource path.
// Findings are values: the tree they were produced from can be discarded
// without invalidating them. Once created they are never modified; the
// correlation pass and the aggregator work on copies.
type Finding struct {
	RuleID      string         `json:"rule_id"`
	Service     string         `json:"service"`
	Path        string         `json:"path"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description,omitempty"`
	Remediation string         `json:"remediation,omitempty"`
	Items       []string       `json:"items,omitempty"`
	Derived     bool           `json:"derived,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// Key identifies a finding within a run. A rule fires at most once per path.
func (f Finding) Key() string { return f.RuleID + "@" + f.Path }

// WithContext returns a copy of f whose Context holds the union of f.Context
// and extra. Keys already present in f.Context are not overwritten.
func (f Finding) WithContext(extra map[string]any) Finding {
	if len(extra) == 0 {
		return f
	}
	ctx := make(map[string]any, len(f.Context)+len(extra))
	for k, v := range f.Context {
		ctx[k] = v
	}
	for k, v := range extra {
		if _, set := ctx[k]; !set {
			ctx[k] = v
		}
	}
	f.Context = ctx
	f.Items = append([]string(nil), f.Items...)
	return f
}

// EntityRef points at one resource inside one service snapshot.
type EntityRef struct {
	Service string `json:"service"`
	Path    string `json:"path"`
	ID      string `json:"id"`
}

// CorrelationFact is a derived relationship between entities of two
// independently fetched snapshots, e.g. "role R is attached to instance I".
type CorrelationFact struct {
	Kind    string    `json:"kind"`
	From    EntityRef `json:"from"`
	To      EntityRef `json:"to"`
	JoinKey string    `json:"join_key"`
}

// Suppression marks a finding as non-applicable given a correlation.
type Suppression struct {
	FindingKey  string `json:"finding_key"`
	Correlation string `json:"correlation"`
	Reason      string `json:"reason"`
}

// Annotation attaches related-resource context to a finding and may
// override its severity.
type Annotation struct {
	FindingKey  string         `json:"finding_key"`
	Correlation string         `json:"correlation"`
	Context     map[string]any `json:"context,omitempty"`
	Severity    Severity       `json:"severity,omitempty"`
}

// SkippedCorrelation records a correlation rule that could not run because
// a snapshot it depends on was not analyzed in this run.
type SkippedCorrelation struct {
	Correlation string   `json:"correlation"`
	Missing     []string `json:"missing"`
}

// CorrelationResults is the merged output of every correlation rule in a run.
type CorrelationResults struct {
	Facts        []CorrelationFact    `json:"facts,omitempty"`
	Suppressions []Suppression        `json:"suppressions,omitempty"`
	Annotations  []Annotation         `json:"annotations,omitempty"`
	Derived      []Finding            `json:"derived,omitempty"`
	Skipped      []SkippedCorrelation `json:"skipped,omitempty"`
}

// Merge appends other into r. Suppressions are deduplicated by finding key
// so merging the same result twice leaves the suppressed set unchanged.
func (r *CorrelationResults) Merge(other CorrelationResults) {
	r.Facts = append(r.Facts, other.Facts...)
	r.Annotations = append(r.Annotations, other.Annotations...)
	r.Derived = append(r.Derived, other.Derived...)
	r.Skipped = append(r.Skipped, other.Skipped...)

	seen := make(map[string]struct{}, len(r.Suppressions))
	for _, s := range r.Suppressions {
		seen[s.FindingKey] = struct{}{}
	}
	for _, s := range other.Suppressions {
		if _, dup := seen[s.FindingKey]; dup {
			continue
		}
		seen[s.FindingKey] = struct{}{}
		r.Suppressions = append(r.Suppressions, s)
	}
}

// SuppressedKeys returns the set of finding keys suppressed by correlation.
func (r CorrelationResults) SuppressedKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(r.Suppressions))
	for _, s := range r.Suppressions {
		keys[s.FindingKey] = struct{}{}
	}
	return keys
}

// SeverityCounts counts findings per severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Add increments the counter for sev.
func (c *SeverityCounts) Add(sev Severity) {
	switch sev {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	case SeverityInfo:
		c.Info++
	}
}

// Total returns the sum across all severities.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Info
}

// ServiceGroup holds the findings of one service, ordered by severity
// (descending), rule ID and path.
type ServiceGroup struct {
	Service  string         `json:"service"`
	Counts   SeverityCounts `json:"counts"`
	Findings []Finding      `json:"findings"`
}

// ReportSummary aggregates counts across the whole report.
type ReportSummary struct {
	TotalFindings int            `json:"total_findings"`
	Counts        SeverityCounts `json:"counts"`
	// Suppressed counts findings removed by correlation.
	Suppressed int `json:"suppressed"`
	// Filtered counts findings removed by the filtering configuration.
	Filtered int `json:"filtered"`
}

// Report is the final output of an audit run. It is built once and never
// modified after it is returned to the caller.
type Report struct {
	ReportID            string               `json:"report_id"`
	GeneratedAt         time.Time            `json:"generated_at"`
	Ruleset             string               `json:"ruleset"`
	Environment         string               `json:"environment,omitempty"`
	AccountID           string               `json:"account_id,omitempty"`
	Profile             string               `json:"profile,omitempty"`
	ServicesAnalyzed    []string             `json:"services_analyzed"`
	SkippedCorrelations []SkippedCorrelation `json:"skipped_correlations,omitempty"`
	Summary             ReportSummary        `json:"summary"`
	Groups              []ServiceGroup       `json:"groups"`
	Facts               []CorrelationFact    `json:"facts,omitempty"`
}

// Findings returns every finding in report order.
func (r *Report) Findings() []Finding {
	var all []Finding
	for _, g := range r.Groups {
		all = append(all, g.Findings...)
	}
	return all
}

// RuleIDs returns the sorted set of rule IDs present in the report.
func (r *Report) RuleIDs() []string {
	seen := make(map[string]struct{})
	for _, g := range r.Groups {
		for _, f := range g.Findings {
			seen[f.RuleID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
