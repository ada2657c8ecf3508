// Package report merges per-service findings and correlation results into
// the final, deterministically ordered Report.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
)

// Filter selects which findings the report includes. Filtering never
// changes the findings themselves.
type Filter struct {
	// MinSeverity drops findings below it. Empty keeps everything.
	MinSeverity models.Severity

	// SuppressedRules drops findings of these rule IDs.
	SuppressedRules []string
}

// Metadata is copied into the report verbatim.
type Metadata struct {
	ReportID         string
	GeneratedAt      time.Time
	Ruleset          string
	Environment      string
	AccountID        string
	Profile          string
	ServicesAnalyzed []snapshot.Service
}

// Aggregate builds the report. Correlation effects are applied first:
// annotations add context and may raise severity, suppressed findings are
// removed and derived findings are added. The filter runs last, so a
// finding escalated by correlation is judged by its escalated severity.
//
// Groups follow the fixed service priority; services outside it follow in
// alphabetical order. Within a group findings are ordered by severity
// (highest first), rule ID, path and finally items, which makes the order
// total for findings with distinct keys.
func Aggregate(perService map[snapshot.Service][]models.Finding, corr models.CorrelationResults, filter Filter, meta Metadata) *models.Report {
	suppressed := corr.SuppressedKeys()
	annotations := make(map[string][]models.Annotation)
	for _, a := range corr.Annotations {
		annotations[a.FindingKey] = append(annotations[a.FindingKey], a)
	}
	dropRule := make(map[string]bool, len(filter.SuppressedRules))
	for _, id := range filter.SuppressedRules {
		dropRule[id] = true
	}

	var all []models.Finding
	for _, svc := range orderedServices(perService) {
		all = append(all, perService[svc]...)
	}
	all = append(all, corr.Derived...)

	var summary models.ReportSummary
	byService := make(map[string][]models.Finding)
	for _, f := range all {
		if _, ok := suppressed[f.Key()]; ok {
			summary.Suppressed++
			continue
		}
		f = annotate(f, annotations[f.Key()])
		if dropRule[f.RuleID] || (filter.MinSeverity != "" && !f.Severity.AtLeast(filter.MinSeverity)) {
			summary.Filtered++
			continue
		}
		byService[f.Service] = append(byService[f.Service], f)
	}

	var groups []models.ServiceGroup
	for _, svc := range groupOrder(byService) {
		findings := byService[svc]
		SortFindings(findings)
		g := models.ServiceGroup{Service: svc, Findings: findings}
		for _, f := range findings {
			g.Counts.Add(f.Severity)
			summary.Counts.Add(f.Severity)
		}
		summary.TotalFindings += len(findings)
		groups = append(groups, g)
	}

	analyzed := make([]string, len(meta.ServicesAnalyzed))
	for i, s := range meta.ServicesAnalyzed {
		analyzed[i] = string(s)
	}

	return &models.Report{
		ReportID:            meta.ReportID,
		GeneratedAt:         meta.GeneratedAt,
		Ruleset:             meta.Ruleset,
		Environment:         meta.Environment,
		AccountID:           meta.AccountID,
		Profile:             meta.Profile,
		ServicesAnalyzed:    analyzed,
		SkippedCorrelations: corr.Skipped,
		Summary:             summary,
		Groups:              groups,
		Facts:               corr.Facts,
	}
}

// annotate returns a copy of f with every annotation applied. The highest
// severity override wins; an override never lowers severity.
func annotate(f models.Finding, anns []models.Annotation) models.Finding {
	for _, a := range anns {
		f = f.WithContext(a.Context)
		if a.Severity.Valid() && a.Severity.Rank() > f.Severity.Rank() {
			f.Severity = a.Severity
		}
	}
	return f
}

// SortFindings orders findings in place: severity descending, then rule ID,
// path (see ComparePaths) and joined items ascending.
func SortFindings(findings []models.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra > rb
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		if c := ComparePaths(a.Path, b.Path); c != 0 {
			return c < 0
		}
		return strings.Join(a.Items, "\x00") < strings.Join(b.Items, "\x00")
	})
}

func orderedServices(perService map[snapshot.Service][]models.Finding) []snapshot.Service {
	keys := make(map[string]bool, len(perService))
	for s := range perService {
		keys[string(s)] = true
	}
	names := serviceOrder(keys)
	out := make([]snapshot.Service, len(names))
	for i, n := range names {
		out[i] = snapshot.Service(n)
	}
	return out
}

func groupOrder(byService map[string][]models.Finding) []string {
	keys := make(map[string]bool, len(byService))
	for s := range byService {
		keys[s] = true
	}
	return serviceOrder(keys)
}

// serviceOrder lists present in priority order, then unknown services
// alphabetically.
func serviceOrder(present map[string]bool) []string {
	var out []string
	for _, s := range snapshot.Priority {
		if present[string(s)] {
			out = append(out, string(s))
		}
	}
	var extra []string
	for s := range present {
		if snapshot.Service(s).Rank() < 0 {
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
