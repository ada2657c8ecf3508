package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
)

// RenderSummary writes the report header and severity totals to w.
//
// Example output:
//
//	Report scout-1718000000 (ruleset default, environment prod)
//	Account 123456789012 via profile audit
//	Services analyzed: cloudtrail, iam, ec2
//
//	Findings: 7  (CRITICAL 1  HIGH 2  MEDIUM 3  LOW 1  INFO 0)
//	Suppressed by correlation: 2
//	Filtered out: 4
//
//	Skipped correlations:
//	  - trail-instance-coverage (missing: cloudtrail)
func RenderSummary(w io.Writer, rep *models.Report, colored bool) {
	fmt.Fprintf(w, "Report %s (ruleset %s", rep.ReportID, rep.Ruleset)
	if rep.Environment != "" {
		fmt.Fprintf(w, ", environment %s", rep.Environment)
	}
	fmt.Fprintln(w, ")")
	if rep.AccountID != "" {
		fmt.Fprintf(w, "Account %s", rep.AccountID)
		if rep.Profile != "" {
			fmt.Fprintf(w, " via profile %s", rep.Profile)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Services analyzed: %s\n", strings.Join(rep.ServicesAnalyzed, ", "))
	fmt.Fprintln(w)

	c := rep.Summary.Counts
	fmt.Fprintf(w, "Findings: %d  (%s %d  %s %d  %s %d  %s %d  %s %d)\n",
		rep.Summary.TotalFindings,
		ColorSeverity(models.SeverityCritical, colored), c.Critical,
		ColorSeverity(models.SeverityHigh, colored), c.High,
		ColorSeverity(models.SeverityMedium, colored), c.Medium,
		ColorSeverity(models.SeverityLow, colored), c.Low,
		ColorSeverity(models.SeverityInfo, colored), c.Info,
	)
	if rep.Summary.Suppressed > 0 {
		fmt.Fprintf(w, "Suppressed by correlation: %d\n", rep.Summary.Suppressed)
	}
	if rep.Summary.Filtered > 0 {
		fmt.Fprintf(w, "Filtered out: %d\n", rep.Summary.Filtered)
	}

	if len(rep.SkippedCorrelations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Skipped correlations:")
		for _, s := range rep.SkippedCorrelations {
			fmt.Fprintf(w, "  - %s (missing: %s)\n", s.Correlation, strings.Join(s.Missing, ", "))
		}
	}
}

// RenderFacts writes the correlation facts of the report grouped by kind.
// Kinds are sorted for stable output; facts keep report order within a kind.
//
// Example output:
//
//	Correlations (2):
//
//	  ✓ instance-role
//	    - i-0abc → arn:aws:iam::123456789012:role/app
func RenderFacts(w io.Writer, rep *models.Report) {
	if len(rep.Facts) == 0 {
		return
	}
	byKind := make(map[string][]models.CorrelationFact)
	var kinds []string
	for _, f := range rep.Facts {
		if _, seen := byKind[f.Kind]; !seen {
			kinds = append(kinds, f.Kind)
		}
		byKind[f.Kind] = append(byKind[f.Kind], f)
	}
	sort.Strings(kinds)

	fmt.Fprintf(w, "Correlations (%d):\n", len(rep.Facts))
	for _, kind := range kinds {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  ✓ %s\n", kind)
		for _, f := range byKind[kind] {
			fmt.Fprintf(w, "    - %s → %s\n", f.From.ID, f.To.ID)
		}
	}
}
