package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
)

// ANSI color codes for severity output (used when Colored=true).
const (
	ansiReset   = "\033[0m"
	ansiBoldRed = "\033[1;31m"
	ansiRed     = "\033[0;31m"
	ansiYellow  = "\033[0;33m"
	ansiBlue    = "\033[0;34m"
)

// TableOptions controls which columns RenderTable renders and how severity is coloured.
type TableOptions struct {
	// Colored wraps severity labels with ANSI codes. Default false (CI-safe).
	Colored bool

	// IncludeRemediation adds a REMEDIATION column.
	IncludeRemediation bool

	// MessageWidth caps the DESCRIPTION column. Zero means 55.
	MessageWidth int
}

// ColorSeverity wraps a severity string with ANSI codes when colored is true.
// When colored is false the string is returned unchanged (CI-safe default).
func ColorSeverity(sev models.Severity, colored bool) string {
	code := severityColor(sev)
	if !colored || code == "" {
		return string(sev)
	}
	return code + string(sev) + ansiReset
}

func severityColor(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical:
		return ansiBoldRed
	case models.SeverityHigh:
		return ansiRed
	case models.SeverityMedium:
		return ansiYellow
	case models.SeverityLow:
		return ansiBlue
	default:
		return ""
	}
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// severityCell returns the severity padded to width characters.
// When colored, ANSI codes wrap only the text; trailing padding spaces are plain
// so subsequent columns stay aligned.
func severityCell(sev models.Severity, width int, colored bool) string {
	text := string(sev)
	code := severityColor(sev)
	if !colored || code == "" {
		return fmt.Sprintf("%-*s", width, text)
	}
	spaces := width - len(text)
	if spaces < 0 {
		spaces = 0
	}
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// truncateField shortens s to at most max runes for ID/path columns,
// keeping the tail, which is the part that tells resources apart.
func truncateField(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return "…" + string(runes[len(runes)-max+1:])
}

// RenderTable writes the report findings as a table to w, in report order.
// The separator line width is derived from the header row.
//
// Column order:
//
//	SERVICE  SEVERITY  RULE  PATH  DESCRIPTION  [REMEDIATION]
func RenderTable(w io.Writer, rep *models.Report, opts TableOptions) {
	findings := rep.Findings()
	if len(findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}

	wMessage := opts.MessageWidth
	if wMessage <= 0 {
		wMessage = 55
	}
	const (
		wService  = 10
		wSeverity = 10
		wRule     = 34
		wPath     = 40
	)

	var hb strings.Builder
	hb.WriteString(fmt.Sprintf("%-*s", wService, "SERVICE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wSeverity, "SEVERITY"))
	hb.WriteString(fmt.Sprintf("  %-*s", wRule, "RULE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wPath, "PATH"))
	hb.WriteString(fmt.Sprintf("  %-*s", wMessage, "DESCRIPTION"))
	if opts.IncludeRemediation {
		hb.WriteString("  REMEDIATION")
	}
	header := strings.TrimRight(hb.String(), " ")

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, f := range findings {
		var rb strings.Builder
		rb.WriteString(fmt.Sprintf("%-*s", wService, f.Service))
		rb.WriteString("  " + severityCell(f.Severity, wSeverity, opts.Colored))
		rb.WriteString(fmt.Sprintf("  %-*s", wRule, truncateField(f.RuleID, wRule)))
		rb.WriteString(fmt.Sprintf("  %-*s", wPath, truncateField(f.Path, wPath)))
		rb.WriteString(fmt.Sprintf("  %-*s", wMessage, ShortenMessage(f.Description, wMessage)))
		if opts.IncludeRemediation {
			rb.WriteString("  " + f.Remediation)
		}
		fmt.Fprintln(w, strings.TrimRight(rb.String(), " "))
	}
}
