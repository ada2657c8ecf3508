package output_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/output"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func renderToString(findings []models.Finding, opts output.TableOptions) string {
	var buf bytes.Buffer
	output.RenderTable(&buf, reportOf(findings...), opts)
	return buf.String()
}

func reportOf(findings ...models.Finding) *models.Report {
	rep := &models.Report{ReportID: "scout-1", Ruleset: "default"}
	var g *models.ServiceGroup
	for _, f := range findings {
		if g == nil || g.Service != f.Service {
			rep.Groups = append(rep.Groups, models.ServiceGroup{Service: f.Service})
			g = &rep.Groups[len(rep.Groups)-1]
		}
		g.Findings = append(g.Findings, f)
		g.Counts.Add(f.Severity)
		rep.Summary.Counts.Add(f.Severity)
		rep.Summary.TotalFindings++
	}
	return rep
}

func oneFinding(overrides ...func(*models.Finding)) models.Finding {
	f := models.Finding{
		RuleID:      "iam-unused-role",
		Service:     "iam",
		Path:        "IAM.Roles[0]",
		Severity:    models.SeverityHigh,
		Description: "Role is not attached to any running instance.",
		Remediation: "Delete the role.",
	}
	for _, fn := range overrides {
		fn(&f)
	}
	return f
}

// ── columns ───────────────────────────────────────────────────────────────────

func TestRenderTable_BaseColumns(t *testing.T) {
	out := renderToString([]models.Finding{oneFinding()}, output.TableOptions{})
	for _, col := range []string{"SERVICE", "SEVERITY", "RULE", "PATH", "DESCRIPTION"} {
		if !strings.Contains(out, col) {
			t.Errorf("expected column %q\ngot:\n%s", col, out)
		}
	}
	for _, v := range []string{"iam", "HIGH", "iam-unused-role", "IAM.Roles[0]"} {
		if !strings.Contains(out, v) {
			t.Errorf("expected value %q\ngot:\n%s", v, out)
		}
	}
	if strings.Contains(out, "REMEDIATION") {
		t.Errorf("REMEDIATION column must not appear by default\ngot:\n%s", out)
	}
}

func TestRenderTable_RemediationColumn_WhenEnabled(t *testing.T) {
	out := renderToString([]models.Finding{oneFinding()}, output.TableOptions{IncludeRemediation: true})
	if !strings.Contains(out, "REMEDIATION") || !strings.Contains(out, "Delete the role.") {
		t.Errorf("expected remediation column and value\ngot:\n%s", out)
	}
}

func TestRenderTable_ReportOrderKept(t *testing.T) {
	out := renderToString([]models.Finding{
		oneFinding(func(f *models.Finding) { f.Service = "cloudtrail"; f.RuleID = "cloudtrail-not-logging" }),
		oneFinding(),
	}, output.TableOptions{})

	if strings.Index(out, "cloudtrail-not-logging") > strings.Index(out, "iam-unused-role") {
		t.Errorf("rows must follow report order\ngot:\n%s", out)
	}
}

func TestRenderTable_LongPathKeepsTail(t *testing.T) {
	path := "S3.Buckets[12].Settings.PublicAccessBlock.BlockPublicPolicy"
	out := renderToString([]models.Finding{oneFinding(func(f *models.Finding) { f.Path = path })}, output.TableOptions{})
	if strings.Contains(out, path) {
		t.Errorf("long path must be truncated\ngot:\n%s", out)
	}
	if !strings.Contains(out, "BlockPublicPolicy") {
		t.Errorf("truncated path must keep its tail\ngot:\n%s", out)
	}
}

// ── message shortening ────────────────────────────────────────────────────────

func TestRenderTable_MessageIsTruncatedWhenTooLong(t *testing.T) {
	long := strings.Repeat("x", 100)
	f := oneFinding(func(f *models.Finding) { f.Description = long })
	out := renderToString([]models.Finding{f}, output.TableOptions{})

	if strings.Contains(out, long) {
		t.Errorf("full 100-char message must not appear verbatim in output\ngot:\n%s", out)
	}
	if !strings.Contains(out, "...") {
		t.Errorf("truncated message must end with ellipsis\ngot:\n%s", out)
	}
}

func TestRenderTable_ShortMessageIsNotTruncated(t *testing.T) {
	short := "Short description."
	f := oneFinding(func(f *models.Finding) { f.Description = short })
	out := renderToString([]models.Finding{f}, output.TableOptions{})

	if !strings.Contains(out, short) {
		t.Errorf("short message must appear verbatim\ngot:\n%s", out)
	}
}

// ── empty findings ────────────────────────────────────────────────────────────

func TestRenderTable_EmptyFindings_PrintsNoFindings(t *testing.T) {
	out := renderToString(nil, output.TableOptions{})
	if !strings.Contains(out, "No findings.") {
		t.Errorf("expected 'No findings.' for empty report\ngot:\n%s", out)
	}
	if strings.Contains(out, "SEVERITY") {
		t.Errorf("column headers must not appear for empty findings\ngot:\n%s", out)
	}
}

// ── color mode ────────────────────────────────────────────────────────────────

func TestRenderTable_ColoredFalse_NoAnsiCodes(t *testing.T) {
	out := renderToString([]models.Finding{oneFinding()}, output.TableOptions{Colored: false})
	if strings.Contains(out, "\033[") {
		t.Errorf("no ANSI codes must appear when Colored=false\ngot (hex): %q", out)
	}
}

func TestRenderTable_ColoredTrue_HasAnsiCodes(t *testing.T) {
	out := renderToString([]models.Finding{oneFinding()}, output.TableOptions{Colored: true})
	if !strings.Contains(out, "\033[") {
		t.Errorf("ANSI codes expected when Colored=true\ngot:\n%s", out)
	}
}

func TestColorSeverity_InfoUncolored(t *testing.T) {
	if got := output.ColorSeverity(models.SeverityInfo, true); got != "INFO" {
		t.Errorf("got %q; want plain INFO", got)
	}
}

// ── ShortenMessage unit tests ─────────────────────────────────────────────────

func TestShortenMessage_ShortString_Unchanged(t *testing.T) {
	s := "hello"
	if got := output.ShortenMessage(s, 80); got != s {
		t.Errorf("got %q; want %q", got, s)
	}
}

func TestShortenMessage_ExactLength_Unchanged(t *testing.T) {
	s := strings.Repeat("a", 80)
	if got := output.ShortenMessage(s, 80); got != s {
		t.Errorf("string of exact max length must not be truncated")
	}
}

func TestShortenMessage_TooLong_TruncatedWithEllipsis(t *testing.T) {
	got := output.ShortenMessage(strings.Repeat("a", 100), 80)
	if len([]rune(got)) != 80 {
		t.Errorf("truncated string should be 80 runes, got %d", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated string must end with '...', got %q", got)
	}
}

func TestShortenMessage_VerySmallMax_DoesNotPanic(t *testing.T) {
	// max < 4 is treated as 4
	if got := output.ShortenMessage("hello world", 2); got != "h..." {
		t.Errorf("got %q; want %q", got, "h...")
	}
}
