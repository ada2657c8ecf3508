package policy

import (
	"testing"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
)

func reportWith(sevs ...models.Severity) *models.Report {
	g := models.ServiceGroup{Service: "iam"}
	for _, s := range sevs {
		g.Findings = append(g.Findings, models.Finding{RuleID: "rule", Severity: s})
	}
	return &models.Report{Groups: []models.ServiceGroup{g}}
}

func failOn(sev string) *PolicyConfig {
	return &PolicyConfig{Version: 1, Enforcement: EnforcementConfig{FailOnSeverity: sev}}
}

func TestShouldFail_NilConfig(t *testing.T) {
	if ShouldFail(reportWith(models.SeverityCritical), nil) {
		t.Error("nil cfg must return false")
	}
}

func TestShouldFail_NoEnforcementBlock(t *testing.T) {
	if ShouldFail(reportWith(models.SeverityCritical), &PolicyConfig{Version: 1}) {
		t.Error("absent enforcement block must return false")
	}
}

func TestShouldFail_NoFindings(t *testing.T) {
	if ShouldFail(reportWith(), failOn("LOW")) {
		t.Error("empty report must return false")
	}
}

func TestShouldFail_InvalidSeverityIgnored(t *testing.T) {
	if ShouldFail(reportWith(models.SeverityCritical), failOn("blocker")) {
		t.Error("unrecognised fail_on_severity must return false")
	}
}

func TestShouldFail_Thresholds(t *testing.T) {
	cases := []struct {
		threshold string
		findings  []models.Severity
		want      bool
	}{
		{"HIGH", []models.Severity{models.SeverityHigh}, true},
		{"high", []models.Severity{models.SeverityCritical}, true},
		{"HIGH", []models.Severity{models.SeverityMedium}, false},
		{"CRITICAL", []models.Severity{models.SeverityHigh}, false},
		{"CRITICAL", []models.Severity{models.SeverityCritical}, true},
		{"MEDIUM", []models.Severity{models.SeverityLow, models.SeverityInfo, models.SeverityMedium}, true},
		{"MEDIUM", []models.Severity{models.SeverityLow, models.SeverityInfo}, false},
	}
	for _, tc := range cases {
		got := ShouldFail(reportWith(tc.findings...), failOn(tc.threshold))
		if got != tc.want {
			t.Errorf("threshold %s, findings %v: got %v, want %v", tc.threshold, tc.findings, got, tc.want)
		}
	}
}
