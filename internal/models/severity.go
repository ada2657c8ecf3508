package models

import (
	"fmt"
	"strings"
)

// Severity represents the impact level of a finding.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// severityRank orders severities from least to most important.
// Unknown values rank below SeverityInfo.
var severityRank = map[Severity]int{
	SeverityInfo:     1,
	SeverityLow:      2,
	SeverityMedium:   3,
	SeverityHigh:     4,
	SeverityCritical: 5,
}

// Severities lists every recognised severity, most important first.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInfo,
}

// Rank returns the ordinal of s: INFO=1 ... CRITICAL=5, 0 when unrecognised.
func (s Severity) Rank() int { return severityRank[s] }

// Valid reports whether s is one of the recognised severities.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool { return s.Rank() >= min.Rank() }

// ParseSeverity accepts any case and the long form "informational".
func ParseSeverity(v string) (Severity, error) {
	upper := strings.ToUpper(strings.TrimSpace(v))
	if upper == "INFORMATIONAL" {
		upper = string(SeverityInfo)
	}
	s := Severity(upper)
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q; valid values: CRITICAL, HIGH, MEDIUM, LOW, INFO", v)
	}
	return s, nil
}
