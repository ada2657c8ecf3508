package policy

import (
	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
)

// ShouldFail reports whether the report holds a finding with a severity at
// or above the configured enforcement.fail_on_severity.
//
// It returns false when:
//   - cfg is nil (no policy loaded)
//   - fail_on_severity is empty or an unrecognised value
//   - the report has no findings
//
// Findings removed by correlation or filtering are no longer in the report
// and never cause a failure.
func ShouldFail(rep *models.Report, cfg *PolicyConfig) bool {
	if cfg == nil || rep == nil || cfg.Enforcement.FailOnSeverity == "" {
		return false
	}
	threshold, err := models.ParseSeverity(cfg.Enforcement.FailOnSeverity)
	if err != nil {
		return false
	}
	for _, f := range rep.Findings() {
		if f.Severity.AtLeast(threshold) {
			return true
		}
	}
	return false
}
