package policy

import (
	"fmt"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
)

const severityHint = "valid values: CRITICAL, HIGH, MEDIUM, LOW, INFO"

// Validate checks cfg for semantic correctness and returns all validation errors
// found. An empty slice means the config is valid.
//
// Checks performed:
//   - version must be 1
//   - min_severity and enforcement.fail_on_severity must be valid severities if set
//   - service names must be known services
//   - suppressed and configured rule IDs must appear in availableRuleIDs
//   - rule severity overrides must be valid severities if set
//
// All errors are collected before returning; Validate never stops at the first error.
func Validate(cfg *PolicyConfig, availableRuleIDs []string) []error {
	if cfg == nil {
		return []error{fmt.Errorf("policy config is nil")}
	}

	knownIDs := make(map[string]struct{}, len(availableRuleIDs))
	for _, id := range availableRuleIDs {
		knownIDs[id] = struct{}{}
	}

	var errs []error
	checkSeverity := func(field, v string) {
		if v == "" {
			return
		}
		if _, err := models.ParseSeverity(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid value %q; %s", field, v, severityHint))
		}
	}

	if cfg.Version != 1 {
		errs = append(errs, fmt.Errorf("version: unsupported value %d; must be 1", cfg.Version))
	}
	checkSeverity("min_severity", cfg.MinSeverity)

	for i, id := range cfg.Suppress {
		if _, ok := knownIDs[id]; !ok {
			errs = append(errs, fmt.Errorf("suppress[%d]: unknown rule ID %q", i, id))
		}
	}

	for name := range cfg.Services {
		if _, err := snapshot.ParseService(name); err != nil {
			errs = append(errs, fmt.Errorf("services.%s: unknown service; valid values: %v", name, snapshot.Names()))
		}
	}

	for ruleID, rcfg := range cfg.Rules {
		if _, ok := knownIDs[ruleID]; !ok {
			errs = append(errs, fmt.Errorf("rules.%s: unknown rule ID", ruleID))
		}
		checkSeverity("rules."+ruleID+".severity", rcfg.Severity)
	}

	checkSeverity("enforcement.fail_on_severity", cfg.Enforcement.FailOnSeverity)
	return errs
}
