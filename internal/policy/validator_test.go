package policy_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/policy"
)

// Rule IDs a ruleset would offer; not tied to the embedded default.
var knownRules = []string{"iam-unused-role", "s3-versioning-disabled", "ec2-instance-public-ip"}

func boolPtr(b bool) *bool { return &b }

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  *policy.PolicyConfig
		// substrings expected in the errors, one per error, in any order
		want []string
	}{
		{
			name: "version only",
			cfg:  &policy.PolicyConfig{Version: 1},
		},
		{
			name: "every section set",
			cfg: &policy.PolicyConfig{
				Version:     1,
				MinSeverity: "medium",
				Suppress:    []string{"ec2-instance-public-ip"},
				Services: map[string]policy.ServiceConfig{
					"iam": {Enabled: true},
					"RDS": {Enabled: false},
				},
				Rules: map[string]policy.RuleConfig{
					"iam-unused-role":        {Enabled: boolPtr(false)},
					"s3-versioning-disabled": {Severity: "low"},
					"ec2-instance-public-ip": {Severity: "CRITICAL"},
				},
				Enforcement: policy.EnforcementConfig{FailOnSeverity: "high"},
			},
		},
		{
			name: "empty rule severity keeps the rule's own",
			cfg: &policy.PolicyConfig{
				Version: 1,
				Rules:   map[string]policy.RuleConfig{"iam-unused-role": {Severity: ""}},
			},
		},
		{
			name: "unsupported version",
			cfg:  &policy.PolicyConfig{Version: 2},
			want: []string{"version"},
		},
		{
			name: "missing version",
			cfg:  &policy.PolicyConfig{},
			want: []string{"version"},
		},
		{
			name: "unknown service",
			cfg: &policy.PolicyConfig{
				Version:  1,
				Services: map[string]policy.ServiceConfig{"lambda": {Enabled: true}},
			},
			want: []string{"services.lambda"},
		},
		{
			name: "bad min_severity",
			cfg:  &policy.PolicyConfig{Version: 1, MinSeverity: "severe"},
			want: []string{"min_severity"},
		},
		{
			name: "unknown suppressed rule",
			cfg:  &policy.PolicyConfig{Version: 1, Suppress: []string{"iam-unused-role", "rule-z"}},
			want: []string{"suppress[1]"},
		},
		{
			name: "unknown rule",
			cfg: &policy.PolicyConfig{
				Version: 1,
				Rules:   map[string]policy.RuleConfig{"rule-does-not-exist": {Severity: "low"}},
			},
			want: []string{"rules.rule-does-not-exist"},
		},
		{
			name: "bad rule severity",
			cfg: &policy.PolicyConfig{
				Version: 1,
				Rules:   map[string]policy.RuleConfig{"iam-unused-role": {Severity: "urgent"}},
			},
			want: []string{"rules.iam-unused-role.severity"},
		},
		{
			name: "bad fail_on_severity",
			cfg: &policy.PolicyConfig{
				Version:     1,
				Enforcement: policy.EnforcementConfig{FailOnSeverity: "blocker"},
			},
			want: []string{"enforcement.fail_on_severity"},
		},
		{
			name: "errors are aggregated",
			cfg: &policy.PolicyConfig{
				Version:     2,
				MinSeverity: "notavalue",
				Services:    map[string]policy.ServiceConfig{"lambda": {}},
				Rules:       map[string]policy.RuleConfig{"unknown-rule": {Severity: "blocker"}},
			},
			want: []string{"version", "min_severity", "services.lambda", "rules.unknown-rule", "rules.unknown-rule.severity"},
		},
		{
			name: "nil config",
			want: []string{"nil"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			errs := policy.Validate(tc.cfg, knownRules)
			require.Len(t, errs, len(tc.want), "errors: %v", errs)

			msgs := make([]string, len(errs))
			for i, err := range errs {
				msgs[i] = err.Error()
			}
			for _, w := range tc.want {
				assert.True(t, anyContains(msgs, w), "no error mentions %q in %v", w, msgs)
			}
		})
	}
}

func TestValidate_SeverityIsCaseInsensitive(t *testing.T) {
	for _, level := range []string{"critical", "high", "medium", "low", "info"} {
		for _, sev := range []string{level, strings.ToUpper(level), strings.ToUpper(level[:1]) + level[1:]} {
			cfg := &policy.PolicyConfig{
				Version: 1,
				Rules:   map[string]policy.RuleConfig{"iam-unused-role": {Severity: sev}},
			}
			assert.Empty(t, policy.Validate(cfg, knownRules), sev)
		}
	}
}

func TestValidate_EveryServiceAccepted(t *testing.T) {
	for _, svc := range []string{"cloudtrail", "iam", "ec2", "rds", "s3"} {
		cfg := &policy.PolicyConfig{
			Version:  1,
			Services: map[string]policy.ServiceConfig{svc: {Enabled: true}},
		}
		assert.Empty(t, policy.Validate(cfg, knownRules), svc)
	}
}

func anyContains(msgs []string, sub string) bool {
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}
