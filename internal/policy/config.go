package policy

// PolicyConfig is the optional policy file (--policy). It tunes a ruleset
// for one organisation without editing the rule files.
//
//	version: 1
//	min_severity: medium
//	suppress: [ec2-instance-public-ip]
//	services:
//	  rds: {enabled: false}
//	rules:
//	  iam-user-inline-policy: {severity: high}
//	  s3-no-access-logging: {enabled: false}
//	enforcement:
//	  fail_on_severity: high
type PolicyConfig struct {
	Version     int                      `yaml:"version"`
	MinSeverity string                   `yaml:"min_severity,omitempty"`
	Suppress    []string                 `yaml:"suppress,omitempty"`
	Services    map[string]ServiceConfig `yaml:"services,omitempty"`
	Rules       map[string]RuleConfig    `yaml:"rules,omitempty"`
	Enforcement EnforcementConfig        `yaml:"enforcement,omitempty"`
}

type ServiceConfig struct {
	Enabled bool `yaml:"enabled"`
}

type RuleConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Severity string `yaml:"severity,omitempty"`
}

// EnforcementConfig makes the audit command exit non-zero when a finding at
// or above FailOnSeverity remains in the report.
type EnforcementConfig struct {
	FailOnSeverity string `yaml:"fail_on_severity,omitempty"`
}
