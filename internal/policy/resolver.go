package policy

import (
	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/report"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/rules"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
)

// ApplyToRuleset returns the ruleset with per-rule settings applied:
// disabled rules are removed and severity overrides replace the rule's
// severity. rs itself is not modified. Invalid severities are ignored;
// Validate reports them.
func ApplyToRuleset(rs *rules.Ruleset, cfg *PolicyConfig) *rules.Ruleset {
	if cfg == nil || len(cfg.Rules) == 0 {
		return rs
	}
	return rs.Derive(func(r *rules.Rule) (*rules.Rule, bool) {
		rc, ok := cfg.Rules[r.ID]
		if !ok {
			return r, true
		}
		if rc.Enabled != nil && !*rc.Enabled {
			return nil, false
		}
		if rc.Severity != "" {
			if sev, err := models.ParseSeverity(rc.Severity); err == nil {
				return r.WithSeverity(sev), true
			}
		}
		return r, true
	})
}

// ApplyToFilter merges the policy's min_severity and suppress list into
// base. A minimum set in base wins over the policy's.
func ApplyToFilter(base report.Filter, cfg *PolicyConfig) report.Filter {
	if cfg == nil {
		return base
	}
	out := report.Filter{
		MinSeverity:     base.MinSeverity,
		SuppressedRules: append(append([]string(nil), base.SuppressedRules...), cfg.Suppress...),
	}
	if out.MinSeverity == "" && cfg.MinSeverity != "" {
		if sev, err := models.ParseSeverity(cfg.MinSeverity); err == nil {
			out.MinSeverity = sev
		}
	}
	return out
}

// EnabledServices drops services the policy disables. Services without an
// entry stay enabled.
func EnabledServices(services []snapshot.Service, cfg *PolicyConfig) []snapshot.Service {
	if cfg == nil {
		return services
	}
	disabled := make(map[snapshot.Service]bool)
	for name, sc := range cfg.Services {
		if svc, err := snapshot.ParseService(name); err == nil && !sc.Enabled {
			disabled[svc] = true
		}
	}
	var out []snapshot.Service
	for _, s := range services {
		if !disabled[s] {
			out = append(out, s)
		}
	}
	return out
}
