package rules

import (
	"fmt"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
)

// Ruleset is a named, ordered collection of rules. Rules keep the order in
// which they were loaded; that order drives finding order in evaluation.
type Ruleset struct {
	Name  string
	rules []*Rule
	index map[string]int
}

// NewRuleset returns an empty ruleset ready for rule registration.
func NewRuleset(name string) *Ruleset {
	return &Ruleset{
		Name:  name,
		index: make(map[string]int),
	}
}

// Register adds rule to the ruleset. Panics if the same ID is registered
// twice; the loader reports duplicates as definition errors instead.
func (rs *Ruleset) Register(rule *Rule) {
	if err := rs.add(rule); err != nil {
		panic(err.Error())
	}
}

func (rs *Ruleset) add(rule *Rule) error {
	if _, exists := rs.index[rule.ID]; exists {
		return fmt.Errorf("duplicate rule ID: %q", rule.ID)
	}
	rs.index[rule.ID] = len(rs.rules)
	rs.rules = append(rs.rules, rule)
	return nil
}

// All returns every rule in load order.
func (rs *Ruleset) All() []*Rule {
	return append([]*Rule(nil), rs.rules...)
}

// Len returns the number of rules.
func (rs *Ruleset) Len() int { return len(rs.rules) }

// Get returns the rule with the given ID.
func (rs *Ruleset) Get(id string) (*Rule, bool) {
	i, ok := rs.index[id]
	if !ok {
		return nil, false
	}
	return rs.rules[i], true
}

// IDs returns the rule IDs in load order.
func (rs *Ruleset) IDs() []string {
	ids := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		ids[i] = r.ID
	}
	return ids
}

// ForService returns the rules reading svc, in load order.
func (rs *Ruleset) ForService(svc snapshot.Service) []*Rule {
	var out []*Rule
	for _, r := range rs.rules {
		if r.Service == svc {
			out = append(out, r)
		}
	}
	return out
}

// Derive builds a new ruleset by passing every rule through fn in order.
// fn returns the rule to keep (possibly a modified copy) or false to drop it.
func (rs *Ruleset) Derive(fn func(*Rule) (*Rule, bool)) *Ruleset {
	out := NewRuleset(rs.Name)
	for _, r := range rs.rules {
		if kept, ok := fn(r); ok {
			out.Register(kept)
		}
	}
	return out
}
