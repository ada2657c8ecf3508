// Package correlate joins independently evaluated service snapshots.
//
// A correlation rule declares the services it needs, extracts identifying
// keys from each side, joins them by exact string equality and turns the
// join into suppressions, annotations or derived findings. Findings are
// never modified here; the aggregator applies the results to copies.
package correlate

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/telemetry"
)

// Input gives a correlation rule the evaluations it declared.
type Input map[snapshot.Service]*Evaluation

// Rule is one cross-service correlation. Rules must be pure: the same
// input always yields the same results.
type Rule interface {
	// ID returns the stable identifier, e.g. "instance-role-attachment".
	ID() string

	// Requires lists the services that must have been analyzed.
	Requires() []snapshot.Service

	// Correlate computes the rule's effects.
	Correlate(in Input) models.CorrelationResults
}

// DefaultRules returns the built-in correlation rules in execution order.
func DefaultRules() []Rule {
	return []Rule{
		InstanceRoleRule{},
		TrailInstanceRule{},
	}
}

// DerivedRuleIDs lists the IDs of findings correlation rules can emit, for
// validating suppression lists.
func DerivedRuleIDs() []string {
	return []string{RuleNoTrailCoverage}
}

// Correlator runs correlation rules once their dependencies are evaluated.
type Correlator struct {
	rules  []Rule
	log    zerolog.Logger
	tracer trace.Tracer
}

// New returns a correlator over rules, in declaration order.
func New(rules []Rule, log zerolog.Logger) *Correlator {
	return &Correlator{rules: rules, log: log, tracer: telemetry.Tracer()}
}

// Run executes every rule whose dependencies are all in analyzed. Each such
// rule waits on the barrier for its own dependencies, so rules with
// disjoint dependencies run concurrently. A rule whose dependency was not
// analyzed, or failed before evaluation, is skipped and recorded in the
// results. Results are merged in rule declaration order.
func (c *Correlator) Run(ctx context.Context, analyzed []snapshot.Service, barrier *Barrier) (models.CorrelationResults, error) {
	inRun := make(map[snapshot.Service]bool, len(analyzed))
	for _, s := range analyzed {
		inRun[s] = true
	}

	slots := make([]models.CorrelationResults, len(c.rules))
	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range c.rules {
		var missing []snapshot.Service
		for _, dep := range rule.Requires() {
			if !inRun[dep] {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			slots[i] = c.skip(rule, missing)
			continue
		}

		g.Go(func() error {
			evals, missing, err := barrier.Wait(gctx, rule.Requires())
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				slots[i] = c.skip(rule, missing)
				return nil
			}

			_, span := c.tracer.Start(gctx, "correlate/"+rule.ID(), trace.WithAttributes(
				attribute.String("correlation.id", rule.ID()),
			))
			res := rule.Correlate(Input(evals))
			span.SetAttributes(
				attribute.Int("correlation.facts", len(res.Facts)),
				attribute.Int("correlation.suppressions", len(res.Suppressions)),
				attribute.Int("correlation.derived", len(res.Derived)),
			)
			span.End()

			c.log.Debug().
				Str("correlation", rule.ID()).
				Int("facts", len(res.Facts)).
				Int("suppressions", len(res.Suppressions)).
				Int("annotations", len(res.Annotations)).
				Int("derived", len(res.Derived)).
				Msg("correlation complete")
			slots[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.CorrelationResults{}, err
	}

	var out models.CorrelationResults
	for _, r := range slots {
		out.Merge(r)
	}
	return out, nil
}

// RunEvaluated is Run for evaluations that are already complete.
func (c *Correlator) RunEvaluated(ctx context.Context, evals Input) (models.CorrelationResults, error) {
	var analyzed []snapshot.Service
	for _, s := range snapshot.Priority {
		if _, ok := evals[s]; ok {
			analyzed = append(analyzed, s)
		}
	}
	b := NewBarrier(analyzed)
	for s, ev := range evals {
		b.Done(s, ev)
	}
	return c.Run(ctx, analyzed, b)
}

func (c *Correlator) skip(rule Rule, missing []snapshot.Service) models.CorrelationResults {
	names := make([]string, len(missing))
	for i, m := range missing {
		names[i] = string(m)
	}
	c.log.Info().
		Str("correlation", rule.ID()).
		Str("missing", strings.Join(names, ",")).
		Msg("correlation skipped; required service not analyzed")
	return models.CorrelationResults{
		Skipped: []models.SkippedCorrelation{{Correlation: rule.ID(), Missing: names}},
	}
}
