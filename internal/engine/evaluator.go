package engine

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/rules"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
)

// DefaultEvalWorkers bounds how many rules of one snapshot run at once.
const DefaultEvalWorkers = 8

// Evaluator applies a ruleset to a snapshot.
type Evaluator struct {
	log     zerolog.Logger
	workers int
	now     func() time.Time
}

// NewEvaluator returns an Evaluator that logs evaluation errors to log.
func NewEvaluator(log zerolog.Logger) *Evaluator {
	return &Evaluator{log: log, workers: DefaultEvalWorkers, now: time.Now}
}

// WithClock sets the time source used by age conditions.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// WithWorkers sets rule-level concurrency. Values below 1 are ignored.
func (e *Evaluator) WithWorkers(n int) *Evaluator {
	if n > 0 {
		e.workers = n
	}
	return e
}

// Evaluate returns the findings of every rule of snap's service. Output is
// grouped by rule in ruleset load order, then by match order, however the
// rules were scheduled. A node a rule cannot evaluate is logged and skipped.
func (e *Evaluator) Evaluate(snap *snapshot.Snapshot, rs *rules.Ruleset) []models.Finding {
	findings, _ := e.EvaluateWithErrors(snap, rs)
	return findings
}

// EvaluateWithErrors is Evaluate that also returns the evaluation errors,
// each a *rules.RuleEvaluationError, in the same order as the findings.
func (e *Evaluator) EvaluateWithErrors(snap *snapshot.Snapshot, rs *rules.Ruleset) ([]models.Finding, []error) {
	ruleList := rs.ForService(snap.Service)
	env := rules.Env{Now: e.now()}

	type result struct {
		findings []models.Finding
		errs     []error
	}
	slots := make([]result, len(ruleList))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, r := range ruleList {
		g.Go(func() error {
			f, errs := r.Evaluate(snap.Root, env)
			slots[i] = result{findings: f, errs: errs}
			return nil
		})
	}
	_ = g.Wait()

	var findings []models.Finding
	var errs []error
	for _, s := range slots {
		findings = append(findings, s.findings...)
		for _, err := range s.errs {
			e.logEvalError(err)
			errs = append(errs, err)
		}
	}
	return findings, errs
}

func (e *Evaluator) logEvalError(err error) {
	ev := e.log.Warn()
	var re *rules.RuleEvaluationError
	if errors.As(err, &re) {
		ev = ev.Str("rule_id", re.RuleID).Str("path", re.Path).AnErr("error", re.Err)
	} else {
		ev = ev.Err(err)
	}
	ev.Msg("rule evaluation failed; node skipped")
}
