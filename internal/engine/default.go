package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/correlate"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/providers/aws/common"
	awsfetch "github.com/pankaj-dahiya-devops/cloudscout/internal/providers/aws/fetch"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/report"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/rules"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/telemetry"
)

// DefaultEngine is the production implementation of Engine.
//
// Every service runs in its own goroutine: fetch (or load), save, evaluate,
// then publish the evaluation on a barrier. The correlator waits on the
// barrier for the services each correlation rule needs, so correlation of
// CloudTrail and EC2 can start while IAM is still being fetched.
type DefaultEngine struct {
	provider   common.AWSClientProvider
	collector  awsfetch.Collector
	store      *snapshot.Store
	ruleset    *rules.Ruleset
	evaluator  *Evaluator
	correlator *correlate.Correlator
	log        zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewDefaultEngine constructs a DefaultEngine with the default correlation
// rules.
func NewDefaultEngine(
	provider common.AWSClientProvider,
	collector awsfetch.Collector,
	store *snapshot.Store,
	ruleset *rules.Ruleset,
	log zerolog.Logger,
) *DefaultEngine {
	return &DefaultEngine{
		provider:   provider,
		collector:  collector,
		store:      store,
		ruleset:    ruleset,
		evaluator:  NewEvaluator(log),
		correlator: correlate.New(correlate.DefaultRules(), log),
		log:        log,
		tracer:     telemetry.Tracer(),
		now:        time.Now,
	}
}

// WithClock sets the time source for snapshot timestamps, age conditions
// and the report header.
func (e *DefaultEngine) WithClock(now func() time.Time) *DefaultEngine {
	e.now = now
	e.evaluator.WithClock(now)
	return e
}

// WithEvaluator replaces the evaluator.
func (e *DefaultEngine) WithEvaluator(ev *Evaluator) *DefaultEngine {
	e.evaluator = ev
	return e
}

// WithCorrelator replaces the correlator.
func (e *DefaultEngine) WithCorrelator(c *correlate.Correlator) *DefaultEngine {
	e.correlator = c
	return e
}

// RunAudit implements Engine.
//
// A service whose snapshot cannot be fetched or loaded is logged and left
// out of the report; correlation rules depending on it are skipped. The run
// fails only when no service could be analyzed.
func (e *DefaultEngine) RunAudit(ctx context.Context, opts AuditOptions) (*models.Report, error) {
	if len(opts.Services) == 0 {
		return nil, errors.New("list of services to analyze is empty")
	}
	services := orderServices(opts.Services)
	env := opts.Environment
	if env == "" {
		env = snapshot.DefaultEnvironment
	}

	ctx, span := e.tracer.Start(ctx, "audit", trace.WithAttributes(
		attribute.String("audit.environment", env),
		attribute.Bool("audit.local", opts.Local),
		attribute.Int("audit.services", len(services)),
	))
	defer span.End()

	var (
		profile *common.ProfileConfig
		regions []string
	)
	if !opts.Local {
		var err error
		profile, err = e.provider.LoadProfile(ctx, opts.Profile)
		if err != nil {
			return nil, fmt.Errorf("load profile %q: %w", opts.Profile, err)
		}
		regions, err = e.resolveRegions(ctx, profile, opts.Regions)
		if err != nil {
			return nil, fmt.Errorf("resolve regions for profile %q: %w", profile.ProfileName, err)
		}
	}

	barrier := correlate.NewBarrier(services)
	evals := make([]*correlate.Evaluation, len(services))
	var corr models.CorrelationResults

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		corr, err = e.correlator.Run(gctx, services, barrier)
		return err
	})
	for i, svc := range services {
		g.Go(func() error {
			ev, err := e.runService(gctx, svc, env, opts, profile, regions)
			if ev == nil {
				barrier.Fail(svc)
			} else {
				barrier.Done(svc, ev)
				evals[i] = ev
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	perService := make(map[snapshot.Service][]models.Finding, len(services))
	var analyzed []snapshot.Service
	for i, svc := range services {
		if evals[i] == nil {
			continue
		}
		analyzed = append(analyzed, svc)
		perService[svc] = evals[i].Findings
	}
	if len(analyzed) == 0 {
		return nil, errors.New("no service could be analyzed")
	}

	_, aspan := e.tracer.Start(ctx, "aggregate")
	meta := report.Metadata{
		ReportID:         fmt.Sprintf("scout-%d", e.now().UnixNano()),
		GeneratedAt:      e.now().UTC(),
		Ruleset:          e.ruleset.Name,
		Environment:      env,
		ServicesAnalyzed: analyzed,
	}
	if profile != nil {
		meta.Profile = profile.ProfileName
		meta.AccountID = profile.AccountID
	}
	rep := report.Aggregate(perService, corr, opts.Filter, meta)
	aspan.SetAttributes(attribute.Int("report.findings", rep.Summary.TotalFindings))
	aspan.End()
	return rep, nil
}

// runService produces the evaluation of one service. A nil evaluation with
// a nil error means the service is not analyzed this run; an error is
// returned only when ctx was cancelled.
func (e *DefaultEngine) runService(
	ctx context.Context,
	svc snapshot.Service,
	env string,
	opts AuditOptions,
	profile *common.ProfileConfig,
	regions []string,
) (*correlate.Evaluation, error) {
	log := e.log.With().Str("service", string(svc)).Logger()

	snap, err := e.obtainSnapshot(ctx, svc, env, opts, profile, regions, log)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}

	_, span := e.tracer.Start(ctx, "evaluate/"+string(svc))
	findings := e.evaluator.Evaluate(snap, e.ruleset)
	span.SetAttributes(attribute.Int("evaluate.findings", len(findings)))
	span.End()

	log.Debug().Int("findings", len(findings)).Msg("service evaluated")
	return &correlate.Evaluation{Snapshot: snap, Findings: findings}, nil
}

// obtainSnapshot loads the snapshot in local mode, otherwise fetches it and
// saves it to the store. A save refused because the snapshot already exists
// is logged and does not stop the run.
func (e *DefaultEngine) obtainSnapshot(
	ctx context.Context,
	svc snapshot.Service,
	env string,
	opts AuditOptions,
	profile *common.ProfileConfig,
	regions []string,
	log zerolog.Logger,
) (*snapshot.Snapshot, error) {
	if opts.Local {
		if e.store == nil {
			return nil, errors.New("local mode needs a snapshot store")
		}
		snap, err := e.store.Load(ctx, env, svc)
		if err != nil {
			if errors.Is(err, snapshot.ErrNotFound) {
				log.Warn().Str("environment", env).Msg("no local snapshot; service not analyzed")
			} else {
				log.Error().Err(err).Msg("snapshot load failed")
			}
			return nil, err
		}
		return snap, nil
	}

	fctx, span := e.tracer.Start(ctx, "fetch/"+string(svc), trace.WithAttributes(
		attribute.Int("fetch.regions", len(regions)),
	))
	data, err := e.collector.Collect(fctx, svc, profile, e.provider, regions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		log.Error().Err(err).Msg("snapshot fetch failed")
		return nil, err
	}
	span.End()

	snap := snapshot.New(svc, data, profile.Region, e.now())
	snap.Environment = env
	if e.store != nil {
		if err := e.store.Save(ctx, snap, opts.Force); err != nil {
			if errors.Is(err, snapshot.ErrExists) {
				log.Warn().Str("environment", env).Msg("snapshot exists; rerun with --force to overwrite")
			} else {
				log.Error().Err(err).Msg("snapshot save failed")
			}
		}
	}
	return snap, nil
}

// resolveRegions returns the explicit region list when provided, otherwise
// calls GetActiveRegions to discover opted-in regions for the profile.
func (e *DefaultEngine) resolveRegions(
	ctx context.Context,
	profile *common.ProfileConfig,
	explicit []string,
) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	return e.provider.GetActiveRegions(ctx, profile)
}

// orderServices deduplicates services and puts them in priority order.
func orderServices(in []snapshot.Service) []snapshot.Service {
	seen := make(map[snapshot.Service]bool, len(in))
	out := make([]snapshot.Service, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Rank(), out[j].Rank()
		if ri < 0 {
			ri = len(snapshot.Priority)
		}
		if rj < 0 {
			rj = len(snapshot.Priority)
		}
		return ri < rj
	})
	return out
}
