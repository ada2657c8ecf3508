package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/config"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/correlate"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/engine"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/logging"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/output"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/policy"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/report"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/rulepacks"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/rules"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/telemetry"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/version"
)

// snapshotPrefix is the key prefix of snapshots kept in an S3 bucket.
const snapshotPrefix = "cloudscout/snapshots"

func newAuditCmd(d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit an AWS account against a ruleset",
		Long: `Fetch (or, with --local, load) one configuration snapshot per service,
evaluate the ruleset, correlate across services and write the report.

The command exits 2 when the policy's enforcement.fail_on_severity is
breached and 1 on any other error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			return runAudit(cmd.Context(), d, cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("profile", "", "AWS profile name (default: uses environment / default profile)")
	f.StringSlice("regions", nil, "AWS region(s) to audit (default: all active regions)")
	f.StringSlice("services", nil, "Services to analyze (default: "+joinNames()+")")
	f.StringSlice("skip-services", nil, "Services to leave out")
	f.String("ruleset", "", "Ruleset name (default: default)")
	f.String("ruleset-dir", "", "Directory holding <name>/*.yaml rulesets")
	f.String("env", "", "Environment label for snapshots and report files")
	f.Bool("local", false, "Load saved snapshots instead of fetching")
	f.Bool("force", false, "Overwrite saved snapshots")
	f.String("snapshot-dir", "", "Directory for saved snapshots (default: snapshots)")
	f.String("snapshot-bucket", "", "Keep snapshots in this S3 bucket instead of snapshot-dir")
	f.String("min-severity", "", "Drop findings below this severity")
	f.StringSlice("suppress", nil, "Rule IDs to leave out of the report")
	f.String("policy", "", "Policy file tuning rules, filtering and enforcement")
	f.String("output-dir", "", "Directory for the JSON and HTML report files (default: .)")
	f.String("format", "", "Stdout format: table, json or html (default: table)")
	f.Int("workers", 0, "Concurrent regional fetches per service (default: 5)")
	f.Int("max-attempts", 0, "AWS API retry attempts (default: SDK default)")
	f.String("otel-endpoint", "", "OTLP HTTP endpoint for traces")
	return cmd
}

func joinNames() string {
	return strings.Join(snapshot.Names(), ",")
}

// runAudit wires the engine from cfg, runs it and renders the report to w.
func runAudit(ctx context.Context, d deps, cfg *config.Config, w io.Writer) error {
	switch cfg.Format {
	case "", "table", "json", "html":
	default:
		return fmt.Errorf("unknown format %q (table, json, html)", cfg.Format)
	}

	log, err := logging.New(cfg.LogLevel, d.logOut)
	if err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	shutdown, err := telemetry.Init(ctx, version.Version, cfg.OtelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Debug().Err(err).Msg("trace flush failed")
		}
	}()

	rs, services, filter, pol, err := resolveRun(cfg)
	if err != nil {
		return err
	}

	provider := d.newProvider(cfg.MaxAttempts)
	store, err := openStore(ctx, cfg, provider)
	if err != nil {
		return err
	}

	eng := engine.NewDefaultEngine(provider, d.newCollector(log, cfg.Workers), store, rs, log)
	rep, err := eng.RunAudit(ctx, engine.AuditOptions{
		Profile:     cfg.Profile,
		Regions:     cfg.Regions,
		Services:    services,
		Environment: cfg.Environment,
		Local:       cfg.Local,
		Force:       cfg.Force,
		Filter:      filter,
	})
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	if err := render(w, rep, cfg.Format); err != nil {
		return err
	}
	paths, err := output.WriteReportFiles(cfg.OutputDir, rep)
	if err != nil {
		return err
	}
	log.Info().Strs("files", paths).Int("findings", rep.Summary.TotalFindings).Msg("report written")

	if policy.ShouldFail(rep, pol) {
		return &exitError{
			code: 2,
			err:  fmt.Errorf("policy enforcement: findings at or above %s", pol.Enforcement.FailOnSeverity),
		}
	}
	return nil
}

// resolveRun loads the ruleset and applies the policy file, if any, to the
// ruleset, the service list and the report filter.
func resolveRun(cfg *config.Config) (*rules.Ruleset, []snapshot.Service, report.Filter, *policy.PolicyConfig, error) {
	rs, err := rulepacks.Load(cfg.Ruleset, cfg.RulesetDir)
	if err != nil {
		return nil, nil, report.Filter{}, nil, err
	}
	services, err := cfg.ServiceList()
	if err != nil {
		return nil, nil, report.Filter{}, nil, err
	}
	filter, err := cfg.Filter()
	if err != nil {
		return nil, nil, report.Filter{}, nil, err
	}
	if cfg.Policy == "" {
		return rs, services, filter, nil, nil
	}

	pol, err := loadValidPolicy(cfg.Policy, rs)
	if err != nil {
		return nil, nil, report.Filter{}, nil, err
	}
	services = policy.EnabledServices(services, pol)
	if len(services) == 0 {
		return nil, nil, report.Filter{}, nil, errors.New("list of services to analyze is empty")
	}
	return policy.ApplyToRuleset(rs, pol), services, policy.ApplyToFilter(filter, pol), pol, nil
}

// loadValidPolicy loads path and validates it against the rule IDs of rs
// and the IDs correlation can emit.
func loadValidPolicy(path string, rs *rules.Ruleset) (*policy.PolicyConfig, error) {
	pol, err := policy.LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	ids := append(rs.IDs(), correlate.DerivedRuleIDs()...)
	if errs := policy.Validate(pol, ids); len(errs) > 0 {
		return nil, fmt.Errorf("invalid policy %s: %w", path, errors.Join(errs...))
	}
	return pol, nil
}

// openStore returns the snapshot store: an S3 bucket when snapshot_bucket
// is set, otherwise snapshot_dir on disk.
func openStore(ctx context.Context, cfg *config.Config, provider common.AWSClientProvider) (*snapshot.Store, error) {
	if cfg.SnapshotBucket == "" {
		return snapshot.NewStore(snapshot.NewFileBackend(cfg.SnapshotDir)), nil
	}
	profile, err := provider.LoadProfile(ctx, cfg.Profile)
	if err != nil {
		return nil, fmt.Errorf("snapshot bucket: %w", err)
	}
	return snapshot.NewStore(snapshot.NewS3Backend(profile.Config, cfg.SnapshotBucket, snapshotPrefix)), nil
}

func render(w io.Writer, rep *models.Report, format string) error {
	switch format {
	case "", "table":
		colored := isTerminal(w)
		output.RenderSummary(w, rep, colored)
		fmt.Fprintln(w)
		output.RenderTable(w, rep, output.TableOptions{Colored: colored})
		if len(rep.Facts) > 0 {
			fmt.Fprintln(w)
			output.RenderFacts(w, rep)
		}
		return nil
	case "json":
		return output.WriteJSON(w, rep)
	default:
		return output.WriteHTML(w, rep)
	}
}
