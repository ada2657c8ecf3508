package engine

import (
	"context"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/report"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
)

// AuditOptions configures a single audit run.
// It is the sole input to Engine.RunAudit.
type AuditOptions struct {
	// Profile is the named AWS profile to use. Empty means the default
	// credential chain. Ignored in local mode.
	Profile string

	// Regions is an explicit list of AWS regions to audit.
	// When empty the engine discovers all active regions.
	Regions []string

	// Services are the services analyzed this run. The list drives which
	// correlation rules are eligible and must not be empty.
	Services []snapshot.Service

	// Environment labels the snapshot set. Empty means
	// snapshot.DefaultEnvironment.
	Environment string

	// Local loads previously saved snapshots instead of fetching.
	Local bool

	// Force overwrites snapshots saved by an earlier run.
	Force bool

	// Filter is applied to the report after correlation.
	Filter report.Filter
}

// Engine is the central orchestration interface. It obtains one snapshot
// per service, evaluates the ruleset against each, correlates across
// services and returns the aggregated report.
//
// Engine never calls the AWS SDK directly; it delegates to the provider and
// collector interfaces.
type Engine interface {
	RunAudit(ctx context.Context, opts AuditOptions) (*models.Report, error)
}
