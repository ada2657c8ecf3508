// Package awsfetch builds configuration snapshots of AWS services.
//
// Each fetcher turns SDK responses into a tree.Node whose shape the rule
// files rely on, e.g. EC2.Regions.<region>.Instances[*] or IAM.Roles[*].
// Fetchers never evaluate rules or produce findings.
package awsfetch

import (
	"context"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// Collector fetches the raw configuration of one service from an AWS
// account. The returned node is the service data without the service label;
// snapshot.New wraps it.
//
// Failures of a single region or of an optional per-resource call are
// logged and skipped so the rest of the snapshot can still be built. An
// error is returned only when the service cannot be listed at all.
type Collector interface {
	Collect(
		ctx context.Context,
		svc snapshot.Service,
		profile *common.ProfileConfig,
		provider common.AWSClientProvider,
		regions []string,
	) (*tree.Node, error)
}
