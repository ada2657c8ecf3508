package awsfetch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// globalRegion is the canonical region for IAM and the S3 bucket listing.
const globalRegion = "us-east-1"

// DefaultWorkers bounds the number of regions fetched concurrently.
const DefaultWorkers = 5

// DefaultCollector is the production Collector. IAM and the S3 bucket list
// are read once through us-east-1; CloudTrail, EC2 and RDS are read per
// region and keyed by region name under "Regions".
type DefaultCollector struct {
	factory clientFactory
	log     zerolog.Logger
	workers int
}

// NewDefaultCollector returns a DefaultCollector wired to production AWS SDK
// clients.
func NewDefaultCollector(log zerolog.Logger) *DefaultCollector {
	return newCollectorWithFactory(newDefaultClients, log)
}

func newCollectorWithFactory(f clientFactory, log zerolog.Logger) *DefaultCollector {
	return &DefaultCollector{factory: f, log: log, workers: DefaultWorkers}
}

// WithWorkers sets the per-region concurrency. Values below 1 are ignored.
func (c *DefaultCollector) WithWorkers(n int) *DefaultCollector {
	if n > 0 {
		c.workers = n
	}
	return c
}

// Collect implements Collector.
func (c *DefaultCollector) Collect(
	ctx context.Context,
	svc snapshot.Service,
	profile *common.ProfileConfig,
	provider common.AWSClientProvider,
	regions []string,
) (*tree.Node, error) {
	clientsFor := func(region string) *fetchClients {
		return c.factory(provider.ConfigForRegion(profile, region))
	}
	log := c.log.With().Str("service", string(svc)).Logger()

	switch svc {
	case snapshot.CloudTrail:
		return c.perRegion(ctx, log, regions, func(ctx context.Context, region string) (*tree.Node, error) {
			return fetchTrails(ctx, clientsFor(region).CloudTrail, region, log)
		})
	case snapshot.EC2:
		return c.perRegion(ctx, log, regions, func(ctx context.Context, region string) (*tree.Node, error) {
			return fetchEC2Region(ctx, clientsFor(region).EC2, region)
		})
	case snapshot.RDS:
		return c.perRegion(ctx, log, regions, func(ctx context.Context, region string) (*tree.Node, error) {
			return fetchRDSRegion(ctx, clientsFor(region).RDS, region)
		})
	case snapshot.IAM:
		return fetchIAM(ctx, clientsFor(globalRegion).IAM, log)
	case snapshot.S3:
		return fetchS3(ctx, clientsFor(globalRegion).S3, func(region string) s3APIClient {
			return clientsFor(region).S3
		}, log)
	default:
		return nil, fmt.Errorf("no fetcher for service %q", svc)
	}
}

// perRegion runs fetch for every region with bounded concurrency and
// returns {"Regions": {<region>: <data>}} in the order regions were given.
// A failing region is logged and left out. When every region fails the
// first error is returned.
func (c *DefaultCollector) perRegion(
	ctx context.Context,
	log zerolog.Logger,
	regions []string,
	fetch func(ctx context.Context, region string) (*tree.Node, error),
) (*tree.Node, error) {
	results := make([]*tree.Node, len(regions))
	errs := make([]error, len(regions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, region := range regions {
		g.Go(func() error {
			node, err := fetch(gctx, region)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = node
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byRegion := tree.NewMap()
	var firstErr error
	for i, region := range regions {
		if errs[i] != nil {
			log.Warn().Err(errs[i]).Str("region", region).Msg("region skipped")
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		byRegion.Set(region, results[i])
	}
	if len(regions) > 0 && byRegion.Len() == 0 {
		return nil, firstErr
	}
	return tree.NewMap().Set("Regions", byRegion), nil
}
