package awsfetch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// fetchTrails lists the trails visible from region, shadow copies of
// multi-region trails included. Shadow is true for entries whose home region
// differs from region. IsLogging comes from GetTrailStatus; it is left out
// when the status call fails.
func fetchTrails(ctx context.Context, client cloudTrailAPIClient, region string, log zerolog.Logger) (*tree.Node, error) {
	out, err := client.DescribeTrails(ctx, &cloudtrailsvc.DescribeTrailsInput{
		IncludeShadowTrails: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("describe trails in %s: %w", region, err)
	}

	trails := tree.NewSeq()
	for _, t := range out.TrailList {
		home := aws.ToString(t.HomeRegion)
		n := tree.NewMap()
		setString(n, "Name", t.Name)
		setString(n, "TrailARN", t.TrailARN)
		n.Set("HomeRegion", tree.String(home))
		n.Set("IsMultiRegionTrail", tree.Bool(aws.ToBool(t.IsMultiRegionTrail)))
		n.Set("IncludeGlobalServiceEvents", tree.Bool(aws.ToBool(t.IncludeGlobalServiceEvents)))
		n.Set("LogFileValidationEnabled", tree.Bool(aws.ToBool(t.LogFileValidationEnabled)))
		setString(n, "KmsKeyId", t.KmsKeyId)
		setString(n, "S3BucketName", t.S3BucketName)
		n.Set("Shadow", tree.Bool(home != "" && home != region))

		// The ARN works for trails whose home region is elsewhere.
		status, err := client.GetTrailStatus(ctx, &cloudtrailsvc.GetTrailStatusInput{Name: t.TrailARN})
		if err != nil {
			log.Debug().Err(err).Str("region", region).Str("trail", aws.ToString(t.TrailARN)).Msg("trail status unavailable")
		} else {
			n.Set("IsLogging", tree.Bool(aws.ToBool(status.IsLogging)))
			setTime(n, "LatestDeliveryTime", status.LatestDeliveryTime)
		}
		trails.Append(n)
	}
	return tree.NewMap().Set("Trails", trails), nil
}
