package awsfetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// Error codes S3 returns when an optional bucket setting is not configured.
var notConfiguredCodes = map[string]bool{
	"ServerSideEncryptionConfigurationNotFoundError": true,
	"NoSuchBucketPolicy":                             true,
	"NoSuchPublicAccessBlockConfiguration":           true,
}

func notConfigured(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && notConfiguredCodes[apiErr.ErrorCode()]
}

// fetchS3 lists buckets once through list and reads each bucket's settings
// through a client in the bucket's own region. It returns
// {"Buckets": [...]}.
//
// Encryption, Logging and PublicAccessBlock are left out when the bucket has
// no such configuration. PolicyStatus.IsPublic is false for buckets without
// a bucket policy.
func fetchS3(ctx context.Context, list s3APIClient, regional func(region string) s3APIClient, log zerolog.Logger) (*tree.Node, error) {
	buckets := tree.NewSeq()
	clients := make(map[string]s3APIClient)

	p := s3svc.NewListBucketsPaginator(list, &s3svc.ListBucketsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list S3 buckets: %w", err)
		}
		for _, b := range page.Buckets {
			name := aws.ToString(b.Name)
			blog := log.With().Str("bucket", name).Logger()

			region := aws.ToString(b.BucketRegion)
			if region == "" {
				region = bucketRegion(ctx, list, name, blog)
			}
			client, ok := clients[region]
			if !ok {
				client = regional(region)
				clients[region] = client
			}

			n := tree.NewMap()
			n.Set("Name", tree.String(name))
			setTime(n, "CreationDate", b.CreationDate)
			n.Set("Region", tree.String(region))
			bucketSettings(ctx, client, name, n, blog)
			buckets.Append(n)
		}
	}
	return tree.NewMap().Set("Buckets", buckets), nil
}

// bucketRegion maps GetBucketLocation's constraint to a region name. An
// empty constraint means us-east-1 and "EU" is the legacy name of
// eu-west-1.
func bucketRegion(ctx context.Context, client s3APIClient, name string, log zerolog.Logger) string {
	out, err := client.GetBucketLocation(ctx, &s3svc.GetBucketLocationInput{Bucket: aws.String(name)})
	if err != nil {
		log.Debug().Err(err).Msg("bucket location unavailable")
		return globalRegion
	}
	switch loc := string(out.LocationConstraint); loc {
	case "":
		return globalRegion
	case "EU":
		return "eu-west-1"
	default:
		return loc
	}
}

func bucketSettings(ctx context.Context, client s3APIClient, name string, n *tree.Node, log zerolog.Logger) {
	bucket := aws.String(name)
	skip := func(what string, err error) {
		if !notConfigured(err) {
			log.Debug().Err(err).Msg(what + " unavailable")
		}
	}

	if enc, err := client.GetBucketEncryption(ctx, &s3svc.GetBucketEncryptionInput{Bucket: bucket}); err != nil {
		skip("encryption", err)
	} else if enc.ServerSideEncryptionConfiguration != nil && len(enc.ServerSideEncryptionConfiguration.Rules) > 0 {
		rule := enc.ServerSideEncryptionConfiguration.Rules[0]
		m := tree.NewMap()
		if def := rule.ApplyServerSideEncryptionByDefault; def != nil {
			m.Set("Algorithm", tree.String(string(def.SSEAlgorithm)))
			setString(m, "KMSMasterKeyID", def.KMSMasterKeyID)
		}
		setBool(m, "BucketKeyEnabled", rule.BucketKeyEnabled)
		n.Set("Encryption", m)
	}

	if ver, err := client.GetBucketVersioning(ctx, &s3svc.GetBucketVersioningInput{Bucket: bucket}); err != nil {
		skip("versioning", err)
	} else {
		// Status is empty for buckets that never had versioning enabled.
		n.Set("Versioning", tree.NewMap().
			Set("Status", tree.String(string(ver.Status))).
			Set("MFADelete", tree.String(string(ver.MFADelete))))
	}

	if lg, err := client.GetBucketLogging(ctx, &s3svc.GetBucketLoggingInput{Bucket: bucket}); err != nil {
		skip("logging", err)
	} else if lg.LoggingEnabled != nil {
		m := tree.NewMap()
		setString(m, "TargetBucket", lg.LoggingEnabled.TargetBucket)
		setString(m, "TargetPrefix", lg.LoggingEnabled.TargetPrefix)
		n.Set("Logging", m)
	}

	if ps, err := client.GetBucketPolicyStatus(ctx, &s3svc.GetBucketPolicyStatusInput{Bucket: bucket}); err != nil {
		skip("policy status", err)
		if notConfigured(err) {
			n.Set("PolicyStatus", tree.NewMap().Set("IsPublic", tree.Bool(false)))
		}
	} else if ps.PolicyStatus != nil {
		n.Set("PolicyStatus", tree.NewMap().Set("IsPublic", tree.Bool(aws.ToBool(ps.PolicyStatus.IsPublic))))
	}

	if pab, err := client.GetPublicAccessBlock(ctx, &s3svc.GetPublicAccessBlockInput{Bucket: bucket}); err != nil {
		skip("public access block", err)
	} else if c := pab.PublicAccessBlockConfiguration; c != nil {
		n.Set("PublicAccessBlock", tree.NewMap().
			Set("BlockPublicAcls", tree.Bool(aws.ToBool(c.BlockPublicAcls))).
			Set("IgnorePublicAcls", tree.Bool(aws.ToBool(c.IgnorePublicAcls))).
			Set("BlockPublicPolicy", tree.Bool(aws.ToBool(c.BlockPublicPolicy))).
			Set("RestrictPublicBuckets", tree.Bool(aws.ToBool(c.RestrictPublicBuckets))))
	}
}
