package awsfetch

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
)

// cloudTrailAPIClient is the narrow CloudTrail interface used by the trail
// fetcher. DescribeTrails lists trails visible from a region (including
// shadow copies); GetTrailStatus reports whether a trail is logging.
type cloudTrailAPIClient interface {
	DescribeTrails(ctx context.Context, params *cloudtrailsvc.DescribeTrailsInput, optFns ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.DescribeTrailsOutput, error)
	GetTrailStatus(ctx context.Context, params *cloudtrailsvc.GetTrailStatusInput, optFns ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.GetTrailStatusOutput, error)
}

// iamAPIClient is the narrow IAM interface used for roles, users, managed
// policies and the account-level settings. It embeds the SDK paginator client
// interfaces so the paginators can be used directly.
type iamAPIClient interface {
	iamsvc.ListRolesAPIClient
	iamsvc.ListUsersAPIClient
	iamsvc.ListPoliciesAPIClient
	iamsvc.ListAttachedRolePoliciesAPIClient
	iamsvc.ListAttachedUserPoliciesAPIClient
	ListRolePolicies(ctx context.Context, params *iamsvc.ListRolePoliciesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListRolePoliciesOutput, error)
	ListUserPolicies(ctx context.Context, params *iamsvc.ListUserPoliciesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListUserPoliciesOutput, error)
	ListInstanceProfilesForRole(ctx context.Context, params *iamsvc.ListInstanceProfilesForRoleInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListInstanceProfilesForRoleOutput, error)
	ListMFADevices(ctx context.Context, params *iamsvc.ListMFADevicesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListMFADevicesOutput, error)
	ListAccessKeys(ctx context.Context, params *iamsvc.ListAccessKeysInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListAccessKeysOutput, error)
	GetLoginProfile(ctx context.Context, params *iamsvc.GetLoginProfileInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetLoginProfileOutput, error)
	GetPolicyVersion(ctx context.Context, params *iamsvc.GetPolicyVersionInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetPolicyVersionOutput, error)
	GetAccountPasswordPolicy(ctx context.Context, params *iamsvc.GetAccountPasswordPolicyInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetAccountPasswordPolicyOutput, error)
	GetAccountSummary(ctx context.Context, params *iamsvc.GetAccountSummaryInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetAccountSummaryOutput, error)
}

// ec2APIClient is the narrow EC2 interface used for instances and
// security groups.
type ec2APIClient interface {
	ec2svc.DescribeInstancesAPIClient
	ec2svc.DescribeSecurityGroupsAPIClient
}

// rdsAPIClient is the narrow RDS interface used for DB instances.
type rdsAPIClient interface {
	rdssvc.DescribeDBInstancesAPIClient
}

// s3APIClient is the narrow S3 interface used for bucket listing and the
// per-bucket configuration calls.
type s3APIClient interface {
	s3svc.ListBucketsAPIClient
	GetBucketLocation(ctx context.Context, params *s3svc.GetBucketLocationInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketLocationOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3svc.GetBucketEncryptionInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketEncryptionOutput, error)
	GetBucketVersioning(ctx context.Context, params *s3svc.GetBucketVersioningInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketVersioningOutput, error)
	GetBucketLogging(ctx context.Context, params *s3svc.GetBucketLoggingInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketLoggingOutput, error)
	GetBucketPolicyStatus(ctx context.Context, params *s3svc.GetBucketPolicyStatusInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyStatusOutput, error)
	GetPublicAccessBlock(ctx context.Context, params *s3svc.GetPublicAccessBlockInput, optFns ...func(*s3svc.Options)) (*s3svc.GetPublicAccessBlockOutput, error)
}

// fetchClients bundles the AWS service clients used by the fetchers for one
// region.
type fetchClients struct {
	CloudTrail cloudTrailAPIClient
	IAM        iamAPIClient
	EC2        ec2APIClient
	RDS        rdsAPIClient
	S3         s3APIClient
}

// clientFactory creates fetchClients from an AWS config.
// Injection point: tests replace this with a function returning fake clients.
type clientFactory func(cfg aws.Config) *fetchClients

// newDefaultClients creates production AWS SDK clients from the given config.
func newDefaultClients(cfg aws.Config) *fetchClients {
	return &fetchClients{
		CloudTrail: cloudtrailsvc.NewFromConfig(cfg),
		IAM:        iamsvc.NewFromConfig(cfg),
		EC2:        ec2svc.NewFromConfig(cfg),
		RDS:        rdssvc.NewFromConfig(cfg),
		S3:         s3svc.NewFromConfig(cfg),
	}
}
