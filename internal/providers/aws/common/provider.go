package common

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// FallbackRegion is used when a profile has no region configured.
const FallbackRegion = "us-east-1"

// ProfileConfig is a resolved AWS profile: the SDK configuration, the
// account it belongs to and the clients used for discovery. Fetchers derive
// region-scoped configs from it through AWSClientProvider.ConfigForRegion.
type ProfileConfig struct {
	// ProfileName is the shared config profile, "default" when none was given.
	ProfileName string

	// AccountID is the account behind the credentials (via STS).
	AccountID string

	// Region is the profile's home region.
	Region string

	Config  aws.Config
	Clients *ClientSet
}

// AWSClientProvider loads credentials and resolves the regions to audit.
// It is the only place that touches the AWS shared config files.
type AWSClientProvider interface {
	// LoadProfile returns a ProfileConfig for the named profile.
	// Pass an empty string to load the default credential chain.
	LoadProfile(ctx context.Context, profile string) (*ProfileConfig, error)

	// GetActiveRegions returns the regions enabled for the account, sorted.
	GetActiveRegions(ctx context.Context, cfg *ProfileConfig) ([]string, error)

	// ConfigForRegion returns a copy of the profile's config for region.
	ConfigForRegion(cfg *ProfileConfig, region string) aws.Config
}

// DefaultAWSClientProvider is the production AWSClientProvider backed by the
// SDK's default credential chain (environment, shared files, instance
// metadata).
type DefaultAWSClientProvider struct {
	factory     ClientFactory
	maxAttempts int
}

// NewDefaultAWSClientProvider returns a provider backed by the real AWS SDK.
func NewDefaultAWSClientProvider() *DefaultAWSClientProvider {
	return &DefaultAWSClientProvider{factory: NewClientSet}
}

// NewDefaultAWSClientProviderWithFactory returns a provider that uses f to
// create its ClientSet. Pass a fake factory in tests.
func NewDefaultAWSClientProviderWithFactory(f ClientFactory) *DefaultAWSClientProvider {
	return &DefaultAWSClientProvider{factory: f}
}

// WithMaxAttempts sets the SDK retryer's attempt limit. Zero keeps the SDK
// default.
func (p *DefaultAWSClientProvider) WithMaxAttempts(n int) *DefaultAWSClientProvider {
	p.maxAttempts = n
	return p
}

// LoadProfile implements AWSClientProvider.
func (p *DefaultAWSClientProvider) LoadProfile(ctx context.Context, profile string) (*ProfileConfig, error) {
	name := profileDisplayName(profile)

	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if p.maxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(p.maxAttempts))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS profile %q: %w", name, err)
	}
	if cfg.Region == "" {
		cfg.Region = FallbackRegion
	}

	clients := p.factory(cfg)
	accountID, err := resolveAccountID(ctx, clients.STS)
	if err != nil {
		return nil, fmt.Errorf("resolve account ID for profile %q: %w", name, err)
	}

	return &ProfileConfig{
		ProfileName: name,
		AccountID:   accountID,
		Region:      cfg.Region,
		Config:      cfg,
		Clients:     clients,
	}, nil
}

// GetActiveRegions implements AWSClientProvider. DescribeRegions without
// AllRegions returns only the regions the account has opted into.
func (p *DefaultAWSClientProvider) GetActiveRegions(ctx context.Context, cfg *ProfileConfig) ([]string, error) {
	out, err := cfg.Clients.EC2.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		AllRegions: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("describe regions for profile %q: %w", cfg.ProfileName, err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if r.RegionName != nil {
			regions = append(regions, *r.RegionName)
		}
	}
	sort.Strings(regions)
	return regions, nil
}

// ConfigForRegion implements AWSClientProvider.
func (p *DefaultAWSClientProvider) ConfigForRegion(cfg *ProfileConfig, region string) aws.Config {
	regional := cfg.Config.Copy()
	regional.Region = region
	return regional
}

func profileDisplayName(profile string) string {
	if profile == "" {
		return "default"
	}
	return profile
}

func resolveAccountID(ctx context.Context, client STSClient) (string, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("STS GetCallerIdentity: %w", err)
	}
	if out.Account == nil {
		return "", errors.New("STS GetCallerIdentity returned nil account")
	}
	return aws.ToString(out.Account), nil
}
