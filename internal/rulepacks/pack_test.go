package rulepacks

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/rules"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

func TestDefaultRulesetLoads(t *testing.T) {
	rs, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultName, rs.Name)

	for _, svc := range snapshot.Priority {
		assert.NotEmpty(t, rs.ForService(svc), "no rules for %s", svc)
	}
	r, ok := rs.Get("iam-unused-role")
	require.True(t, ok)
	assert.Equal(t, models.SeverityHigh, r.Severity)
	assert.Equal(t, "IAM.Roles[*]", r.Path)
	assert.Equal(t, []string{"default"}, Names())
}

func TestLoad_UnknownName(t *testing.T) {
	_, err := Load("strict", "")
	assert.Error(t, err)
}

func TestLoad_DirectoryOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "default"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default", "s3.yaml"), []byte(`
service: s3
rules:
  - id: s3-custom
    path: S3.Buckets[*]
    severity: info
    condition: {exists: Name}
`), 0o600))

	rs, err := Load("default", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"s3-custom"}, rs.IDs())
}

func evalService(t *testing.T, rs *rules.Ruleset, svc snapshot.Service, src string) map[string][]string {
	t.Helper()
	root, err := tree.ParseYAML([]byte(src))
	require.NoError(t, err)
	got := make(map[string][]string)
	for _, r := range rs.ForService(svc) {
		findings, errs := r.Evaluate(root, rules.Env{Now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
		require.Empty(t, errs, r.ID)
		for _, f := range findings {
			got[f.RuleID] = append(got[f.RuleID], f.Path)
		}
	}
	return got
}

func TestDefaultRuleset_EC2(t *testing.T) {
	rs, err := Load("", "")
	require.NoError(t, err)

	got := evalService(t, rs, snapshot.EC2, `
EC2:
  Regions:
    eu-west-1:
      Instances:
        - InstanceId: i-1
          State: {Name: running}
          PublicIpAddress: 203.0.113.10
        - InstanceId: i-2
          State: {Name: terminated}
          PublicIpAddress: 203.0.113.11
      SecurityGroups:
        - GroupId: sg-1
          GroupName: web
          IpPermissions:
            - {IpProtocol: tcp, FromPort: 22, ToPort: 22, IpRanges: [0.0.0.0/0], Ipv6Ranges: []}
            - {IpProtocol: tcp, FromPort: 443, ToPort: 443, IpRanges: [0.0.0.0/0], Ipv6Ranges: []}
            - {IpProtocol: "-1", IpRanges: [], Ipv6Ranges: ["::/0"]}
          IpPermissionsEgress: []
        - GroupId: sg-2
          GroupName: default
          IpPermissions: []
          IpPermissionsEgress:
            - {IpProtocol: "-1", IpRanges: [0.0.0.0/0], Ipv6Ranges: []}
`)
	assert.Equal(t, map[string][]string{
		"ec2-sg-open-ssh":               {"EC2.Regions.eu-west-1.SecurityGroups[0].IpPermissions[0]"},
		"ec2-sg-open-all-ports":         {"EC2.Regions.eu-west-1.SecurityGroups[0].IpPermissions[2]"},
		"ec2-default-sg-allows-traffic": {"EC2.Regions.eu-west-1.SecurityGroups[1]"},
		"ec2-instance-public-ip":        {"EC2.Regions.eu-west-1.Instances[0]"},
	}, got)
}

func TestDefaultRuleset_S3AndIAM(t *testing.T) {
	rs, err := Load("", "")
	require.NoError(t, err)

	s3 := evalService(t, rs, snapshot.S3, `
S3:
  Buckets:
    - Name: locked
      Encryption: {Algorithm: "aws:kms"}
      Versioning: {Status: Enabled}
      Logging: {TargetBucket: logs}
      PolicyStatus: {IsPublic: false}
      PublicAccessBlock: {BlockPublicAcls: true, IgnorePublicAcls: true, BlockPublicPolicy: true, RestrictPublicBuckets: true}
    - Name: open
      Versioning: {Status: ""}
      PolicyStatus: {IsPublic: true}
`)
	for _, id := range []string{"s3-no-default-encryption", "s3-versioning-disabled", "s3-public-policy", "s3-public-access-block-missing", "s3-no-access-logging"} {
		assert.Equal(t, []string{"S3.Buckets[1]"}, s3[id], id)
	}

	iam := evalService(t, rs, snapshot.IAM, `
IAM:
  PasswordPolicy:
    MinimumPasswordLength: 8
    RequireSymbols: true
    RequireNumbers: true
    RequireUppercaseCharacters: true
    RequireLowercaseCharacters: false
    PasswordReusePrevention: 24
  Roles:
    - RoleName: R1
      Arn: arn:aws:iam::111122223333:role/R1
      AttachedPolicies: []
      InlinePolicies: []
      InstanceProfiles: [{Arn: "arn:aws:iam::111122223333:instance-profile/P1"}]
  Users:
    - UserName: alice
      LoginProfile: true
      MFADevices: []
      InlinePolicies: [legacy]
      AccessKeys:
        - {AccessKeyId: AKIA1, Status: Active, CreateDate: "2023-01-01T00:00:00Z"}
        - {AccessKeyId: AKIA2, Status: Inactive, CreateDate: "2023-01-01T00:00:00Z"}
  Policies:
    - PolicyName: admin
      Document:
        Statement:
          - {Effect: Allow, Action: ["*"], Resource: ["*"]}
          - {Effect: Allow, Action: ["s3:GetObject"], Resource: ["*"]}
`)
	assert.Equal(t, map[string][]string{
		"iam-password-policy-short":           {"IAM.PasswordPolicy"},
		"iam-password-policy-weak-complexity": {"IAM.PasswordPolicy"},
		"iam-unused-role":                     {"IAM.Roles[0]"},
		"iam-user-no-mfa":                     {"IAM.Users[0]"},
		"iam-user-old-access-key":             {"IAM.Users[0].AccessKeys[0]"},
		"iam-user-inline-policy":              {"IAM.Users[0]"},
		"iam-policy-admin-wildcard":           {"IAM.Policies[0].Document.Statement[0]"},
	}, iam)
}

func TestDefaultRuleset_IAMRootAccount(t *testing.T) {
	rs, err := Load("", "")
	require.NoError(t, err)

	got := evalService(t, rs, snapshot.IAM, `
IAM:
  AccountSummary:
    AccountMFAEnabled: false
    AccountAccessKeysPresent: 1
`)
	assert.Equal(t, []string{"IAM.AccountSummary"}, got["iam-root-no-mfa"])
	assert.Equal(t, []string{"IAM.AccountSummary"}, got["iam-root-access-keys"])

	got = evalService(t, rs, snapshot.IAM, `
IAM:
  AccountSummary:
    AccountMFAEnabled: true
    AccountAccessKeysPresent: 0
`)
	assert.NotContains(t, got, "iam-root-no-mfa")
	assert.NotContains(t, got, "iam-root-access-keys")
}

func TestDefaultRuleset_UnusedRole(t *testing.T) {
	rs, err := Load("", "")
	require.NoError(t, err)

	// Instance use is settled by correlation; a role's own fields never
	// carry it.
	got := evalService(t, rs, snapshot.IAM, `
IAM:
  Roles:
    - RoleName: bare
      Arn: arn:aws:iam::111122223333:role/bare
      AttachedPolicies: []
      InlinePolicies: []
      InstanceProfiles: []
    - RoleName: managed
      Arn: arn:aws:iam::111122223333:role/managed
      AttachedPolicies: [{PolicyArn: "arn:aws:iam::aws:policy/ReadOnlyAccess"}]
      InlinePolicies: []
    - RoleName: inline
      Arn: arn:aws:iam::111122223333:role/inline
      AttachedPolicies: []
      InlinePolicies: [logs]
    - RoleName: launched
      Arn: arn:aws:iam::111122223333:role/launched
      AttachedPolicies: []
      InlinePolicies: []
      Instances: [i-1]
`)
	assert.Equal(t, []string{"IAM.Roles[0]", "IAM.Roles[3]"}, got["iam-unused-role"])
}
