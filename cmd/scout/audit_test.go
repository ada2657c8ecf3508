package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/providers/aws/common"
	awsfetch "github.com/pankaj-dahiya-devops/cloudscout/internal/providers/aws/fetch"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// ── test doubles ──────────────────────────────────────────────────────────────

type mockAWSProvider struct {
	profileResult *common.ProfileConfig
	profileErr    error
	regionsResult []string
	regionsErr    error
	lastProfile   string // records the profile name passed to LoadProfile
}

func (m *mockAWSProvider) LoadProfile(_ context.Context, profile string) (*common.ProfileConfig, error) {
	m.lastProfile = profile
	return m.profileResult, m.profileErr
}

func (m *mockAWSProvider) GetActiveRegions(_ context.Context, _ *common.ProfileConfig) ([]string, error) {
	return m.regionsResult, m.regionsErr
}

func (m *mockAWSProvider) ConfigForRegion(_ *common.ProfileConfig, region string) aws.Config {
	return aws.Config{Region: region}
}

func goodMockAWS() *mockAWSProvider {
	return &mockAWSProvider{
		profileResult: &common.ProfileConfig{
			ProfileName: "audit",
			AccountID:   "123456789012",
			Region:      "us-east-1",
		},
		regionsResult: []string{"eu-west-1", "us-east-1"},
	}
}

// yamlCollector serves one YAML document per service.
type yamlCollector struct {
	mu    sync.Mutex
	docs  map[snapshot.Service]string
	calls int
}

func (c *yamlCollector) Collect(_ context.Context, svc snapshot.Service, _ *common.ProfileConfig, _ common.AWSClientProvider, _ []string) (*tree.Node, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	src, ok := c.docs[svc]
	if !ok {
		return nil, errors.New("AccessDenied")
	}
	return tree.ParseYAML([]byte(src))
}

const iamUnusedRole = `
PasswordPolicy:
  MinimumPasswordLength: 16
  RequireSymbols: true
  RequireNumbers: true
  RequireUppercaseCharacters: true
  RequireLowercaseCharacters: true
  PasswordReusePrevention: 24
Roles:
  - RoleName: R1
    Arn: arn:aws:iam::123456789012:role/R1
    AttachedPolicies: []
    InlinePolicies: []
    InstanceProfiles:
      - InstanceProfileName: P1
        Arn: arn:aws:iam::123456789012:instance-profile/P1
Users: []
Policies: []
`

// ── helpers ───────────────────────────────────────────────────────────────────

// isolateEnv points HOME at an empty directory and clears SCOUT_* variables
// so no developer configuration leaks into a test.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "SCOUT_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func testDeps(p common.AWSClientProvider, c awsfetch.Collector) deps {
	return deps{
		newProvider:  func(int) common.AWSClientProvider { return p },
		newCollector: func(zerolog.Logger, int) awsfetch.Collector { return c },
		logOut:       io.Discard,
	}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, d deps, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmdWith(d)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

type auditDirs struct {
	snapshots string
	output    string
}

func newAuditDirs(t *testing.T) auditDirs {
	base := t.TempDir()
	return auditDirs{
		snapshots: filepath.Join(base, "snapshots"),
		output:    filepath.Join(base, "out"),
	}
}

func (d auditDirs) args(extra ...string) []string {
	return append([]string{"audit", "--snapshot-dir", d.snapshots, "--output-dir", d.output}, extra...)
}

func decodeReport(t *testing.T, s string) *models.Report {
	t.Helper()
	var rep models.Report
	require.NoError(t, json.Unmarshal([]byte(s), &rep))
	return &rep
}

func writeTestFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// ── audit ─────────────────────────────────────────────────────────────────────

func TestAudit_FetchReportsAndWritesFiles(t *testing.T) {
	isolateEnv(t)
	dirs := newAuditDirs(t)
	p := goodMockAWS()
	c := &yamlCollector{docs: map[snapshot.Service]string{snapshot.IAM: iamUnusedRole}}

	out, err := execute(t, testDeps(p, c), dirs.args("--services", "iam", "--profile", "audit", "--format", "json")...)
	require.NoError(t, err)

	rep := decodeReport(t, out)
	assert.Equal(t, []string{"iam"}, rep.ServicesAnalyzed)
	assert.Equal(t, "123456789012", rep.AccountID)
	assert.Equal(t, []string{"iam-unused-role"}, rep.RuleIDs())
	assert.Equal(t, "audit", p.lastProfile)

	assert.FileExists(t, filepath.Join(dirs.output, "scout-report.json"))
	assert.FileExists(t, filepath.Join(dirs.output, "scout-report.html"))
}

func TestAudit_TableOutput(t *testing.T) {
	isolateEnv(t)
	dirs := newAuditDirs(t)
	c := &yamlCollector{docs: map[snapshot.Service]string{snapshot.IAM: iamUnusedRole}}

	out, err := execute(t, testDeps(goodMockAWS(), c), dirs.args("--services", "iam")...)
	require.NoError(t, err)

	assert.Contains(t, out, "Services analyzed: iam")
	assert.Contains(t, out, "iam-unused-role")
	assert.Contains(t, out, "IAM.Roles[0]")
	assert.NotContains(t, out, "\033[")
}

func TestAudit_LocalUsesSavedSnapshots(t *testing.T) {
	isolateEnv(t)
	dirs := newAuditDirs(t)
	c := &yamlCollector{docs: map[snapshot.Service]string{snapshot.IAM: iamUnusedRole}}

	_, err := execute(t, testDeps(goodMockAWS(), c), dirs.args("--services", "iam", "--env", "prod")...)
	require.NoError(t, err)

	offline := &yamlCollector{}
	noCreds := &mockAWSProvider{profileErr: errors.New("no credentials")}
	out, err := execute(t, testDeps(noCreds, offline),
		dirs.args("--services", "iam", "--env", "prod", "--local", "--format", "json")...)
	require.NoError(t, err)

	rep := decodeReport(t, out)
	assert.Equal(t, []string{"iam-unused-role"}, rep.RuleIDs())
	assert.Equal(t, "prod", rep.Environment)
	assert.Zero(t, offline.calls)
	assert.FileExists(t, filepath.Join(dirs.output, "scout-report-prod.json"))
}

func TestAudit_MinSeverityFilters(t *testing.T) {
	isolateEnv(t)
	dirs := newAuditDirs(t)
	c := &yamlCollector{docs: map[snapshot.Service]string{snapshot.IAM: iamUnusedRole}}

	out, err := execute(t, testDeps(goodMockAWS(), c),
		dirs.args("--services", "iam", "--min-severity", "critical", "--format", "json")...)
	require.NoError(t, err)

	rep := decodeReport(t, out)
	assert.Empty(t, rep.Findings())
	assert.Equal(t, 1, rep.Summary.Filtered)
}

func TestAudit_PolicyEnforcementExitsTwo(t *testing.T) {
	isolateEnv(t)
	dirs := newAuditDirs(t)
	c := &yamlCollector{docs: map[snapshot.Service]string{snapshot.IAM: iamUnusedRole}}
	pol := writeTestFile(t, "policy.yaml", "version: 1\nenforcement:\n  fail_on_severity: high\n")

	_, err := execute(t, testDeps(goodMockAWS(), c), dirs.args("--services", "iam", "--policy", pol)...)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	// Reports are still written before the breach is signalled.
	assert.FileExists(t, filepath.Join(dirs.output, "scout-report.json"))
}

func TestAudit_PolicyDisablesRule(t *testing.T) {
	isolateEnv(t)
	dirs := newAuditDirs(t)
	c := &yamlCollector{docs: map[snapshot.Service]string{snapshot.IAM: iamUnusedRole}}
	pol := writeTestFile(t, "policy.yaml", `
version: 1
rules:
  iam-unused-role:
    enabled: false
enforcement:
  fail_on_severity: high
`)

	out, err := execute(t, testDeps(goodMockAWS(), c),
		dirs.args("--services", "iam", "--policy", pol, "--format", "json")...)
	require.NoError(t, err)
	assert.Empty(t, decodeReport(t, out).Findings())
}

func TestAudit_InvalidPolicy(t *testing.T) {
	isolateEnv(t)
	dirs := newAuditDirs(t)
	pol := writeTestFile(t, "policy.yaml", "version: 1\nsuppress: [no-such-rule]\n")

	_, err := execute(t, testDeps(goodMockAWS(), &yamlCollector{}), dirs.args("--policy", pol)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-rule")
	assert.Equal(t, 1, exitCode(err))
}

func TestAudit_EmptyServiceList(t *testing.T) {
	isolateEnv(t)
	dirs := newAuditDirs(t)

	_, err := execute(t, testDeps(goodMockAWS(), &yamlCollector{}),
		dirs.args("--services", "iam", "--skip-services", "iam")...)
	assert.EqualError(t, err, "list of services to analyze is empty")
}

func TestAudit_NoServiceAnalyzed(t *testing.T) {
	isolateEnv(t)
	dirs := newAuditDirs(t)

	_, err := execute(t, testDeps(goodMockAWS(), &yamlCollector{}), dirs.args("--services", "s3")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no service could be analyzed")
}

func TestAudit_UnknownFormat(t *testing.T) {
	isolateEnv(t)
	dirs := newAuditDirs(t)
	c := &yamlCollector{docs: map[snapshot.Service]string{snapshot.IAM: iamUnusedRole}}

	_, err := execute(t, testDeps(goodMockAWS(), c), dirs.args("--format", "xml")...)
	require.Error(t, err)
	assert.Zero(t, c.calls)
}

func TestAudit_ConfigFileAndEnv(t *testing.T) {
	isolateEnv(t)
	dirs := newAuditDirs(t)
	c := &yamlCollector{docs: map[snapshot.Service]string{snapshot.IAM: iamUnusedRole}}
	cfgFile := writeTestFile(t, "config.yaml", "services: [iam]\nformat: json\nenvironment: staging\n")
	t.Setenv("SCOUT_ENVIRONMENT", "qa")

	out, err := execute(t, testDeps(goodMockAWS(), c), dirs.args("--config", cfgFile)...)
	require.NoError(t, err)

	rep := decodeReport(t, out)
	assert.Equal(t, "qa", rep.Environment)
	assert.Equal(t, []string{"iam"}, rep.ServicesAnalyzed)
}

// ── exit codes ────────────────────────────────────────────────────────────────

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 2, exitCode(&exitError{code: 2, err: errors.New("breach")}))
}
