package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/config"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/providers/aws/common"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func doctorConfig(policy string) *config.Config {
	return &config.Config{Ruleset: "default", Policy: policy}
}

func runDoctorTo(t *testing.T, p common.AWSClientProvider, cfg *config.Config, format string) (string, DoctorResult) {
	t.Helper()
	var buf bytes.Buffer
	result, err := runDoctor(context.Background(), p, cfg, &buf, format)
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	return buf.String(), result
}

// ── table format tests ────────────────────────────────────────────────────────

func TestDoctorAllOK(t *testing.T) {
	out, result := runDoctorTo(t, goodMockAWS(), doctorConfig(""), "table")
	if !result.OverallHealthy {
		t.Error("expected OverallHealthy=true")
	}
	for _, want := range []string{
		"Credentials: OK",
		"STS Identity: OK (Account: 123456789012)",
		"Regions API: OK (2 active)",
		"default: OK",
		"Policy file: Not configured (optional)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q;\ngot:\n%s", want, out)
		}
	}
}

func TestDoctorAWSCredentialsFail(t *testing.T) {
	p := &mockAWSProvider{profileErr: errors.New("no credentials configured")}
	out, result := runDoctorTo(t, p, doctorConfig(""), "table")
	if result.OverallHealthy {
		t.Error("expected OverallHealthy=false")
	}
	if !strings.Contains(out, "Credentials: FAIL (no credentials configured)") {
		t.Errorf("expected credentials failure; got:\n%s", out)
	}
	if !strings.Contains(out, "Regions API: FAIL (skipped)") {
		t.Errorf("expected regions check skipped; got:\n%s", out)
	}
}

func TestDoctorAWSRegionsFail(t *testing.T) {
	p := &mockAWSProvider{
		profileResult: &common.ProfileConfig{AccountID: "111111111111", Region: "us-east-1"},
		regionsErr:    errors.New("EC2 API error"),
	}
	out, result := runDoctorTo(t, p, doctorConfig(""), "table")
	if result.OverallHealthy {
		t.Error("expected OverallHealthy=false")
	}
	if !strings.Contains(out, "Regions API: FAIL (EC2 API error)") {
		t.Errorf("expected regions failure; got:\n%s", out)
	}
}

func TestDoctorRulesetMissing(t *testing.T) {
	cfg := doctorConfig("")
	cfg.Ruleset = "no-such-ruleset"
	out, result := runDoctorTo(t, goodMockAWS(), cfg, "table")
	if result.OverallHealthy || result.Ruleset.OK {
		t.Error("expected ruleset failure")
	}
	if !strings.Contains(out, "no-such-ruleset: FAIL") {
		t.Errorf("expected ruleset failure line; got:\n%s", out)
	}
}

func TestDoctorPolicyValid(t *testing.T) {
	path := writeTestFile(t, "policy.yaml", "version: 1\nrules:\n  iam-unused-role: {severity: low}\n")
	out, result := runDoctorTo(t, goodMockAWS(), doctorConfig(path), "table")
	if !result.OverallHealthy || !result.Policy.Valid {
		t.Errorf("expected valid policy; got %+v", result.Policy)
	}
	if !strings.Contains(out, "Policy valid: OK") {
		t.Errorf("expected policy OK line; got:\n%s", out)
	}
}

func TestDoctorPolicyInvalid(t *testing.T) {
	path := writeTestFile(t, "policy.yaml", "version: 1\nrules:\n  NOT_A_RULE: {severity: low}\n")
	out, result := runDoctorTo(t, goodMockAWS(), doctorConfig(path), "table")
	if result.OverallHealthy {
		t.Error("expected OverallHealthy=false")
	}
	if !result.Policy.Present || result.Policy.Valid {
		t.Errorf("expected present but invalid policy; got %+v", result.Policy)
	}
	if !strings.Contains(out, "NOT_A_RULE") {
		t.Errorf("expected the unknown rule to be named; got:\n%s", out)
	}
}

func TestDoctorPolicyMissing(t *testing.T) {
	_, result := runDoctorTo(t, goodMockAWS(), doctorConfig("/nonexistent/policy.yaml"), "table")
	if result.OverallHealthy || result.Policy.Present {
		t.Errorf("expected missing policy to fail; got %+v", result.Policy)
	}
}

// ── JSON format tests ─────────────────────────────────────────────────────────

func TestDoctorJSON_AllOK(t *testing.T) {
	out, _ := runDoctorTo(t, goodMockAWS(), doctorConfig(""), "json")

	var decoded DoctorResult
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, out)
	}
	if !decoded.OverallHealthy || decoded.AWS.AccountID != "123456789012" || decoded.Ruleset.Rules == 0 {
		t.Errorf("unexpected JSON result: %+v", decoded)
	}
	for _, svc := range []string{"cloudtrail", "iam", "ec2", "rds", "s3"} {
		if decoded.Ruleset.PerService[svc] == 0 {
			t.Errorf("no rules counted for %s: %v", svc, decoded.Ruleset.PerService)
		}
	}
}

// ── cobra wiring ──────────────────────────────────────────────────────────────

func TestDoctorCmd_ProfileFlag(t *testing.T) {
	isolateEnv(t)
	p := goodMockAWS()
	out, err := execute(t, testDeps(p, &yamlCollector{}), "doctor", "--profile", "staging")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if p.lastProfile != "staging" {
		t.Errorf("LoadProfile got %q; want staging", p.lastProfile)
	}
	if !strings.Contains(out, "AWS (profile: staging):") {
		t.Errorf("expected profile header; got:\n%s", out)
	}
}

func TestDoctorCmd_UnhealthyReturnsError(t *testing.T) {
	isolateEnv(t)
	p := &mockAWSProvider{profileErr: errors.New("expired token")}
	_, err := execute(t, testDeps(p, &yamlCollector{}), "doctor")
	if err == nil || exitCode(err) != 1 {
		t.Fatalf("expected exit code 1 error; got %v", err)
	}
}
