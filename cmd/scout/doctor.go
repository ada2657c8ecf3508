package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/config"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/rulepacks"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
)

// DoctorResult holds the outcome of each doctor check: AWS access, the
// selected ruleset and the optional policy file.
type DoctorResult struct {
	AWS struct {
		Profile     string `json:"profile,omitempty"`
		Credentials bool   `json:"credentials_ok"`
		AccountID   string `json:"account_id,omitempty"`
		RegionsOK   bool   `json:"regions_ok"`
		Regions     int    `json:"regions,omitempty"`
		Error       string `json:"error,omitempty"`
	} `json:"aws"`

	Ruleset struct {
		Name       string         `json:"name"`
		OK         bool           `json:"ok"`
		Rules      int            `json:"rules"`
		PerService map[string]int `json:"per_service,omitempty"`
		Error      string         `json:"error,omitempty"`
	} `json:"ruleset"`

	Policy struct {
		Path    string   `json:"path,omitempty"`
		Present bool     `json:"present"`
		Valid   bool     `json:"valid"`
		Errors  []string `json:"errors,omitempty"`
	} `json:"policy"`

	OverallHealthy bool `json:"overall_healthy"`
}

func newDoctorCmd(d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run environment diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("output")
			result, err := runDoctor(cmd.Context(), d.newProvider(cfg.MaxAttempts), cfg, cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}
			if !result.OverallHealthy {
				return &exitError{code: 1, err: fmt.Errorf("environment is not healthy")}
			}
			return nil
		},
	}
	cmd.Flags().String("output", "table", `Output format: "table" or "json"`)
	cmd.Flags().String("profile", "", "AWS profile to use (default: credential chain)")
	cmd.Flags().String("ruleset", "", "Ruleset name (default: default)")
	cmd.Flags().String("ruleset-dir", "", "Directory holding <name>/*.yaml rulesets")
	cmd.Flags().String("policy", "", "Policy file to check")
	return cmd
}

// runDoctor runs the checks and writes them to w as a table or as JSON.
// An error means only that rendering failed; health is in the result.
func runDoctor(ctx context.Context, provider common.AWSClientProvider, cfg *config.Config, w io.Writer, format string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, provider, cfg)
	if format != "json" {
		renderDoctorTable(result, w)
		return result, nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return result, fmt.Errorf("encode doctor result: %w", err)
	}
	return result, nil
}

func collectDoctorResult(ctx context.Context, provider common.AWSClientProvider, cfg *config.Config) DoctorResult {
	var result DoctorResult

	// A failed profile load skips region discovery.
	result.AWS.Profile = cfg.Profile
	if profile, err := provider.LoadProfile(ctx, cfg.Profile); err != nil {
		result.AWS.Error = err.Error()
	} else {
		result.AWS.Credentials = true
		result.AWS.AccountID = profile.AccountID
		if regions, err := provider.GetActiveRegions(ctx, profile); err != nil {
			result.AWS.Error = err.Error()
		} else {
			result.AWS.RegionsOK = true
			result.AWS.Regions = len(regions)
		}
	}

	result.Ruleset.Name = cfg.Ruleset
	rs, err := rulepacks.Load(cfg.Ruleset, cfg.RulesetDir)
	if err != nil {
		result.Ruleset.Error = err.Error()
	} else {
		result.Ruleset.OK = true
		result.Ruleset.Rules = rs.Len()
		result.Ruleset.PerService = make(map[string]int)
		for _, svc := range snapshot.Priority {
			if n := len(rs.ForService(svc)); n > 0 {
				result.Ruleset.PerService[string(svc)] = n
			}
		}
	}

	result.Policy.Path = cfg.Policy
	switch {
	case cfg.Policy == "":
	case rs == nil:
		result.Policy.Present = fileExists(cfg.Policy)
		result.Policy.Errors = []string{"ruleset did not load"}
	default:
		_, err := loadValidPolicy(cfg.Policy, rs)
		result.Policy.Present = !errors.Is(err, fs.ErrNotExist)
		if err != nil {
			result.Policy.Errors = strings.Split(err.Error(), "\n")
		} else {
			result.Policy.Valid = true
		}
	}

	result.OverallHealthy = result.AWS.Credentials && result.AWS.RegionsOK &&
		result.Ruleset.OK && (cfg.Policy == "" || result.Policy.Valid)
	return result
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "scout doctor")

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	switch {
	case !result.AWS.Credentials:
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "STS Identity", "FAIL", "skipped")
		doctorPrint(w, "Regions API", "FAIL", "skipped")
	case result.AWS.RegionsOK:
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
		doctorPrint(w, "Regions API", "OK", fmt.Sprintf("%d active", result.AWS.Regions))
	default:
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
		doctorPrint(w, "Regions API", "FAIL", result.AWS.Error)
	}

	fmt.Fprintln(w, "\nRuleset:")
	if !result.Ruleset.OK {
		doctorPrint(w, result.Ruleset.Name, "FAIL", result.Ruleset.Error)
	} else {
		doctorPrint(w, result.Ruleset.Name, "OK", fmt.Sprintf("%d rules", result.Ruleset.Rules))
		for _, svc := range snapshot.Priority {
			if n, ok := result.Ruleset.PerService[string(svc)]; ok {
				fmt.Fprintf(w, "    %-10s %d\n", svc, n)
			}
		}
	}

	fmt.Fprintln(w, "\nPolicy:")
	switch {
	case result.Policy.Path == "":
		doctorPrint(w, "Policy file", "Not configured (optional)", "")
	case result.Policy.Valid:
		doctorPrint(w, "Policy valid", "OK", result.Policy.Path)
	default:
		for _, e := range result.Policy.Errors {
			doctorPrint(w, "Policy valid", "FAIL", e)
		}
	}
}

// doctorPrint writes one check line; detail, when set, goes in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail == "" {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
		return
	}
	fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
}
