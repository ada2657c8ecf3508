package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/config"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/rulepacks"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/rules"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate rulesets",
	}
	cmd.PersistentFlags().String("ruleset", "", "Ruleset name (default: default)")
	cmd.PersistentFlags().String("ruleset-dir", "", "Directory holding <name>/*.yaml rulesets")
	cmd.AddCommand(newRulesListCmd())
	cmd.AddCommand(newRulesValidateCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the rules of a ruleset in load order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			rs, err := rulepacks.Load(cfg.Ruleset, cfg.RulesetDir)
			if err != nil {
				return err
			}
			list := rs.All()
			if service != "" {
				svc, err := snapshot.ParseService(service)
				if err != nil {
					return err
				}
				list = rs.ForService(svc)
			}
			printRules(cmd.OutOrStdout(), rs.Name, list)
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "Only list rules reading this service")
	return cmd
}

func printRules(w io.Writer, name string, list []*rules.Rule) {
	fmt.Fprintf(w, "Ruleset %s: %d rules\n\n", name, len(list))
	if len(list) == 0 {
		return
	}
	header := fmt.Sprintf("%-36s  %-10s  %-8s  %s", "ID", "SERVICE", "SEVERITY", "PATH")
	fmt.Fprintln(w, header)
	for _, r := range list {
		fmt.Fprintf(w, "%-36s  %-10s  %-8s  %s\n", r.ID, r.Service, r.Severity, r.Path)
	}
}

func newRulesValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a ruleset and, with --policy, validate a policy file against it",
		Long: `Load every rule of the ruleset, reporting definition errors, and check
a policy file's rule IDs, services and severities against that ruleset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			rs, err := rulepacks.Load(cfg.Ruleset, cfg.RulesetDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Ruleset %s: %d rules OK\n", rs.Name, rs.Len())

			if cfg.Policy == "" {
				return nil
			}
			if _, err := loadValidPolicy(cfg.Policy, rs); err != nil {
				return err
			}
			fmt.Fprintf(w, "Policy %s: OK\n", cfg.Policy)
			return nil
		},
	}
	cmd.Flags().String("policy", "", "Policy file to validate")
	return cmd
}
