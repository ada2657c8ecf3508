// Package config resolves the run configuration of the scout binary.
//
// Values are layered, highest precedence first: command-line flags,
// SCOUT_* environment variables, the config file, then built-in defaults.
// The config file lives at ~/.config/cloudscout/config.yaml unless --config
// names another file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/report"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
)

// EnvPrefix prefixes every environment variable read by Load,
// e.g. SCOUT_PROFILE or SCOUT_SKIP_SERVICES.
const EnvPrefix = "SCOUT"

// Config is the resolved run configuration. It never holds credentials;
// those come from the AWS credential chain.
type Config struct {
	// AWS
	Profile string   `mapstructure:"profile" yaml:"profile"`
	Regions []string `mapstructure:"regions" yaml:"regions"`

	// Service selection. Empty Services means every known service.
	Services     []string `mapstructure:"services" yaml:"services"`
	SkipServices []string `mapstructure:"skip_services" yaml:"skip_services"`

	// Ruleset is an embedded ruleset name or a directory under RulesetDir.
	Ruleset    string `mapstructure:"ruleset" yaml:"ruleset"`
	RulesetDir string `mapstructure:"ruleset_dir" yaml:"ruleset_dir"`

	// Snapshots
	Environment    string `mapstructure:"environment" yaml:"environment"`
	Local          bool   `mapstructure:"local" yaml:"local"`
	Force          bool   `mapstructure:"force" yaml:"force"`
	SnapshotDir    string `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
	SnapshotBucket string `mapstructure:"snapshot_bucket" yaml:"snapshot_bucket"`

	// Report
	MinSeverity string   `mapstructure:"min_severity" yaml:"min_severity"`
	Suppress    []string `mapstructure:"suppress" yaml:"suppress"`
	Policy      string   `mapstructure:"policy" yaml:"policy"`
	OutputDir   string   `mapstructure:"output_dir" yaml:"output_dir"`
	Format      string   `mapstructure:"format" yaml:"format"`

	// Runtime
	Workers      int    `mapstructure:"workers" yaml:"workers"`
	MaxAttempts  int    `mapstructure:"max_attempts" yaml:"max_attempts"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`
	OtelEndpoint string `mapstructure:"otel_endpoint" yaml:"otel_endpoint"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// DefaultPath returns ~/.config/cloudscout/config.yaml, or "" when the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cloudscout", "config.yaml")
}

// keys lists every configuration key. Each is bound to its environment
// variable explicitly; viper's Unmarshal ignores AutomaticEnv for keys it
// has not otherwise seen.
var keys = []string{
	"profile", "regions", "services", "skip_services", "ruleset", "ruleset_dir",
	"environment", "local", "force", "snapshot_dir", "snapshot_bucket",
	"min_severity", "suppress", "policy", "output_dir", "format",
	"workers", "max_attempts", "log_level", "otel_endpoint",
}

// flagKeys maps flags whose name differs from their key.
var flagKeys = map[string]string{
	"env": "environment",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ruleset", "default")
	v.SetDefault("snapshot_dir", "snapshots")
	v.SetDefault("output_dir", ".")
	v.SetDefault("format", "table")
	v.SetDefault("workers", 5)
	v.SetDefault("log_level", "info")
}

// Load resolves the configuration. path is the --config value; when empty
// the default path is read if it exists. flags may be nil. A flag named
// "skip-services" binds to the key "skip_services", and --env to
// "environment".
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || bindErr != nil {
				return
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	file := path
	if file == "" {
		if def := DefaultPath(); def != "" {
			if _, err := os.Stat(def); err == nil {
				file = def
			}
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := snapshot.CheckEnvironment(cfg.Environment); err != nil {
		return nil, err
	}
	cfg.File = file
	cfg.Regions = splitList(cfg.Regions)
	cfg.Services = splitList(cfg.Services)
	cfg.SkipServices = splitList(cfg.SkipServices)
	cfg.Suppress = splitList(cfg.Suppress)
	return &cfg, nil
}

// splitList flattens comma-separated entries and drops blanks, so
// "iam,ec2" and ["iam", "ec2"] read the same.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// ServiceList resolves the services analyzed this run: Services (or all
// known services) minus SkipServices, in priority order.
func (c *Config) ServiceList() ([]snapshot.Service, error) {
	services, err := snapshot.Select(c.Services, c.SkipServices)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, errors.New("list of services to analyze is empty")
	}
	return services, nil
}

// Filter returns the report filter given by min_severity and suppress.
func (c *Config) Filter() (report.Filter, error) {
	f := report.Filter{SuppressedRules: c.Suppress}
	if c.MinSeverity != "" {
		sev, err := models.ParseSeverity(c.MinSeverity)
		if err != nil {
			return report.Filter{}, fmt.Errorf("min_severity: %w", err)
		}
		f.MinSeverity = sev
	}
	return f, nil
}
