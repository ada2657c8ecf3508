// Package rulepacks ships the built-in rulesets.
//
// Convention: every embedded ruleset lives in internal/rulepacks/<name>/ as
// one YAML file per service, prefixed with a number that fixes load order.
// A ruleset directory given on the command line takes precedence over an
// embedded ruleset of the same name.
package rulepacks

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/rules"
)

// DefaultName is the ruleset used when none is configured.
const DefaultName = "default"

//go:embed default/*.yaml
var embedded embed.FS

// Names returns the embedded ruleset names in sorted order.
func Names() []string {
	entries, err := fs.ReadDir(embedded, ".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Load resolves name to <dir>/<name> when dir holds such a directory, and
// to the embedded ruleset otherwise.
func Load(name, dir string) (*rules.Ruleset, error) {
	if name == "" {
		name = DefaultName
	}
	if dir != "" {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && info.IsDir() {
			return rules.LoadDir(dir, name)
		}
	}
	if _, err := fs.Stat(embedded, name); err != nil {
		return nil, fmt.Errorf("ruleset %q not found (embedded: %v)", name, Names())
	}
	sub, err := fs.Sub(embedded, name)
	if err != nil {
		return nil, fmt.Errorf("ruleset %q: %w", name, err)
	}
	return rules.Load(sub, name)
}
