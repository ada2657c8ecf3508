package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// ruleFile is the on-disk form of one ruleset file.
type ruleFile struct {
	// Service is the default service of rules in this file.
	Service string    `yaml:"service"`
	Rules   []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	ID          string    `yaml:"id"`
	Service     string    `yaml:"service"`
	Path        string    `yaml:"path"`
	Severity    string    `yaml:"severity"`
	Description string    `yaml:"description"`
	Remediation string    `yaml:"remediation"`
	Items       []string  `yaml:"items"`
	Condition   yaml.Node `yaml:"condition"`
}

// LoadDir loads the ruleset stored in <dir>/<name>.
func LoadDir(dir, name string) (*Ruleset, error) {
	root := filepath.Join(dir, name)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("ruleset %q: %w", name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ruleset %q: %s is not a directory", name, root)
	}
	return Load(os.DirFS(root), name)
}

// Load reads every .yaml/.yml file at the top of fsys, in file-name order,
// and returns the named ruleset. Rules keep their order within each file.
// Any malformed rule aborts loading with a *RuleDefinitionError.
func Load(fsys fs.FS, name string) (*Ruleset, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("ruleset %q: %w", name, err)
	}
	var files []string
	for _, e := range entries {
		ext := path.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("ruleset %q: no rule files found", name)
	}

	celEnv, err := newExprEnv()
	if err != nil {
		return nil, err
	}

	rs := NewRuleset(name)
	sources := make(map[string]string)
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("ruleset %q: %w", name, err)
		}
		var doc ruleFile
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, &RuleDefinitionError{File: file, Field: "rules", Reason: err.Error()}
		}
		for i := range doc.Rules {
			rule, err := buildRule(&doc.Rules[i], doc.Service, file, celEnv)
			if err != nil {
				return nil, err
			}
			if prev, dup := sources[rule.ID]; dup {
				return nil, &RuleDefinitionError{RuleID: rule.ID, File: file, Field: "id",
					Reason: fmt.Sprintf("duplicate rule id (first defined in %s)", prev)}
			}
			sources[rule.ID] = file
			if err := rs.add(rule); err != nil {
				return nil, err
			}
		}
	}
	return rs, nil
}

func buildRule(d *ruleDoc, fileService, file string, celEnv *cel.Env) (*Rule, error) {
	fail := func(field, format string, args ...any) error {
		return &RuleDefinitionError{RuleID: d.ID, File: file, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(d.ID) == "" {
		return nil, fail("id", "rule identifier is required")
	}

	svcName := d.Service
	if svcName == "" {
		svcName = fileService
	}
	if svcName == "" {
		return nil, fail("service", "service is required")
	}
	svc, err := snapshot.ParseService(svcName)
	if err != nil {
		return nil, fail("service", "%v", err)
	}

	if strings.TrimSpace(d.Path) == "" {
		return nil, fail("path", "path pattern is required")
	}
	pattern, err := tree.ParsePattern(d.Path)
	if err != nil {
		return nil, fail("path", "%v", err)
	}
	if len(pattern) == 0 || pattern[0].Kind != tree.MatchKey || pattern[0].Key != svc.Label() {
		return nil, fail("path", "pattern must start with %q for service %s", svc.Label(), svc)
	}

	if d.Severity == "" {
		return nil, fail("severity", "severity is required")
	}
	sev, err := models.ParseSeverity(d.Severity)
	if err != nil {
		return nil, fail("severity", "%v", err)
	}

	items := make([]tree.Pattern, 0, len(d.Items))
	for i, raw := range d.Items {
		p, err := tree.ParsePattern(raw)
		if err != nil || len(p) == 0 {
			return nil, fail(fmt.Sprintf("items[%d]", i), "invalid item path %q", raw)
		}
		items = append(items, p)
	}

	cp := &conditionParser{ruleID: d.ID, file: file, cel: celEnv}
	cond, err := cp.parse(&d.Condition, "condition")
	if err != nil {
		return nil, err
	}

	return &Rule{
		ID:          d.ID,
		Service:     svc,
		Path:        d.Path,
		Pattern:     pattern,
		Severity:    sev,
		Description: strings.TrimSpace(d.Description),
		Remediation: strings.TrimSpace(d.Remediation),
		Condition:   cond,
		Items:       items,
		Source:      file,
	}, nil
}
