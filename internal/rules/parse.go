package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

var unaryOps = map[string]bool{
	opEmpty: true, opNotEmpty: true, opExists: true, opAbsent: true, opTrue: true, opFalse: true,
}

var operandOps = map[string]bool{
	opEqual: true, opNotEqual: true, opIn: true, opNotIn: true, opContains: true,
	opGT: true, opGTE: true, opLT: true, opLTE: true,
	opMatch: true, opOlderThanDays: true, opExpr: true,
}

// conditionParser turns the YAML form of a condition into a Condition.
// Errors are reported as *RuleDefinitionError for ruleID.
type conditionParser struct {
	ruleID string
	file   string
	cel    *cel.Env
}

func (p *conditionParser) fail(field, format string, args ...any) error {
	return &RuleDefinitionError{RuleID: p.ruleID, File: p.file, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// parse reads one condition. Every condition is a mapping with exactly one
// key: all, any, not or an atomic operator.
func (p *conditionParser) parse(y *yaml.Node, field string) (Condition, error) {
	if y == nil || y.Kind == 0 {
		return nil, p.fail(field, "condition is required")
	}
	if y.Kind == yaml.AliasNode {
		return p.parse(y.Alias, field)
	}
	if y.Kind != yaml.MappingNode || len(y.Content) != 2 {
		return nil, p.fail(field, "condition must be a mapping with exactly one operator (line %d)", y.Line)
	}
	op, arg := y.Content[0].Value, y.Content[1]
	at := field + "." + op

	switch op {
	case "all", "any":
		if arg.Kind != yaml.SequenceNode || len(arg.Content) == 0 {
			return nil, p.fail(at, "expects a non-empty list of conditions")
		}
		subs := make([]Condition, 0, len(arg.Content))
		for i, c := range arg.Content {
			sub, err := p.parse(c, fmt.Sprintf("%s[%d]", at, i))
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
		if op == "all" {
			return allOf(subs), nil
		}
		return anyOf(subs), nil
	case "not":
		inner, err := p.parse(arg, at)
		if err != nil {
			return nil, err
		}
		return notOf{inner: inner}, nil
	}

	switch {
	case unaryOps[op]:
		return p.parseUnary(op, arg, at)
	case operandOps[op]:
		return p.parseOperand(op, arg, at)
	default:
		return nil, p.fail(at, "unknown operator %q", op)
	}
}

// parseUnary accepts `op: Field.Path`, `op:` (the matched node itself) or
// `op: {field: Field.Path}`.
func (p *conditionParser) parseUnary(op string, arg *yaml.Node, at string) (Condition, error) {
	a := &atom{op: op}
	switch arg.Kind {
	case yaml.ScalarNode:
		if arg.ShortTag() != "!!null" {
			if err := p.setField(a, arg.Value, at); err != nil {
				return nil, err
			}
		}
	case yaml.MappingNode:
		fields, err := p.operandFields(arg, at)
		if err != nil {
			return nil, err
		}
		if _, ok := fields["value"]; ok {
			return nil, p.fail(at, "operator takes no value")
		}
		if f, ok := fields["field"]; ok {
			if err := p.setField(a, f.Value, at); err != nil {
				return nil, err
			}
		}
	default:
		return nil, p.fail(at, "expects a field path or {field: ...}")
	}
	return a, nil
}

// parseOperand accepts `op: {field: Field.Path, value: X}`. For expr a bare
// string is the expression itself.
func (p *conditionParser) parseOperand(op string, arg *yaml.Node, at string) (Condition, error) {
	a := &atom{op: op}
	var value *yaml.Node
	switch {
	case arg.Kind == yaml.MappingNode:
		fields, err := p.operandFields(arg, at)
		if err != nil {
			return nil, err
		}
		if f, ok := fields["field"]; ok {
			if err := p.setField(a, f.Value, at); err != nil {
				return nil, err
			}
		}
		value = fields["value"]
	case op == opExpr && arg.Kind == yaml.ScalarNode:
		value = arg
	default:
		return nil, p.fail(at, "expects {field: ..., value: ...}")
	}
	if value == nil {
		return nil, p.fail(at, "value is required")
	}

	switch op {
	case opEqual, opNotEqual, opContains:
		v, err := p.scalar(value, at)
		if err != nil {
			return nil, err
		}
		a.value = v
	case opIn, opNotIn:
		if value.Kind != yaml.SequenceNode || len(value.Content) == 0 {
			return nil, p.fail(at+".value", "expects a non-empty list of scalars")
		}
		for _, item := range value.Content {
			v, err := p.scalar(item, at)
			if err != nil {
				return nil, err
			}
			a.set = append(a.set, v)
		}
	case opGT, opGTE, opLT, opLTE, opOlderThanDays:
		v, err := p.scalar(value, at)
		if err != nil {
			return nil, err
		}
		f, ok := v.Num()
		if !ok {
			return nil, p.fail(at+".value", "expects a number, got %s %q", v.Kind(), v.Text())
		}
		if op == opOlderThanDays && f < 0 {
			return nil, p.fail(at+".value", "expects a non-negative number of days")
		}
		a.num = f
	case opMatch:
		re, err := regexp.Compile(value.Value)
		if err != nil || value.Kind != yaml.ScalarNode {
			return nil, p.fail(at+".value", "invalid regular expression %q", value.Value)
		}
		a.re = re
	case opExpr:
		if value.Kind != yaml.ScalarNode || strings.TrimSpace(value.Value) == "" {
			return nil, p.fail(at, "expects a CEL expression string")
		}
		prg, err := compileExpr(p.cel, value.Value)
		if err != nil {
			return nil, p.fail(at, "%v", err)
		}
		a.expr = prg
	}
	return a, nil
}

func (p *conditionParser) operandFields(y *yaml.Node, at string) (map[string]*yaml.Node, error) {
	out := make(map[string]*yaml.Node, 2)
	for i := 0; i+1 < len(y.Content); i += 2 {
		k := y.Content[i].Value
		if k != "field" && k != "value" {
			return nil, p.fail(at, "unknown key %q (expected field or value)", k)
		}
		out[k] = y.Content[i+1]
	}
	return out, nil
}

func (p *conditionParser) setField(a *atom, raw, at string) error {
	if raw == "" || raw == "." {
		return nil
	}
	pat, err := tree.ParsePattern(raw)
	if err != nil {
		return p.fail(at+".field", "%v", err)
	}
	a.field = pat
	return nil
}

func (p *conditionParser) scalar(y *yaml.Node, at string) (*tree.Node, error) {
	if y.Kind != yaml.ScalarNode {
		return nil, p.fail(at+".value", "expects a scalar (line %d)", y.Line)
	}
	n, err := tree.FromYAML(y)
	if err != nil {
		return nil, p.fail(at+".value", "%v", err)
	}
	return n, nil
}
