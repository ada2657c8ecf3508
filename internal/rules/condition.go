package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// Env carries run-wide inputs to condition evaluation.
type Env struct {
	// Now is the reference time for age checks.
	Now time.Time
}

// Condition is a pure predicate over a matched node. A true result means
// the rule is violated at that node.
//
// Absent fields and values of an unexpected shape make a condition false
// rather than failing; an error is returned only when the rule asks for a
// comparison that has no meaning for the value found, such as ordering a
// non-numeric string.
type Condition interface {
	Eval(n *tree.Node, env Env) (bool, error)
}

type allOf []Condition

func (c allOf) Eval(n *tree.Node, env Env) (bool, error) {
	for _, sub := range c {
		ok, err := sub.Eval(n, env)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

type anyOf []Condition

func (c anyOf) Eval(n *tree.Node, env Env) (bool, error) {
	for _, sub := range c {
		ok, err := sub.Eval(n, env)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type notOf struct{ inner Condition }

func (c notOf) Eval(n *tree.Node, env Env) (bool, error) {
	ok, err := c.inner.Eval(n, env)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Atomic operators.
const (
	opEqual         = "equal"
	opNotEqual      = "notEqual"
	opIn            = "in"
	opNotIn         = "notIn"
	opContains      = "contains"
	opGT            = "gt"
	opGTE           = "gte"
	opLT            = "lt"
	opLTE           = "lte"
	opEmpty         = "empty"
	opNotEmpty      = "notEmpty"
	opExists        = "exists"
	opAbsent        = "absent"
	opTrue          = "true"
	opFalse         = "false"
	opMatch         = "match"
	opOlderThanDays = "olderThanDays"
	opExpr          = "expr"
)

// atom is a single comparison applied to the nodes selected by field,
// relative to the matched node. With wildcards in field the atom holds when
// any selected node satisfies it.
type atom struct {
	op    string
	field tree.Pattern
	value *tree.Node
	set   []*tree.Node
	num   float64
	re    *regexp.Regexp
	expr  *celProgram
}

func (a *atom) targets(n *tree.Node) []*tree.Node {
	if len(a.field) == 0 {
		if n == nil {
			return nil
		}
		return []*tree.Node{n}
	}
	matches := tree.MatchAll(n, a.field)
	out := make([]*tree.Node, len(matches))
	for i, m := range matches {
		out[i] = m.Node
	}
	return out
}

func (a *atom) Eval(n *tree.Node, env Env) (bool, error) {
	targets := a.targets(n)
	switch a.op {
	case opAbsent:
		return len(targets) == 0, nil
	case opExists:
		return len(targets) > 0, nil
	case opEmpty:
		if len(targets) == 0 {
			return true, nil
		}
		for _, t := range targets {
			if isEmpty(t) {
				return true, nil
			}
		}
		return false, nil
	case opNotEmpty:
		for _, t := range targets {
			if !isEmpty(t) {
				return true, nil
			}
		}
		return false, nil
	}
	for _, t := range targets {
		ok, err := a.test(t, env)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (a *atom) test(t *tree.Node, env Env) (bool, error) {
	switch a.op {
	case opEqual:
		return scalarEqual(t, a.value), nil
	case opNotEqual:
		return isScalar(t) && !scalarEqual(t, a.value), nil
	case opIn:
		return inSet(t, a.set), nil
	case opNotIn:
		return isScalar(t) && !inSet(t, a.set), nil
	case opContains:
		return contains(t, a.value), nil
	case opGT, opGTE, opLT, opLTE:
		return a.order(t)
	case opTrue, opFalse:
		b, ok := asBool(t)
		return ok && b == (a.op == opTrue), nil
	case opMatch:
		return isScalar(t) && a.re.MatchString(t.Text()), nil
	case opOlderThanDays:
		return a.olderThan(t, env)
	case opExpr:
		return a.expr.eval(t, env)
	default:
		return false, fmt.Errorf("unknown operator %q", a.op)
	}
}

func (a *atom) order(t *tree.Node) (bool, error) {
	if !isScalar(t) {
		return false, nil
	}
	f, ok := asNumber(t)
	if !ok {
		return false, fmt.Errorf("%s: cannot compare %s %q with number %v", a.op, t.Kind(), t.Text(), a.num)
	}
	switch a.op {
	case opGT:
		return f > a.num, nil
	case opGTE:
		return f >= a.num, nil
	case opLT:
		return f < a.num, nil
	default:
		return f <= a.num, nil
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02",
}

func (a *atom) olderThan(t *tree.Node, env Env) (bool, error) {
	if !isScalar(t) {
		return false, nil
	}
	s, ok := t.Str()
	if !ok {
		return false, fmt.Errorf("%s: %s value %q is not a timestamp", a.op, t.Kind(), t.Text())
	}
	ts, err := parseTimestamp(s)
	if err != nil {
		return false, fmt.Errorf("%s: %w", a.op, err)
	}
	limit := time.Duration(a.num * float64(24*time.Hour))
	return env.Now.Sub(ts) > limit, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("value %q is not a timestamp", s)
}

// isScalar reports whether n is a non-null leaf.
func isScalar(n *tree.Node) bool {
	return n.IsLeaf() && n.Kind() != tree.KindNull
}

func isEmpty(n *tree.Node) bool {
	switch n.Kind() {
	case tree.KindNull:
		return true
	case tree.KindString, tree.KindMap, tree.KindSeq:
		return n.Len() == 0
	default:
		return false
	}
}

func asNumber(n *tree.Node) (float64, bool) {
	if f, ok := n.Num(); ok {
		return f, true
	}
	if s, ok := n.Str(); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

func asBool(n *tree.Node) (bool, bool) {
	if b, ok := n.BoolValue(); ok {
		return b, true
	}
	if s, ok := n.Str(); ok {
		switch {
		case strings.EqualFold(s, "true"):
			return true, true
		case strings.EqualFold(s, "false"):
			return false, true
		}
	}
	return false, false
}

// scalarEqual compares a node with a rule operand, coercing numeric and
// boolean strings to the operand's kind.
func scalarEqual(n, want *tree.Node) bool {
	switch want.Kind() {
	case tree.KindNull:
		return n.Kind() == tree.KindNull
	case tree.KindString:
		return isScalar(n) && n.Text() == want.Text()
	case tree.KindNumber:
		f, ok := asNumber(n)
		w, _ := want.Num()
		return ok && f == w
	case tree.KindBool:
		b, ok := asBool(n)
		w, _ := want.BoolValue()
		return ok && b == w
	default:
		return false
	}
}

func inSet(n *tree.Node, set []*tree.Node) bool {
	for _, v := range set {
		if scalarEqual(n, v) {
			return true
		}
	}
	return false
}

// contains checks sequence membership, substring or mapping key,
// depending on the shape of n.
func contains(n, want *tree.Node) bool {
	switch n.Kind() {
	case tree.KindSeq:
		for _, it := range n.Items() {
			if scalarEqual(it, want) {
				return true
			}
		}
		return false
	case tree.KindString:
		s, _ := n.Str()
		return strings.Contains(s, want.Text())
	case tree.KindMap:
		_, ok := n.Child(want.Text())
		return ok
	default:
		return false
	}
}
