package rules

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// newExprEnv declares the variables visible to expr conditions: node, the
// selected value as plain maps, lists and scalars, and now, the evaluation
// time.
func newExprEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("node", cel.DynType),
		cel.Variable("now", cel.TimestampType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return env, nil
}

type celProgram struct {
	source string
	prg    cel.Program
}

func compileExpr(env *cel.Env, source string) (*celProgram, error) {
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation error: %w", issues.Err())
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return &celProgram{source: source, prg: prg}, nil
}

func (p *celProgram) eval(n *tree.Node, env Env) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{
		"node": n.Interface(),
		"now":  env.Now,
	})
	if err != nil {
		if absentValue(err) {
			return false, nil
		}
		return false, fmt.Errorf("expr %q: %w", p.source, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expr %q: result %v is not a bool", p.source, out.Value())
	}
	return b, nil
}

// absentValue reports whether a CEL evaluation error came from selecting a
// field the node does not have. Such an expression is not satisfied; other
// runtime errors, like a type mismatch, stay errors.
func absentValue(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "no such key") || strings.HasPrefix(msg, "no such attribute")
}
