// Package guard compiles handler guard expressions (CEL) and classifies the
// constructs in them that are not deterministic under replay.
package guard

import (
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Issue rule codes.
const (
	RuleClockRead    = "clock_read"
	RuleRandomness   = "randomness"
	RuleFloatLiteral = "float_literal"
	RuleMapIteration = "map_iteration"
)

// Issue is one nondeterministic construct found in an expression.
type Issue struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Env is the guard expression environment. Guards see the handler id, the
// merged contract fields and the invocation input. It is immutable and safe
// for concurrent use.
type Env struct {
	env *cel.Env
}

func NewEnv() (*Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("handler", cel.StringType),
		cel.Variable("fields", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
		// Declared so guards using them type-check; the determinism check
		// rejects them.
		cel.Function("now", cel.Overload("now_timestamp", []*cel.Type{}, cel.TimestampType)),
		cel.Function("random", cel.Overload("random_int", []*cel.Type{}, cel.IntType)),
		cel.Function("keys",
			cel.MemberOverload("map_keys", []*cel.Type{cel.MapType(cel.DynType, cel.DynType)}, cel.ListType(cel.DynType))),
		cel.Function("values",
			cel.MemberOverload("map_values", []*cel.Type{cel.MapType(cel.DynType, cel.DynType)}, cel.ListType(cel.DynType))),
	)
	if err != nil {
		return nil, fmt.Errorf("guard: build cel env: %w", err)
	}
	return &Env{env: env}, nil
}

// Compile parses and type-checks expr. Guards must evaluate to bool.
func (e *Env) Compile(expr string) error {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return fmt.Errorf("guard must evaluate to bool, got %s", out)
	}
	return nil
}

// Inspect parses expr and reports nondeterministic constructs, sorted by
// rule. A parse failure is returned as an error.
func (e *Env) Inspect(expr string) ([]Issue, error) {
	parsed, issues := e.env.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	var found []Issue
	walk(parsed.Expr(), &found) //nolint:staticcheck // exprpb walk until the native AST settles
	sort.SliceStable(found, func(i, j int) bool { return found[i].Rule < found[j].Rule })
	return found, nil
}

func walk(e *exprpb.Expr, issues *[]Issue) {
	if e == nil {
		return
	}

	switch k := e.ExprKind.(type) {
	case *exprpb.Expr_ConstExpr:
		if _, ok := k.ConstExpr.ConstantKind.(*exprpb.Constant_DoubleValue); ok {
			*issues = append(*issues, Issue{Rule: RuleFloatLiteral, Message: "floating point literals are not replay-stable"})
		}

	case *exprpb.Expr_CallExpr:
		call := k.CallExpr
		switch call.Function {
		case "now":
			*issues = append(*issues, Issue{Rule: RuleClockRead, Message: "now() reads the wall clock"})
		case "random":
			*issues = append(*issues, Issue{Rule: RuleRandomness, Message: "random() is not replay-stable"})
		case "keys", "values":
			*issues = append(*issues, Issue{Rule: RuleMapIteration, Message: call.Function + "() iterates a map in unspecified order"})
		}
		walk(call.Target, issues)
		for _, arg := range call.Args {
			walk(arg, issues)
		}

	case *exprpb.Expr_SelectExpr:
		walk(k.SelectExpr.Operand, issues)

	case *exprpb.Expr_ListExpr:
		for _, el := range k.ListExpr.Elements {
			walk(el, issues)
		}

	case *exprpb.Expr_StructExpr:
		for _, entry := range k.StructExpr.Entries {
			if entry.GetMapKey() != nil {
				walk(entry.GetMapKey(), issues)
			}
			walk(entry.Value, issues)
		}

	case *exprpb.Expr_ComprehensionExpr:
		comp := k.ComprehensionExpr
		walk(comp.IterRange, issues)
		walk(comp.AccuInit, issues)
		walk(comp.LoopCondition, issues)
		walk(comp.LoopStep, issues)
		walk(comp.Result, issues)
	}
}
