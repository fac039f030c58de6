package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// recordVar is the CEL variable a matched record is bound to.
const recordVar = "r"

// Matcher evaluates a predicate list against in-memory records.
// Records are field maps; every field referenced by the predicates must be present.
type Matcher struct {
	expr    string
	program cel.Program
}

var celEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable(recordVar, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create CEL environment: %v", err))
	}
	celEnv = env
}

// CompileMatcher compiles the conjunction of preds into a CEL program.
// An empty list matches everything.
func CompileMatcher(preds []Predicate) (*Matcher, error) {
	expr, err := celExpression(preds)
	if err != nil {
		return nil, err
	}

	ast, issues := celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile %q: %v", ErrInvalidQuery, expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrInvalidQuery, ast.OutputType())
	}

	program, err := celEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for %q: %w", expr, err)
	}

	return &Matcher{expr: expr, program: program}, nil
}

// Match reports whether the record satisfies every predicate.
func (m *Matcher) Match(record map[string]any) (bool, error) {
	out, _, err := m.program.Eval(map[string]any{recordVar: record})
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", m.expr, err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("evaluate %q: non-bool result %v", m.expr, out)
	}
	return bool(b), nil
}

// String returns the compiled CEL expression.
func (m *Matcher) String() string {
	return m.expr
}

func celExpression(preds []Predicate) (string, error) {
	if len(preds) == 0 {
		return "true", nil
	}

	terms := make([]string, 0, len(preds))
	for _, p := range preds {
		if err := p.Validate(); err != nil {
			return "", err
		}
		if !isIdent(p.Field) {
			return "", fmt.Errorf("%w: bad field name %q", ErrInvalidQuery, p.Field)
		}
		field := recordVar + "." + p.Field

		if p.Op == OpIn {
			lits := make([]string, 0, len(p.Values))
			for _, v := range p.Values {
				lit, err := celLiteral(v)
				if err != nil {
					return "", err
				}
				lits = append(lits, lit)
			}
			terms = append(terms, field+" in ["+strings.Join(lits, ", ")+"]")
			continue
		}

		lit, err := celLiteral(p.Value)
		if err != nil {
			return "", err
		}
		terms = append(terms, field+" "+celOperators[p.Op]+" "+lit)
	}
	return strings.Join(terms, " && "), nil
}

var celOperators = map[Op]string{
	OpEq: "==",
	OpNe: "!=",
	OpGt: ">",
	OpGe: ">=",
	OpLt: "<",
	OpLe: "<=",
}

func celLiteral(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		return strconv.Quote(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s, nil
	default:
		return "", fmt.Errorf("%w: unsupported literal %T", ErrInvalidQuery, v)
	}
}
