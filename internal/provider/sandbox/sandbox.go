// Package sandbox implements the restricted source-execution environment
// spec §7 requires in place of the original system's unrestricted exec().
// It is a small tree-walking interpreter over a minimal, safelisted
// expression language: assignment, arithmetic, comparisons, list/dict
// literals, indexing, and calls to a fixed set of builtin and math
// functions. There is no import statement, no attribute access, and no way
// to reach the filesystem, network, or a subprocess — those primitives
// simply do not exist in the grammar, so "disallowing" them is a structural
// property rather than a runtime check.
package sandbox

import (
	"fmt"
	"math"
)

// Result is everything the sandbox bound during execution, keyed by
// variable name. The source must define "circuit"; CircuitSymbol returns it
// pre-extracted for convenience.
type Result struct {
	Vars map[string]any
}

// CircuitSymbol returns the required "circuit" binding, or an error if it
// is missing. A missing circuit is an InvalidTask condition at the caller.
func (r Result) CircuitSymbol() (any, error) {
	v, ok := r.Vars["circuit"]
	if !ok {
		return nil, fmt.Errorf("sandbox: source does not define %q", "circuit")
	}
	return v, nil
}

// builtins is the whitelist of callable names, per spec §7: print and basic
// container/number/string constructors, plus range/len/sum/min/max/abs/
// enumerate/zip. Anything not in this map or in mathFuncs is an undefined
// name at call time — there is no fallback to a wider namespace.
var builtins map[string]func([]any) (any, error)

// mathFuncs is the whitelist of unary math functions callable by name. pi
// is not in it: the parser resolves the bare name pi to the constant mathPi.
var mathFuncs = map[string]func(float64) float64{
	"sqrt": math.Sqrt,
	"sin":  math.Sin,
	"cos":  math.Cos,
	"exp":  math.Exp,
	"log":  math.Log,
}

const mathPi = math.Pi

func init() {
	builtins = map[string]func([]any) (any, error){
		"print": func(args []any) (any, error) { return nil, nil },
		"int":   func(args []any) (any, error) { return toInt(arg0(args)) },
		"float": func(args []any) (any, error) { return toFloat(arg0(args)) },
		"str":   func(args []any) (any, error) { return fmt.Sprint(arg0(args)), nil },
		"list":  func(args []any) (any, error) { return toList(arg0(args)) },
		"dict":  func(args []any) (any, error) { return map[string]any{}, nil },
		"range": builtinRange,
		"len":   builtinLen,
		"sum":   builtinSum,
		"min":   builtinMinMax(false),
		"max":   builtinMinMax(true),
		"abs":   builtinAbs,
		"enumerate": func(args []any) (any, error) {
			list, err := toList(arg0(args))
			if err != nil {
				return nil, err
			}
			out := make([]any, len(list))
			for i, v := range list {
				out[i] = []any{i, v}
			}
			return out, nil
		},
		"zip": builtinZip,
	}
}

func arg0(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

// Run parses and evaluates source, returning every top-level binding.
// Evaluation is pure: the sandbox has no side-effecting builtins, so a
// successful Run is deterministic given its source text.
func Run(source string) (Result, error) {
	stmts, err := parse(source)
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: parse: %w", err)
	}
	env := newEnv()
	for _, s := range stmts {
		if err := execStmt(env, s); err != nil {
			return Result{}, fmt.Errorf("sandbox: exec: %w", err)
		}
	}
	return Result{Vars: env.vars}, nil
}
