// Package formula evaluates administrator-authored arithmetic expressions
// against a map of named numeric inputs. The language is deliberately
// closed: the four arithmetic operators, parentheses, numeric literals,
// dependency identifiers, and a fixed allow-list of pure math functions.
// Anything else fails static inspection before evaluation runs, and
// evaluating the same expression against the same inputs always yields the
// same result.
package formula

import (
	"fmt"
	"math"
	"sort"
)

type function struct {
	minArgs int
	maxArgs int // -1 for variadic
	apply   func(args []float64) (float64, error)
}

func (f function) checkArity(name string, n int) error {
	if n < f.minArgs || (f.maxArgs >= 0 && n > f.maxArgs) {
		if f.minArgs == f.maxArgs {
			return &SyntaxError{Message: fmt.Sprintf("%s requires %d argument(s)", name, f.minArgs)}
		}
		return &SyntaxError{Message: fmt.Sprintf("%s requires at least %d argument(s)", name, f.minArgs)}
	}
	return nil
}

// functions is the closed allow-list of pure math functions
var functions = map[string]function{
	"POW": {minArgs: 2, maxArgs: 2, apply: func(args []float64) (float64, error) {
		return math.Pow(args[0], args[1]), nil
	}},
	"SQRT": {minArgs: 1, maxArgs: 1, apply: func(args []float64) (float64, error) {
		return math.Sqrt(args[0]), nil
	}},
	"ROUND": {minArgs: 1, maxArgs: 2, apply: func(args []float64) (float64, error) {
		if len(args) == 1 {
			return math.Round(args[0]), nil
		}
		mult := math.Pow(10, math.Trunc(args[1]))
		return math.Round(args[0]*mult) / mult, nil
	}},
	"FLOOR": {minArgs: 1, maxArgs: 1, apply: func(args []float64) (float64, error) {
		return math.Floor(args[0]), nil
	}},
	"CEIL": {minArgs: 1, maxArgs: 1, apply: func(args []float64) (float64, error) {
		return math.Ceil(args[0]), nil
	}},
	"ABS": {minArgs: 1, maxArgs: 1, apply: func(args []float64) (float64, error) {
		return math.Abs(args[0]), nil
	}},
	"MIN": {minArgs: 2, maxArgs: -1, apply: func(args []float64) (float64, error) {
		min := args[0]
		for _, a := range args[1:] {
			min = math.Min(min, a)
		}
		return min, nil
	}},
	"MAX": {minArgs: 2, maxArgs: -1, apply: func(args []float64) (float64, error) {
		max := args[0]
		for _, a := range args[1:] {
			max = math.Max(max, a)
		}
		return max, nil
	}},
}

// FunctionNames returns the allow-listed function names, sorted
func FunctionNames() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Formula is a parsed, statically checked expression ready for evaluation
type Formula struct {
	expression string
	root       node
	idents     []string
}

// Parse lexes and parses the expression. Unsupported operators, unknown
// functions, and any construct outside the language are rejected here.
func Parse(expression string) (*Formula, error) {
	tokens, err := newLexer(expression).tokenize()
	if err != nil {
		return nil, err
	}
	root, err := parse(tokens)
	if err != nil {
		return nil, err
	}
	identSet := make(map[string]struct{})
	collectIdents(root, identSet)
	idents := make([]string, 0, len(identSet))
	for name := range identSet {
		idents = append(idents, name)
	}
	sort.Strings(idents)
	return &Formula{expression: expression, root: root, idents: idents}, nil
}

// Expression returns the source text
func (f *Formula) Expression() string {
	return f.expression
}

// Identifiers returns every dependency name the expression references,
// sorted and de-duplicated
func (f *Formula) Identifiers() []string {
	out := make([]string, len(f.idents))
	copy(out, f.idents)
	return out
}

// Eval evaluates against the supplied inputs. Every identifier is checked
// against the input mapping before arithmetic runs; a non-finite result is
// an error, never clamped.
func (f *Formula) Eval(inputs map[string]float64) (float64, error) {
	for _, name := range f.idents {
		if _, ok := inputs[name]; !ok {
			return 0, &UnresolvedDependencyError{Name: name}
		}
	}
	result, err := f.root.eval(inputs)
	if err != nil {
		return 0, err
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return 0, &NonFiniteResultError{Expression: f.expression}
	}
	return result, nil
}

// Evaluate is the one-shot parse-and-eval convenience
func Evaluate(expression string, inputs map[string]float64) (float64, error) {
	f, err := Parse(expression)
	if err != nil {
		return 0, err
	}
	return f.Eval(inputs)
}
