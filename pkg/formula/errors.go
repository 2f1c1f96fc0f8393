package formula

import "fmt"

// UnresolvedDependencyError reports an identifier that is not present in the
// supplied dependency mapping. It is raised by static inspection before any
// arithmetic runs.
type UnresolvedDependencyError struct {
	Name string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("formula references unresolved dependency '%s'", e.Name)
}

// UnsupportedOperatorError reports an operator outside the closed set
// (+ - * / and parentheses)
type UnsupportedOperatorError struct {
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("formula uses unsupported operator '%s'", e.Operator)
}

// NonFiniteResultError reports an evaluation that produced an infinity or
// NaN (overflow, divide by zero). Results are never silently clamped.
type NonFiniteResultError struct {
	Expression string
}

func (e *NonFiniteResultError) Error() string {
	return fmt.Sprintf("formula '%s' produced a non-finite result", e.Expression)
}

// ForbiddenConstructError reports any construct outside the formula
// language: unknown functions, member access, string literals, or stray
// characters. Formulas come from administrator configuration, so this is a
// security boundary and is enforced by static inspection prior to
// evaluation.
type ForbiddenConstructError struct {
	Construct string
}

func (e *ForbiddenConstructError) Error() string {
	return fmt.Sprintf("formula contains forbidden construct '%s'", e.Construct)
}

// SyntaxError reports a malformed expression
type SyntaxError struct {
	Message  string
	Position int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("formula syntax error at position %d: %s", e.Position, e.Message)
}
