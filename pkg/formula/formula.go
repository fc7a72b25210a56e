// Package formula evaluates the arithmetic formulas that calculated scoring
// rules carry. The grammar is deliberately tiny: numeric literals, the two
// bound identifiers, parentheses and + - * /. Nothing else parses, so a
// scenario file cannot smuggle code into the engine.
package formula

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Bound identifiers.
const (
	CurrentValue = "current_value"
	LLMJudgement = "llm_judgement"
)

// ErrFormula is matched by every error returned from this package.
var ErrFormula = errors.New("formula error")

// FormulaError describes a syntax, binding or arithmetic failure.
type FormulaError struct {
	Formula string
	Pos     int // byte offset, -1 when not positional
	Msg     string
}

func (e *FormulaError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("formula %q: %s at position %d", e.Formula, e.Msg, e.Pos)
	}
	return fmt.Sprintf("formula %q: %s", e.Formula, e.Msg)
}

func (e *FormulaError) Is(target error) bool {
	return target == ErrFormula
}

// Bindings holds the values of the two identifiers a formula may reference.
type Bindings struct {
	CurrentValue float64
	LLMJudgement float64
}

// Expr is a compiled formula. It is immutable and safe for concurrent use.
type Expr struct {
	src  string
	root node
}

// Compile parses formula and checks that it only references bound identifiers.
func Compile(formula string) (*Expr, error) {
	p := &parser{lex: newLexer(formula)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokEOF {
		return nil, &FormulaError{Formula: formula, Pos: -1, Msg: "empty formula"}
	}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %s", p.tok)
	}
	return &Expr{src: formula, root: root}, nil
}

// String returns the source text of the formula.
func (x *Expr) String() string {
	return x.src
}

// Eval evaluates the compiled formula against b.
func (x *Expr) Eval(b Bindings) (float64, error) {
	if !finite(b.CurrentValue) {
		return 0, &FormulaError{Formula: x.src, Pos: -1, Msg: "current_value is not a finite number"}
	}
	if !finite(b.LLMJudgement) {
		return 0, &FormulaError{Formula: x.src, Pos: -1, Msg: "llm_judgement is not a finite number"}
	}
	env := map[string]decimal.Decimal{
		CurrentValue: decimal.NewFromFloat(b.CurrentValue),
		LLMJudgement: decimal.NewFromFloat(b.LLMJudgement),
	}
	v, err := x.root.eval(env)
	if err != nil {
		return 0, &FormulaError{Formula: x.src, Pos: -1, Msg: err.Error()}
	}
	f := v.InexactFloat64()
	if !finite(f) {
		return 0, &FormulaError{Formula: x.src, Pos: -1, Msg: "result is not finite"}
	}
	return f, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Evaluate compiles and evaluates formula in one step.
func Evaluate(formula string, b Bindings) (float64, error) {
	x, err := Compile(formula)
	if err != nil {
		return 0, err
	}
	return x.Eval(b)
}

// Identifiers returns the distinct identifiers referenced by formula, in
// order of first appearance. Unknown identifiers are included, which lets
// callers report them without evaluating.
func Identifiers(formula string) ([]string, error) {
	lex := newLexer(formula)
	seen := make(map[string]bool)
	var out []string
	for {
		t, err := lex.next()
		if err != nil {
			return nil, err
		}
		if t.kind == tokEOF {
			return out, nil
		}
		if t.kind == tokIdent && !seen[t.text] {
			seen[t.text] = true
			out = append(out, t.text)
		}
	}
}
