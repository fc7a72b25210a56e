package formula

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var errDivisionByZero = errors.New("division by zero")

// divisionPrecision is the number of decimal places kept by a quotient. It
// is well past float64 precision, so (x / 3) * 3 converts back to x.
const divisionPrecision = 34

type node interface {
	eval(env map[string]decimal.Decimal) (decimal.Decimal, error)
}

type numberNode struct{ v decimal.Decimal }

func (n numberNode) eval(map[string]decimal.Decimal) (decimal.Decimal, error) {
	return n.v, nil
}

type identNode struct{ name string }

func (n identNode) eval(env map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, ok := env[n.name]
	if !ok {
		return decimal.Zero, fmt.Errorf("unbound identifier %q", n.name)
	}
	return v, nil
}

type negNode struct{ x node }

func (n negNode) eval(env map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, err := n.x.eval(env)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

type binaryNode struct {
	op   tokenKind
	l, r node
}

func (n binaryNode) eval(env map[string]decimal.Decimal) (decimal.Decimal, error) {
	l, err := n.l.eval(env)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := n.r.eval(env)
	if err != nil {
		return decimal.Zero, err
	}
	switch n.op {
	case tokPlus:
		return l.Add(r), nil
	case tokMinus:
		return l.Sub(r), nil
	case tokStar:
		return l.Mul(r), nil
	case tokSlash:
		if r.IsZero() {
			return decimal.Zero, errDivisionByZero
		}
		return l.DivRound(r, divisionPrecision), nil
	}
	return decimal.Zero, fmt.Errorf("unknown operator %d", n.op)
}

// parser is a recursive-descent parser over:
//
//	expr    := term (('+' | '-') term)*
//	term    := unary (('*' | '/') unary)*
//	unary   := ('+' | '-') unary | primary
//	primary := NUMBER | IDENT | '(' expr ')'
type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &FormulaError{Formula: p.lex.src, Pos: p.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokPlus || p.tok.kind == tokMinus {
		op := p.tok.kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokStar || p.tok.kind == tokSlash {
		op := p.tok.kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	switch p.tok.kind {
	case tokPlus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseUnary()
	case tokMinus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negNode{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.tok
	switch t.kind {
	case tokNumber:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return numberNode{v: t.num}, nil
	case tokIdent:
		if t.text != CurrentValue && t.text != LLMJudgement {
			return nil, p.errorf("unknown identifier %q", t.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return identNode{name: t.text}, nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf("expected ')' but found %s", p.tok)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return nil, p.errorf("unexpected %s", t)
}
