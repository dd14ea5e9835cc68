package rules

import (
	"fmt"
	"strconv"
)

// Grammar, lowest precedence first:
//
//	expr    := or
//	or      := and  (("or"  | "||") and)*
//	and     := unary (("and" | "&&") unary)*
//	unary   := ("not" | "!") unary | cmp
//	cmp     := sum (("==" | "!=" | "<" | "<=" | ">" | ">=") sum)?
//	sum     := term (("+" | "-") term)*
//	term    := factor (("*" | "/" | "%") factor)*
//	factor  := "-" factor | number | string | bool | ident | "(" expr ")"
//
// There are no call, index, or member productions, so unsafe expressions
// are unrepresentable rather than filtered after the fact.

type parser struct {
	toks []token
	pos  int
}

// parseExpr compiles a rule expression into an evaluatable tree.
func parseExpr(input string) (node, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("position %d: unexpected %q", p.peek().pos, p.peek().text)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) or() (node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = boolOp{op: tokOr, l: left, r: right}
	}
	return left, nil
}

func (p *parser) and() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = boolOp{op: tokAnd, l: left, r: right}
	}
	return left, nil
}

func (p *parser) unary() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return notNode{x: x}, nil
	}
	return p.cmp()
}

func (p *parser) cmp() (node, error) {
	left, err := p.sum()
	if err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case tokEq, tokNeq, tokLt, tokLte, tokGt, tokGte:
		op := p.next().kind
		right, err := p.sum()
		if err != nil {
			return nil, err
		}
		return compareOp{op: op, l: left, r: right}, nil
	}
	return left, nil
}

func (p *parser) sum() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokPlus || p.peek().kind == tokMinus {
		op := p.next().kind
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = arithOp{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) term() (node, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokStar || p.peek().kind == tokSlash || p.peek().kind == tokPct {
		op := p.next().kind
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = arithOp{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) factor() (node, error) {
	t := p.next()
	switch t.kind {
	case tokMinus:
		x, err := p.factor()
		if err != nil {
			return nil, err
		}
		return negNode{x: x}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("position %d: bad number %q", t.pos, t.text)
		}
		return literal{val: f}, nil
	case tokString:
		return literal{val: t.text}, nil
	case tokBool:
		return literal{val: t.text == "true"}, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			return nil, fmt.Errorf("position %d: function calls are not allowed", p.peek().pos)
		}
		return identNode{name: t.text}, nil
	case tokLParen:
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("position %d: expected ')'", p.peek().pos)
		}
		p.next()
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("position %d: unexpected %q", t.pos, t.text)
	}
}
