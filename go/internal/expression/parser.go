package expression

import (
	"slices"
	"strconv"
	"strings"
)

// Precedence, loosest first:
//
//	logical    := comparison (("and" | "or") comparison)*
//	comparison := additive (("<" | "<=" | ">" | ">=" | "==" | "!=") additive)*
//	additive   := multiplicative (("+" | "-") multiplicative)*
//	multiplicative := power (("*" | "/") power)*
//	power      := unary ("**" power)?
//	unary      := ("+" | "-") unary | primary
//	primary    := number | string | true | false | path | "(" logical ")"
//
// The sign binds tighter than "**", so -2**2 is 4.

type parser struct {
	tokens []token
	pos    int
}

// Parse compiles an expression into a Node.
func Parse(input string) (Node, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseLogical()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %s", describe(tok))
	}
	return node, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseLogical() (Node, error) {
	first, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	operands := []Node{first}
	var ops []string
	for {
		tok := p.peek()
		if tok.kind != tokAnd && tok.kind != tokOr {
			break
		}
		p.next()
		operand, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		ops = append(ops, tok.kind.String())
		operands = append(operands, operand)
	}
	if len(ops) == 0 {
		return first, nil
	}
	return &Logical{Operands: operands, Ops: ops}, nil
}

func (p *parser) parseComparison() (Node, error) {
	return p.parseLeftAssoc(p.parseAdditive, tokLT, tokLE, tokGT, tokGE, tokEQ, tokNE)
}

func (p *parser) parseAdditive() (Node, error) {
	return p.parseLeftAssoc(p.parseMultiplicative, tokPlus, tokMinus)
}

func (p *parser) parseMultiplicative() (Node, error) {
	return p.parseLeftAssoc(p.parsePower, tokStar, tokSlash)
}

func (p *parser) parseLeftAssoc(operand func() (Node, error), kinds ...tokenKind) (Node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if !slices.Contains(kinds, tok.kind) {
			return left, nil
		}
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: tok.kind.String(), Left: left, Right: right}
	}
}

func (p *parser) parsePower() (Node, error) {
	base, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokPow {
		return base, nil
	}
	p.next()
	exponent, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	return &Binary{Op: "**", Left: base, Right: exponent}, nil
}

func (p *parser) parseUnary() (Node, error) {
	tok := p.peek()
	if tok.kind == tokPlus || tok.kind == tokMinus {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: tok.kind.String(), Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid number %q", tok.text)
		}
		return &Literal{Value: f}, nil
	case tokString:
		return &Literal{Value: tok.text}, nil
	case tokTrue:
		return &Literal{Value: true}, nil
	case tokFalse:
		return &Literal{Value: false}, nil
	case tokPath:
		return &Path{Segments: strings.Split(tok.text, ".")}, nil
	case tokLParen:
		inner, err := p.parseLogical()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ')' but found %s", describe(closing))
		}
		return inner, nil
	}
	return nil, p.errorf(tok, "expected operand but found %s", describe(tok))
}

func (p *parser) errorf(tok token, format string, args ...any) *ParseError {
	return newParseError(tok.pos, format, args...)
}

func describe(tok token) string {
	switch tok.kind {
	case tokEOF:
		return tok.kind.String()
	case tokString:
		return strconv.Quote(tok.text)
	}
	return "'" + tok.text + "'"
}
