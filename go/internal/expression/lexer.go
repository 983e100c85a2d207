package expression

import (
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokPath
	tokTrue
	tokFalse
	tokAnd
	tokOr
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPow
	tokLT
	tokLE
	tokGT
	tokGE
	tokEQ
	tokNE
	tokLParen
	tokRParen
)

var tokenNames = map[tokenKind]string{
	tokEOF:    "end of expression",
	tokNumber: "number",
	tokString: "string",
	tokPath:   "identifier",
	tokTrue:   "true",
	tokFalse:  "false",
	tokAnd:    "and",
	tokOr:     "or",
	tokPlus:   "+",
	tokMinus:  "-",
	tokStar:   "*",
	tokSlash:  "/",
	tokPow:    "**",
	tokLT:     "<",
	tokLE:     "<=",
	tokGT:     ">",
	tokGE:     ">=",
	tokEQ:     "==",
	tokNE:     "!=",
	tokLParen: "(",
	tokRParen: ")",
}

func (k tokenKind) String() string {
	return tokenNames[k]
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits the input into tokens. Keywords are matched case-insensitively and
// only as whole words, so "orders.total" is a path and not "or" + "ders.total".
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c):
			start := i
			for i < len(input) && isDigit(input[i]) {
				i++
			}
			if i < len(input) && input[i] == '.' {
				i++
				if i >= len(input) || !isDigit(input[i]) {
					return nil, &ParseError{Pos: i, Msg: "expected digits after decimal point"}
				}
				for i < len(input) && isDigit(input[i]) {
					i++
				}
			}
			tokens = append(tokens, token{kind: tokNumber, text: input[start:i], pos: start})
		case isLetter(c):
			start := i
			for {
				for i < len(input) && isIdentChar(input[i]) {
					i++
				}
				if i+1 < len(input) && input[i] == '.' && isLetter(input[i+1]) {
					i++
					continue
				}
				break
			}
			text := input[start:i]
			tokens = append(tokens, token{kind: keywordKind(text), text: text, pos: start})
		case c == '"':
			s, next, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: s, pos: i})
			i = next
		default:
			kind, width := lexOperator(input[i:])
			if width == 0 {
				return nil, &ParseError{Pos: i, Msg: "unexpected character " + quoteChar(c)}
			}
			tokens = append(tokens, token{kind: kind, text: input[i : i+width], pos: i})
			i += width
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(input)})
	return tokens, nil
}

func keywordKind(word string) tokenKind {
	switch strings.ToLower(word) {
	case "and":
		return tokAnd
	case "or":
		return tokOr
	case "true":
		return tokTrue
	case "false":
		return tokFalse
	}
	return tokPath
}

func lexOperator(s string) (tokenKind, int) {
	if len(s) >= 2 {
		switch s[:2] {
		case "**":
			return tokPow, 2
		case "<=":
			return tokLE, 2
		case ">=":
			return tokGE, 2
		case "==":
			return tokEQ, 2
		case "!=":
			return tokNE, 2
		}
	}
	switch s[0] {
	case '+':
		return tokPlus, 1
	case '-':
		return tokMinus, 1
	case '*':
		return tokStar, 1
	case '/':
		return tokSlash, 1
	case '<':
		return tokLT, 1
	case '>':
		return tokGT, 1
	case '(':
		return tokLParen, 1
	case ')':
		return tokRParen, 1
	}
	return tokEOF, 0
}

func lexString(input string, start int) (string, int, error) {
	var b strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		switch c {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(input) {
				return "", 0, &ParseError{Pos: i, Msg: "unterminated escape sequence"}
			}
			switch input[i+1] {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				return "", 0, &ParseError{Pos: i, Msg: "unknown escape sequence \\" + string(input[i+1])}
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, &ParseError{Pos: start, Msg: "unterminated string"}
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isIdentChar(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '_'
}

func quoteChar(c byte) string {
	return "'" + string(c) + "'"
}
