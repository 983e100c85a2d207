package expression

import "fmt"

// ParseError reports malformed expression syntax.
type ParseError struct {
	Pos int
	Msg string
}

func newParseError(pos int, format string, args ...any) *ParseError {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

// EvaluationError reports an operator applied to operands it does not support.
type EvaluationError struct {
	Op  string
	Msg string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("cannot evaluate %q: %s", e.Op, e.Msg)
}

func typeError(op string, operands ...any) *EvaluationError {
	msg := "unsupported operand type"
	switch len(operands) {
	case 1:
		msg = fmt.Sprintf("unsupported operand type %s", typeName(operands[0]))
	case 2:
		msg = fmt.Sprintf("unsupported operand types %s and %s", typeName(operands[0]), typeName(operands[1]))
	}
	return &EvaluationError{Op: op, Msg: msg}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toNumber(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
