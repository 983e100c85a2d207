package expression

import (
	"fmt"
	"strings"
)

// Node is a parsed expression. Nodes are immutable and safe for concurrent Eval.
type Node interface {
	Eval(vars map[string]any) (any, error)
	String() string
}

// Literal is a number, string or boolean constant. Numbers are stored as float64.
type Literal struct {
	Value any
}

// Path is a dotted variable reference such as event.metadata.price.
type Path struct {
	Segments []string
}

// Unary is a sign applied to an operand.
type Unary struct {
	Op      string
	Operand Node
}

// Binary covers arithmetic and comparison operators.
type Binary struct {
	Op          string
	Left, Right Node
}

// Logical is a flat chain of and/or operators evaluated left to right.
// len(Ops) == len(Operands)-1.
type Logical struct {
	Operands []Node
	Ops      []string
}

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case float64:
		return formatNumber(v)
	}
	return fmt.Sprint(l.Value)
}

func (p *Path) String() string { return strings.Join(p.Segments, ".") }

func (u *Unary) String() string { return "(" + u.Op + u.Operand.String() + ")" }

func (b *Binary) String() string {
	return "(" + b.Left.String() + " " + b.Op + " " + b.Right.String() + ")"
}

func (l *Logical) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	for i, operand := range l.Operands {
		if i > 0 {
			sb.WriteString(" " + l.Ops[i-1] + " ")
		}
		sb.WriteString(operand.String())
	}
	sb.WriteString(")")
	return sb.String()
}
