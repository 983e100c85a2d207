package expression

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
)

// Evaluate parses and evaluates an expression in one step.
func Evaluate(input string, vars map[string]any) (any, error) {
	node, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return node.Eval(vars)
}

// Truthy reports whether v counts as true in a boolean context.
// nil, false, zero numbers, empty strings and empty collections are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	if n, ok := toNumber(v); ok {
		return n != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

func (l *Literal) Eval(map[string]any) (any, error) {
	return l.Value, nil
}

// Eval walks nested maps. Any missing or non-object segment yields nil.
func (p *Path) Eval(vars map[string]any) (any, error) {
	var cur any = vars
	for _, seg := range p.Segments {
		switch m := cur.(type) {
		case map[string]any:
			cur = m[seg]
		case map[string]string:
			s, ok := m[seg]
			if !ok {
				return nil, nil
			}
			cur = s
		default:
			return nil, nil
		}
	}
	return cur, nil
}

func (u *Unary) Eval(vars map[string]any) (any, error) {
	v, err := u.Operand.Eval(vars)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	n, ok := toNumber(v)
	if !ok {
		return nil, typeError(u.Op, v)
	}
	if u.Op == "-" {
		return -n, nil
	}
	return n, nil
}

func (b *Binary) Eval(vars map[string]any) (any, error) {
	left, err := b.Left.Eval(vars)
	if err != nil {
		return nil, err
	}
	right, err := b.Right.Eval(vars)
	if err != nil {
		return nil, err
	}
	switch b.Op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "<", "<=", ">", ">=":
		return order(b.Op, left, right)
	}
	return arithmetic(b.Op, left, right)
}

// Eval applies the short-circuit rule: a falsy accumulator before "and", or a
// truthy one before "or", ends the chain and is returned as the result.
func (l *Logical) Eval(vars map[string]any) (any, error) {
	acc, err := l.Operands[0].Eval(vars)
	if err != nil {
		return nil, err
	}
	for i, op := range l.Ops {
		truthy := Truthy(acc)
		if (op == "and" && !truthy) || (op == "or" && truthy) {
			return acc, nil
		}
		acc, err = l.Operands[i+1].Eval(vars)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func arithmetic(op string, left, right any) (any, error) {
	if left == nil || right == nil {
		return nil, nil
	}
	ls, lIsString := left.(string)
	rs, rIsString := right.(string)
	if lIsString || rIsString {
		if op == "+" && lIsString && rIsString {
			return ls + rs, nil
		}
		return nil, typeError(op, left, right)
	}
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	if !lok || !rok {
		return nil, typeError(op, left, right)
	}
	switch op {
	case "+":
		return ln + rn, nil
	case "-":
		return ln - rn, nil
	case "*":
		return ln * rn, nil
	case "/":
		if rn == 0 {
			return nil, &EvaluationError{Op: op, Msg: "division by zero"}
		}
		return ln / rn, nil
	case "**":
		if ln == 0 && rn < 0 {
			return nil, &EvaluationError{Op: op, Msg: "zero cannot be raised to a negative power"}
		}
		res := math.Pow(ln, rn)
		if math.IsNaN(res) {
			return nil, &EvaluationError{Op: op, Msg: "result is not a real number"}
		}
		return res, nil
	}
	return nil, &EvaluationError{Op: op, Msg: "unknown operator"}
}

// order never errors on nil; an absent value is simply not ordered.
func order(op string, left, right any) (any, error) {
	if left == nil || right == nil {
		return false, nil
	}
	var cmp int
	ls, lIsString := left.(string)
	rs, rIsString := right.(string)
	switch {
	case lIsString && rIsString:
		switch {
		case ls < rs:
			cmp = -1
		case ls > rs:
			cmp = 1
		}
	case lIsString || rIsString:
		return nil, typeError(op, left, right)
	default:
		ln, lok := toNumber(left)
		rn, rok := toNumber(right)
		if !lok || !rok {
			return nil, typeError(op, left, right)
		}
		switch {
		case ln < rn:
			cmp = -1
		case ln > rn:
			cmp = 1
		}
	}
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	}
	return cmp >= 0, nil
}

// equal is false whenever either side is nil.
func equal(left, right any) bool {
	if left == nil || right == nil {
		return false
	}
	ls, lIsString := left.(string)
	rs, rIsString := right.(string)
	if lIsString || rIsString {
		return lIsString && rIsString && ls == rs
	}
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	if lok && rok {
		return ln == rn
	}
	if lok != rok {
		return false
	}
	return reflect.DeepEqual(left, right)
}

// toNumber converts numeric values to float64. Booleans count as 1 and 0.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
