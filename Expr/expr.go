package Expr

import (
	"fmt"

	"qexec-go/operators"
)

var (
	ErrUnsupportedExpression = func(info string) error {
		return fmt.Errorf("unsupported expression: %s", info)
	}
	ErrUnknownOperator = func(op string) error {
		return fmt.Errorf("unknown comparison operator %q", op)
	}
)

type BinaryOperator int

const (
	Equal              BinaryOperator = 6
	NotEqual           BinaryOperator = 7
	LessThan           BinaryOperator = 8
	LessThanOrEqual    BinaryOperator = 9
	GreaterThan        BinaryOperator = 10
	GreaterThanOrEqual BinaryOperator = 11
)

// ParseOperator accepts both "!=" and "<>" for inequality.
func ParseOperator(s string) (BinaryOperator, error) {
	switch s {
	case "=":
		return Equal, nil
	case "!=", "<>":
		return NotEqual, nil
	case "<":
		return LessThan, nil
	case "<=":
		return LessThanOrEqual, nil
	case ">":
		return GreaterThan, nil
	case ">=":
		return GreaterThanOrEqual, nil
	}
	return 0, ErrUnknownOperator(s)
}

func (op BinaryOperator) String() string {
	switch op {
	case Equal:
		return "="
	case NotEqual:
		return "!="
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterThanOrEqual:
		return ">="
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// Reverse swaps the operand order: a < b becomes b > a. It does not negate.
func (op BinaryOperator) Reverse() BinaryOperator {
	switch op {
	case LessThan:
		return GreaterThan
	case LessThanOrEqual:
		return GreaterThanOrEqual
	case GreaterThan:
		return LessThan
	case GreaterThanOrEqual:
		return LessThanOrEqual
	}
	return op
}

func (op BinaryOperator) Check(lhs, rhs operators.Constant) (bool, error) {
	cmp, err := lhs.CompareTo(rhs)
	if err != nil {
		return false, err
	}
	switch op {
	case Equal:
		return cmp == 0, nil
	case NotEqual:
		return cmp != 0, nil
	case LessThan:
		return cmp < 0, nil
	case LessThanOrEqual:
		return cmp <= 0, nil
	case GreaterThan:
		return cmp > 0, nil
	case GreaterThanOrEqual:
		return cmp >= 0, nil
	}
	return false, ErrUnknownOperator(op.String())
}

var (
	_ = (Expression)(&ColumnResolve{})
	_ = (Expression)(&LiteralResolve{})
)

// Expression is either a field reference or a constant.
type Expression interface {
	ExprNode()
	fmt.Stringer
}

type ColumnResolve struct {
	Name string
}

func NewColumnResolve(name string) *ColumnResolve {
	return &ColumnResolve{Name: name}
}

func (c *ColumnResolve) ExprNode()      {}
func (c *ColumnResolve) String() string { return c.Name }

type LiteralResolve struct {
	Value operators.Constant
}

func NewLiteralResolve(v operators.Constant) *LiteralResolve {
	return &LiteralResolve{Value: v}
}

func (l *LiteralResolve) ExprNode() {}
func (l *LiteralResolve) String() string {
	if l.Value.Type() == operators.Varchar {
		return "'" + l.Value.AsString() + "'"
	}
	return l.Value.String()
}

func EvalExpression(e Expression, r operators.Record) (operators.Constant, error) {
	switch ex := e.(type) {
	case *ColumnResolve:
		return r.GetVal(ex.Name)
	case *LiteralResolve:
		return ex.Value, nil
	}
	return operators.Constant{}, ErrUnsupportedExpression(e.String())
}

// AppliesTo reports whether every field the expression mentions is in sch.
func AppliesTo(e Expression, sch *operators.Schema) bool {
	if c, ok := e.(*ColumnResolve); ok {
		return sch.HasField(c.Name)
	}
	return true
}

func fieldName(e Expression) (string, bool) {
	c, ok := e.(*ColumnResolve)
	if !ok {
		return "", false
	}
	return c.Name, true
}

func constant(e Expression) (operators.Constant, bool) {
	l, ok := e.(*LiteralResolve)
	if !ok {
		return operators.Constant{}, false
	}
	return l.Value, true
}
