package join

import (
	"fmt"

	"qexec-go/Expr"
	"qexec-go/operators"
	"qexec-go/storage"
)

var (
	ErrDuplicateJoinField = func(name string) error {
		return fmt.Errorf("field %q appears on both sides of the join", name)
	}
	ErrJoinFieldNotFound = func(field, side string) error {
		return fmt.Errorf("join field %q is not in the %s input", field, side)
	}
	ErrEquiJoinOnly = func(algorithm string, op Expr.BinaryOperator) error {
		return fmt.Errorf("%s join needs an equality join term, got %q", algorithm, op.String())
	}
)

// JoinClause compares a field of the left input with a field of the right
// input: Left Op Right. The zero value matches every pair, which is how the
// product plan reuses the nested loop machinery.
type JoinClause struct {
	Left  string
	Op    Expr.BinaryOperator
	Right string
}

func NewJoinClause(left, right string) JoinClause {
	return JoinClause{Left: left, Op: Expr.Equal, Right: right}
}

func NewThetaJoinClause(left string, op Expr.BinaryOperator, right string) JoinClause {
	return JoinClause{Left: left, Op: op, Right: right}
}

func (jc JoinClause) isCross() bool { return jc.Left == "" && jc.Right == "" }

func (jc JoinClause) String() string {
	if jc.isCross() {
		return "true"
	}
	return jc.Left + jc.Op.String() + jc.Right
}

func (jc JoinClause) validate(left, right *operators.Schema) error {
	if jc.isCross() {
		return nil
	}
	if !left.HasField(jc.Left) {
		return ErrJoinFieldNotFound(jc.Left, "left")
	}
	if !right.HasField(jc.Right) {
		return ErrJoinFieldNotFound(jc.Right, "right")
	}
	return nil
}

// joinSchemas is the disjoint union of both inputs. Unlike a SQL engine we
// don't rename colliding columns: a record is addressed by field name only.
func joinSchemas(left, right *operators.Schema) (*operators.Schema, error) {
	for _, f := range right.Fields() {
		if left.HasField(f) {
			return nil, ErrDuplicateJoinField(f)
		}
	}
	return operators.NewSchema().AddAll(left).AddAll(right), nil
}

// joinedOutput estimates the size of lhs join rhs on clause.
func joinedOutput(lhs, rhs operators.Plan, jc JoinClause) int {
	product := lhs.RecordsOutput() * rhs.RecordsOutput()
	switch {
	case jc.isCross():
		return product
	case jc.Op == Expr.Equal:
		return product / max(lhs.DistinctValues(jc.Left), rhs.DistinctValues(jc.Right), 1)
	case jc.Op == Expr.NotEqual:
		return product
	}
	return product / 3
}

func distinctValues(lhs, rhs operators.Plan, field string) int {
	if lhs.Schema().HasField(field) {
		return lhs.DistinctValues(field)
	}
	return rhs.DistinctValues(field)
}

// pair reads each field from whichever side owns it.
type pair struct {
	lhs, rhs operators.Scan
}

func (p pair) GetVal(field string) (operators.Constant, error) {
	if p.lhs.HasField(field) {
		return p.lhs.GetVal(field)
	}
	if p.rhs.HasField(field) {
		return p.rhs.GetVal(field)
	}
	return operators.Constant{}, operators.ErrFieldNotFound(field)
}

func (p pair) GetInt(field string) (int, error) { return operators.GetInt(p, field) }

func (p pair) GetString(field string) (string, error) { return operators.GetString(p, field) }

func (p pair) HasField(field string) bool {
	return p.lhs.HasField(field) || p.rhs.HasField(field)
}

// match reports whether the current records of l and r satisfy jc.
func (jc JoinClause) match(l, r operators.Record) (bool, error) {
	if jc.isCross() {
		return true, nil
	}
	lv, err := l.GetVal(jc.Left)
	if err != nil {
		return false, err
	}
	rv, err := r.GetVal(jc.Right)
	if err != nil {
		return false, err
	}
	return jc.Op.Check(lv, rv)
}

var errNotPositioned = storage.ErrScanNotPositioned
