package filter

import (
	"errors"
	"fmt"

	"qexec-go/Expr"
	"qexec-go/operators"
)

var (
	_ = (operators.Plan)(&SelectPlan{})
	_ = (operators.Scan)(&SelectScan{})
)

// SelectPlan keeps the records of its input that satisfy a predicate.
type SelectPlan struct {
	input operators.Plan
	pred  *Expr.Predicate
}

func NewSelectPlan(input operators.Plan, pred *Expr.Predicate) (*SelectPlan, error) {
	if !validPredicates(pred, input.Schema()) {
		return nil, errors.New("predicate mentions fields the input does not have")
	}
	if pred == nil {
		pred = Expr.NewPredicate()
	}
	return &SelectPlan{input: input, pred: pred}, nil
}

func (sp *SelectPlan) Open() (operators.Scan, error) {
	s, err := sp.input.Open()
	if err != nil {
		return nil, err
	}
	return NewSelectScan(s, sp.pred), nil
}

func (sp *SelectPlan) BlocksAccessed() int { return sp.input.BlocksAccessed() }

func (sp *SelectPlan) RecordsOutput() int {
	return sp.input.RecordsOutput() / sp.pred.ReductionFactor(sp.input)
}

// DistinctValues is 1 for a field pinned to a constant; a field equated with
// another field has no more values than the smaller of the two.
func (sp *SelectPlan) DistinctValues(field string) int {
	if _, ok := sp.pred.EquatesWithConstant(field); ok {
		return 1
	}
	if other, ok := sp.pred.EquatesWithField(field); ok {
		return min(sp.input.DistinctValues(field), sp.input.DistinctValues(other))
	}
	return sp.input.DistinctValues(field)
}

func (sp *SelectPlan) Schema() *operators.Schema { return sp.input.Schema() }

func (sp *SelectPlan) String() string {
	return fmt.Sprintf("Select[%s](%s)", sp.pred, sp.input)
}

type SelectScan struct {
	input operators.Scan
	pred  *Expr.Predicate
}

func NewSelectScan(input operators.Scan, pred *Expr.Predicate) *SelectScan {
	return &SelectScan{input: input, pred: pred}
}

func (ss *SelectScan) BeforeFirst() error { return ss.input.BeforeFirst() }

func (ss *SelectScan) Next() (bool, error) {
	for {
		more, err := ss.input.Next()
		if err != nil || !more {
			return false, err
		}
		ok, err := ss.pred.IsSatisfied(ss.input)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
}

func (ss *SelectScan) GetVal(field string) (operators.Constant, error) { return ss.input.GetVal(field) }
func (ss *SelectScan) GetInt(field string) (int, error) { return ss.input.GetInt(field) }
func (ss *SelectScan) GetString(field string) (string, error) { return ss.input.GetString(field) }
func (ss *SelectScan) HasField(field string) bool { return ss.input.HasField(field) }
func (ss *SelectScan) Close() error { return ss.input.Close() }

func validPredicates(pred *Expr.Predicate, sch *operators.Schema) bool {
	if pred == nil {
		return true
	}
	for _, t := range pred.Terms() {
		if !t.AppliesTo(sch) {
			return false
		}
	}
	return true
}
