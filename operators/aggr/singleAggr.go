package aggr

import (
	"errors"
	"fmt"
	"strings"

	"qexec-go/operators"
)

var (
	ErrDivideByZero = errors.New("average over an empty group")

	ErrUnsupportedAggrFunc = func(name string) error {
		return fmt.Errorf("%s is an unsupported aggregate function", name)
	}
)

// AggregationFn folds the records of one group into a single value.
// ProcessFirst starts a new group and must be called before ProcessNext.
type AggregationFn interface {
	ProcessFirst(r operators.Record) error
	ProcessNext(r operators.Record) error
	// FieldName is the output column, "<op>of<field>" or "<op>ofdistinct<field>".
	FieldName() string
	Value() (operators.Constant, error)
}

var (
	_ = (AggregationFn)(&CountFn{})
	_ = (AggregationFn)(&SumFn{})
	_ = (AggregationFn)(&AvgFn{})
	_ = (AggregationFn)(&MinFn{})
	_ = (AggregationFn)(&MaxFn{})
)

// NewAggregationFn builds a function from its SQL name.
func NewAggregationFn(name, field string, distinct bool) (AggregationFn, error) {
	switch strings.ToLower(name) {
	case "count":
		return NewCountFn(field, distinct), nil
	case "sum":
		return NewSumFn(field, distinct), nil
	case "avg":
		return NewAvgFn(field, distinct), nil
	case "min":
		return NewMinFn(field, distinct), nil
	case "max":
		return NewMaxFn(field, distinct), nil
	}
	return nil, ErrUnsupportedAggrFunc(name)
}

// aggr holds what every function shares: the source field, the DISTINCT
// flag and the set of values seen when it is set.
type aggr struct {
	op       string
	field    string
	distinct bool
	seen     map[operators.Constant]struct{}
}

func (a *aggr) FieldName() string {
	if a.distinct {
		return a.op + "ofdistinct" + a.field
	}
	return a.op + "of" + a.field
}

func (a *aggr) reset() { a.seen = make(map[operators.Constant]struct{}) }

// remember records v and reports whether it was new.
func (a *aggr) remember(v operators.Constant) bool {
	if _, ok := a.seen[v]; ok {
		return false
	}
	a.seen[v] = struct{}{}
	return true
}

type CountFn struct {
	aggr
	count int
}

func NewCountFn(field string, distinct bool) *CountFn {
	return &CountFn{aggr: aggr{op: "count", field: field, distinct: distinct}}
}

func (c *CountFn) ProcessFirst(r operators.Record) error {
	c.reset()
	c.count = 0
	return c.ProcessNext(r)
}

func (c *CountFn) ProcessNext(r operators.Record) error {
	if !c.distinct {
		c.count++
		return nil
	}
	v, err := r.GetVal(c.field)
	if err != nil {
		return err
	}
	if c.remember(v) {
		c.count++
	}
	return nil
}

func (c *CountFn) Value() (operators.Constant, error) { return operators.NewIntConstant(c.count), nil }

// SumFn adds integers. Its DISTINCT variant sums the set of values seen.
type SumFn struct {
	aggr
	sum int
}

func NewSumFn(field string, distinct bool) *SumFn {
	return &SumFn{aggr: aggr{op: "sum", field: field, distinct: distinct}}
}

func (s *SumFn) ProcessFirst(r operators.Record) error {
	s.reset()
	s.sum = 0
	return s.ProcessNext(r)
}

func (s *SumFn) ProcessNext(r operators.Record) error {
	v, err := r.GetVal(s.field)
	if err != nil {
		return err
	}
	if v.Type() != operators.Integer {
		return operators.ErrWrongType(s.field, operators.Integer, v.Type())
	}
	if s.distinct && !s.remember(v) {
		return nil
	}
	s.sum += v.AsInt()
	return nil
}

func (s *SumFn) Value() (operators.Constant, error) { return operators.NewIntConstant(s.sum), nil }

// AvgFn uses integer division, like the rest of the engine's arithmetic.
type AvgFn struct {
	aggr
	sum, count int
}

func NewAvgFn(field string, distinct bool) *AvgFn {
	return &AvgFn{aggr: aggr{op: "avg", field: field, distinct: distinct}}
}

func (a *AvgFn) ProcessFirst(r operators.Record) error {
	a.reset()
	a.sum, a.count = 0, 0
	return a.ProcessNext(r)
}

func (a *AvgFn) ProcessNext(r operators.Record) error {
	v, err := r.GetVal(a.field)
	if err != nil {
		return err
	}
	if v.Type() != operators.Integer {
		return operators.ErrWrongType(a.field, operators.Integer, v.Type())
	}
	if a.distinct && !a.remember(v) {
		return nil
	}
	a.sum += v.AsInt()
	a.count++
	return nil
}

func (a *AvgFn) Value() (operators.Constant, error) {
	if a.count == 0 {
		return operators.Constant{}, ErrDivideByZero
	}
	return operators.NewIntConstant(a.sum / a.count), nil
}

// extreme keeps the smallest (sign -1) or largest (sign 1) value seen. A
// value replaces the current one only when strictly better.
type extreme struct {
	aggr
	sign int
	best operators.Constant
	set  bool
}

func (e *extreme) ProcessFirst(r operators.Record) error {
	v, err := r.GetVal(e.field)
	if err != nil {
		return err
	}
	e.best, e.set = v, true
	return nil
}

func (e *extreme) ProcessNext(r operators.Record) error {
	v, err := r.GetVal(e.field)
	if err != nil {
		return err
	}
	c, err := v.CompareTo(e.best)
	if err != nil {
		return fmt.Errorf("%s: %w", e.FieldName(), err)
	}
	if c*e.sign > 0 {
		e.best = v
	}
	return nil
}

func (e *extreme) Value() (operators.Constant, error) {
	if !e.set {
		return operators.Constant{}, fmt.Errorf("%s has no value before the first record", e.FieldName())
	}
	return e.best, nil
}

// MinFn and MaxFn accept DISTINCT only for the output name; the extreme of a
// set is the extreme of its bag.
type MinFn struct{ extreme }

func NewMinFn(field string, distinct bool) *MinFn {
	return &MinFn{extreme{aggr: aggr{op: "min", field: field, distinct: distinct}, sign: -1}}
}

type MaxFn struct{ extreme }

func NewMaxFn(field string, distinct bool) *MaxFn {
	return &MaxFn{extreme{aggr: aggr{op: "max", field: field, distinct: distinct}, sign: 1}}
}

// resultField describes the column fn adds to a group by output.
func resultField(fn AggregationFn, input *operators.Schema) (operators.FieldType, int, error) {
	var a *aggr
	numeric := true
	switch f := fn.(type) {
	case *CountFn:
		a = &f.aggr
		numeric = false
	case *SumFn:
		a = &f.aggr
	case *AvgFn:
		a = &f.aggr
	case *MinFn:
		return extremeField(&f.extreme, input)
	case *MaxFn:
		return extremeField(&f.extreme, input)
	default:
		return operators.Integer, 0, nil
	}
	if !input.HasField(a.field) {
		if !numeric && !a.distinct {
			return operators.Integer, 0, nil
		}
		return 0, 0, operators.ErrFieldNotFound(a.field)
	}
	if numeric && input.Type(a.field) != operators.Integer {
		return 0, 0, operators.ErrWrongType(a.field, operators.Integer, input.Type(a.field))
	}
	return operators.Integer, 0, nil
}

func extremeField(e *extreme, input *operators.Schema) (operators.FieldType, int, error) {
	if !input.HasField(e.field) {
		return 0, 0, operators.ErrFieldNotFound(e.field)
	}
	return input.Type(e.field), input.Length(e.field), nil
}
