package filter

import (
	"fmt"

	"qexec-go/operators"
)

var (
	_ = (operators.Plan)(&LimitPlan{})
	_ = (operators.Scan)(&LimitScan{})
)

// LimitPlan passes through at most count records of its input.
type LimitPlan struct {
	input operators.Plan
	count int
}

func NewLimitPlan(input operators.Plan, count int) (*LimitPlan, error) {
	if count < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", count)
	}
	return &LimitPlan{input: input, count: count}, nil
}

func (lp *LimitPlan) Open() (operators.Scan, error) {
	s, err := lp.input.Open()
	if err != nil {
		return nil, err
	}
	return &LimitScan{input: s, remaining: lp.count, count: lp.count}, nil
}

func (lp *LimitPlan) BlocksAccessed() int { return lp.input.BlocksAccessed() }
func (lp *LimitPlan) RecordsOutput() int { return min(lp.count, lp.input.RecordsOutput()) }
func (lp *LimitPlan) DistinctValues(field string) int {
	return min(lp.input.DistinctValues(field), lp.RecordsOutput())
}
func (lp *LimitPlan) Schema() *operators.Schema { return lp.input.Schema() }
func (lp *LimitPlan) String() string {
	return fmt.Sprintf("Limit[%d](%s)", lp.count, lp.input)
}

type LimitScan struct {
	input     operators.Scan
	count     int
	remaining int
}

func (l *LimitScan) BeforeFirst() error {
	l.remaining = l.count
	return l.input.BeforeFirst()
}

func (l *LimitScan) Next() (bool, error) {
	if l.remaining == 0 {
		return false, nil
	}
	more, err := l.input.Next()
	if err != nil || !more {
		return false, err
	}
	l.remaining--
	return true, nil
}

func (l *LimitScan) GetVal(field string) (operators.Constant, error) { return l.input.GetVal(field) }
func (l *LimitScan) GetInt(field string) (int, error) { return l.input.GetInt(field) }
func (l *LimitScan) GetString(field string) (string, error) { return l.input.GetString(field) }
func (l *LimitScan) HasField(field string) bool { return l.input.HasField(field) }
func (l *LimitScan) Close() error { return l.input.Close() }
