package join

import (
	"fmt"

	"qexec-go/operators"
)

var (
	_ = (operators.Plan)(&NestedLoopJoinPlan{})
	_ = (operators.Scan)(&NestedLoopJoinScan{})
)

// NestedLoopJoinPlan rescans the right input once per left record. It needs
// no scratch space, so it works under any buffer budget.
type NestedLoopJoinPlan struct {
	lhs, rhs operators.Plan
	clause   JoinClause
	schema   *operators.Schema
}

func NewNestedLoopJoinPlan(lhs, rhs operators.Plan, clause JoinClause) (*NestedLoopJoinPlan, error) {
	if err := clause.validate(lhs.Schema(), rhs.Schema()); err != nil {
		return nil, err
	}
	sch, err := joinSchemas(lhs.Schema(), rhs.Schema())
	if err != nil {
		return nil, err
	}
	return &NestedLoopJoinPlan{lhs: lhs, rhs: rhs, clause: clause, schema: sch}, nil
}

func (np *NestedLoopJoinPlan) Open() (operators.Scan, error) {
	outer, err := np.lhs.Open()
	if err != nil {
		return nil, err
	}
	inner, err := np.rhs.Open()
	if err != nil {
		outer.Close()
		return nil, err
	}
	s, err := NewNestedLoopJoinScan(outer, inner, np.clause)
	if err != nil {
		operators.CloseAll(outer, inner)
		return nil, err
	}
	return s, nil
}

func (np *NestedLoopJoinPlan) BlocksAccessed() int {
	return np.lhs.BlocksAccessed() + np.lhs.RecordsOutput()*np.rhs.BlocksAccessed()
}

func (np *NestedLoopJoinPlan) RecordsOutput() int { return joinedOutput(np.lhs, np.rhs, np.clause) }

func (np *NestedLoopJoinPlan) DistinctValues(field string) int {
	return distinctValues(np.lhs, np.rhs, field)
}

func (np *NestedLoopJoinPlan) Schema() *operators.Schema { return np.schema }

func (np *NestedLoopJoinPlan) String() string {
	return fmt.Sprintf("NestedLoopJoin[%s](%s, %s)", np.clause, np.lhs, np.rhs)
}

// NestedLoopJoinScan pairs every outer record with every inner record that
// satisfies the clause.
type NestedLoopJoinScan struct {
	pair
	clause     JoinClause
	positioned bool // outer sits on a record
}

func NewNestedLoopJoinScan(outer, inner operators.Scan, clause JoinClause) (*NestedLoopJoinScan, error) {
	s := &NestedLoopJoinScan{pair: pair{lhs: outer, rhs: inner}, clause: clause}
	if err := s.BeforeFirst(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *NestedLoopJoinScan) BeforeFirst() error {
	s.positioned = false
	return s.lhs.BeforeFirst()
}

func (s *NestedLoopJoinScan) Next() (bool, error) {
	for {
		if !s.positioned {
			more, err := s.lhs.Next()
			if err != nil || !more {
				return false, err
			}
			if err := s.rhs.BeforeFirst(); err != nil {
				return false, err
			}
			s.positioned = true
		}
		for {
			more, err := s.rhs.Next()
			if err != nil {
				return false, err
			}
			if !more {
				break
			}
			ok, err := s.clause.match(s.lhs, s.rhs)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		s.positioned = false
	}
}

func (s *NestedLoopJoinScan) Close() error { return operators.CloseAll(s.lhs, s.rhs) }
