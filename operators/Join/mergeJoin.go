package join

import (
	"fmt"

	"qexec-go/Expr"
	"qexec-go/operators"
	"qexec-go/operators/aggr"
	"qexec-go/operators/materialize"
)

var (
	_ = (operators.Plan)(&MergeJoinPlan{})
	_ = (operators.Scan)(&MergeJoinScan{})
)

// use sort merge join when the output needs to be sorted on the join keys
type MergeJoinPlan struct {
	lhs, rhs         operators.Plan
	sorted1, sorted2 *aggr.SortPlan
	clause           JoinClause
	schema           *operators.Schema
}

func NewMergeJoinPlan(ctx *materialize.Context, lhs, rhs operators.Plan, clause JoinClause) (*MergeJoinPlan, error) {
	if clause.Op != Expr.Equal || clause.isCross() {
		return nil, ErrEquiJoinOnly("merge", clause.Op)
	}
	if err := clause.validate(lhs.Schema(), rhs.Schema()); err != nil {
		return nil, err
	}
	sch, err := joinSchemas(lhs.Schema(), rhs.Schema())
	if err != nil {
		return nil, err
	}
	ls, err := aggr.NewSortPlan(ctx, lhs, aggr.AscendingOn(clause.Left))
	if err != nil {
		return nil, err
	}
	rs, err := aggr.NewSortPlan(ctx, rhs, aggr.AscendingOn(clause.Right))
	if err != nil {
		return nil, err
	}
	return &MergeJoinPlan{lhs: lhs, rhs: rhs, sorted1: ls, sorted2: rs, clause: clause, schema: sch}, nil
}

func (mp *MergeJoinPlan) Open() (operators.Scan, error) {
	s1, err := mp.sorted1.Open()
	if err != nil {
		return nil, err
	}
	s2, err := mp.sorted2.Open()
	if err != nil {
		s1.Close()
		return nil, err
	}
	ms, err := NewMergeJoinScan(s1, s2, mp.clause, mp.rhs.Schema())
	if err != nil {
		operators.CloseAll(s1, s2)
		return nil, err
	}
	return ms, nil
}

// BlocksAccessed counts both sorts and one pass over each sorted input.
func (mp *MergeJoinPlan) BlocksAccessed() int {
	return mp.sorted1.BlocksAccessed() + mp.sorted2.BlocksAccessed() +
		mp.lhs.BlocksAccessed() + mp.rhs.BlocksAccessed()
}

func (mp *MergeJoinPlan) RecordsOutput() int { return joinedOutput(mp.lhs, mp.rhs, mp.clause) }

func (mp *MergeJoinPlan) DistinctValues(field string) int {
	return distinctValues(mp.lhs, mp.rhs, field)
}

func (mp *MergeJoinPlan) Schema() *operators.Schema { return mp.schema }

func (mp *MergeJoinPlan) String() string {
	return fmt.Sprintf("MergeJoin[%s](%s, %s)", mp.clause, mp.lhs, mp.rhs)
}

// MergeJoinScan walks two inputs sorted on their join fields. The right
// records sharing the current key are held in memory so that every left
// record with that key can be paired with all of them.
type MergeJoinScan struct {
	s1, s2      operators.Scan
	clause      JoinClause
	rightFields []string

	more2   bool // s2 sits on a record not yet grouped
	key     *operators.Constant
	group   []operators.Row
	gpos    int
	current operators.Row
}

func NewMergeJoinScan(s1, s2 operators.Scan, clause JoinClause, rightSchema *operators.Schema) (*MergeJoinScan, error) {
	ms := &MergeJoinScan{s1: s1, s2: s2, clause: clause, rightFields: rightSchema.Fields()}
	if err := ms.BeforeFirst(); err != nil {
		return nil, err
	}
	return ms, nil
}

func (ms *MergeJoinScan) BeforeFirst() error {
	ms.key, ms.group, ms.gpos, ms.current = nil, nil, 0, nil
	if err := ms.s1.BeforeFirst(); err != nil {
		return err
	}
	if err := ms.s2.BeforeFirst(); err != nil {
		return err
	}
	more, err := ms.s2.Next()
	ms.more2 = more
	return err
}

func (ms *MergeJoinScan) Next() (bool, error) {
	for {
		if ms.gpos < len(ms.group) {
			ms.current = ms.group[ms.gpos]
			ms.gpos++
			return true, nil
		}
		more, err := ms.s1.Next()
		if err != nil || !more {
			ms.current = nil
			return false, err
		}
		v1, err := ms.s1.GetVal(ms.clause.Left)
		if err != nil {
			return false, err
		}
		if ms.key == nil || !ms.key.Equals(v1) {
			if err := ms.loadGroup(v1); err != nil {
				return false, err
			}
		}
		ms.gpos = 0
	}
}

// loadGroup skips right records below v and collects the ones equal to it.
func (ms *MergeJoinScan) loadGroup(v operators.Constant) error {
	ms.key, ms.group = &v, nil
	for ms.more2 {
		v2, err := ms.s2.GetVal(ms.clause.Right)
		if err != nil {
			return err
		}
		c, err := v2.CompareTo(v)
		if err != nil {
			return err
		}
		if c > 0 {
			return nil
		}
		if c == 0 {
			row, err := operators.RowOf(ms.s2, ms.rightFields)
			if err != nil {
				return err
			}
			ms.group = append(ms.group, row)
		}
		if ms.more2, err = ms.s2.Next(); err != nil {
			return err
		}
	}
	return nil
}

func (ms *MergeJoinScan) GetVal(field string) (operators.Constant, error) {
	if ms.current == nil {
		return operators.Constant{}, errNotPositioned
	}
	if ms.s1.HasField(field) {
		return ms.s1.GetVal(field)
	}
	return ms.current.GetVal(field)
}

func (ms *MergeJoinScan) GetInt(field string) (int, error) { return operators.GetInt(ms, field) }

func (ms *MergeJoinScan) GetString(field string) (string, error) {
	return operators.GetString(ms, field)
}

func (ms *MergeJoinScan) HasField(field string) bool {
	if ms.s1.HasField(field) {
		return true
	}
	for _, f := range ms.rightFields {
		if f == field {
			return true
		}
	}
	return false
}

func (ms *MergeJoinScan) Close() error { return operators.CloseAll(ms.s1, ms.s2) }
