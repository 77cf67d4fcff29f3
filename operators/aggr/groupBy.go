package aggr

import (
	"fmt"
	"strings"

	"qexec-go/operators"
	"qexec-go/operators/materialize"
)

/*
rules for group by:
1. the output holds the group fields followed by one column per aggregation function
2. groups are found by sorting on the group fields, so they come out in ascending order
3. without group fields the whole input is one group; an empty input has no groups
*/
var (
	_ = (operators.Plan)(&GroupByPlan{})
	_ = (operators.Scan)(&GroupByScan{})
)

type GroupByPlan struct {
	input       operators.Plan
	sorted      operators.Plan
	groupFields []string
	fns         []AggregationFn
	schema      *operators.Schema
}

func NewGroupByPlan(ctx *materialize.Context, input operators.Plan, groupFields []string, fns []AggregationFn) (*GroupByPlan, error) {
	sch, err := buildGroupBySchema(input.Schema(), groupFields, fns)
	if err != nil {
		return nil, err
	}
	sorted := input
	if len(groupFields) > 0 {
		if sorted, err = NewSortPlan(ctx, input, AscendingOn(groupFields...)); err != nil {
			return nil, err
		}
	}
	return &GroupByPlan{
		input:       input,
		sorted:      sorted,
		groupFields: groupFields,
		fns:         fns,
		schema:      sch,
	}, nil
}

// handles validation and building of schema for group by
func buildGroupBySchema(input *operators.Schema, groupFields []string, fns []AggregationFn) (*operators.Schema, error) {
	sch := operators.NewSchema()
	for _, f := range groupFields {
		if !input.HasField(f) {
			return nil, fmt.Errorf("group by field: %w", operators.ErrFieldNotFound(f))
		}
		sch.Add(f, input)
	}
	for _, fn := range fns {
		if sch.HasField(fn.FieldName()) {
			return nil, fmt.Errorf("aggregate %s is listed twice", fn.FieldName())
		}
		typ, length, err := resultField(fn, input)
		if err != nil {
			return nil, fmt.Errorf("aggregate %s: %w", fn.FieldName(), err)
		}
		sch.AddField(fn.FieldName(), typ, length)
	}
	return sch, nil
}

func (gp *GroupByPlan) Open() (operators.Scan, error) {
	s, err := gp.sorted.Open()
	if err != nil {
		return nil, err
	}
	gs, err := NewGroupByScan(s, gp.groupFields, gp.fns)
	if err != nil {
		s.Close()
		return nil, err
	}
	return gs, nil
}

func (gp *GroupByPlan) BlocksAccessed() int { return gp.sorted.BlocksAccessed() }

// RecordsOutput is the number of group field combinations, capped by the input size.
func (gp *GroupByPlan) RecordsOutput() int {
	r := gp.input.RecordsOutput()
	groups := 1
	for _, f := range gp.groupFields {
		groups *= max(gp.input.DistinctValues(f), 1)
		if groups >= r {
			return max(r, 1)
		}
	}
	return groups
}

func (gp *GroupByPlan) DistinctValues(field string) int {
	if gp.input.Schema().HasField(field) && gp.schema.HasField(field) {
		return gp.input.DistinctValues(field)
	}
	return gp.RecordsOutput()
}

func (gp *GroupByPlan) Schema() *operators.Schema { return gp.schema }

func (gp *GroupByPlan) String() string {
	names := make([]string, len(gp.fns))
	for i, fn := range gp.fns {
		names[i] = fn.FieldName()
	}
	return fmt.Sprintf("GroupBy[%s; %s](%s)", strings.Join(gp.groupFields, ", "), strings.Join(names, ", "), gp.sorted)
}

// GroupByScan walks an input sorted on the group fields and emits one record
// per run of equal group values.
type GroupByScan struct {
	s           operators.Scan
	groupFields []string
	fns         []AggregationFn
	groupVal    operators.Row
	moreGroups  bool
}

func NewGroupByScan(s operators.Scan, groupFields []string, fns []AggregationFn) (*GroupByScan, error) {
	gs := &GroupByScan{s: s, groupFields: groupFields, fns: fns}
	if err := gs.BeforeFirst(); err != nil {
		return nil, err
	}
	return gs, nil
}

func (gs *GroupByScan) BeforeFirst() error {
	gs.groupVal = nil
	if err := gs.s.BeforeFirst(); err != nil {
		return err
	}
	more, err := gs.s.Next()
	gs.moreGroups = more
	return err
}

func (gs *GroupByScan) Next() (bool, error) {
	if !gs.moreGroups {
		return false, nil
	}
	for _, fn := range gs.fns {
		if err := fn.ProcessFirst(gs.s); err != nil {
			return false, err
		}
	}
	groupVal, err := operators.RowOf(gs.s, gs.groupFields)
	if err != nil {
		return false, err
	}
	gs.groupVal = groupVal
	for {
		if gs.moreGroups, err = gs.s.Next(); err != nil || !gs.moreGroups {
			return err == nil, err
		}
		same, err := gs.sameGroup()
		if err != nil {
			return false, err
		}
		if !same {
			return true, nil
		}
		for _, fn := range gs.fns {
			if err := fn.ProcessNext(gs.s); err != nil {
				return false, err
			}
		}
	}
}

func (gs *GroupByScan) sameGroup() (bool, error) {
	for _, f := range gs.groupFields {
		v, err := gs.s.GetVal(f)
		if err != nil {
			return false, err
		}
		if !v.Equals(gs.groupVal[f]) {
			return false, nil
		}
	}
	return true, nil
}

func (gs *GroupByScan) GetVal(field string) (operators.Constant, error) {
	if gs.groupVal == nil {
		return operators.Constant{}, fmt.Errorf("group by scan is not positioned on a group")
	}
	if v, ok := gs.groupVal[field]; ok {
		return v, nil
	}
	for _, fn := range gs.fns {
		if fn.FieldName() == field {
			return fn.Value()
		}
	}
	return operators.Constant{}, operators.ErrFieldNotFound(field)
}

func (gs *GroupByScan) GetInt(field string) (int, error) { return operators.GetInt(gs, field) }

func (gs *GroupByScan) GetString(field string) (string, error) {
	return operators.GetString(gs, field)
}

func (gs *GroupByScan) HasField(field string) bool {
	for _, f := range gs.groupFields {
		if f == field {
			return true
		}
	}
	for _, fn := range gs.fns {
		if fn.FieldName() == field {
			return true
		}
	}
	return false
}

func (gs *GroupByScan) Close() error { return gs.s.Close() }
