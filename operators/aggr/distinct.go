package aggr

import (
	"fmt"
	"strings"

	"qexec-go/operators"
	"qexec-go/operators/materialize"
)

var (
	_ = (operators.Plan)(&DistinctPlan{})
	_ = (operators.Scan)(&DistinctScan{})
)

// DistinctPlan removes records that repeat on the distinct fields. It runs
// the sort machinery and folds duplicate elimination into each merge, so the
// output also comes out ordered by those fields.
type DistinctPlan struct {
	ctx    *materialize.Context
	input  operators.Plan
	fields []string
	comp   *RecordComparator
}

// NewDistinctPlan deduplicates on fields, or on every field of input when
// none are given.
func NewDistinctPlan(ctx *materialize.Context, input operators.Plan, fields ...string) (*DistinctPlan, error) {
	if len(fields) == 0 {
		fields = input.Schema().Fields()
	}
	comp := AscendingOn(fields...)
	if err := comp.validate(input.Schema()); err != nil {
		return nil, err
	}
	return &DistinctPlan{ctx: ctx, input: input, fields: fields, comp: comp}, nil
}

func (dp *DistinctPlan) Open() (operators.Scan, error) {
	src, err := dp.input.Open()
	if err != nil {
		return nil, err
	}
	srt := sorter{ctx: dp.ctx, schema: dp.input.Schema(), comp: dp.comp, dedupe: true}
	tt, err := srt.sort(src)
	if cerr := src.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	ss, err := NewSortScan(tt, dp.input.Schema())
	if err != nil {
		return nil, err
	}
	return &DistinctScan{SortScan: *ss}, nil
}

func (dp *DistinctPlan) BlocksAccessed() int { return mergeCost(dp.ctx, dp.input) }

// RecordsOutput is bounded by the number of distinct combinations of the fields.
func (dp *DistinctPlan) RecordsOutput() int {
	r := dp.input.RecordsOutput()
	combos := 1
	for _, f := range dp.fields {
		combos *= max(dp.input.DistinctValues(f), 1)
		if combos >= r {
			return r
		}
	}
	return combos
}

func (dp *DistinctPlan) DistinctValues(field string) int {
	return min(dp.input.DistinctValues(field), dp.RecordsOutput())
}

func (dp *DistinctPlan) Schema() *operators.Schema { return dp.input.Schema() }

func (dp *DistinctPlan) String() string {
	return fmt.Sprintf("Distinct[%s](%s)", strings.Join(dp.fields, ", "), dp.input)
}

// DistinctScan reads the deduplicated run. Like SortScan it tolerates an
// empty input.
type DistinctScan struct {
	SortScan
}
