package join

import (
	"fmt"

	"qexec-go/operators"
	"qexec-go/operators/materialize"
)

var (
	_ = (operators.Plan)(&ProductPlan{})
)

// ProductPlan is the buffer aware cartesian product. The right input is
// materialized and chunked, the left input is streamed once per chunk.
type ProductPlan struct {
	ctx      *materialize.Context
	lhs, rhs operators.Plan
	schema   *operators.Schema
}

func NewProductPlan(ctx *materialize.Context, lhs, rhs operators.Plan) (*ProductPlan, error) {
	sch, err := joinSchemas(lhs.Schema(), rhs.Schema())
	if err != nil {
		return nil, err
	}
	return &ProductPlan{ctx: ctx, lhs: lhs, rhs: rhs, schema: sch}, nil
}

func (pp *ProductPlan) Open() (operators.Scan, error) {
	tt, err := materialize.NewMaterializePlan(pp.ctx, pp.rhs).Materialize()
	if err != nil {
		return nil, err
	}
	left, err := pp.lhs.Open()
	if err != nil {
		tt.Drop()
		return nil, err
	}
	s, err := NewChunkedScan(pp.ctx, tt, left, JoinClause{}, pp.schema)
	if err != nil {
		left.Close()
		tt.Drop()
		return nil, err
	}
	return s, nil
}

func (pp *ProductPlan) BlocksAccessed() int {
	size := materialize.NewMaterializePlan(pp.ctx, pp.rhs).BlocksAccessed()
	k := BestFactor(pp.ctx.Store.AvailableBuffs(), size)
	return pp.rhs.BlocksAccessed() + pp.lhs.BlocksAccessed()*chunks(size, k)
}

func (pp *ProductPlan) RecordsOutput() int {
	return pp.lhs.RecordsOutput() * pp.rhs.RecordsOutput()
}

func (pp *ProductPlan) DistinctValues(field string) int {
	return distinctValues(pp.lhs, pp.rhs, field)
}

func (pp *ProductPlan) Schema() *operators.Schema { return pp.schema }

func (pp *ProductPlan) String() string {
	return fmt.Sprintf("Product(%s, %s)", pp.lhs, pp.rhs)
}
