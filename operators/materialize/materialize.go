package materialize

import (
	"errors"
	"math"

	"qexec-go/operators"
)

var (
	_ = (operators.Plan)(&MaterializePlan{})
)

// MaterializePlan copies its input into a temp table when opened.
type MaterializePlan struct {
	ctx *Context
	src operators.Plan
}

func NewMaterializePlan(ctx *Context, src operators.Plan) *MaterializePlan {
	return &MaterializePlan{ctx: ctx, src: src}
}

func (mp *MaterializePlan) Open() (operators.Scan, error) {
	tt, err := mp.Materialize()
	if err != nil {
		return nil, err
	}
	s, err := tt.Open()
	if err != nil {
		tt.Drop()
		return nil, err
	}
	return &tempScan{Scan: s, tt: tt}, nil
}

// tempScan drops the table it reads when closed.
type tempScan struct {
	operators.Scan
	tt *TempTable
}

func (ts *tempScan) Close() error {
	return errors.Join(ts.Scan.Close(), ts.tt.Drop())
}

// Materialize runs the input to completion and returns the filled table.
func (mp *MaterializePlan) Materialize() (*TempTable, error) {
	src, err := mp.src.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return CopyToTemp(mp.ctx, src, mp.src.Schema())
}

// BlocksAccessed is the size of the materialized table; reading the input is not counted.
func (mp *MaterializePlan) BlocksAccessed() int {
	return BlocksFor(mp.ctx, mp.src.Schema(), mp.src.RecordsOutput())
}

func (mp *MaterializePlan) RecordsOutput() int { return mp.src.RecordsOutput() }
func (mp *MaterializePlan) DistinctValues(field string) int { return mp.src.DistinctValues(field) }
func (mp *MaterializePlan) Schema() *operators.Schema { return mp.src.Schema() }
func (mp *MaterializePlan) String() string { return "Materialize(" + mp.src.String() + ")" }

// BlocksFor estimates how many blocks records rows of sch occupy.
func BlocksFor(ctx *Context, sch *operators.Schema, records int) int {
	rpb := operators.NewLayout(sch).SlotsPerBlock(ctx.Store.BlockSize())
	return int(math.Ceil(float64(records) / float64(rpb)))
}

// CopyToTemp drains src from its current position into a new temp table.
func CopyToTemp(ctx *Context, src operators.Scan, sch *operators.Schema) (*TempTable, error) {
	tt := NewTempTable(ctx, sch)
	dst, err := tt.Open()
	if err != nil {
		return nil, err
	}
	if err := copyAll(dst, src, sch.Fields()); err != nil {
		dst.Close()
		tt.Drop()
		return nil, err
	}
	if err := dst.Close(); err != nil {
		tt.Drop()
		return nil, err
	}
	return tt, nil
}

func copyAll(dst operators.UpdateScan, src operators.Scan, fields []string) error {
	for {
		more, err := src.Next()
		if err != nil || !more {
			return err
		}
		if err := operators.CopyRecord(dst, src, fields); err != nil {
			return err
		}
	}
}
