package materialize

import (
	"qexec-go/operators"
	"qexec-go/storage"
)

// TempTable is scratch storage for one operator execution. It lives in the
// store until Drop is called or the store is closed.
type TempTable struct {
	ctx     *Context
	tblname string
	layout  *operators.Layout
}

func NewTempTable(ctx *Context, sch *operators.Schema) *TempTable {
	ctx.Metrics.TempTables.Inc()
	return &TempTable{
		ctx:     ctx,
		tblname: storage.TempTableName(ctx.Seq.Next()),
		layout:  operators.NewLayout(sch),
	}
}

func (tt *TempTable) Open() (operators.UpdateScan, error) {
	ts, err := tt.ctx.Store.NewTableScan(tt.tblname, tt.layout)
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func (tt *TempTable) TableName() string { return tt.tblname }
func (tt *TempTable) Layout() *operators.Layout { return tt.layout }
func (tt *TempTable) Schema() *operators.Schema { return tt.layout.Schema() }

// Blocks is the measured size of the table, not an estimate.
func (tt *TempTable) Blocks() (int, error) {
	return tt.ctx.Store.Size(tt.tblname)
}

func (tt *TempTable) Drop() error {
	return tt.ctx.Store.Drop(tt.tblname)
}
