package storage

import (
	"fmt"

	"qexec-go/operators"
)

var (
	_ = (operators.UpdateScan)(&TableScan{})
	_ = (operators.Scan)(&ChunkScan{})
)

// TableScan walks a table file block by block, holding one block at a time.
type TableScan struct {
	st     *Store
	file   string
	layout *operators.Layout
	idx    map[string]int

	blk   int
	cur   *block
	slot  int
	dirty bool
}

func fieldIndex(layout *operators.Layout) map[string]int {
	fields := layout.Schema().Fields()
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f] = i
	}
	return idx
}

func (st *Store) NewTableScan(file string, layout *operators.Layout) (*TableScan, error) {
	ts := &TableScan{
		st:     st,
		file:   file,
		layout: layout,
		idx:    fieldIndex(layout),
		blk:    -1,
		slot:   -1,
	}
	if err := ts.BeforeFirst(); err != nil {
		return nil, err
	}
	return ts, nil
}

func (ts *TableScan) FileName() string { return ts.file }

func (ts *TableScan) BeforeFirst() error {
	if err := ts.flush(); err != nil {
		return err
	}
	ts.cur, ts.blk, ts.slot = nil, -1, -1
	n, err := ts.st.Size(ts.file)
	if err != nil {
		return err
	}
	if n > 0 {
		return ts.moveToBlock(0)
	}
	return nil
}

func (ts *TableScan) Next() (bool, error) {
	for {
		if ts.cur != nil && ts.slot+1 < len(ts.cur.rows) {
			ts.slot++
			return true, nil
		}
		n, err := ts.st.Size(ts.file)
		if err != nil {
			return false, err
		}
		if ts.blk+1 >= n {
			if ts.cur != nil {
				ts.slot = len(ts.cur.rows)
			}
			return false, nil
		}
		if err := ts.moveToBlock(ts.blk + 1); err != nil {
			return false, err
		}
	}
}

func (ts *TableScan) GetVal(field string) (operators.Constant, error) {
	i, ok := ts.idx[field]
	if !ok {
		return operators.Constant{}, operators.ErrFieldNotFound(field)
	}
	if ts.cur == nil || ts.slot < 0 || ts.slot >= len(ts.cur.rows) {
		return operators.Constant{}, ErrScanNotPositioned
	}
	return ts.cur.rows[ts.slot][i], nil
}

func (ts *TableScan) GetInt(field string) (int, error) { return operators.GetInt(ts, field) }

func (ts *TableScan) GetString(field string) (string, error) {
	return operators.GetString(ts, field)
}

func (ts *TableScan) HasField(field string) bool {
	_, ok := ts.idx[field]
	return ok
}

func (ts *TableScan) SetVal(field string, val operators.Constant) error {
	i, ok := ts.idx[field]
	if !ok {
		return operators.ErrFieldNotFound(field)
	}
	if want := ts.layout.Schema().Type(field); val.Type() != want {
		return operators.ErrWrongType(field, want, val.Type())
	}
	if ts.cur == nil || ts.slot < 0 || ts.slot >= len(ts.cur.rows) {
		return ErrScanNotPositioned
	}
	ts.cur.rows[ts.slot][i] = val
	ts.dirty = true
	return nil
}

func (ts *TableScan) SetInt(field string, val int) error {
	return ts.SetVal(field, operators.NewIntConstant(val))
}

func (ts *TableScan) SetString(field string, val string) error {
	return ts.SetVal(field, operators.NewStringConstant(val))
}

// Insert appends an empty record to the last block, opening a new block when it is full.
func (ts *TableScan) Insert() error {
	n, err := ts.st.Size(ts.file)
	if err != nil {
		return err
	}
	if n > 0 && ts.blk != n-1 {
		if err := ts.moveToBlock(n - 1); err != nil {
			return err
		}
	}
	if ts.cur == nil || len(ts.cur.rows) >= ts.layout.SlotsPerBlock(ts.st.BlockSize()) {
		if err := ts.flush(); err != nil {
			return err
		}
		blk, b, err := ts.st.appendBlock(ts.file, ts.layout)
		if err != nil {
			return err
		}
		ts.blk, ts.cur = blk, b
	}
	ts.cur.rows = append(ts.cur.rows, ts.emptyRow())
	ts.slot = len(ts.cur.rows) - 1
	ts.dirty = true
	return nil
}

func (ts *TableScan) emptyRow() []operators.Constant {
	sch := ts.layout.Schema()
	row := make([]operators.Constant, sch.NumFields())
	for i, f := range sch.Fields() {
		if sch.Type(f) == operators.Varchar {
			row[i] = operators.NewStringConstant("")
		} else {
			row[i] = operators.NewIntConstant(0)
		}
	}
	return row
}

func (ts *TableScan) Close() error {
	err := ts.flush()
	ts.cur = nil
	return err
}

// moveToBlock writes back the current block first if it was modified.
func (ts *TableScan) moveToBlock(blk int) error {
	if err := ts.flush(); err != nil {
		return err
	}
	b, err := ts.st.readBlock(ts.file, blk, ts.layout)
	if err != nil {
		return err
	}
	ts.blk, ts.cur, ts.slot = blk, b, -1
	return nil
}

func (ts *TableScan) flush() error {
	if !ts.dirty || ts.cur == nil {
		return nil
	}
	ts.dirty = false
	return ts.st.writeBlock(ts.file, ts.blk, ts.cur, ts.layout)
}

// ChunkScan reads blocks [start, end] of a file into memory once and
// iterates them as often as the caller rewinds. It is read only.
type ChunkScan struct {
	idx        map[string]int
	start, end int
	blocks     []*block
	cur        int
	slot       int
}

func (st *Store) NewChunkScan(file string, layout *operators.Layout, start, end int) (*ChunkScan, error) {
	if start > end {
		return nil, fmt.Errorf("chunk [%d, %d] of %q is empty", start, end, file)
	}
	cs := &ChunkScan{
		idx:    fieldIndex(layout),
		start:  start,
		end:    end,
		blocks: make([]*block, 0, end-start+1),
	}
	for blk := start; blk <= end; blk++ {
		b, err := st.readBlock(file, blk, layout)
		if err != nil {
			return nil, err
		}
		cs.blocks = append(cs.blocks, b)
	}
	if err := cs.BeforeFirst(); err != nil {
		return nil, err
	}
	return cs, nil
}

func (cs *ChunkScan) BeforeFirst() error {
	cs.cur, cs.slot = 0, -1
	return nil
}

func (cs *ChunkScan) Next() (bool, error) {
	for cs.cur < len(cs.blocks) {
		if cs.slot+1 < len(cs.blocks[cs.cur].rows) {
			cs.slot++
			return true, nil
		}
		cs.cur++
		cs.slot = -1
	}
	return false, nil
}

func (cs *ChunkScan) GetVal(field string) (operators.Constant, error) {
	i, ok := cs.idx[field]
	if !ok {
		return operators.Constant{}, operators.ErrFieldNotFound(field)
	}
	if cs.cur >= len(cs.blocks) || cs.slot < 0 {
		return operators.Constant{}, ErrScanNotPositioned
	}
	return cs.blocks[cs.cur].rows[cs.slot][i], nil
}

func (cs *ChunkScan) GetInt(field string) (int, error) { return operators.GetInt(cs, field) }

func (cs *ChunkScan) GetString(field string) (string, error) {
	return operators.GetString(cs, field)
}

func (cs *ChunkScan) HasField(field string) bool {
	_, ok := cs.idx[field]
	return ok
}

func (cs *ChunkScan) Close() error {
	cs.blocks = nil
	return nil
}
