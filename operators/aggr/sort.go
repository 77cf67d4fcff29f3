package aggr

import (
	"fmt"
	"math"

	"qexec-go/operators"
	"qexec-go/operators/materialize"
	"qexec-go/storage"

	"github.com/go-kit/log/level"
)

var (
	_ = (operators.Plan)(&SortPlan{})
	_ = (operators.Scan)(&SortScan{})
)

// SortPlan is an external merge sort. The input is cut into sorted runs in a
// single pass; runs are then merged two at a time until one is left.
type SortPlan struct {
	ctx   *materialize.Context
	input operators.Plan
	comp  *RecordComparator
}

func NewSortPlan(ctx *materialize.Context, input operators.Plan, comp *RecordComparator) (*SortPlan, error) {
	if err := comp.validate(input.Schema()); err != nil {
		return nil, err
	}
	return &SortPlan{ctx: ctx, input: input, comp: comp}, nil
}

func (sp *SortPlan) Open() (operators.Scan, error) {
	src, err := sp.input.Open()
	if err != nil {
		return nil, err
	}
	srt := sorter{ctx: sp.ctx, schema: sp.input.Schema(), comp: sp.comp}
	tt, err := srt.sort(src)
	if cerr := src.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return NewSortScan(tt, sp.input.Schema())
}

func (sp *SortPlan) BlocksAccessed() int {
	return mergeCost(sp.ctx, sp.input)
}

func (sp *SortPlan) RecordsOutput() int { return sp.input.RecordsOutput() }

func (sp *SortPlan) DistinctValues(field string) int { return sp.input.DistinctValues(field) }

func (sp *SortPlan) Schema() *operators.Schema { return sp.input.Schema() }

func (sp *SortPlan) Comparator() *RecordComparator { return sp.comp }

func (sp *SortPlan) String() string {
	return fmt.Sprintf("Sort[%s](%s)", sp.comp, sp.input)
}

// mergeCost is 2 * materializedBlocks * (ceil(log2(runs)) + 1), where the
// first pass produces one run per buffer load.
func mergeCost(ctx *materialize.Context, input operators.Plan) int {
	blocks := materialize.NewMaterializePlan(ctx, input).BlocksAccessed()
	buffs := max(ctx.Store.AvailableBuffs(), 1)
	runs := max(1, (blocks+buffs-1)/buffs)
	iterations := int(math.Ceil(math.Log2(float64(runs)))) + 1
	return 2 * blocks * iterations
}

// SortScan reads the single run left after merging. A nil table stands for
// an empty input. The scan drops the table when closed.
type SortScan struct {
	tt     *materialize.TempTable
	s      operators.UpdateScan
	schema *operators.Schema
}

func NewSortScan(tt *materialize.TempTable, schema *operators.Schema) (*SortScan, error) {
	ss := &SortScan{tt: tt, schema: schema}
	if tt == nil {
		return ss, nil
	}
	s, err := tt.Open()
	if err != nil {
		tt.Drop()
		return nil, err
	}
	ss.s = s
	return ss, nil
}

func (ss *SortScan) BeforeFirst() error {
	if ss.s == nil {
		return nil
	}
	return ss.s.BeforeFirst()
}

func (ss *SortScan) Next() (bool, error) {
	if ss.s == nil {
		return false, nil
	}
	return ss.s.Next()
}

func (ss *SortScan) GetVal(field string) (operators.Constant, error) {
	if ss.s == nil {
		return operators.Constant{}, storage.ErrScanNotPositioned
	}
	return ss.s.GetVal(field)
}

func (ss *SortScan) GetInt(field string) (int, error) { return operators.GetInt(ss, field) }

func (ss *SortScan) GetString(field string) (string, error) {
	return operators.GetString(ss, field)
}

func (ss *SortScan) HasField(field string) bool { return ss.schema.HasField(field) }

func (ss *SortScan) Close() error {
	if ss.s == nil {
		return nil
	}
	err := ss.s.Close()
	if derr := ss.tt.Drop(); err == nil {
		err = derr
	}
	ss.s, ss.tt = nil, nil
	return err
}

// sorter holds the run generation and merge machinery shared by sort,
// distinct and group by. With dedupe set, a record equal to the last one
// written to a merge destination is dropped.
type sorter struct {
	ctx    *materialize.Context
	schema *operators.Schema
	comp   *RecordComparator
	dedupe bool
}

// sort returns a table holding src in comparator order, or nil when src is empty.
func (s sorter) sort(src operators.Scan) (*materialize.TempTable, error) {
	runs, err := s.splitIntoRuns(src)
	if err != nil {
		return nil, err
	}
	s.ctx.Metrics.SortRuns.Add(float64(len(runs)))
	level.Debug(s.ctx.Logger).Log("msg", "sort runs generated", "runs", len(runs), "order", s.comp)
	switch len(runs) {
	case 0:
		return nil, nil
	case 1:
		if !s.dedupe {
			return runs[0], nil
		}
		out, err := s.merge(runs[0])
		if derr := runs[0].Drop(); err == nil && derr != nil {
			out.Drop()
			return nil, derr
		}
		return out, err
	}
	for len(runs) > 1 {
		if runs, err = s.doAMergeIteration(runs); err != nil {
			return nil, err
		}
	}
	return runs[0], nil
}

// splitIntoRuns starts a new run whenever the next record sorts before the
// last one appended.
func (s sorter) splitIntoRuns(src operators.Scan) ([]*materialize.TempTable, error) {
	if err := src.BeforeFirst(); err != nil {
		return nil, err
	}
	more, err := src.Next()
	if err != nil || !more {
		return nil, err
	}
	fields := s.schema.Fields()
	var runs []*materialize.TempTable
	var dst operators.UpdateScan
	fail := func(err error) ([]*materialize.TempTable, error) {
		if dst != nil {
			dst.Close()
		}
		dropAll(runs)
		return nil, err
	}
	newRun := func() error {
		if dst != nil {
			if err := dst.Close(); err != nil {
				return err
			}
		}
		tt := materialize.NewTempTable(s.ctx, s.schema)
		runs = append(runs, tt)
		var err error
		dst, err = tt.Open()
		return err
	}
	if err := newRun(); err != nil {
		return fail(err)
	}
	for more {
		if err := operators.CopyRecord(dst, src, fields); err != nil {
			return fail(err)
		}
		if more, err = src.Next(); err != nil {
			return fail(err)
		}
		if !more {
			break
		}
		c, err := s.comp.Compare(src, dst)
		if err != nil {
			return fail(err)
		}
		if c < 0 {
			if err := newRun(); err != nil {
				return fail(err)
			}
		}
	}
	if err := dst.Close(); err != nil {
		dst = nil
		return fail(err)
	}
	return runs, nil
}

// doAMergeIteration merges runs[0] with runs[1], runs[2] with runs[3] and so
// on. An odd run out is carried forward as is. Merged inputs are dropped.
func (s sorter) doAMergeIteration(runs []*materialize.TempTable) ([]*materialize.TempTable, error) {
	next := make([]*materialize.TempTable, 0, (len(runs)+1)/2)
	i := 0
	for ; i+1 < len(runs); i += 2 {
		merged, err := s.merge(runs[i], runs[i+1])
		if err != nil {
			dropAll(runs[i:])
			dropAll(next)
			return nil, err
		}
		next = append(next, merged)
		if err := dropAll(runs[i : i+2]); err != nil {
			dropAll(runs[i+2:])
			dropAll(next)
			return nil, err
		}
	}
	if i < len(runs) {
		next = append(next, runs[i])
	}
	s.ctx.Metrics.MergeIterations.Inc()
	level.Debug(s.ctx.Logger).Log("msg", "merge iteration", "runs_in", len(runs), "runs_out", len(next))
	return next, nil
}

// merge writes the comparator ordered union of one or two sorted runs to a
// new table. One run is only worth merging for its duplicates.
func (s sorter) merge(runs ...*materialize.TempTable) (*materialize.TempTable, error) {
	out := materialize.NewTempTable(s.ctx, s.schema)
	dst, err := out.Open()
	if err != nil {
		return nil, err
	}
	srcs := make([]operators.Scan, 0, len(runs))
	fail := func(err error) (*materialize.TempTable, error) {
		operators.CloseAll(srcs...)
		dst.Close()
		out.Drop()
		return nil, err
	}
	for _, r := range runs {
		sc, err := r.Open()
		if err != nil {
			return fail(err)
		}
		srcs = append(srcs, sc)
	}

	fields := s.schema.Fields()
	wrote := false
	emit := func(src operators.Scan) error {
		if s.dedupe && wrote {
			c, err := s.comp.Compare(src, dst)
			if err != nil || c == 0 {
				return err
			}
		}
		wrote = true
		return operators.CopyRecord(dst, src, fields)
	}

	more := make([]bool, len(srcs))
	for i, sc := range srcs {
		if more[i], err = sc.Next(); err != nil {
			return fail(err)
		}
	}
	for {
		pick := -1
		for i, sc := range srcs {
			if !more[i] {
				continue
			}
			if pick < 0 {
				pick = i
				continue
			}
			c, err := s.comp.Compare(sc, srcs[pick])
			if err != nil {
				return fail(err)
			}
			if c < 0 {
				pick = i
			}
		}
		if pick < 0 {
			break
		}
		if err := emit(srcs[pick]); err != nil {
			return fail(err)
		}
		if more[pick], err = srcs[pick].Next(); err != nil {
			return fail(err)
		}
	}
	if err := operators.CloseAll(srcs...); err != nil {
		srcs = nil
		return fail(err)
	}
	if err := dst.Close(); err != nil {
		out.Drop()
		return nil, err
	}
	return out, nil
}

func dropAll(tables []*materialize.TempTable) error {
	var first error
	for _, tt := range tables {
		if err := tt.Drop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
