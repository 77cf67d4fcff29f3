package join

import (
	"fmt"
	"sort"

	"qexec-go/Expr"
	"qexec-go/operators"
	"qexec-go/operators/materialize"
)

var (
	_ = (operators.Plan)(&HashJoinPlan{})
	_ = (operators.Scan)(&HashJoinScan{})
)

// HashJoinPlan is a single level grace hash join. Both inputs are split into
// the same number of buckets on their join field; each right bucket is then
// loaded into memory and probed with the matching left bucket.
//
// A bucket is assumed to fit in memory. There is no recursive partitioning.
type HashJoinPlan struct {
	ctx      *materialize.Context
	lhs, rhs operators.Plan
	clause   JoinClause
	schema   *operators.Schema
}

func NewHashJoinPlan(ctx *materialize.Context, lhs, rhs operators.Plan, clause JoinClause) (*HashJoinPlan, error) {
	if clause.Op != Expr.Equal || clause.isCross() {
		return nil, ErrEquiJoinOnly("hash", clause.Op)
	}
	if err := clause.validate(lhs.Schema(), rhs.Schema()); err != nil {
		return nil, err
	}
	sch, err := joinSchemas(lhs.Schema(), rhs.Schema())
	if err != nil {
		return nil, err
	}
	return &HashJoinPlan{ctx: ctx, lhs: lhs, rhs: rhs, clause: clause, schema: sch}, nil
}

func (hp *HashJoinPlan) Open() (operators.Scan, error) {
	n := numPartitions(hp.ctx)
	left, err := hp.partitionOf(hp.lhs, hp.clause.Left, n)
	if err != nil {
		return nil, err
	}
	right, err := hp.partitionOf(hp.rhs, hp.clause.Right, n)
	if err != nil {
		left.drop()
		return nil, err
	}
	return NewHashJoinScan(left, right, hp.rhs.Schema(), hp.clause, hp.schema)
}

func (hp *HashJoinPlan) partitionOf(p operators.Plan, field string, n int) (partitions, error) {
	src, err := p.Open()
	if err != nil {
		return nil, err
	}
	parts, err := partition(hp.ctx, src, p.Schema(), field, n)
	if cerr := src.Close(); err == nil && cerr != nil {
		parts.drop()
		return nil, cerr
	}
	return parts, err
}

// BlocksAccessed counts one read and one write while partitioning plus one
// more read while probing.
func (hp *HashJoinPlan) BlocksAccessed() int {
	b1 := materialize.NewMaterializePlan(hp.ctx, hp.lhs).BlocksAccessed()
	b2 := materialize.NewMaterializePlan(hp.ctx, hp.rhs).BlocksAccessed()
	return 3 * (b1 + b2)
}

func (hp *HashJoinPlan) RecordsOutput() int { return joinedOutput(hp.lhs, hp.rhs, hp.clause) }

func (hp *HashJoinPlan) DistinctValues(field string) int {
	return distinctValues(hp.lhs, hp.rhs, field)
}

func (hp *HashJoinPlan) Schema() *operators.Schema { return hp.schema }

func (hp *HashJoinPlan) String() string {
	return fmt.Sprintf("HashJoin[%s](%s, %s)", hp.clause, hp.lhs, hp.rhs)
}

// HashJoinScan probes one bucket pair at a time. Buckets of the right input
// without a left counterpart cannot produce a match and are skipped. The scan
// owns and drops both partition sets.
type HashJoinScan struct {
	left, right partitions
	rightFields []string
	clause      JoinClause
	schema      *operators.Schema

	ids     []int // buckets present on both sides, ascending
	pos     int
	probe   operators.Scan
	table   map[uint64][]operators.Row
	matches []operators.Row
	mpos    int
	current operators.Row
}

func NewHashJoinScan(left, right partitions, rightSchema *operators.Schema, clause JoinClause, schema *operators.Schema) (*HashJoinScan, error) {
	ids := make([]int, 0, len(right))
	for id := range right {
		if _, ok := left[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	hs := &HashJoinScan{
		left:        left,
		right:       right,
		rightFields: rightSchema.Fields(),
		clause:      clause,
		schema:      schema,
		ids:         ids,
	}
	if err := hs.BeforeFirst(); err != nil {
		hs.Close()
		return nil, err
	}
	return hs, nil
}

func (hs *HashJoinScan) BeforeFirst() error {
	var err error
	if hs.probe != nil {
		err = hs.probe.Close()
	}
	hs.probe, hs.table, hs.matches, hs.current = nil, nil, nil, nil
	hs.pos, hs.mpos = -1, 0
	return err
}

func (hs *HashJoinScan) Next() (bool, error) {
	for {
		for hs.mpos < len(hs.matches) {
			row := hs.matches[hs.mpos]
			hs.mpos++
			// equal hashes don't imply equal values
			ok, err := hs.clause.match(hs.probe, row)
			if err != nil {
				return false, err
			}
			if ok {
				hs.current = row
				return true, nil
			}
		}
		if hs.probe != nil {
			more, err := hs.probe.Next()
			if err != nil {
				return false, err
			}
			if more {
				v, err := hs.probe.GetVal(hs.clause.Left)
				if err != nil {
					return false, err
				}
				hs.matches, hs.mpos = hs.table[hashOf(v)], 0
				continue
			}
			if err := hs.probe.Close(); err != nil {
				return false, err
			}
			hs.probe = nil
		}
		ok, err := hs.nextBucket()
		if err != nil || !ok {
			return false, err
		}
	}
}

// nextBucket builds the in-memory table for the next right bucket and opens
// the matching left bucket for probing.
func (hs *HashJoinScan) nextBucket() (bool, error) {
	hs.pos++
	if hs.pos >= len(hs.ids) {
		return false, nil
	}
	id := hs.ids[hs.pos]
	build, err := hs.right[id].Open()
	if err != nil {
		return false, err
	}
	table := make(map[uint64][]operators.Row)
	for {
		more, err := build.Next()
		if err != nil {
			build.Close()
			return false, err
		}
		if !more {
			break
		}
		row, err := operators.RowOf(build, hs.rightFields)
		if err != nil {
			build.Close()
			return false, err
		}
		h := hashOf(row[hs.clause.Right])
		table[h] = append(table[h], row)
	}
	if err := build.Close(); err != nil {
		return false, err
	}
	probe, err := hs.left[id].Open()
	if err != nil {
		return false, err
	}
	hs.table, hs.probe = table, probe
	hs.matches, hs.mpos, hs.current = nil, 0, nil
	return true, nil
}

func (hs *HashJoinScan) GetVal(field string) (operators.Constant, error) {
	if hs.probe == nil || hs.current == nil {
		return operators.Constant{}, errNotPositioned
	}
	if hs.probe.HasField(field) {
		return hs.probe.GetVal(field)
	}
	return hs.current.GetVal(field)
}

func (hs *HashJoinScan) GetInt(field string) (int, error) { return operators.GetInt(hs, field) }

func (hs *HashJoinScan) GetString(field string) (string, error) {
	return operators.GetString(hs, field)
}

func (hs *HashJoinScan) HasField(field string) bool { return hs.schema.HasField(field) }

func (hs *HashJoinScan) Close() error {
	err := hs.BeforeFirst()
	if derr := hs.left.drop(); err == nil {
		err = derr
	}
	if derr := hs.right.drop(); err == nil {
		err = derr
	}
	return err
}
