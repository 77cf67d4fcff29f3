package join

import (
	"fmt"

	"qexec-go/operators"
	"qexec-go/operators/materialize"

	"github.com/go-kit/log/level"
)

var (
	_ = (operators.Plan)(&BlockNestedLoopJoinPlan{})
	_ = (operators.Scan)(&ChunkedScan{})
)

// BlockNestedLoopJoinPlan materializes the left input, cuts it into chunks
// that fit the available buffers and rescans the right input once per chunk
// instead of once per record.
type BlockNestedLoopJoinPlan struct {
	ctx      *materialize.Context
	lhs, rhs operators.Plan
	clause   JoinClause
	schema   *operators.Schema
}

func NewBlockNestedLoopJoinPlan(ctx *materialize.Context, lhs, rhs operators.Plan, clause JoinClause) (*BlockNestedLoopJoinPlan, error) {
	if err := clause.validate(lhs.Schema(), rhs.Schema()); err != nil {
		return nil, err
	}
	sch, err := joinSchemas(lhs.Schema(), rhs.Schema())
	if err != nil {
		return nil, err
	}
	return &BlockNestedLoopJoinPlan{ctx: ctx, lhs: lhs, rhs: rhs, clause: clause, schema: sch}, nil
}

func (bp *BlockNestedLoopJoinPlan) Open() (operators.Scan, error) {
	tt, err := materialize.NewMaterializePlan(bp.ctx, bp.lhs).Materialize()
	if err != nil {
		return nil, err
	}
	other, err := bp.rhs.Open()
	if err != nil {
		tt.Drop()
		return nil, err
	}
	s, err := NewChunkedScan(bp.ctx, tt, other, bp.clause, bp.schema)
	if err != nil {
		other.Close()
		tt.Drop()
		return nil, err
	}
	return s, nil
}

// BlocksAccessed is outer.blocks + inner.blocks * ceil(outer.blocks / chunksize).
func (bp *BlockNestedLoopJoinPlan) BlocksAccessed() int {
	size := materialize.NewMaterializePlan(bp.ctx, bp.lhs).BlocksAccessed()
	k := BestFactor(bp.ctx.Store.AvailableBuffs(), size)
	return bp.lhs.BlocksAccessed() + bp.rhs.BlocksAccessed()*chunks(size, k)
}

func (bp *BlockNestedLoopJoinPlan) RecordsOutput() int { return joinedOutput(bp.lhs, bp.rhs, bp.clause) }

func (bp *BlockNestedLoopJoinPlan) DistinctValues(field string) int {
	return distinctValues(bp.lhs, bp.rhs, field)
}

func (bp *BlockNestedLoopJoinPlan) Schema() *operators.Schema { return bp.schema }

func (bp *BlockNestedLoopJoinPlan) String() string {
	return fmt.Sprintf("BlockNestedLoopJoin[%s](%s, %s)", bp.clause, bp.lhs, bp.rhs)
}

// ChunkedScan walks a temp table chunk by chunk. For every chunk it rewinds
// other and runs a nested loop join of (chunk, other). It owns both the temp
// table and other.
type ChunkedScan struct {
	ctx       *materialize.Context
	tt        *materialize.TempTable
	other     operators.Scan
	clause    JoinClause
	schema    *operators.Schema
	chunkSize int
	fileSize  int
	nextBlk   int
	chunk     operators.Scan
	nl        *NestedLoopJoinScan
}

func NewChunkedScan(ctx *materialize.Context, tt *materialize.TempTable, other operators.Scan, clause JoinClause, schema *operators.Schema) (*ChunkedScan, error) {
	size, err := tt.Blocks()
	if err != nil {
		return nil, err
	}
	cs := &ChunkedScan{
		ctx:       ctx,
		tt:        tt,
		other:     other,
		clause:    clause,
		schema:    schema,
		chunkSize: BestFactor(ctx.Store.AvailableBuffs(), size),
		fileSize:  size,
	}
	level.Debug(ctx.Logger).Log("msg", "chunked scan", "table", tt.TableName(), "blocks", size, "chunk_size", cs.chunkSize)
	if err := cs.BeforeFirst(); err != nil {
		return nil, err
	}
	return cs, nil
}

func (cs *ChunkedScan) BeforeFirst() error {
	cs.nextBlk = 0
	_, err := cs.useNextChunk()
	return err
}

func (cs *ChunkedScan) Next() (bool, error) {
	for cs.nl != nil {
		more, err := cs.nl.Next()
		if err != nil || more {
			return more, err
		}
		ok, err := cs.useNextChunk()
		if err != nil || !ok {
			return false, err
		}
	}
	return false, nil
}

func (cs *ChunkedScan) useNextChunk() (bool, error) {
	if cs.chunk != nil {
		err := cs.chunk.Close()
		cs.chunk, cs.nl = nil, nil
		if err != nil {
			return false, err
		}
	}
	if cs.nextBlk >= cs.fileSize {
		return false, nil
	}
	end := min(cs.nextBlk+cs.chunkSize-1, cs.fileSize-1)
	chunk, err := cs.ctx.Store.NewChunkScan(cs.tt.TableName(), cs.tt.Layout(), cs.nextBlk, end)
	if err != nil {
		return false, err
	}
	// the nested loop scan rewinds other
	nl, err := NewNestedLoopJoinScan(chunk, cs.other, cs.clause)
	if err != nil {
		chunk.Close()
		return false, err
	}
	cs.chunk, cs.nl = chunk, nl
	cs.nextBlk = end + 1
	return true, nil
}

func (cs *ChunkedScan) GetVal(field string) (operators.Constant, error) {
	if cs.nl == nil {
		return operators.Constant{}, errNotPositioned
	}
	return cs.nl.GetVal(field)
}

func (cs *ChunkedScan) GetInt(field string) (int, error) { return operators.GetInt(cs, field) }

func (cs *ChunkedScan) GetString(field string) (string, error) {
	return operators.GetString(cs, field)
}

func (cs *ChunkedScan) HasField(field string) bool { return cs.schema.HasField(field) }

func (cs *ChunkedScan) Close() error {
	err := operators.CloseAll(cs.chunk, cs.other)
	cs.chunk, cs.nl = nil, nil
	if derr := cs.tt.Drop(); err == nil {
		err = derr
	}
	return err
}
