package join

import (
	"qexec-go/operators"
	"qexec-go/operators/materialize"

	"github.com/go-kit/log/level"
)

// partitions maps a bucket id to the temp table holding its records. Only
// buckets that received a record exist.
type partitions map[int]*materialize.TempTable

func (p partitions) drop() error {
	var first error
	for id, tt := range p {
		if err := tt.Drop(); err != nil && first == nil {
			first = err
		}
		delete(p, id)
	}
	return first
}

// numPartitions keeps one buffer for the build and probe working set.
func numPartitions(ctx *materialize.Context) int {
	return max(ctx.Store.AvailableBuffs()-1, 1)
}

// hashOf routes values to buckets and keys the in-memory build table.
var hashOf = operators.Constant.Hash

func bucketOf(v operators.Constant, n int) int {
	return int(hashOf(v) % uint64(n))
}

// partition routes every record of src to bucket hash(field) mod n. The
// update scan of a bucket stays open until src is exhausted.
func partition(ctx *materialize.Context, src operators.Scan, sch *operators.Schema, field string, n int) (partitions, error) {
	parts := make(partitions)
	open := make(map[int]operators.UpdateScan)
	closeOpen := func() error {
		var first error
		for id, us := range open {
			if err := us.Close(); err != nil && first == nil {
				first = err
			}
			delete(open, id)
		}
		return first
	}
	fail := func(err error) (partitions, error) {
		closeOpen()
		parts.drop()
		return nil, err
	}

	fields := sch.Fields()
	if err := src.BeforeFirst(); err != nil {
		return fail(err)
	}
	for {
		more, err := src.Next()
		if err != nil {
			return fail(err)
		}
		if !more {
			break
		}
		v, err := src.GetVal(field)
		if err != nil {
			return fail(err)
		}
		id := bucketOf(v, n)
		dst, ok := open[id]
		if !ok {
			tt := materialize.NewTempTable(ctx, sch)
			if dst, err = tt.Open(); err != nil {
				return fail(err)
			}
			parts[id] = tt
			open[id] = dst
		}
		if err := operators.CopyRecord(dst, src, fields); err != nil {
			return fail(err)
		}
	}
	if err := closeOpen(); err != nil {
		parts.drop()
		return nil, err
	}
	ctx.Metrics.HashPartitions.Add(float64(len(parts)))
	level.Debug(ctx.Logger).Log("msg", "partitioned input", "field", field, "partitions", n, "buckets", len(parts))
	return parts, nil
}
