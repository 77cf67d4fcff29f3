package materialize

import (
	"sync"
	"testing"

	"qexec-go/metrics"
	"qexec-go/operators"
	"qexec-go/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, m *metrics.Metrics) *Context {
	t.Helper()
	opts := storage.DefaultOptions()
	opts.BlockSize = 64
	opts.Metrics = m
	st, err := storage.NewStore(opts)
	require.NoError(t, err)
	return NewContext(st, nil, nil)
}

func numbersTable(t *testing.T, ctx *Context, n int) *storage.TablePlan {
	t.Helper()
	cat := storage.NewCatalog(ctx.Store)
	layout, err := cat.CreateTable("numbers", operators.NewSchema().AddIntField("n").AddStringField("s", 4))
	require.NoError(t, err)
	ts, err := ctx.Store.NewTableScan("numbers", layout)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, ts.Insert())
		require.NoError(t, ts.SetInt("n", i))
		require.NoError(t, ts.SetString("s", "x"))
	}
	require.NoError(t, ts.Close())
	tp, err := storage.NewTablePlan(cat, "numbers")
	require.NoError(t, err)
	return tp
}

func TestAtomicSequence(t *testing.T) {
	seq := NewAtomicSequence()
	const workers, each = 8, 100
	seen := make(chan int64, workers*each)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				seen <- seq.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)
	ids := make(map[int64]struct{})
	for id := range seen {
		ids[id] = struct{}{}
	}
	if len(ids) != workers*each {
		t.Fatalf("expected %d unique ids but got %d", workers*each, len(ids))
	}
}

func TestTempTableNames(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	ctx := newTestContext(t, m)
	sch := operators.NewSchema().AddIntField("a")
	t1 := NewTempTable(ctx, sch)
	t2 := NewTempTable(ctx, sch)
	assert.Equal(t, "temp1", t1.TableName())
	assert.Equal(t, "temp2", t2.TableName())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TempTables))

	ctx2 := NewContext(ctx.Store, ctx.Seq, nil)
	assert.Equal(t, "temp3", NewTempTable(ctx2, sch).TableName())
}

func TestTempTableLifecycle(t *testing.T) {
	ctx := newTestContext(t, nil)
	tt := NewTempTable(ctx, operators.NewSchema().AddIntField("a"))
	us, err := tt.Open()
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		require.NoError(t, us.Insert())
		require.NoError(t, us.SetInt("a", i))
	}
	require.NoError(t, us.Close())

	blocks, err := tt.Blocks()
	require.NoError(t, err)
	// 8 byte slots, 8 per block
	assert.Equal(t, 5, blocks)

	require.NoError(t, tt.Drop())
	blocks, err = tt.Blocks()
	require.NoError(t, err)
	assert.Equal(t, 0, blocks)
}

func TestMaterializePlan(t *testing.T) {
	ctx := newTestContext(t, nil)
	tp := numbersTable(t, ctx, 20)
	mp := NewMaterializePlan(ctx, tp)

	// 4 + 4 + 8 = 16 byte slots, 4 per block
	assert.Equal(t, 5, mp.BlocksAccessed())
	assert.Equal(t, 20, mp.RecordsOutput())
	assert.Equal(t, tp.Schema(), mp.Schema())
	assert.Equal(t, "Materialize(Table(numbers))", mp.String())

	tt, err := mp.Materialize()
	require.NoError(t, err)
	defer tt.Drop()
	assert.NotEqual(t, "numbers", tt.TableName())
	blocks, err := tt.Blocks()
	require.NoError(t, err)
	assert.Equal(t, mp.BlocksAccessed(), blocks)

	s, err := tt.Open()
	require.NoError(t, err)
	defer s.Close()
	rows, err := operators.Collect(s, []string{"n"})
	require.NoError(t, err)
	require.Len(t, rows, 20)
	for i, r := range rows {
		assert.Equal(t, i, r["n"].AsInt())
	}
}

func TestMaterializeScanDropsTable(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	ctx := newTestContext(t, m)
	mp := NewMaterializePlan(ctx, numbersTable(t, ctx, 20))
	for i := 0; i < 2; i++ {
		s, err := mp.Open()
		require.NoError(t, err)
		rows, err := operators.Collect(s, []string{"n"})
		require.NoError(t, err)
		assert.Len(t, rows, 20)
		require.NoError(t, s.Close())
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TempTables))
	for _, name := range []string{"temp1", "temp2"} {
		blocks, err := ctx.Store.Size(name)
		require.NoError(t, err)
		assert.Zero(t, blocks, "%s left behind", name)
	}
}

func TestBlocksFor(t *testing.T) {
	ctx := newTestContext(t, nil)
	sch := operators.NewSchema().AddIntField("a")
	tests := []struct {
		records int
		want    int
	}{
		{0, 0},
		{1, 1},
		{8, 1},
		{9, 2},
	}
	for _, tt := range tests {
		if got := BlocksFor(ctx, sch, tt.records); got != tt.want {
			t.Fatalf("%d records: expected %d blocks but got %d", tt.records, tt.want, got)
		}
	}
}
