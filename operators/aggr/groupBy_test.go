package aggr

import (
	"errors"
	"testing"

	"qexec-go/Expr"
	"qexec-go/operators"
	"qexec-go/operators/project/source"
	"qexec-go/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregationFns(t *testing.T) {
	rows := []operators.Row{
		row("v", 4, "s", "b"),
		row("v", 2, "s", "a"),
		row("v", 4, "s", "c"),
		row("v", 9, "s", "a"),
	}
	tests := []struct {
		fn    AggregationFn
		name  string
		value operators.Constant
	}{
		{NewCountFn("v", false), "countofv", operators.NewIntConstant(4)},
		{NewCountFn("v", true), "countofdistinctv", operators.NewIntConstant(3)},
		{NewSumFn("v", false), "sumofv", operators.NewIntConstant(19)},
		{NewSumFn("v", true), "sumofdistinctv", operators.NewIntConstant(15)},
		{NewAvgFn("v", false), "avgofv", operators.NewIntConstant(4)},
		{NewAvgFn("v", true), "avgofdistinctv", operators.NewIntConstant(5)},
		{NewMinFn("v", false), "minofv", operators.NewIntConstant(2)},
		{NewMaxFn("v", false), "maxofv", operators.NewIntConstant(9)},
		{NewMinFn("s", false), "minofs", operators.NewStringConstant("a")},
		{NewMaxFn("s", true), "maxofdistincts", operators.NewStringConstant("c")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.fn.FieldName())
			// the second pass checks ProcessFirst starts a fresh group
			for pass := 0; pass < 2; pass++ {
				require.NoError(t, tt.fn.ProcessFirst(rows[0]))
				for _, r := range rows[1:] {
					require.NoError(t, tt.fn.ProcessNext(r))
				}
				got, err := tt.fn.Value()
				require.NoError(t, err)
				assert.Equal(t, tt.value, got)
			}
		})
	}
}

func TestAggregationFnErrors(t *testing.T) {
	t.Run("avg of nothing", func(t *testing.T) {
		_, err := NewAvgFn("v", false).Value()
		if !errors.Is(err, ErrDivideByZero) {
			t.Fatalf("expected ErrDivideByZero but got %v", err)
		}
	})
	t.Run("max of nothing", func(t *testing.T) {
		_, err := NewMaxFn("v", false).Value()
		assert.Error(t, err)
	})
	t.Run("sum of strings", func(t *testing.T) {
		assert.Error(t, NewSumFn("s", false).ProcessFirst(row("s", "x")))
	})
	t.Run("missing field", func(t *testing.T) {
		assert.Error(t, NewMinFn("v", false).ProcessFirst(row("s", "x")))
	})
	t.Run("by name", func(t *testing.T) {
		fn, err := NewAggregationFn("MAX", "v", false)
		require.NoError(t, err)
		assert.IsType(t, &MaxFn{}, fn)
		_, err = NewAggregationFn("median", "v", false)
		assert.Error(t, err)
	})
}

func studentTable(t *testing.T, e env) *storage.TablePlan {
	t.Helper()
	require.NoError(t, source.LoadColumns(e.cat, "student",
		[]string{"sid", "majorid", "gradyear"},
		[]any{[]int{1, 2, 3, 4}, []int{20, 10, 10, 30}, []int{2020, 2021, 2022, 2020}},
	))
	tp, err := storage.NewTablePlan(e.cat, "student")
	require.NoError(t, err)
	return tp
}

func collectRows(t *testing.T, p operators.Plan) []operators.Row {
	t.Helper()
	s, err := p.Open()
	require.NoError(t, err)
	defer s.Close()
	rows, err := operators.Collect(s, p.Schema().Fields())
	require.NoError(t, err)
	return rows
}

func TestGroupBy(t *testing.T) {
	e := newEnv(t, 512, 8)
	tp := studentTable(t, e)
	fns := []AggregationFn{NewCountFn("sid", false), NewMaxFn("gradyear", false), NewMinFn("gradyear", false)}
	gp, err := NewGroupByPlan(e.ctx, tp, []string{"majorid"}, fns)
	require.NoError(t, err)

	assert.Equal(t, []string{"majorid", "countofsid", "maxofgradyear", "minofgradyear"}, gp.Schema().Fields())
	assert.Equal(t, []operators.Row{
		row("majorid", 10, "countofsid", 2, "maxofgradyear", 2022, "minofgradyear", 2021),
		row("majorid", 20, "countofsid", 1, "maxofgradyear", 2020, "minofgradyear", 2020),
		row("majorid", 30, "countofsid", 1, "maxofgradyear", 2020, "minofgradyear", 2020),
	}, collectRows(t, gp))
	assert.Equal(t, "GroupBy[majorid; countofsid, maxofgradyear, minofgradyear](Sort[majorid asc](Table(student)))", gp.String())
	assert.Equal(t, 2, gp.RecordsOutput())
}

func TestGroupByWithoutGroupFields(t *testing.T) {
	e := newEnv(t, 512, 8)
	tp := studentTable(t, e)
	gp, err := NewGroupByPlan(e.ctx, tp, nil, []AggregationFn{NewCountFn("sid", false), NewAvgFn("gradyear", false)})
	require.NoError(t, err)
	assert.Equal(t, []operators.Row{row("countofsid", 4, "avgofgradyear", 2020)}, collectRows(t, gp))
	assert.Equal(t, 1, gp.RecordsOutput())

	empty := e.ints(t, "empty")
	gp, err = NewGroupByPlan(e.ctx, empty, nil, []AggregationFn{NewCountFn("n", false)})
	require.NoError(t, err)
	assert.Empty(t, collectRows(t, gp))
}

func TestGroupByOverManyBlocks(t *testing.T) {
	e := newEnv(t, 64, 3)
	n := 90
	keys := make([]int, n)
	vals := make([]int, n)
	for i := range keys {
		keys[i] = (i * 7) % 5
		vals[i] = i
	}
	require.NoError(t, source.LoadColumns(e.cat, "t", []string{"k", "v"}, []any{keys, vals}))
	tp, err := storage.NewTablePlan(e.cat, "t")
	require.NoError(t, err)
	gp, err := NewGroupByPlan(e.ctx, tp, []string{"k"}, []AggregationFn{NewCountFn("v", false), NewSumFn("v", false)})
	require.NoError(t, err)

	want := make(map[int][2]int)
	for i := range keys {
		w := want[keys[i]]
		want[keys[i]] = [2]int{w[0] + 1, w[1] + vals[i]}
	}
	rows := collectRows(t, gp)
	require.Len(t, rows, 5)
	for i, r := range rows {
		k, err := operators.GetInt(r, "k")
		require.NoError(t, err)
		assert.Equal(t, i, k, "groups come out in key order")
		count, _ := operators.GetInt(r, "countofv")
		sum, _ := operators.GetInt(r, "sumofv")
		assert.Equal(t, want[k], [2]int{count, sum}, "group %d", k)
	}
}

func TestGroupByValidation(t *testing.T) {
	e := newEnv(t, 512, 8)
	tp := studentTable(t, e)
	tests := []struct {
		name   string
		fields []string
		fns    []AggregationFn
	}{
		{"unknown group field", []string{"dept"}, nil},
		{"unknown aggregate field", []string{"majorid"}, []AggregationFn{NewMaxFn("salary", false)}},
		{"aggregate listed twice", nil, []AggregationFn{NewCountFn("sid", false), NewCountFn("sid", false)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGroupByPlan(e.ctx, tp, tt.fields, tt.fns)
			assert.Error(t, err)
		})
	}
}

func TestHaving(t *testing.T) {
	e := newEnv(t, 512, 8)
	tp := studentTable(t, e)
	gp, err := NewGroupByPlan(e.ctx, tp, []string{"majorid"}, []AggregationFn{NewCountFn("sid", false)})
	require.NoError(t, err)

	more := Expr.NewPredicate(Expr.NewTerm(
		Expr.NewColumnResolve("countofsid"), Expr.GreaterThan, Expr.NewLiteralResolve(operators.NewIntConstant(1)),
	))
	hp, err := NewHavingPlan(gp, more)
	require.NoError(t, err)
	assert.Equal(t, []operators.Row{row("majorid", 10, "countofsid", 2)}, collectRows(t, hp))

	_, err = NewHavingPlan(gp, nil)
	assert.Error(t, err)

	ungrouped := Expr.NewPredicate(Expr.NewTerm(
		Expr.NewColumnResolve("gradyear"), Expr.Equal, Expr.NewLiteralResolve(operators.NewIntConstant(2020)),
	))
	_, err = NewHavingPlan(gp, ungrouped)
	assert.Error(t, err)
}
