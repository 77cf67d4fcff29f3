package filter

import (
	"testing"

	"qexec-go/Expr"
	"qexec-go/operators"
	"qexec-go/operators/project/source"
	"qexec-go/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func studentPlan(t *testing.T) *storage.TablePlan {
	t.Helper()
	st, err := storage.NewStore(storage.DefaultOptions())
	require.NoError(t, err)
	cat := storage.NewCatalog(st)
	require.NoError(t, source.LoadColumns(cat, "student",
		[]string{"sid", "sname", "gradyear"},
		[]any{
			[]int{1, 2, 3, 4, 5, 6},
			[]string{"joe", "amy", "max", "sue", "bob", "kim"},
			[]int{2021, 2020, 2022, 2022, 2020, 2021},
		},
	))
	tp, err := storage.NewTablePlan(cat, "student")
	require.NoError(t, err)
	return tp
}

func ids(t *testing.T, p operators.Plan) []int {
	t.Helper()
	s, err := p.Open()
	require.NoError(t, err)
	defer s.Close()
	var out []int
	for {
		more, err := s.Next()
		require.NoError(t, err)
		if !more {
			return out
		}
		id, err := s.GetInt("sid")
		require.NoError(t, err)
		out = append(out, id)
	}
}

func term(field string, op Expr.BinaryOperator, v int) *Expr.Term {
	return Expr.NewTerm(Expr.NewColumnResolve(field), op, Expr.NewLiteralResolve(operators.NewIntConstant(v)))
}

func TestSelectPlan(t *testing.T) {
	tp := studentPlan(t)
	tests := []struct {
		name string
		pred *Expr.Predicate
		want []int
	}{
		{"nil predicate keeps everything", nil, []int{1, 2, 3, 4, 5, 6}},
		{"equality", Expr.NewPredicate(term("gradyear", Expr.Equal, 2020)), []int{2, 5}},
		{"range", Expr.NewPredicate(term("gradyear", Expr.GreaterThan, 2020)), []int{1, 3, 4, 6}},
		{"conjunction", Expr.NewPredicate(term("gradyear", Expr.GreaterThan, 2020), term("sid", Expr.LessThanOrEqual, 3)), []int{1, 3}},
		{"nothing matches", Expr.NewPredicate(term("sid", Expr.Equal, 99)), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp, err := NewSelectPlan(tp, tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(t, sp))
		})
	}
}

func TestSelectPlanEstimates(t *testing.T) {
	tp := studentPlan(t)
	// 6 records, so every field is guessed to have 1 + 6/3 = 3 values
	sp, err := NewSelectPlan(tp, Expr.NewPredicate(term("gradyear", Expr.Equal, 2020)))
	require.NoError(t, err)
	assert.Equal(t, 2, sp.RecordsOutput())
	assert.Equal(t, 1, sp.DistinctValues("gradyear"))
	assert.Equal(t, 3, sp.DistinctValues("sname"))
	assert.Equal(t, tp.BlocksAccessed(), sp.BlocksAccessed())
	assert.Equal(t, "Select[gradyear=2020](Table(student))", sp.String())

	eq := Expr.NewPredicate(Expr.NewTerm(Expr.NewColumnResolve("sid"), Expr.Equal, Expr.NewColumnResolve("gradyear")))
	sp, err = NewSelectPlan(tp, eq)
	require.NoError(t, err)
	assert.Equal(t, 3, sp.DistinctValues("sid"))
}

func TestSelectPlanRejectsUnknownFields(t *testing.T) {
	_, err := NewSelectPlan(studentPlan(t), Expr.NewPredicate(term("majorid", Expr.Equal, 1)))
	require.Error(t, err)
}

func TestLimitPlan(t *testing.T) {
	tp := studentPlan(t)
	tests := []struct {
		count int
		want  []int
	}{
		{0, nil},
		{2, []int{1, 2}},
		{6, []int{1, 2, 3, 4, 5, 6}},
		{10, []int{1, 2, 3, 4, 5, 6}},
	}
	for _, tt := range tests {
		lp, err := NewLimitPlan(tp, tt.count)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ids(t, lp), "limit %d", tt.count)
		assert.Equal(t, len(tt.want), lp.RecordsOutput(), "limit %d", tt.count)
	}

	t.Run("rewinding restores the budget", func(t *testing.T) {
		lp, err := NewLimitPlan(tp, 3)
		require.NoError(t, err)
		s, err := lp.Open()
		require.NoError(t, err)
		defer s.Close()
		first, err := operators.Collect(s, []string{"sid"})
		require.NoError(t, err)
		second, err := operators.Collect(s, []string{"sid"})
		require.NoError(t, err)
		assert.Len(t, first, 3)
		assert.Equal(t, first, second)
	})
	t.Run("negative", func(t *testing.T) {
		_, err := NewLimitPlan(tp, -1)
		require.Error(t, err)
	})
}
