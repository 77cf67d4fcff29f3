package Expr

import (
	"math"
	"testing"

	"qexec-go/operators"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statPlan only answers the estimate calls a predicate makes.
type statPlan struct {
	distinct map[string]int
}

func (statPlan) Open() (operators.Scan, error) { return nil, nil }
func (statPlan) Schema() *operators.Schema { return operators.NewSchema() }
func (statPlan) BlocksAccessed() int { return 0 }
func (statPlan) RecordsOutput() int { return 0 }
func (sp statPlan) DistinctValues(f string) int { return sp.distinct[f] }
func (statPlan) String() string { return "stat" }

func col(name string) *ColumnResolve { return NewColumnResolve(name) }
func intLit(v int) *LiteralResolve { return NewLiteralResolve(operators.NewIntConstant(v)) }
func strLit(s string) *LiteralResolve { return NewLiteralResolve(operators.NewStringConstant(s)) }

func TestParseOperator(t *testing.T) {
	tests := []struct {
		in   string
		want BinaryOperator
	}{
		{"=", Equal}, {"!=", NotEqual}, {"<>", NotEqual},
		{"<", LessThan}, {"<=", LessThanOrEqual},
		{">", GreaterThan}, {">=", GreaterThanOrEqual},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOperator(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	_, err := ParseOperator("=~")
	assert.Error(t, err)
}

func TestOperatorCheckAndReverse(t *testing.T) {
	one, two := operators.NewIntConstant(1), operators.NewIntConstant(2)
	tests := []struct {
		op   BinaryOperator
		want bool
	}{
		{Equal, false}, {NotEqual, true},
		{LessThan, true}, {LessThanOrEqual, true},
		{GreaterThan, false}, {GreaterThanOrEqual, false},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			got, err := tt.op.Check(one, two)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			// swapping the operands and reversing the operator keeps the answer
			rev, err := tt.op.Reverse().Check(two, one)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rev)
		})
	}
	_, err := Equal.Check(one, operators.NewStringConstant("1"))
	assert.Error(t, err)
}

func TestTermMatchers(t *testing.T) {
	eqConst := NewTerm(col("a"), Equal, intLit(3))
	eqField := NewTerm(col("a"), Equal, col("b"))
	ltField := NewTerm(col("c"), LessThan, col("d"))

	c, ok := eqConst.EquatesWithConstant("a")
	assert.True(t, ok)
	assert.Equal(t, operators.NewIntConstant(3), c)
	_, ok = NewTerm(intLit(3), Equal, col("a")).EquatesWithConstant("a")
	assert.True(t, ok)
	_, ok = eqField.EquatesWithConstant("a")
	assert.False(t, ok)

	g, ok := eqField.EquatesWithField("b")
	assert.True(t, ok)
	assert.Equal(t, "a", g)
	_, ok = ltField.EquatesWithField("c")
	assert.False(t, ok)

	g, ok = ltField.ComparesWithField("c")
	assert.True(t, ok)
	assert.Equal(t, "d", g)
	_, ok = eqConst.ComparesWithField("a")
	assert.False(t, ok)
}

func TestTermReductionFactor(t *testing.T) {
	p := statPlan{distinct: map[string]int{"a": 10, "b": 40}}
	tests := []struct {
		name string
		term *Term
		want int
	}{
		{"field equals constant", NewTerm(col("a"), Equal, intLit(1)), 10},
		{"constant equals field", NewTerm(intLit(1), Equal, col("b")), 40},
		{"field equals field", NewTerm(col("a"), Equal, col("b")), 40},
		{"range", NewTerm(col("a"), LessThan, intLit(5)), 3},
		{"inequality", NewTerm(col("a"), NotEqual, intLit(5)), 1},
		{"true constant", NewTerm(intLit(1), Equal, intLit(1)), 1},
		{"false constant", NewTerm(intLit(1), Equal, intLit(2)), math.MaxInt32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.term.ReductionFactor(p))
		})
	}
}

func TestPredicate(t *testing.T) {
	s1 := operators.NewSchema().AddIntField("sid").AddStringField("sname", 10).AddIntField("majorid")
	s2 := operators.NewSchema().AddIntField("did").AddStringField("dname", 10)

	pred := NewPredicate(
		NewTerm(col("majorid"), Equal, col("did")),
		NewTerm(col("sname"), Equal, strLit("joe")),
		NewTerm(col("dname"), NotEqual, strLit("math")),
		NewTerm(col("sid"), GreaterThan, col("did")),
	)

	t.Run("select sub predicate", func(t *testing.T) {
		sp := pred.SelectSubPred(s1)
		require.NotNil(t, sp)
		assert.Equal(t, "sname='joe'", sp.String())
		assert.Nil(t, NewPredicate(NewTerm(col("x"), Equal, intLit(1))).SelectSubPred(s1))
	})
	t.Run("join sub predicate", func(t *testing.T) {
		jp := pred.JoinSubPred(s1, s2)
		require.NotNil(t, jp)
		assert.Equal(t, "majorid=did and sid>did", jp.String())
		assert.Nil(t, pred.JoinSubPred(s1, operators.NewSchema().AddIntField("zzz")))
	})
	t.Run("matched operator is oriented", func(t *testing.T) {
		op, ok := pred.MatchedOperatorByFieldNames("did", "sid")
		require.True(t, ok)
		assert.Equal(t, LessThan, op)
		op, ok = pred.MatchedOperatorByFieldNames("sid", "did")
		require.True(t, ok)
		assert.Equal(t, GreaterThan, op)
		_, ok = pred.MatchedOperatorByFieldNames("sid", "dname")
		assert.False(t, ok)
	})
	t.Run("is satisfied", func(t *testing.T) {
		row := operators.Row{
			"sid": operators.NewIntConstant(9), "sname": operators.NewStringConstant("joe"),
			"majorid": operators.NewIntConstant(2), "did": operators.NewIntConstant(2),
			"dname": operators.NewStringConstant("cs"),
		}
		ok, err := pred.IsSatisfied(row)
		require.NoError(t, err)
		assert.True(t, ok)

		row["dname"] = operators.NewStringConstant("math")
		ok, err = pred.IsSatisfied(row)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = pred.IsSatisfied(operators.Row{})
		assert.Error(t, err)
	})
	t.Run("reduction factor multiplies and saturates", func(t *testing.T) {
		p := statPlan{distinct: map[string]int{"sname": 5, "majorid": 4, "did": 6}}
		// 6 * 5 * 1 * 3
		assert.Equal(t, 90, pred.ReductionFactor(p))
		big := NewPredicate(NewTerm(intLit(1), Equal, intLit(2)), NewTerm(col("sname"), Equal, strLit("x")))
		assert.Equal(t, math.MaxInt32, big.ReductionFactor(p))
	})
	t.Run("nil and empty predicates", func(t *testing.T) {
		var nilPred *Predicate
		assert.True(t, nilPred.IsEmpty())
		assert.Equal(t, "", nilPred.String())
		assert.Nil(t, nilPred.SelectSubPred(s1))
		ok, err := nilPred.IsSatisfied(operators.Row{})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, NewPredicate().ReductionFactor(statPlan{}))
	})
	t.Run("conjoin", func(t *testing.T) {
		p := NewPredicate()
		p.ConjoinWith(NewPredicate(NewTerm(col("a"), Equal, intLit(1))))
		p.ConjoinWith(nil)
		assert.Len(t, p.Terms(), 1)
	})
}
