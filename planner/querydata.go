package planner

import (
	"fmt"
	"strings"

	"qexec-go/Expr"
	"qexec-go/operators/aggr"
)

// QueryData is a parsed single block query.
type QueryData struct {
	// Fields is the projection. Empty keeps every field.
	Fields     []string
	Tables     []string
	Pred       *Expr.Predicate
	GroupBy    []string
	Aggregates []aggr.AggregationFn
	// Having filters groups and needs GroupBy or Aggregates.
	Having   *Expr.Predicate
	Distinct bool
	OrderBy  []aggr.OrderByPair
	// Limit caps the output after ordering. Zero means no limit.
	Limit int
}

func (qd *QueryData) String() string {
	var b strings.Builder
	b.WriteString("select ")
	if qd.Distinct {
		b.WriteString("distinct ")
	}
	cols := append([]string{}, qd.Fields...)
	if len(cols) == 0 {
		cols = append(cols, "*")
	}
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" from ")
	b.WriteString(strings.Join(qd.Tables, ", "))
	if !qd.Pred.IsEmpty() {
		b.WriteString(" where ")
		b.WriteString(qd.Pred.String())
	}
	if len(qd.GroupBy) > 0 {
		b.WriteString(" group by ")
		b.WriteString(strings.Join(qd.GroupBy, ", "))
	}
	if !qd.Having.IsEmpty() {
		b.WriteString(" having ")
		b.WriteString(qd.Having.String())
	}
	if len(qd.OrderBy) > 0 {
		b.WriteString(" order by ")
		b.WriteString(aggr.NewRecordComparator(qd.OrderBy...).String())
	}
	if qd.Limit > 0 {
		fmt.Fprintf(&b, " limit %d", qd.Limit)
	}
	return b.String()
}
