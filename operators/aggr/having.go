package aggr

import (
	"fmt"

	"qexec-go/Expr"
	"qexec-go/operators/filter"
)

// NewHavingPlan filters the groups of gp. It is a select over the group by
// output, so the predicate may only mention group fields and aggregates.
func NewHavingPlan(gp *GroupByPlan, pred *Expr.Predicate) (*filter.SelectPlan, error) {
	if pred.IsEmpty() {
		return nil, fmt.Errorf("having needs at least one term")
	}
	for _, t := range pred.Terms() {
		if !t.AppliesTo(gp.Schema()) {
			return nil, fmt.Errorf("having term %s mentions a field that is neither grouped nor aggregated", t)
		}
	}
	return filter.NewSelectPlan(gp, pred)
}
