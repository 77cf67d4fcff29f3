package planner

import (
	"errors"
	"fmt"

	"qexec-go/operators"
	"qexec-go/operators/aggr"
	"qexec-go/operators/filter"
	"qexec-go/operators/materialize"
	"qexec-go/operators/project"
	"qexec-go/storage"

	"github.com/go-kit/log/level"
)

// HeuristicPlanner builds a left deep join tree greedily: start from the
// smallest filtered table, then keep adding the table whose join with the
// current plan is estimated smallest. Group by, projection, distinct, order by
// and limit are stacked on top in that fixed order.
type HeuristicPlanner struct {
	ctx       *materialize.Context
	cat       *storage.Catalog
	algorithm string
}

func NewHeuristicPlanner(ctx *materialize.Context, cat *storage.Catalog, algorithm string) *HeuristicPlanner {
	return &HeuristicPlanner{ctx: ctx, cat: cat, algorithm: algorithm}
}

func (hp *HeuristicPlanner) CreatePlan(data *QueryData) (operators.Plan, error) {
	alg, err := ParseJoinAlgorithm(hp.algorithm)
	if err != nil {
		return nil, err
	}
	if len(data.Tables) == 0 {
		return nil, errors.New("query names no tables")
	}
	planners := make([]*TablePlanner, 0, len(data.Tables))
	for _, tbl := range data.Tables {
		tp, err := NewTablePlanner(hp.ctx, hp.cat, tbl, data.Pred, alg)
		if err != nil {
			return nil, err
		}
		planners = append(planners, tp)
	}

	current, planners, err := lowest(planners, (*TablePlanner).MakeSelectPlan)
	if err != nil {
		return nil, err
	}
	hp.logStage("select", current)
	for len(planners) > 0 {
		var p operators.Plan
		p, planners, err = lowest(planners, func(tp *TablePlanner) (operators.Plan, error) {
			return tp.MakeJoinPlan(current)
		})
		if err != nil {
			return nil, err
		}
		if p == nil {
			p, planners, err = lowest(planners, func(tp *TablePlanner) (operators.Plan, error) {
				return tp.MakeProductPlan(current)
			})
			if err != nil {
				return nil, err
			}
		}
		current = p
	}
	hp.logStage("join", current)

	if len(data.GroupBy) > 0 || len(data.Aggregates) > 0 {
		gp, err := aggr.NewGroupByPlan(hp.ctx, current, data.GroupBy, data.Aggregates)
		if err != nil {
			return nil, err
		}
		current = gp
		if !data.Having.IsEmpty() {
			if current, err = aggr.NewHavingPlan(gp, data.Having); err != nil {
				return nil, err
			}
		}
		hp.logStage("group by", current)
	} else if !data.Having.IsEmpty() {
		return nil, errors.New("having needs a group by or an aggregate")
	}

	if len(data.Fields) > 0 {
		pp, err := project.NewProjectPlan(current, data.Fields...)
		if err != nil {
			return nil, err
		}
		current = pp
		hp.logStage("project", current)
	}
	if data.Distinct {
		dp, err := aggr.NewDistinctPlan(hp.ctx, current)
		if err != nil {
			return nil, err
		}
		current = dp
		hp.logStage("distinct", current)
	}
	if len(data.OrderBy) > 0 {
		sp, err := aggr.NewSortPlan(hp.ctx, current, aggr.NewRecordComparator(data.OrderBy...))
		if err != nil {
			return nil, fmt.Errorf("order by: %w", err)
		}
		current = sp
		hp.logStage("order by", current)
	}
	if data.Limit > 0 {
		lp, err := filter.NewLimitPlan(current, data.Limit)
		if err != nil {
			return nil, err
		}
		current = lp
		hp.logStage("limit", current)
	}
	return current, nil
}

func (hp *HeuristicPlanner) logStage(stage string, p operators.Plan) {
	level.Debug(hp.ctx.Logger).Log("msg", "planned stage", "stage", stage, "records", p.RecordsOutput(), "blocks", p.BlocksAccessed(), "plan", p)
}

// lowest calls mk for every planner and keeps the plan with the fewest
// estimated output records. The chosen planner is removed from the returned
// slice. A nil plan from mk means the planner does not apply; when none
// applies the result is nil and the slice is unchanged.
func lowest(planners []*TablePlanner, mk func(*TablePlanner) (operators.Plan, error)) (operators.Plan, []*TablePlanner, error) {
	best := -1
	var bestplan operators.Plan
	for i, tp := range planners {
		p, err := mk(tp)
		if err != nil {
			return nil, nil, fmt.Errorf("table %s: %w", tp.TableName(), err)
		}
		if p == nil {
			continue
		}
		if bestplan == nil || p.RecordsOutput() < bestplan.RecordsOutput() {
			best, bestplan = i, p
		}
	}
	if best < 0 {
		return nil, planners, nil
	}
	rest := make([]*TablePlanner, 0, len(planners)-1)
	rest = append(rest, planners[:best]...)
	rest = append(rest, planners[best+1:]...)
	return bestplan, rest, nil
}
