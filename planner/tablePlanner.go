package planner

import (
	"qexec-go/Expr"
	"qexec-go/operators"
	join "qexec-go/operators/Join"
	"qexec-go/operators/filter"
	"qexec-go/operators/materialize"
	"qexec-go/storage"
)

// TablePlanner plans the access to one table of a query: its base scan, the
// part of the query predicate that only needs this table, and how to join it
// to the plan built so far.
type TablePlanner struct {
	ctx      *materialize.Context
	myplan   *storage.TablePlan
	mypred   *Expr.Predicate
	myschema *operators.Schema
	alg      JoinAlgorithm
}

func NewTablePlanner(ctx *materialize.Context, cat *storage.Catalog, tblname string, pred *Expr.Predicate, alg JoinAlgorithm) (*TablePlanner, error) {
	tp, err := storage.NewTablePlan(cat, tblname)
	if err != nil {
		return nil, err
	}
	if pred == nil {
		pred = Expr.NewPredicate()
	}
	return &TablePlanner{
		ctx:      ctx,
		myplan:   tp,
		mypred:   pred,
		myschema: tp.Schema(),
		alg:      alg,
	}, nil
}

func (tp *TablePlanner) TableName() string { return tp.myplan.TableName() }

// MakeSelectPlan is the table scan with the table's own terms pushed down.
func (tp *TablePlanner) MakeSelectPlan() (operators.Plan, error) {
	return tp.addSelectPred(tp.myplan)
}

// MakeJoinPlan joins current (left) with this table (right) on a term that
// relates a field of each. It returns a nil plan when no such term exists.
func (tp *TablePlanner) MakeJoinPlan(current operators.Plan) (operators.Plan, error) {
	currsch := current.Schema()
	joinpred := tp.mypred.JoinSubPred(tp.myschema, currsch)
	if joinpred == nil {
		return nil, nil
	}
	term, clause, ok := tp.joinTerm(joinpred, currsch)
	if !ok {
		return nil, nil
	}
	right, err := tp.addSelectPred(tp.myplan)
	if err != nil {
		return nil, err
	}
	var p operators.Plan
	switch tp.alg {
	case NestedLoop:
		p, err = join.NewNestedLoopJoinPlan(current, right, clause)
	case BlockNested:
		p, err = join.NewBlockNestedLoopJoinPlan(tp.ctx, current, right, clause)
	case Hash:
		p, err = join.NewHashJoinPlan(tp.ctx, current, right, clause)
	case Merge:
		p, err = join.NewMergeJoinPlan(tp.ctx, current, right, clause)
	default:
		return nil, ErrUnsupportedJoinAlgorithm
	}
	if err != nil {
		return nil, err
	}
	return tp.addJoinPred(p, currsch, term)
}

// MakeProductPlan is the fallback when no join term applies.
func (tp *TablePlanner) MakeProductPlan(current operators.Plan) (operators.Plan, error) {
	right, err := tp.addSelectPred(tp.myplan)
	if err != nil {
		return nil, err
	}
	p, err := join.NewProductPlan(tp.ctx, current, right)
	if err != nil {
		return nil, err
	}
	return tp.addJoinPred(p, current.Schema(), nil)
}

// joinTerm picks the term the join algorithm evaluates, preferring equality.
// Hash and merge joins accept nothing else.
func (tp *TablePlanner) joinTerm(joinpred *Expr.Predicate, currsch *operators.Schema) (*Expr.Term, join.JoinClause, bool) {
	var (
		theta       *Expr.Term
		thetaClause join.JoinClause
	)
	for _, t := range joinpred.Terms() {
		for _, myfield := range tp.myschema.Fields() {
			currfield, ok := t.ComparesWithField(myfield)
			if !ok || !currsch.HasField(currfield) {
				continue
			}
			op, _ := Expr.NewPredicate(t).MatchedOperatorByFieldNames(currfield, myfield)
			if op == Expr.Equal {
				return t, join.NewJoinClause(currfield, myfield), true
			}
			if theta == nil && !tp.alg.equiOnly() {
				theta, thetaClause = t, join.NewThetaJoinClause(currfield, op, myfield)
			}
		}
	}
	return theta, thetaClause, theta != nil
}

func (tp *TablePlanner) addSelectPred(p operators.Plan) (operators.Plan, error) {
	selectpred := tp.mypred.SelectSubPred(tp.myschema)
	if selectpred == nil {
		return p, nil
	}
	return selectOn(p, selectpred)
}

// addJoinPred applies the remaining terms that relate this table to currsch.
// used is already evaluated by the join itself.
func (tp *TablePlanner) addJoinPred(p operators.Plan, currsch *operators.Schema, used *Expr.Term) (operators.Plan, error) {
	joinpred := tp.mypred.JoinSubPred(currsch, tp.myschema)
	if joinpred == nil {
		return p, nil
	}
	rest := Expr.NewPredicate()
	for _, t := range joinpred.Terms() {
		if t != used {
			rest.ConjoinWith(Expr.NewPredicate(t))
		}
	}
	if rest.IsEmpty() {
		return p, nil
	}
	return selectOn(p, rest)
}

func selectOn(p operators.Plan, pred *Expr.Predicate) (operators.Plan, error) {
	sp, err := filter.NewSelectPlan(p, pred)
	if err != nil {
		return nil, err
	}
	return sp, nil
}
