package Expr

import (
	"math"
	"strings"

	"qexec-go/operators"
)

// Term compares two expressions.
type Term struct {
	Lhs Expression
	Op  BinaryOperator
	Rhs Expression
}

func NewTerm(lhs Expression, op BinaryOperator, rhs Expression) *Term {
	return &Term{Lhs: lhs, Op: op, Rhs: rhs}
}

func (t *Term) IsSatisfied(r operators.Record) (bool, error) {
	l, err := EvalExpression(t.Lhs, r)
	if err != nil {
		return false, err
	}
	rv, err := EvalExpression(t.Rhs, r)
	if err != nil {
		return false, err
	}
	return t.Op.Check(l, rv)
}

// ReductionFactor estimates by how much the term shrinks the output of p.
// Only equality terms use distinct value counts; a range keeps about a third,
// an inequality keeps nearly everything.
func (t *Term) ReductionFactor(p operators.Plan) int {
	switch t.Op {
	case NotEqual:
		return 1
	case LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual:
		return 3
	}
	lname, lok := fieldName(t.Lhs)
	rname, rok := fieldName(t.Rhs)
	switch {
	case lok && rok:
		return max(p.DistinctValues(lname), p.DistinctValues(rname))
	case lok:
		return p.DistinctValues(lname)
	case rok:
		return p.DistinctValues(rname)
	}
	lc, _ := constant(t.Lhs)
	rc, _ := constant(t.Rhs)
	if lc.Equals(rc) {
		return 1
	}
	return math.MaxInt32
}

// EquatesWithConstant matches "f = c" and "c = f".
func (t *Term) EquatesWithConstant(f string) (operators.Constant, bool) {
	if t.Op != Equal {
		return operators.Constant{}, false
	}
	if name, ok := fieldName(t.Lhs); ok && name == f {
		return constant(t.Rhs)
	}
	if name, ok := fieldName(t.Rhs); ok && name == f {
		return constant(t.Lhs)
	}
	return operators.Constant{}, false
}

// EquatesWithField matches "f = g" and returns g.
func (t *Term) EquatesWithField(f string) (string, bool) {
	if t.Op != Equal {
		return "", false
	}
	return t.ComparesWithField(f)
}

// ComparesWithField matches "f op g" for any operator and returns g.
func (t *Term) ComparesWithField(f string) (string, bool) {
	lname, lok := fieldName(t.Lhs)
	rname, rok := fieldName(t.Rhs)
	if !lok || !rok {
		return "", false
	}
	switch f {
	case lname:
		return rname, true
	case rname:
		return lname, true
	}
	return "", false
}

func (t *Term) AppliesTo(sch *operators.Schema) bool {
	return AppliesTo(t.Lhs, sch) && AppliesTo(t.Rhs, sch)
}

func (t *Term) String() string {
	return t.Lhs.String() + t.Op.String() + t.Rhs.String()
}

// Predicate is a conjunction of terms. The zero value is always true.
type Predicate struct {
	terms []*Term
}

func NewPredicate(terms ...*Term) *Predicate {
	return &Predicate{terms: terms}
}

func (p *Predicate) Terms() []*Term { return p.terms }

func (p *Predicate) IsEmpty() bool { return p == nil || len(p.terms) == 0 }

func (p *Predicate) ConjoinWith(other *Predicate) {
	if other == nil {
		return
	}
	p.terms = append(p.terms, other.terms...)
}

func (p *Predicate) IsSatisfied(r operators.Record) (bool, error) {
	if p == nil {
		return true, nil
	}
	for _, t := range p.terms {
		ok, err := t.IsSatisfied(r)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (p *Predicate) ReductionFactor(plan operators.Plan) int {
	factor := 1
	if p == nil {
		return factor
	}
	for _, t := range p.terms {
		rf := max(t.ReductionFactor(plan), 1)
		if rf >= math.MaxInt32/factor {
			return math.MaxInt32
		}
		factor *= rf
	}
	return factor
}

// SelectSubPred returns the terms that mention only fields of sch, or nil.
func (p *Predicate) SelectSubPred(sch *operators.Schema) *Predicate {
	if p.IsEmpty() {
		return nil
	}
	result := &Predicate{}
	for _, t := range p.terms {
		if t.AppliesTo(sch) {
			result.terms = append(result.terms, t)
		}
	}
	if len(result.terms) == 0 {
		return nil
	}
	return result
}

// JoinSubPred returns the terms that need both schemas to be evaluated, or nil.
func (p *Predicate) JoinSubPred(sch1, sch2 *operators.Schema) *Predicate {
	if p.IsEmpty() {
		return nil
	}
	union := operators.NewSchema().AddAll(sch1).AddAll(sch2)
	result := &Predicate{}
	for _, t := range p.terms {
		if !t.AppliesTo(sch1) && !t.AppliesTo(sch2) && t.AppliesTo(union) {
			result.terms = append(result.terms, t)
		}
	}
	if len(result.terms) == 0 {
		return nil
	}
	return result
}

func (p *Predicate) EquatesWithConstant(f string) (operators.Constant, bool) {
	for _, t := range p.terms {
		if c, ok := t.EquatesWithConstant(f); ok {
			return c, true
		}
	}
	return operators.Constant{}, false
}

func (p *Predicate) EquatesWithField(f string) (string, bool) {
	for _, t := range p.terms {
		if g, ok := t.EquatesWithField(f); ok {
			return g, true
		}
	}
	return "", false
}

func (p *Predicate) ComparesWithField(f string) (string, bool) {
	for _, t := range p.terms {
		if g, ok := t.ComparesWithField(f); ok {
			return g, true
		}
	}
	return "", false
}

// MatchedOperatorByFieldNames finds the term comparing f1 and f2 and returns
// its operator oriented as "f1 op f2".
func (p *Predicate) MatchedOperatorByFieldNames(f1, f2 string) (BinaryOperator, bool) {
	for _, t := range p.terms {
		lname, lok := fieldName(t.Lhs)
		rname, rok := fieldName(t.Rhs)
		if !lok || !rok {
			continue
		}
		if lname == f1 && rname == f2 {
			return t.Op, true
		}
		if lname == f2 && rname == f1 {
			return t.Op.Reverse(), true
		}
	}
	return 0, false
}

func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	parts := make([]string, len(p.terms))
	for i, t := range p.terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " and ")
}
