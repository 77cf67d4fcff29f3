package main

import (
	"fmt"
	"os"

	"qexec-go/Expr"
	"qexec-go/operators"
	"qexec-go/operators/aggr"
	"qexec-go/planner"

	"gopkg.in/yaml.v3"
)

// queryFile is the yaml document the cli runs.
type queryFile struct {
	Tables []tableSource `yaml:"tables"`
	Query  querySpec     `yaml:"query"`
}

// tableSource loads one base table. Path is a local file, Key an object in
// the configured bucket. Exactly one must be set.
type tableSource struct {
	Name    string   `yaml:"name"`
	Path    string   `yaml:"path"`
	Key     string   `yaml:"key"`
	Columns []string `yaml:"columns"` // parquet only
}

type querySpec struct {
	Fields     []string      `yaml:"fields"`
	Tables     []string      `yaml:"tables"`
	Where      []termSpec    `yaml:"where"`
	GroupBy    []string      `yaml:"group_by"`
	Aggregates []aggrSpec    `yaml:"aggregates"`
	Having     []termSpec    `yaml:"having"`
	Distinct   bool          `yaml:"distinct"`
	OrderBy    []orderBySpec `yaml:"order_by"`
	Limit      int           `yaml:"limit"`
}

// termSpec is "left op right" where right is a field, or "left op value".
type termSpec struct {
	Left  string `yaml:"left"`
	Op    string `yaml:"op"`
	Right string `yaml:"right"`
	Value any    `yaml:"value"`
}

type aggrSpec struct {
	Fn       string `yaml:"fn"`
	Field    string `yaml:"field"`
	Distinct bool   `yaml:"distinct"`
}

type orderBySpec struct {
	Field string `yaml:"field"`
	Dir   string `yaml:"dir"`
}

func readQueryFile(path string) (*queryFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var qf queryFile
	if err := dec.Decode(&qf); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	for _, t := range qf.Tables {
		if t.Name == "" {
			return nil, fmt.Errorf("%s: table without a name", path)
		}
		if (t.Path == "") == (t.Key == "") {
			return nil, fmt.Errorf("%s: table %s needs exactly one of path or key", path, t.Name)
		}
	}
	return &qf, nil
}

func (qs querySpec) toQueryData() (*planner.QueryData, error) {
	where, err := predicateOf(qs.Where)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	having, err := predicateOf(qs.Having)
	if err != nil {
		return nil, fmt.Errorf("having: %w", err)
	}
	qd := &planner.QueryData{
		Fields:   qs.Fields,
		Tables:   qs.Tables,
		Pred:     where,
		GroupBy:  qs.GroupBy,
		Having:   having,
		Distinct: qs.Distinct,
		Limit:    qs.Limit,
	}
	for _, a := range qs.Aggregates {
		fn, err := aggr.NewAggregationFn(a.Fn, a.Field, a.Distinct)
		if err != nil {
			return nil, err
		}
		qd.Aggregates = append(qd.Aggregates, fn)
	}
	for _, o := range qs.OrderBy {
		dir, err := aggr.ParseDirection(o.Dir)
		if err != nil {
			return nil, err
		}
		qd.OrderBy = append(qd.OrderBy, aggr.OrderByPair{Field: o.Field, Direction: dir})
	}
	return qd, nil
}

func predicateOf(specs []termSpec) (*Expr.Predicate, error) {
	pred := Expr.NewPredicate()
	for _, ts := range specs {
		t, err := ts.term()
		if err != nil {
			return nil, err
		}
		pred.ConjoinWith(Expr.NewPredicate(t))
	}
	return pred, nil
}

func (ts termSpec) term() (*Expr.Term, error) {
	op, err := Expr.ParseOperator(ts.Op)
	if err != nil {
		return nil, err
	}
	lhs := Expr.NewColumnResolve(ts.Left)
	if ts.Right != "" {
		if ts.Value != nil {
			return nil, fmt.Errorf("term on %s has both a right field and a value", ts.Left)
		}
		return Expr.NewTerm(lhs, op, Expr.NewColumnResolve(ts.Right)), nil
	}
	switch v := ts.Value.(type) {
	case int:
		return Expr.NewTerm(lhs, op, Expr.NewLiteralResolve(operators.NewIntConstant(v))), nil
	case string:
		return Expr.NewTerm(lhs, op, Expr.NewLiteralResolve(operators.NewStringConstant(v))), nil
	case nil:
		return nil, fmt.Errorf("term on %s needs a right field or a value", ts.Left)
	}
	return nil, fmt.Errorf("term on %s: value %v is neither an integer nor a string", ts.Left, ts.Value)
}
