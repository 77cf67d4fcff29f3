package project

import (
	"errors"
	"fmt"
	"strings"

	"qexec-go/operators"
)

var (
	_ = (operators.Plan)(&ProjectPlan{})
	_ = (operators.Scan)(&ProjectScan{})
)

var (
	ErrEmptyColumnsToProject = errors.New("no columns passed in to project")
	ErrProjectColumnNotFound = func(name string) error {
		return fmt.Errorf("column %s is not part of the input and cannot be projected", name)
	}
)

// ProjectPlan keeps only the requested fields, in the requested order.
type ProjectPlan struct {
	input  operators.Plan
	schema *operators.Schema
}

func NewProjectPlan(input operators.Plan, fields ...string) (*ProjectPlan, error) {
	sch, err := ProjectSchemaFilterDown(input.Schema(), fields...)
	if err != nil {
		return nil, err
	}
	return &ProjectPlan{input: input, schema: sch}, nil
}

func (pp *ProjectPlan) Open() (operators.Scan, error) {
	s, err := pp.input.Open()
	if err != nil {
		return nil, err
	}
	return &ProjectScan{input: s, schema: pp.schema}, nil
}

func (pp *ProjectPlan) BlocksAccessed() int { return pp.input.BlocksAccessed() }
func (pp *ProjectPlan) RecordsOutput() int { return pp.input.RecordsOutput() }
func (pp *ProjectPlan) DistinctValues(field string) int { return pp.input.DistinctValues(field) }
func (pp *ProjectPlan) Schema() *operators.Schema { return pp.schema }
func (pp *ProjectPlan) String() string {
	return fmt.Sprintf("Project[%s](%s)", strings.Join(pp.schema.Fields(), ","), pp.input)
}

type ProjectScan struct {
	input  operators.Scan
	schema *operators.Schema
}

func (ps *ProjectScan) BeforeFirst() error { return ps.input.BeforeFirst() }
func (ps *ProjectScan) Next() (bool, error) { return ps.input.Next() }

func (ps *ProjectScan) GetVal(field string) (operators.Constant, error) {
	if !ps.schema.HasField(field) {
		return operators.Constant{}, ErrProjectColumnNotFound(field)
	}
	return ps.input.GetVal(field)
}

func (ps *ProjectScan) GetInt(field string) (int, error) { return operators.GetInt(ps, field) }
func (ps *ProjectScan) GetString(field string) (string, error) {
	return operators.GetString(ps, field)
}
func (ps *ProjectScan) HasField(field string) bool { return ps.schema.HasField(field) }
func (ps *ProjectScan) Close() error { return ps.input.Close() }

// ProjectSchemaFilterDown keeps keepCols of schema in keepCols order.
// returns error if a column doesnt exist
func ProjectSchemaFilterDown(schema *operators.Schema, keepCols ...string) (*operators.Schema, error) {
	if len(keepCols) == 0 {
		return nil, ErrEmptyColumnsToProject
	}
	out := operators.NewSchema()
	for _, name := range keepCols {
		if !schema.HasField(name) {
			return nil, ErrProjectColumnNotFound(name)
		}
		out.Add(name, schema)
	}
	return out, nil
}
