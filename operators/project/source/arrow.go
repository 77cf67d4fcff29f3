package source

import (
	"fmt"

	"qexec-go/operators"
	"qexec-go/storage"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

var (
	ErrUnsupportedColumnType = func(name string, dt arrow.DataType) error {
		return fmt.Errorf("column %s has type %s, only integer and string columns can be loaded", name, dt)
	}
	ErrEmptyColumnsToLoad = fmt.Errorf("no columns were provided")
	ErrColumnNotFound     = func(name string) error {
		return fmt.Errorf("column %s does not exist in the source", name)
	}
)

// DefaultVarcharLength is the declared width of string columns whose width
// cannot be read from the source.
const DefaultVarcharLength = 32

// SchemaFromArrow maps integer columns to INTEGER and string columns to VARCHAR.
func SchemaFromArrow(as *arrow.Schema, varcharLen int) (*operators.Schema, error) {
	if len(as.Fields()) == 0 {
		return nil, ErrEmptyColumnsToLoad
	}
	sch := operators.NewSchema()
	for _, f := range as.Fields() {
		switch {
		case arrow.IsInteger(f.Type.ID()):
			sch.AddIntField(f.Name)
		case f.Type.ID() == arrow.STRING || f.Type.ID() == arrow.LARGE_STRING:
			sch.AddStringField(f.Name, varcharLen)
		default:
			return nil, ErrUnsupportedColumnType(f.Name, f.Type)
		}
	}
	return sch, nil
}

// appendColumns inserts the rows of an arrow batch into table, creating the
// table the first time it is seen.
func appendColumns(cat *storage.Catalog, table string, as *arrow.Schema, cols []arrow.Array, varcharLen int) (int, error) {
	layout, err := cat.Layout(table)
	if err != nil {
		sch, err := SchemaFromArrow(as, varcharLen)
		if err != nil {
			return 0, err
		}
		if layout, err = cat.CreateTable(table, sch); err != nil {
			return 0, err
		}
	}
	if len(cols) == 0 {
		return 0, nil
	}
	ts, err := cat.Store().NewTableScan(table, layout)
	if err != nil {
		return 0, err
	}
	n := cols[0].Len()
	for row := 0; row < n; row++ {
		if err := ts.Insert(); err != nil {
			ts.Close()
			return row, err
		}
		for i, f := range as.Fields() {
			v, err := valueAt(cols[i], row)
			if err != nil {
				ts.Close()
				return row, err
			}
			if err := ts.SetVal(f.Name, v); err != nil {
				ts.Close()
				return row, err
			}
		}
	}
	cat.Invalidate(table)
	return n, ts.Close()
}

func valueAt(col arrow.Array, i int) (operators.Constant, error) {
	if col.IsNull(i) {
		return operators.Constant{}, fmt.Errorf("null value at row %d, nulls are not supported", i)
	}
	switch c := col.(type) {
	case *array.Int8:
		return operators.NewIntConstant(int(c.Value(i))), nil
	case *array.Int16:
		return operators.NewIntConstant(int(c.Value(i))), nil
	case *array.Int32:
		return operators.NewIntConstant(int(c.Value(i))), nil
	case *array.Int64:
		return operators.NewIntConstant(int(c.Value(i))), nil
	case *array.Uint8:
		return operators.NewIntConstant(int(c.Value(i))), nil
	case *array.Uint16:
		return operators.NewIntConstant(int(c.Value(i))), nil
	case *array.Uint32:
		return operators.NewIntConstant(int(c.Value(i))), nil
	case *array.Uint64:
		return operators.NewIntConstant(int(c.Value(i))), nil
	case *array.String:
		return operators.NewStringConstant(c.Value(i)), nil
	case *array.LargeString:
		return operators.NewStringConstant(c.Value(i)), nil
	}
	return operators.Constant{}, fmt.Errorf("unsupported arrow type: %s", col.DataType())
}
