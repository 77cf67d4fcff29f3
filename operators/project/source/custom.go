package source

import (
	"fmt"

	"qexec-go/operators"
	"qexec-go/storage"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// in memory columns, mostly for tests and fixtures

var (
	ErrInvalidInMemoryDataType = func(Type any) error {
		return fmt.Errorf("%T is not a supported in memory dataType for LoadColumns", Type)
	}
)

// LoadColumns creates table from parallel column slices. Supported column
// types are []int, []int32, []int64 and []string.
func LoadColumns(cat *storage.Catalog, table string, names []string, columns []any) error {
	if len(names) != len(columns) {
		return operators.ErrInvalidSchema("number of column names and columns do not match")
	}
	if len(names) == 0 {
		return ErrEmptyColumnsToLoad
	}
	fields := make([]arrow.Field, 0, len(names))
	arrays := make([]arrow.Array, 0, len(names))
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()
	for i, col := range columns {
		field, arr, err := unpackColumn(names[i], col)
		if err != nil {
			return err
		}
		if len(arrays) > 0 && arr.Len() != arrays[0].Len() {
			err := operators.ErrInvalidSchema(fmt.Sprintf("column %s has %d rows, expected %d", names[i], arr.Len(), arrays[0].Len()))
			arr.Release()
			return err
		}
		fields = append(fields, field)
		arrays = append(arrays, arr)
	}
	width := DefaultVarcharLength
	for _, a := range arrays {
		if s, ok := a.(*array.String); ok {
			for i := 0; i < s.Len(); i++ {
				width = max(width, len(s.Value(i)))
			}
		}
	}
	_, err := appendColumns(cat, table, arrow.NewSchema(fields, nil), arrays, width)
	return err
}

func unpackColumn(name string, col any) (arrow.Field, arrow.Array, error) {
	field := arrow.Field{Name: name}
	switch colType := col.(type) {
	case []int:
		field.Type = arrow.PrimitiveTypes.Int64
		b := array.NewInt64Builder(memory.DefaultAllocator)
		defer b.Release()
		for _, v := range colType {
			b.Append(int64(v))
		}
		return field, b.NewArray(), nil
	case []int32:
		field.Type = arrow.PrimitiveTypes.Int32
		b := array.NewInt32Builder(memory.DefaultAllocator)
		defer b.Release()
		b.AppendValues(colType, nil)
		return field, b.NewArray(), nil
	case []int64:
		field.Type = arrow.PrimitiveTypes.Int64
		b := array.NewInt64Builder(memory.DefaultAllocator)
		defer b.Release()
		b.AppendValues(colType, nil)
		return field, b.NewArray(), nil
	case []string:
		field.Type = arrow.BinaryTypes.String
		b := array.NewStringBuilder(memory.DefaultAllocator)
		defer b.Release()
		b.AppendValues(colType, nil)
		return field, b.NewArray(), nil
	}
	return arrow.Field{}, nil, ErrInvalidInMemoryDataType(col)
}
