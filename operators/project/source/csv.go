package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"qexec-go/storage"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// CSVSource reads a headered csv file in batches. Column types are inferred
// from the first data row: anything that parses as an integer is INTEGER.
type CSVSource struct {
	r            *csv.Reader
	schema       *arrow.Schema
	colPosition  map[string]int
	firstDataRow []string
	maxWidth     int
	done         bool
}

func NewCSVSource(source io.Reader) (*CSVSource, error) {
	r := csv.NewReader(source)
	r.TrimLeadingSpace = true
	cs := &CSVSource{
		r:           r,
		colPosition: make(map[string]int),
		maxWidth:    DefaultVarcharLength,
	}
	var err error
	cs.schema, err = cs.parseHeader()
	return cs, err
}

func (cs *CSVSource) Schema() *arrow.Schema { return cs.schema }

// Next returns up to n rows as arrow columns, or io.EOF once the file is drained.
func (cs *CSVSource) Next(n int) ([]arrow.Array, error) {
	if cs.done {
		return nil, io.EOF
	}
	builders := cs.initBuilders()
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	rowsRead := 0
	if cs.firstDataRow != nil && rowsRead < n {
		if err := cs.processRow(cs.firstDataRow, builders); err != nil {
			return nil, err
		}
		cs.firstDataRow = nil
		rowsRead++
	}
	for rowsRead < n {
		row, err := cs.r.Read()
		if err == io.EOF {
			cs.done = true
			if rowsRead == 0 {
				return nil, io.EOF
			}
			break
		}
		if err != nil {
			return nil, err
		}
		if err := cs.processRow(row, builders); err != nil {
			return nil, err
		}
		rowsRead++
	}
	columns := make([]arrow.Array, len(builders))
	for i, b := range builders {
		columns[i] = b.NewArray()
	}
	return columns, nil
}

func (cs *CSVSource) initBuilders() []array.Builder {
	fields := cs.schema.Fields()
	builders := make([]array.Builder, len(fields))
	for i, f := range fields {
		builders[i] = array.NewBuilder(memory.DefaultAllocator, f.Type)
	}
	return builders
}

func (cs *CSVSource) processRow(content []string, builders []array.Builder) error {
	for i, f := range cs.schema.Fields() {
		cell := strings.TrimSpace(content[cs.colPosition[f.Name]])
		if cell == "" || strings.EqualFold(cell, "NULL") {
			return fmt.Errorf("column %s has an empty value, nulls are not supported", f.Name)
		}
		switch b := builders[i].(type) {
		case *array.Int64Builder:
			v, err := strconv.ParseInt(cell, 10, 64)
			if err != nil {
				return fmt.Errorf("column %s: %w", f.Name, err)
			}
			b.Append(v)
		case *array.StringBuilder:
			cs.maxWidth = max(cs.maxWidth, len(cell))
			b.Append(cell)
		default:
			return fmt.Errorf("unsupported Arrow type: %s", f.Type)
		}
	}
	return nil
}

func (cs *CSVSource) parseHeader() (*arrow.Schema, error) {
	header, err := cs.r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	firstDataRow, err := cs.r.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cs.firstDataRow = firstDataRow
	newFields := make([]arrow.Field, 0, len(header))
	for i, colName := range header {
		colName = strings.TrimSpace(colName)
		dt := arrow.DataType(arrow.BinaryTypes.String)
		if firstDataRow != nil {
			dt = parseDataType(firstDataRow[i])
		}
		newFields = append(newFields, arrow.Field{Name: colName, Type: dt})
		cs.colPosition[colName] = i
	}
	return arrow.NewSchema(newFields, nil), nil
}

func parseDataType(sample string) arrow.DataType {
	if _, err := strconv.ParseInt(strings.TrimSpace(sample), 10, 64); err == nil {
		return arrow.PrimitiveTypes.Int64
	}
	return arrow.BinaryTypes.String
}

// LoadCSV creates table from a headered csv stream.
func LoadCSV(cat *storage.Catalog, table string, r io.Reader, batchSize int) (int, error) {
	cs, err := NewCSVSource(r)
	if err != nil {
		return 0, err
	}
	// the whole file is read before the table is created, so string widths are known
	var batches [][]arrow.Array
	defer func() {
		for _, cols := range batches {
			for _, c := range cols {
				c.Release()
			}
		}
	}()
	for {
		cols, err := cs.Next(batchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		batches = append(batches, cols)
	}
	if len(batches) == 0 {
		_, err := appendColumns(cat, table, cs.schema, nil, cs.maxWidth)
		return 0, err
	}
	total := 0
	for _, cols := range batches {
		n, err := appendColumns(cat, table, cs.schema, cols, cs.maxWidth)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
