package source

import (
	"context"
	"errors"
	"io"

	"qexec-go/logging"
	"qexec-go/storage"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/go-kit/log/level"
)

// LoadParquet creates table from a parquet file, optionally keeping only columns.
func LoadParquet(ctx context.Context, cat *storage.Catalog, table string, r parquet.ReaderAtSeeker, columns []string, batchSize int) (int, error) {
	fileReader, err := file.NewParquetReader(r)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := fileReader.Close(); err != nil {
			level.Warn(logging.Logger).Log("msg", "failed to close parquet reader", "table", table, "err", err)
		}
	}()

	arrowReader, err := pqarrow.NewFileReader(
		fileReader,
		pqarrow.ArrowReadProperties{BatchSize: int64(batchSize)},
		memory.NewGoAllocator(),
	)
	if err != nil {
		return 0, err
	}
	var wanted []int
	if len(columns) > 0 {
		s, err := arrowReader.Schema()
		if err != nil {
			return 0, err
		}
		for _, col := range columns {
			idx := s.FieldIndices(col)
			if len(idx) == 0 {
				return 0, ErrColumnNotFound(col)
			}
			wanted = append(wanted, idx...)
		}
	}
	rdr, err := arrowReader.GetRecordReader(ctx, wanted, nil)
	if err != nil {
		return 0, err
	}
	defer rdr.Release()

	width := DefaultVarcharLength
	total := 0
	created := false
	for rdr.Next() {
		rec := rdr.Record()
		n, err := appendColumns(cat, table, rec.Schema(), rec.Columns(), width)
		total += n
		if err != nil {
			return total, err
		}
		created = true
	}
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return total, err
	}
	if !created {
		_, err := appendColumns(cat, table, rdr.Schema(), nil, width)
		return 0, err
	}
	return total, nil
}
