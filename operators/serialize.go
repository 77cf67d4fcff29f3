package operators

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/klauspost/compress/zstd"
)

/*
Block encoding used when a table spills to disk.

A block is turned into one arrow array per field and written column by column:
┌──────────────────────────────────────────┐
│ uint32   numberOfFields                  │
├──────────────────────────────────────────┤
│ int64    lengthOfArray (rows in block)   │
│ uint32   numBuffers                      │
│ uint64   buffer0Length                   │
│ bytes[]  buffer0Bytes                    │
│ ... repeated for N buffers ...           │
├──────────────────────────────────────────┤
│ ... repeated for every field ...         │
└──────────────────────────────────────────┘
The whole thing is then zstd compressed. The schema is never written; the
serializer is always built from the table's layout, so both sides agree.
*/

type serializer struct {
	schema *Schema
	arrow  *arrow.Schema
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

func NewSerializer(schema *Schema, level zstd.EncoderLevel) (*serializer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &serializer{
		schema: schema,
		arrow:  schema.ArrowSchema(),
		enc:    enc,
		dec:    dec,
	}, nil
}

func (ss *serializer) Schema() *Schema {
	return ss.schema
}

// Close releases the zstd encoder and decoder. The serializer is unusable afterwards.
func (ss *serializer) Close() error {
	ss.dec.Close()
	return ss.enc.Close()
}

// EncodeBlock expects every row to follow the serializer's field order.
func (ss *serializer) EncodeBlock(rows [][]Constant) ([]byte, error) {
	columns, err := ss.buildColumns(rows)
	if err != nil {
		return nil, err
	}
	defer releaseAll(columns)
	raw, err := ss.columnsTodisk(columns)
	if err != nil {
		return nil, err
	}
	return ss.enc.EncodeAll(raw, nil), nil
}

func (ss *serializer) DecodeBlock(data []byte) ([][]Constant, error) {
	raw, err := ss.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress block: %w", err)
	}
	r := bytes.NewReader(raw)
	var num uint32
	if err := binary.Read(r, binary.LittleEndian, &num); err != nil {
		return nil, err
	}
	if int(num) != ss.schema.NumFields() {
		return nil, ErrInvalidSchema(fmt.Sprintf("block has %d columns, layout has %d", num, ss.schema.NumFields()))
	}
	var rows [][]Constant
	for i, field := range ss.arrow.Fields() {
		arr, err := ss.DeserializeNextColumn(r, field.Type)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = make([][]Constant, arr.Len())
			for j := range rows {
				rows[j] = make([]Constant, num)
			}
		}
		if arr.Len() != len(rows) {
			arr.Release()
			return nil, ErrInvalidSchema("columns of a block have different lengths")
		}
		switch col := arr.(type) {
		case *array.Int64:
			for j := 0; j < col.Len(); j++ {
				rows[j][i] = NewIntConstant(int(col.Value(j)))
			}
		case *array.String:
			for j := 0; j < col.Len(); j++ {
				rows[j][i] = NewStringConstant(col.Value(j))
			}
		default:
			arr.Release()
			return nil, fmt.Errorf("unsupported arrow type: %s", field.Type)
		}
		arr.Release()
	}
	return rows, nil
}

func (ss *serializer) buildColumns(rows [][]Constant) ([]arrow.Array, error) {
	fields := ss.schema.Fields()
	columns := make([]arrow.Array, len(fields))
	for i, f := range fields {
		switch ss.schema.Type(f) {
		case Integer:
			b := array.NewInt64Builder(memory.DefaultAllocator)
			for _, row := range rows {
				if row[i].Type() != Integer {
					b.Release()
					releaseAll(columns)
					return nil, ErrWrongType(f, Integer, row[i].Type())
				}
				b.Append(int64(row[i].AsInt()))
			}
			columns[i] = b.NewArray()
			b.Release()
		case Varchar:
			b := array.NewStringBuilder(memory.DefaultAllocator)
			for _, row := range rows {
				if row[i].Type() != Varchar {
					b.Release()
					releaseAll(columns)
					return nil, ErrWrongType(f, Varchar, row[i].Type())
				}
				b.Append(row[i].AsString())
			}
			columns[i] = b.NewArray()
			b.Release()
		default:
			releaseAll(columns)
			return nil, ErrInvalidSchema("unknown field type for " + f)
		}
	}
	return columns, nil
}

func releaseAll(columns []arrow.Array) {
	for _, c := range columns {
		if c != nil {
			c.Release()
		}
	}
}

func (ss *serializer) columnsTodisk(columns []arrow.Array) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(columns))); err != nil {
		return nil, err
	}
	for _, col := range columns {
		data := col.Data()

		if err := binary.Write(buf, binary.LittleEndian, int64(data.Len())); err != nil {
			return nil, err
		}
		buffers := data.Buffers()
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(buffers))); err != nil {
			return nil, err
		}
		for _, b := range buffers {
			if b == nil || b.Len() == 0 {
				if err := binary.Write(buf, binary.LittleEndian, uint64(0)); err != nil {
					return nil, err
				}
				continue
			}
			if err := binary.Write(buf, binary.LittleEndian, uint64(b.Len())); err != nil {
				return nil, err
			}
			if _, err := buf.Write(b.Bytes()); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// DeserializeNextColumn reads one column written by columnsTodisk.
func (ss *serializer) DeserializeNextColumn(r io.Reader, dt arrow.DataType) (arrow.Array, error) {
	var length int64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	var numBuffers uint32
	if err := binary.Read(r, binary.LittleEndian, &numBuffers); err != nil {
		return nil, err
	}

	buffers := make([]*memory.Buffer, numBuffers)
	for i := uint32(0); i < numBuffers; i++ {
		var size uint64
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, err
		}
		if size == 0 {
			// validity bitmaps are never written, nothing is null
			continue
		}
		raw := make([]byte, size)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, err
		}
		buffers[i] = memory.NewBufferBytes(raw)
	}
	// string arrays need a values buffer even when every string is empty
	if dt.ID() == arrow.STRING && numBuffers == 3 && buffers[2] == nil {
		buffers[2] = memory.NewBufferBytes([]byte{})
	}

	arrData := array.NewData(dt, int(length), buffers, nil, 0, 0)
	defer arrData.Release()
	return array.MakeFromData(arrData), nil
}
