package operators

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/cespare/xxhash/v2"
)

var (
	ErrInvalidSchema = func(info string) error {
		return fmt.Errorf("invalid schema was provided. context: %s", info)
	}
	ErrFieldNotFound = func(field string) error {
		return fmt.Errorf("field %q is not part of the scan", field)
	}
	ErrTypeMismatch = func(left, right FieldType) error {
		return fmt.Errorf("cannot compare different field types: %s and %s", left, right)
	}
	ErrWrongType = func(field string, want, got FieldType) error {
		return fmt.Errorf("field %q holds %s, asked for %s", field, got, want)
	}
)

// FieldType is the type of a schema field. Only INTEGER and VARCHAR exist.
type FieldType int

const (
	Integer FieldType = 4
	Varchar FieldType = 12
)

func (ft FieldType) String() string {
	switch ft {
	case Integer:
		return "int"
	case Varchar:
		return "varchar"
	}
	return "unknown(" + strconv.Itoa(int(ft)) + ")"
}

// Constant is a tagged INTEGER or VARCHAR value. It is comparable, so it can key maps.
type Constant struct {
	typ  FieldType
	ival int
	sval string
}

func NewIntConstant(v int) Constant {
	return Constant{typ: Integer, ival: v}
}

func NewStringConstant(s string) Constant {
	return Constant{typ: Varchar, sval: s}
}

func (c Constant) Type() FieldType { return c.typ }
func (c Constant) AsInt() int { return c.ival }
func (c Constant) AsString() string {
	return c.sval
}

func (c Constant) Equals(o Constant) bool {
	return c == o
}

// CompareTo orders ints numerically and strings lexicographically.
// Mixing the two is an error.
func (c Constant) CompareTo(o Constant) (int, error) {
	if c.typ != o.typ {
		return 0, ErrTypeMismatch(c.typ, o.typ)
	}
	if c.typ == Integer {
		switch {
		case c.ival < o.ival:
			return -1, nil
		case c.ival > o.ival:
			return 1, nil
		}
		return 0, nil
	}
	return strings.Compare(c.sval, o.sval), nil
}

func (c Constant) Hash() uint64 {
	if c.typ == Integer {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(int64(c.ival)))
		return xxhash.Sum64(b[:])
	}
	return xxhash.Sum64String(c.sval)
}

func (c Constant) String() string {
	if c.typ == Integer {
		return strconv.Itoa(c.ival)
	}
	return c.sval
}

type fieldInfo struct {
	typ    FieldType
	length int
}

// Schema is the ordered field list of a table or an intermediate result.
type Schema struct {
	fields []string
	info   map[string]fieldInfo
}

func NewSchema() *Schema {
	return &Schema{info: make(map[string]fieldInfo)}
}

func (s *Schema) AddField(name string, typ FieldType, length int) *Schema {
	if _, ok := s.info[name]; !ok {
		s.fields = append(s.fields, name)
	}
	s.info[name] = fieldInfo{typ: typ, length: length}
	return s
}

func (s *Schema) AddIntField(name string) *Schema {
	return s.AddField(name, Integer, 0)
}

func (s *Schema) AddStringField(name string, length int) *Schema {
	return s.AddField(name, Varchar, length)
}

// Add copies one field definition from another schema.
func (s *Schema) Add(name string, other *Schema) *Schema {
	return s.AddField(name, other.Type(name), other.Length(name))
}

func (s *Schema) AddAll(other *Schema) *Schema {
	for _, f := range other.fields {
		s.Add(f, other)
	}
	return s
}

func (s *Schema) Fields() []string {
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) HasField(name string) bool {
	_, ok := s.info[name]
	return ok
}

func (s *Schema) Type(name string) FieldType { return s.info[name].typ }
func (s *Schema) Length(name string) int { return s.info[name].length }
func (s *Schema) NumFields() int { return len(s.fields) }
func (s *Schema) FieldIndex(name string) int {
	for i, f := range s.fields {
		if f == name {
			return i
		}
	}
	return -1
}

// ArrowSchema maps ints to int64 columns and varchars to utf8 columns.
func (s *Schema) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(s.fields))
	for _, f := range s.fields {
		var dt arrow.DataType = arrow.PrimitiveTypes.Int64
		if s.Type(f) == Varchar {
			dt = arrow.BinaryTypes.String
		}
		fields = append(fields, arrow.Field{Name: f, Type: dt})
	}
	return arrow.NewSchema(fields, nil)
}

func (s *Schema) String() string {
	parts := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		if s.Type(f) == Varchar {
			parts = append(parts, fmt.Sprintf("%s varchar(%d)", f, s.Length(f)))
			continue
		}
		parts = append(parts, f+" int")
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Layout gives every row of a schema a fixed-size slot.
// slot = 4 byte in-use flag, then 4 bytes per int and 4+n bytes per varchar(n).
type Layout struct {
	schema   *Schema
	offsets  map[string]int
	slotSize int
}

func NewLayout(s *Schema) *Layout {
	l := &Layout{schema: s, offsets: make(map[string]int, len(s.fields))}
	pos := 4
	for _, f := range s.fields {
		l.offsets[f] = pos
		if s.Type(f) == Varchar {
			pos += 4 + s.Length(f)
		} else {
			pos += 4
		}
	}
	l.slotSize = pos
	return l
}

func (l *Layout) Schema() *Schema { return l.schema }
func (l *Layout) Offset(field string) int { return l.offsets[field] }
func (l *Layout) SlotSize() int { return l.slotSize }

// SlotsPerBlock never returns less than one so a wide row still gets its own block.
func (l *Layout) SlotsPerBlock(blockSize int) int {
	n := blockSize / l.slotSize
	if n < 1 {
		return 1
	}
	return n
}
