package operators

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Constant
		want int
	}{
		{"ints less", NewIntConstant(1), NewIntConstant(2), -1},
		{"ints equal", NewIntConstant(7), NewIntConstant(7), 0},
		{"negative ints", NewIntConstant(-3), NewIntConstant(-10), 1},
		{"strings less", NewStringConstant("abc"), NewStringConstant("abd"), -1},
		{"prefix sorts first", NewStringConstant("ab"), NewStringConstant("abc"), -1},
		{"strings equal", NewStringConstant("x"), NewStringConstant("x"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.CompareTo(tt.b)
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d but got %d", tt.want, got)
			}
		})
	}
	t.Run("mixed types", func(t *testing.T) {
		_, err := NewIntConstant(1).CompareTo(NewStringConstant("1"))
		if err == nil {
			t.Fatal("expected an error comparing int and varchar")
		}
	})
}

func TestConstantEqualsAndHash(t *testing.T) {
	assert.True(t, NewIntConstant(5).Equals(NewIntConstant(5)))
	assert.False(t, NewIntConstant(5).Equals(NewStringConstant("5")))
	assert.Equal(t, NewStringConstant("bob").Hash(), NewStringConstant("bob").Hash())
	assert.Equal(t, NewIntConstant(42).Hash(), NewIntConstant(42).Hash())
	assert.NotEqual(t, NewIntConstant(1).Hash(), NewIntConstant(2).Hash())

	m := map[Constant]int{NewIntConstant(1): 1, NewStringConstant("a"): 2}
	assert.Equal(t, 1, m[NewIntConstant(1)])
	assert.Equal(t, 2, m[NewStringConstant("a")])
}

func TestSchema(t *testing.T) {
	sch := NewSchema().AddIntField("id").AddStringField("name", 10)
	t.Run("fields keep insertion order", func(t *testing.T) {
		assert.Equal(t, []string{"id", "name"}, sch.Fields())
		assert.Equal(t, 1, sch.FieldIndex("name"))
		assert.Equal(t, -1, sch.FieldIndex("missing"))
	})
	t.Run("types and lengths", func(t *testing.T) {
		assert.Equal(t, Integer, sch.Type("id"))
		assert.Equal(t, Varchar, sch.Type("name"))
		assert.Equal(t, 10, sch.Length("name"))
		assert.True(t, sch.HasField("id"))
		assert.False(t, sch.HasField("age"))
	})
	t.Run("re-adding a field keeps its position", func(t *testing.T) {
		s := NewSchema().AddIntField("a").AddIntField("b").AddStringField("a", 4)
		assert.Equal(t, []string{"a", "b"}, s.Fields())
		assert.Equal(t, Varchar, s.Type("a"))
	})
	t.Run("add and add all copy definitions", func(t *testing.T) {
		s := NewSchema().Add("name", sch)
		assert.Equal(t, 10, s.Length("name"))
		all := NewSchema().AddAll(sch)
		assert.Equal(t, sch.Fields(), all.Fields())
	})
	t.Run("fields is a copy", func(t *testing.T) {
		f := sch.Fields()
		f[0] = "changed"
		assert.Equal(t, "id", sch.Fields()[0])
	})
	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "(id int, name varchar(10))", sch.String())
	})
}

func TestLayout(t *testing.T) {
	sch := NewSchema().AddIntField("id").AddStringField("name", 10)
	l := NewLayout(sch)
	if l.SlotSize() != 4+4+14 {
		t.Fatalf("expected slot size 22 but got %d", l.SlotSize())
	}
	if l.Offset("id") != 4 || l.Offset("name") != 8 {
		t.Fatalf("unexpected offsets id=%d name=%d", l.Offset("id"), l.Offset("name"))
	}
	tests := []struct {
		blockSize int
		want      int
	}{
		{512, 23},
		{22, 1},
		{10, 1},
	}
	for _, tt := range tests {
		if got := l.SlotsPerBlock(tt.blockSize); got != tt.want {
			t.Fatalf("block size %d: expected %d slots but got %d", tt.blockSize, tt.want, got)
		}
	}
}

type sliceScan struct {
	rows []Row
	pos  int
}

func (s *sliceScan) BeforeFirst() error { s.pos = -1; return nil }
func (s *sliceScan) Next() (bool, error) {
	s.pos++
	return s.pos < len(s.rows), nil
}
func (s *sliceScan) GetVal(f string) (Constant, error) { return s.rows[s.pos].GetVal(f) }
func (s *sliceScan) GetInt(f string) (int, error) { return GetInt(s, f) }
func (s *sliceScan) GetString(f string) (string, error) {
	return GetString(s, f)
}
func (s *sliceScan) HasField(f string) bool { _, ok := s.rows[0][f]; return ok }
func (s *sliceScan) Close() error { return nil }

type failingClose struct{ sliceScan }

func (failingClose) Close() error { return errors.New("close failed") }

func TestRowHelpers(t *testing.T) {
	row := Row{"id": NewIntConstant(3), "name": NewStringConstant("ann")}

	t.Run("typed getters", func(t *testing.T) {
		id, err := GetInt(row, "id")
		require.NoError(t, err)
		assert.Equal(t, 3, id)
		name, err := GetString(row, "name")
		require.NoError(t, err)
		assert.Equal(t, "ann", name)
		_, err = GetInt(row, "name")
		assert.Error(t, err)
		_, err = GetString(row, "missing")
		assert.Error(t, err)
	})
	t.Run("row string is sorted by field", func(t *testing.T) {
		assert.Equal(t, "{id=3 name=ann}", row.String())
	})
	t.Run("collect rewinds and snapshots", func(t *testing.T) {
		s := &sliceScan{rows: []Row{row, {"id": NewIntConstant(4), "name": NewStringConstant("bo")}}}
		require.NoError(t, s.BeforeFirst())
		_, _ = s.Next()
		_, _ = s.Next()
		got, err := Collect(s, []string{"id"})
		require.NoError(t, err)
		assert.Equal(t, []Row{{"id": NewIntConstant(3)}, {"id": NewIntConstant(4)}}, got)
	})
	t.Run("close all keeps the first error", func(t *testing.T) {
		err := CloseAll(&sliceScan{}, nil, &failingClose{}, &sliceScan{})
		assert.EqualError(t, err, "close failed")
	})
}
