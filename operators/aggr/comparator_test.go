package aggr

import (
	"testing"

	"qexec-go/operators"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(kv ...any) operators.Row {
	r := make(operators.Row, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		switch v := kv[i+1].(type) {
		case int:
			r[kv[i].(string)] = operators.NewIntConstant(v)
		case string:
			r[kv[i].(string)] = operators.NewStringConstant(v)
		}
	}
	return r
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"", Ascending, false},
		{"asc", Ascending, false},
		{"DESC", Descending, false},
		{"down", Ascending, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirection(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error for %q", tt.in)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("expected %v but got %v (%v)", tt.want, got, err)
			}
		})
	}
}

func TestRecordComparator(t *testing.T) {
	a := row("dept", 10, "name", "amy", "age", 30)
	b := row("dept", 10, "name", "bob", "age", 25)
	c := row("dept", 20, "name", "amy", "age", 30)

	tests := []struct {
		name   string
		comp   *RecordComparator
		r1, r2 operators.Row
		sign   int
	}{
		{"first field decides", AscendingOn("dept", "name"), a, c, -1},
		{"ties fall through", AscendingOn("dept", "name"), a, b, -1},
		{"all equal", AscendingOn("dept"), a, b, 0},
		{"descending flips", NewRecordComparator(OrderByPair{"age", Descending}), a, b, -1},
		{"mixed directions", NewRecordComparator(OrderByPair{"dept", Ascending}, OrderByPair{"name", Descending}), a, b, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.comp.Compare(tt.r1, tt.r2)
			require.NoError(t, err)
			switch {
			case tt.sign < 0:
				assert.Negative(t, got)
			case tt.sign > 0:
				assert.Positive(t, got)
			default:
				assert.Zero(t, got)
			}
			// antisymmetric
			back, err := tt.comp.Compare(tt.r2, tt.r1)
			require.NoError(t, err)
			assert.Equal(t, tt.sign == 0, back == 0)
		})
	}

	t.Run("errors", func(t *testing.T) {
		_, err := AscendingOn("missing").Compare(a, b)
		assert.Error(t, err)
		_, err = AscendingOn("x").Compare(row("x", 1), row("x", "1"))
		assert.Error(t, err)
	})
	t.Run("validate", func(t *testing.T) {
		sch := operators.NewSchema().AddIntField("dept")
		assert.ErrorIs(t, NewRecordComparator().validate(sch), ErrEmptyComparator)
		assert.Error(t, AscendingOn("name").validate(sch))
		assert.NoError(t, AscendingOn("dept").validate(sch))
	})
	t.Run("string", func(t *testing.T) {
		comp := NewRecordComparator(OrderByPair{"dept", Ascending}, OrderByPair{"age", Descending})
		assert.Equal(t, "dept asc, age desc", comp.String())
		assert.Equal(t, []string{"dept", "age"}, comp.Fields())
	})
}
