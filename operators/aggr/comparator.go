package aggr

import (
	"errors"
	"fmt"
	"strings"

	"qexec-go/operators"
)

var (
	ErrEmptyComparator = errors.New("a comparator needs at least one field")

	ErrUnknownDirection = func(s string) error {
		return fmt.Errorf("%q is not a sort direction, expected asc or desc", s)
	}
)

type Direction int

const (
	Ascending Direction = iota
	Descending
)

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "asc":
		return Ascending, nil
	case "desc":
		return Descending, nil
	}
	return Ascending, ErrUnknownDirection(s)
}

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// OrderByPair is one ORDER BY item.
type OrderByPair struct {
	Field     string
	Direction Direction
}

func (p OrderByPair) String() string { return p.Field + " " + p.Direction.String() }

// RecordComparator orders records by its fields in precedence order. The
// first field that differs decides.
type RecordComparator struct {
	pairs []OrderByPair
}

func NewRecordComparator(pairs ...OrderByPair) *RecordComparator {
	return &RecordComparator{pairs: pairs}
}

// AscendingOn compares the given fields in ascending order, the way group by
// and distinct need them.
func AscendingOn(fields ...string) *RecordComparator {
	pairs := make([]OrderByPair, len(fields))
	for i, f := range fields {
		pairs[i] = OrderByPair{Field: f, Direction: Ascending}
	}
	return NewRecordComparator(pairs...)
}

func (rc *RecordComparator) Pairs() []OrderByPair { return rc.pairs }

func (rc *RecordComparator) Fields() []string {
	fields := make([]string, len(rc.pairs))
	for i, p := range rc.pairs {
		fields[i] = p.Field
	}
	return fields
}

func (rc *RecordComparator) validate(sch *operators.Schema) error {
	if len(rc.pairs) == 0 {
		return ErrEmptyComparator
	}
	for _, p := range rc.pairs {
		if !sch.HasField(p.Field) {
			return operators.ErrFieldNotFound(p.Field)
		}
	}
	return nil
}

// Compare returns a negative number when r1 sorts before r2, zero when they
// tie on every field and a positive number otherwise.
func (rc *RecordComparator) Compare(r1, r2 operators.Record) (int, error) {
	for _, p := range rc.pairs {
		v1, err := r1.GetVal(p.Field)
		if err != nil {
			return 0, err
		}
		v2, err := r2.GetVal(p.Field)
		if err != nil {
			return 0, err
		}
		c, err := v1.CompareTo(v2)
		if err != nil {
			return 0, fmt.Errorf("compare %s: %w", p.Field, err)
		}
		if c != 0 {
			if p.Direction == Descending {
				return -c, nil
			}
			return c, nil
		}
	}
	return 0, nil
}

func (rc *RecordComparator) String() string {
	parts := make([]string, len(rc.pairs))
	for i, p := range rc.pairs {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}
