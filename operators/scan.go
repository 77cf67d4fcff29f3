package operators

import (
	"fmt"
	"sort"
	"strings"
)

// Record is anything that can hand out a field value for the current tuple.
type Record interface {
	GetVal(field string) (Constant, error)
}

// Scan is a pull cursor. It starts before the first record; Next must be
// called before any Get. Close releases owned sub-scans exactly once.
type Scan interface {
	Record
	BeforeFirst() error
	Next() (bool, error)
	GetInt(field string) (int, error)
	GetString(field string) (string, error)
	HasField(field string) bool
	Close() error
}

type UpdateScan interface {
	Scan
	SetVal(field string, val Constant) error
	SetInt(field string, val int) error
	SetString(field string, val string) error
	// Insert appends a new empty record and positions the scan on it.
	Insert() error
}

// Plan describes how to compute a relation. Every number it reports is an estimate.
type Plan interface {
	Open() (Scan, error)
	Schema() *Schema
	BlocksAccessed() int
	RecordsOutput() int
	DistinctValues(field string) int
	fmt.Stringer
}

// Row is a record detached from any cursor.
type Row map[string]Constant

func (r Row) GetVal(field string) (Constant, error) {
	v, ok := r[field]
	if !ok {
		return Constant{}, ErrFieldNotFound(field)
	}
	return v, nil
}

func (r Row) String() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + r[k].String()
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// GetInt and GetString let scans implement the typed getters on top of GetVal.
func GetInt(r Record, field string) (int, error) {
	v, err := r.GetVal(field)
	if err != nil {
		return 0, err
	}
	if v.Type() != Integer {
		return 0, ErrWrongType(field, Integer, v.Type())
	}
	return v.AsInt(), nil
}

func GetString(r Record, field string) (string, error) {
	v, err := r.GetVal(field)
	if err != nil {
		return "", err
	}
	if v.Type() != Varchar {
		return "", ErrWrongType(field, Varchar, v.Type())
	}
	return v.AsString(), nil
}

// RowOf snapshots the current record of src over the given fields.
func RowOf(src Record, fields []string) (Row, error) {
	row := make(Row, len(fields))
	for _, f := range fields {
		v, err := src.GetVal(f)
		if err != nil {
			return nil, err
		}
		row[f] = v
	}
	return row, nil
}

// CopyRecord inserts a new record into dst holding src's values for fields.
func CopyRecord(dst UpdateScan, src Record, fields []string) error {
	if err := dst.Insert(); err != nil {
		return err
	}
	for _, f := range fields {
		v, err := src.GetVal(f)
		if err != nil {
			return err
		}
		if err := dst.SetVal(f, v); err != nil {
			return err
		}
	}
	return nil
}

// CloseAll closes every scan and returns the first error seen.
func CloseAll(scans ...Scan) error {
	var first error
	for _, s := range scans {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Collect drains a scan into rows. The scan is rewound first and left open.
func Collect(s Scan, fields []string) ([]Row, error) {
	if err := s.BeforeFirst(); err != nil {
		return nil, err
	}
	var out []Row
	for {
		ok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		row, err := RowOf(s, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
}
