package storage

import (
	"fmt"
	"regexp"
	"sync"

	"qexec-go/operators"
)

var (
	_ = (operators.Plan)(&TablePlan{})
)

var (
	ErrTableExists = func(name string) error {
		return fmt.Errorf("table %q already exists", name)
	}
	ErrUnknownTable = func(name string) error {
		return fmt.Errorf("table %q does not exist", name)
	}
	ErrReservedTableName = func(name string) error {
		return fmt.Errorf("table name %q is reserved for temp tables", name)
	}
)

// temp tables live in the same store as base tables
var tempTableName = regexp.MustCompile(`^temp[0-9]+$`)

// TempTableName is the store file name of the n-th temp table.
func TempTableName(n int64) string { return fmt.Sprintf("temp%d", n) }

// StatInfo is the cardinality information a base table offers the planner.
type StatInfo struct {
	NumBlocks int
	NumRecs   int
}

// DistinctValues is a rough guess, a third of the records being duplicates.
func (si StatInfo) DistinctValues(string) int {
	return 1 + si.NumRecs/3
}

// Catalog keeps table layouts and lazily computed statistics.
type Catalog struct {
	st     *Store
	mu     sync.Mutex
	tables map[string]*operators.Layout
	stats  map[string]StatInfo
}

func NewCatalog(st *Store) *Catalog {
	return &Catalog{
		st:     st,
		tables: make(map[string]*operators.Layout),
		stats:  make(map[string]StatInfo),
	}
}

func (c *Catalog) Store() *Store { return c.st }

func (c *Catalog) CreateTable(name string, sch *operators.Schema) (*operators.Layout, error) {
	if tempTableName.MatchString(name) {
		return nil, ErrReservedTableName(name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; ok {
		return nil, ErrTableExists(name)
	}
	if sch.NumFields() == 0 {
		return nil, operators.ErrInvalidSchema("table " + name + " has no fields")
	}
	l := operators.NewLayout(sch)
	c.tables[name] = l
	return l, nil
}

func (c *Catalog) Layout(name string) (*operators.Layout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.tables[name]
	if !ok {
		return nil, ErrUnknownTable(name)
	}
	return l, nil
}

// Invalidate drops cached statistics after a table is modified.
func (c *Catalog) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stats, name)
}

// StatInfo counts blocks and records with a full scan the first time a table is asked for.
func (c *Catalog) StatInfo(name string) (StatInfo, error) {
	c.mu.Lock()
	si, ok := c.stats[name]
	l, known := c.tables[name]
	c.mu.Unlock()
	if ok {
		return si, nil
	}
	if !known {
		return StatInfo{}, ErrUnknownTable(name)
	}
	ts, err := c.st.NewTableScan(name, l)
	if err != nil {
		return StatInfo{}, err
	}
	defer ts.Close()
	for {
		more, err := ts.Next()
		if err != nil {
			return StatInfo{}, err
		}
		if !more {
			break
		}
		si.NumRecs++
	}
	if si.NumBlocks, err = c.st.Size(name); err != nil {
		return StatInfo{}, err
	}
	c.mu.Lock()
	c.stats[name] = si
	c.mu.Unlock()
	return si, nil
}

// TablePlan is the leaf of every plan tree: a full scan of one base table.
type TablePlan struct {
	st      *Store
	tblname string
	layout  *operators.Layout
	si      StatInfo
}

func NewTablePlan(c *Catalog, tblname string) (*TablePlan, error) {
	l, err := c.Layout(tblname)
	if err != nil {
		return nil, err
	}
	si, err := c.StatInfo(tblname)
	if err != nil {
		return nil, err
	}
	return &TablePlan{st: c.st, tblname: tblname, layout: l, si: si}, nil
}

func (tp *TablePlan) Open() (operators.Scan, error) {
	ts, err := tp.st.NewTableScan(tp.tblname, tp.layout)
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func (tp *TablePlan) Schema() *operators.Schema { return tp.layout.Schema() }
func (tp *TablePlan) BlocksAccessed() int { return tp.si.NumBlocks }
func (tp *TablePlan) RecordsOutput() int { return tp.si.NumRecs }
func (tp *TablePlan) DistinctValues(f string) int { return tp.si.DistinctValues(f) }
func (tp *TablePlan) TableName() string { return tp.tblname }
func (tp *TablePlan) String() string { return "Table(" + tp.tblname + ")" }
