// Package dataset holds the combined test-rig table and its chronological split.
package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	UnitColumn = "UNIT"
	TestColumn = "TEST"
)

var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrNonNumeric    = errors.New("non-numeric value")
	ErrMissingValue  = errors.New("missing value")
	ErrEmptyTable    = errors.New("table has no rows")
)

// Row maps column name to raw cell text. A column absent from the map is a
// missing (null) cell.
type Row map[string]string

// Table is an ordered set of rows. Row order is the order rows were appended
// and is never changed by this package.
type Table struct {
	Columns []string
	Rows    []Row

	index map[string]struct{}
}

func NewTable() *Table {
	return &Table{index: make(map[string]struct{})}
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) HasColumn(name string) bool {
	t.ensureIndex()
	_, ok := t.index[name]
	return ok
}

// Append adds rows that carry the given columns. New columns are added to the
// schema in first-seen order; earlier rows simply lack them.
func (t *Table) Append(columns []string, rows []Row) {
	t.ensureIndex()
	for _, c := range columns {
		if _, ok := t.index[c]; ok {
			continue
		}
		t.index[c] = struct{}{}
		t.Columns = append(t.Columns, c)
	}
	t.Rows = append(t.Rows, rows...)
}

func (t *Table) ensureIndex() {
	if t.index != nil {
		return
	}
	t.index = make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		t.index[c] = struct{}{}
	}
}

// ColumnError describes a cell that cannot be used as a numeric feature.
type ColumnError struct {
	Column string
	Row    int
	Value  string
	Err    error
}

func (e *ColumnError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("column %q: %v", e.Column, e.Err)
	}
	return fmt.Sprintf("column %q row %d (%q): %v", e.Column, e.Row, e.Value, e.Err)
}

func (e *ColumnError) Unwrap() error {
	return e.Err
}

// Column extracts a numeric column. Every row must hold a parseable number.
func (t *Table) Column(name string) ([]float64, error) {
	if !t.HasColumn(name) {
		return nil, &ColumnError{Column: name, Row: -1, Err: ErrUnknownColumn}
	}
	values := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		raw, ok := row[name]
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			return nil, &ColumnError{Column: name, Row: i, Err: ErrMissingValue}
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &ColumnError{Column: name, Row: i, Value: raw, Err: ErrNonNumeric}
		}
		values[i] = v
	}
	return values, nil
}

// Slice returns a table sharing rows [from, to) and the full schema.
func (t *Table) Slice(from, to int) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	out.Rows = t.Rows[from:to:to]
	return out
}

// MoveToEnd returns a view of t whose schema lists names last, in the given
// order. Names not in the schema are ignored. Rows are shared.
func (t *Table) MoveToEnd(names ...string) *Table {
	trailing := make(map[string]bool, len(names))
	for _, n := range names {
		if t.HasColumn(n) {
			trailing[n] = true
		}
	}
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !trailing[c] {
			cols = append(cols, c)
		}
	}
	for _, n := range names {
		if trailing[n] {
			cols = append(cols, n)
			delete(trailing, n)
		}
	}
	return &Table{Columns: cols, Rows: t.Rows}
}
