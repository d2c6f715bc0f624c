package dataset

import (
	"fmt"
	"iter"

	"github.com/clarity-bi/clarity/schema"
)

// ============================================================================
// VIEW: Read-only snapshot of effective values
// ============================================================================
// A View pairs the immutable tables with a frozen copy of the ledger overlay
// taken when the view was created. Edits committed later are not visible, so
// one aggregation pass always reads a consistent state. Views are safe for
// concurrent readers.
// ============================================================================

type cellKey struct {
	table TableName
	row   int
	col   int
}

// View is a consistent read-only snapshot of both tables.
type View struct {
	sales  *TableView
	claims *TableView
}

func newView(sales, claims *Table, overlay map[cellKey]Value) *View {
	return &View{
		sales:  &TableView{t: sales, overlay: overlay},
		claims: &TableView{t: claims, overlay: overlay},
	}
}

func (v *View) Sales() *TableView  { return v.sales }
func (v *View) Claims() *TableView { return v.claims }

// Table returns the view of one table by name.
func (v *View) Table(name TableName) (*TableView, error) {
	switch name {
	case Sales:
		return v.sales, nil
	case Claims:
		return v.claims, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
}

// TableView reads effective values of one table.
type TableView struct {
	t       *Table
	overlay map[cellKey]Value
}

func (tv *TableView) Name() TableName      { return tv.t.name }
func (tv *TableView) Len() int             { return tv.t.Len() }
func (tv *TableView) Columns() []string    { return tv.t.columns }
func (tv *TableView) Schema() schema.Table { return tv.t.schema }

// ColumnIndex returns the position of a column by exact name.
func (tv *TableView) ColumnIndex(name string) (int, bool) {
	return tv.t.ColumnIndex(name)
}

// Column returns the schema of a column by exact name.
func (tv *TableView) Column(name string) (schema.Column, bool) {
	return tv.t.Column(name)
}

// Value returns the effective value of a cell: the latest edit if one
// exists, otherwise the ingested value. Out-of-range cells read as null.
func (tv *TableView) Value(row, col int) Value {
	if row < 0 || row >= tv.t.Len() || col < 0 || col >= len(tv.t.columns) {
		return NullValue()
	}
	if d, ok := tv.t.derived[col]; ok {
		src, ok := tv.Value(row, d.source).Time()
		if !ok {
			return NullValue()
		}
		if d.part == partYear {
			return NumberValue(float64(src.Year()))
		}
		return NumberValue(float64(src.Month()))
	}
	if v, ok := tv.overlay[cellKey{table: tv.t.name, row: row, col: col}]; ok {
		return v
	}
	return tv.t.base(row, col)
}

// Get returns the effective value of a named column; absent columns are null.
func (tv *TableView) Get(row int, column string) Value {
	col, ok := tv.t.index[column]
	if !ok {
		return NullValue()
	}
	return tv.Value(row, col)
}

// Row materializes one row of effective values.
func (tv *TableView) Row(id int) (Row, error) {
	if id < 0 || id >= tv.t.Len() {
		return Row{}, fmt.Errorf("%w: %s row %d", ErrRowNotFound, tv.t.name, id)
	}
	values := make([]Value, len(tv.t.columns))
	for c := range values {
		values[c] = tv.Value(id, c)
	}
	return Row{ID: id, columns: tv.t.columns, index: tv.t.index, values: values}, nil
}

// Rows yields every row in id order. The sequence can be ranged over any
// number of times.
func (tv *TableView) Rows() iter.Seq2[int, Row] {
	return func(yield func(int, Row) bool) {
		for id := 0; id < tv.t.Len(); id++ {
			row, _ := tv.Row(id)
			if !yield(id, row) {
				return
			}
		}
	}
}
