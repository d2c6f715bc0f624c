package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/clarity-bi/clarity/schema"
)

// ============================================================================
// TABLE: One ingested sheet with typed rows
// ============================================================================
// Rows are stored as originally ingested and never mutated; edits live in the
// Ledger overlay. Row ids are the position in the sheet (0-based, after the
// header and blank rows are dropped) and are never reused.
// ============================================================================

// TableName identifies one of the two row-sets.
type TableName string

const (
	Sales  TableName = "sales"
	Claims TableName = "claims"
)

// ParseTableName accepts "sales"/"claims" in any case.
func ParseTableName(s string) (TableName, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Sales):
		return Sales, nil
	case string(Claims):
		return Claims, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTable, s)
}

// Date columns Year/Month are derived from when a sheet has no Year/Month.
var derivationSources = []string{
	"Policy Sold Date", "Failure Date", "Date", "Invoice Date", "Authorized Date",
}

type datePart int

const (
	partYear datePart = iota
	partMonth
)

type derivation struct {
	source int
	part   datePart
}

// Table is an immutable typed sheet.
type Table struct {
	name    TableName
	schema  schema.Table
	columns []string
	index   map[string]int
	rows    [][]Value
	derived map[int]derivation
}

// NewTable infers the schema of a raw sheet, coerces its cells and adds the
// derived Year/Month columns. headers must be the sheet's header row.
func NewTable(name TableName, headers []string, rows [][]string, opts ...schema.InferOptions) *Table {
	headers = normalizeHeaders(headers)
	convertSerialDates(headers, rows)
	sch := schema.Infer(string(name), headers, rows, opts...)

	t := &Table{
		name:    name,
		schema:  sch,
		columns: sch.Names(),
		rows:    make([][]Value, len(rows)),
		derived: make(map[int]derivation),
	}

	for i, raw := range rows {
		row := make([]Value, len(sch.Columns))
		for j, col := range sch.Columns {
			if j < len(raw) {
				row[j] = Coerce(raw[j], col.Type)
			}
		}
		t.rows[i] = row
	}

	t.addDerivedColumns()
	t.buildIndex()
	return t
}

func normalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s (%d)", h, n+1)
		} else {
			seen[h] = 1
		}
		out[i] = h
	}
	return out
}

// addDerivedColumns appends Year/Month computed from the first date column
// when the sheet lacks them. Their values are resolved on read so edits to
// the source date flow through.
func (t *Table) addDerivedColumns() {
	source := -1
	for _, name := range derivationSources {
		if i := slices.Index(t.columns, name); i >= 0 && t.schema.Columns[i].Type == schema.TypeDate {
			source = i
			break
		}
	}
	if source < 0 {
		for i, c := range t.schema.Columns {
			if c.Type == schema.TypeDate {
				source = i
				break
			}
		}
	}
	if source < 0 {
		return
	}

	for _, d := range []struct {
		name string
		part datePart
	}{{"Year", partYear}, {"Month", partMonth}} {
		if slices.Contains(t.columns, d.name) {
			continue
		}
		t.schema.Columns = append(t.schema.Columns, schema.Column{
			Name:        d.name,
			Key:         schema.SnakeCase(d.name),
			DisplayName: d.name,
			Type:        schema.TypeNumber,
			Role:        schema.RoleDimension,
			Derived:     true,
		})
		t.columns = append(t.columns, d.name)
		t.derived[len(t.columns)-1] = derivation{source: source, part: d.part}
	}
}

func (t *Table) buildIndex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c] = i
	}
}

func (t *Table) Name() TableName      { return t.name }
func (t *Table) Len() int             { return len(t.rows) }
func (t *Table) Schema() schema.Table { return t.schema }
func (t *Table) Columns() []string    { return slices.Clone(t.columns) }

// IsDerived reports whether a column was computed at ingest.
func (t *Table) IsDerived(col int) bool {
	_, ok := t.derived[col]
	return ok
}

// ColumnIndex returns the position of a column by exact name.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Column returns the schema of a column by exact name.
func (t *Table) Column(name string) (schema.Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return schema.Column{}, false
	}
	return t.schema.Columns[i], true
}

// base returns the originally ingested cell. Derived cells are resolved by
// the caller from their source column.
func (t *Table) base(row, col int) Value {
	r := t.rows[row]
	if col < 0 || col >= len(r) {
		return NullValue()
	}
	return r[col]
}

// ============================================================================
// ROW
// ============================================================================

// Row is one row of effective values, in column order.
type Row struct {
	ID      int
	columns []string
	index   map[string]int
	values  []Value
}

// Get returns the value of a column; absent columns read as null.
func (r Row) Get(column string) Value {
	if i, ok := r.index[column]; ok {
		return r.values[i]
	}
	return NullValue()
}

func (r Row) Columns() []string { return r.columns }
func (r Row) Values() []Value   { return r.values }

// MarshalJSON encodes the row as an object in column order, with the row id
// under "_row_id".
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"_row_id":`)
	fmt.Fprintf(&buf, "%d", r.ID)
	for i, c := range r.columns {
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		val, err := r.values[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
