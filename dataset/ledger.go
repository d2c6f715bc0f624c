package dataset

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clarity-bi/clarity/schema"
)

// ============================================================================
// LEDGER: Cell edits as an overlay with an append-only audit trail
// ============================================================================
// Every committed edit is appended to the change log and written to the
// overlay keyed by (table, row, column); the latest edit of a cell wins.
// Reset drops both, so reads fall through to the ingested values again.
// ============================================================================

// Edit is one committed cell change. Immutable once recorded.
type Edit struct {
	ID        string    `json:"id"`
	Table     TableName `json:"table"`
	RowID     int       `json:"rowId"`
	Column    string    `json:"column"`
	OldValue  Value     `json:"oldValue"`
	NewValue  Value     `json:"newValue"`
	Timestamp time.Time `json:"timestamp"`
}

// CellUpdate is one requested edit of a bulk update.
type CellUpdate struct {
	Table  TableName `json:"table"`
	RowID  int       `json:"rowId"`
	Column string    `json:"column"`
	Value  string    `json:"value"`
}

// BulkResult reports the outcome of one CellUpdate.
type BulkResult struct {
	Index   int    `json:"index"`
	Success bool   `json:"success"`
	Edit    *Edit  `json:"edit,omitempty"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

// Ledger owns the overlay of edits on top of a Store's tables.
type Ledger struct {
	mu      sync.RWMutex
	tables  map[TableName]*Table
	edits   []Edit
	overlay map[cellKey]Value

	now   func() time.Time
	newID func() string
}

func newLedger(sales, claims *Table) *Ledger {
	return &Ledger{
		tables:  map[TableName]*Table{Sales: sales, Claims: claims},
		overlay: make(map[cellKey]Value),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// UpdateCell validates raw against the column type and records the edit.
// An empty raw value clears the cell to null. On error nothing changes.
func (l *Ledger) UpdateCell(table TableName, rowID int, column, raw string) (Edit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tables[table]
	if !ok || t == nil {
		return Edit{}, &ValidationError{
			Code: ErrCodeValidationTable, Table: table, RowID: rowID, Column: column,
			Message: fmt.Sprintf("unknown table %q", table),
		}
	}
	if rowID < 0 || rowID >= t.Len() {
		return Edit{}, fmt.Errorf("%w: %s row %d", ErrRowNotFound, table, rowID)
	}
	col, ok := t.ColumnIndex(column)
	if !ok {
		return Edit{}, &ValidationError{
			Code: ErrCodeValidationColumn, Table: table, RowID: rowID, Column: column,
			Message: "unknown column",
		}
	}
	if t.IsDerived(col) {
		return Edit{}, &ValidationError{
			Code: ErrCodeValidationReadOnly, Table: table, RowID: rowID, Column: column,
			Message: "column is derived from a date and cannot be edited",
		}
	}

	newValue, err := ParseValue(raw, t.schema.Columns[col].Type)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Table, ve.RowID, ve.Column = table, rowID, column
		}
		return Edit{}, err
	}

	key := cellKey{table: table, row: rowID, col: col}
	old, edited := l.overlay[key]
	if !edited {
		old = t.base(rowID, col)
	}

	edit := Edit{
		ID:        l.newID(),
		Table:     table,
		RowID:     rowID,
		Column:    column,
		OldValue:  old,
		NewValue:  newValue,
		Timestamp: l.now(),
	}
	l.edits = append(l.edits, edit)
	l.overlay[key] = newValue
	return edit, nil
}

// BulkUpdate applies each update independently, in order.
func (l *Ledger) BulkUpdate(updates []CellUpdate) []BulkResult {
	results := make([]BulkResult, len(updates))
	for i, u := range updates {
		edit, err := l.UpdateCell(u.Table, u.RowID, u.Column, u.Value)
		results[i] = BulkResult{Index: i}
		if err != nil {
			results[i].Err = err
			results[i].Error = err.Error()
			continue
		}
		results[i].Success = true
		results[i].Edit = &edit
	}
	return results
}

// ChangeLog returns every edit since the last reset, oldest first.
func (l *Ledger) ChangeLog() []Edit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Edit, len(l.edits))
	copy(out, l.edits)
	return out
}

// PendingCount is the number of edits since the last reset. A cell edited
// twice counts twice.
func (l *Ledger) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.edits)
}

// Reset discards every edit and returns how many were dropped.
func (l *Ledger) Reset() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.edits)
	l.edits = nil
	l.overlay = make(map[cellKey]Value)
	return n
}

// snapshot copies the overlay for a View.
func (l *Ledger) snapshot() map[cellKey]Value {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[cellKey]Value, len(l.overlay))
	for k, v := range l.overlay {
		out[k] = v
	}
	return out
}

// ParseValue strictly parses an edited cell for a column type.
func ParseValue(raw string, typ schema.ColumnType) (Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NullValue(), nil
	}
	switch typ {
	case schema.TypeNumber:
		f, ok := schema.ParseNumber(raw)
		if !ok {
			return Value{}, &ValidationError{Code: ErrCodeValidationNumber, Value: raw,
				Message: fmt.Sprintf("invalid number %q", raw)}
		}
		return NumberValue(f), nil
	case schema.TypeDate:
		t, ok := schema.ParseDate(raw)
		if !ok {
			return Value{}, &ValidationError{Code: ErrCodeValidationDate, Value: raw,
				Message: fmt.Sprintf("invalid date %q", raw)}
		}
		return DateValue(t), nil
	case schema.TypeBool:
		b, ok := schema.ParseBool(raw)
		if !ok {
			return Value{}, &ValidationError{Code: ErrCodeValidationBool, Value: raw,
				Message: fmt.Sprintf("invalid boolean %q", raw)}
		}
		return BoolValue(b), nil
	}
	return StringValue(raw), nil
}
