package dataset

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarity-bi/clarity/schema"
)

func fixedClock(store *Store) {
	n := 0
	store.ledger.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	store.ledger.newID = func() string {
		n++
		return fmt.Sprintf("edit-%d", n)
	}
}

func premium(t *testing.T, store *Store, row int) float64 {
	t.Helper()
	r, err := store.Row(Sales, row)
	require.NoError(t, err)
	f, ok := r.Get("Gross Premium").Float()
	require.True(t, ok)
	return f
}

func TestUpdateCellReadThroughAndReset(t *testing.T) {
	store := newTestStore(t)
	fixedClock(store)

	edit, err := store.UpdateCell(Sales, 0, "Gross Premium", "1500")
	require.NoError(t, err)
	assert.Equal(t, "edit-1", edit.ID)
	assert.Equal(t, 1500.0, premium(t, store, 0))

	old, _ := edit.OldValue.Float()
	assert.Equal(t, 1000.0, old)
	assert.Equal(t, 1, store.Ledger().PendingCount())

	dropped := store.Reset()
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1000.0, premium(t, store, 0))
	assert.Empty(t, store.Ledger().ChangeLog())
}

func TestChangeLogRecordsEveryEdit(t *testing.T) {
	store := newTestStore(t)
	fixedClock(store)

	_, err := store.UpdateCell(Sales, 0, "Gross Premium", "1100")
	require.NoError(t, err)
	_, err = store.UpdateCell(Sales, 0, "Gross Premium", "1200")
	require.NoError(t, err)
	_, err = store.UpdateCell(Claims, 1, "Claim Status", "Approved")
	require.NoError(t, err)

	log := store.Ledger().ChangeLog()
	require.Len(t, log, 3)
	assert.Equal(t, 3, store.Ledger().PendingCount(), "a cell edited twice counts twice")

	// the second edit's old value is the first edit's new value
	prev, _ := log[1].OldValue.Float()
	assert.Equal(t, 1100.0, prev)
	assert.Equal(t, "Rejected", log[2].OldValue.String())
	assert.Equal(t, Claims, log[2].Table)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), log[2].Timestamp)

	// returned log is a copy
	log[0].Column = "mutated"
	assert.Equal(t, "Gross Premium", store.Ledger().ChangeLog()[0].Column)
}

func TestUpdateCellValidation(t *testing.T) {
	tests := []struct {
		name     string
		table    TableName
		row      int
		column   string
		raw      string
		wantCode string
		notFound bool
	}{
		{name: "bad number", table: Sales, row: 0, column: "Gross Premium", raw: "abc", wantCode: ErrCodeValidationNumber},
		{name: "bad date", table: Sales, row: 0, column: "Policy Sold Date", raw: "soon", wantCode: ErrCodeValidationDate},
		{name: "unknown column", table: Sales, row: 0, column: "Nope", raw: "1", wantCode: ErrCodeValidationColumn},
		{name: "derived column", table: Sales, row: 0, column: "Year", raw: "2020", wantCode: ErrCodeValidationReadOnly},
		{name: "unknown table", table: TableName("budget"), row: 0, column: "x", raw: "1", wantCode: ErrCodeValidationTable},
		{name: "row out of range", table: Sales, row: 99, column: "Gross Premium", raw: "1", notFound: true},
		{name: "negative row", table: Claims, row: -1, column: "Claim Status", raw: "x", notFound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			_, err := store.UpdateCell(tt.table, tt.row, tt.column, tt.raw)
			require.Error(t, err)

			if tt.notFound {
				assert.ErrorIs(t, err, ErrRowNotFound)
			} else {
				var ve *ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Equal(t, tt.wantCode, ve.Code)
				assert.Equal(t, tt.column, ve.Column)
			}
			assert.Zero(t, store.Ledger().PendingCount(), "rejected edits leave no trace")
		})
	}
}

func TestUpdateCellEmptyClearsToNull(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UpdateCell(Sales, 1, "Gross Premium", "  ")
	require.NoError(t, err)

	row, err := store.Row(Sales, 1)
	require.NoError(t, err)
	assert.True(t, row.Get("Gross Premium").IsNull())
}

func TestDateEditFlowsIntoDerivedColumns(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UpdateCell(Sales, 0, "Policy Sold Date", "2023-05-03")
	require.NoError(t, err)

	row, err := store.Row(Sales, 0)
	require.NoError(t, err)
	assert.Equal(t, "2023", row.Get("Year").String())
	assert.Equal(t, "5", row.Get("Month").String())

	_, err = store.UpdateCell(Sales, 0, "Policy Sold Date", "")
	require.NoError(t, err)
	row, err = store.Row(Sales, 0)
	require.NoError(t, err)
	assert.True(t, row.Get("Month").IsNull())
}

func TestViewIsIsolatedFromLaterEdits(t *testing.T) {
	store := newTestStore(t)
	view := store.View()

	_, err := store.UpdateCell(Sales, 2, "Gross Premium", "9")
	require.NoError(t, err)

	f, _ := view.Sales().Get(2, "Gross Premium").Float()
	assert.Equal(t, 1500.0, f, "snapshot keeps the pre-edit value")
	f, _ = store.View().Sales().Get(2, "Gross Premium").Float()
	assert.Equal(t, 9.0, f)
}

func TestRowsIsRestartable(t *testing.T) {
	store := newTestStore(t)
	seq := store.Rows(Claims)

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, count())

	// early break
	for id := range seq {
		assert.Equal(t, 0, id)
		break
	}

	// a range after an edit sees it
	_, err := store.UpdateCell(Claims, 0, "Claim Status", "Reversed")
	require.NoError(t, err)
	for _, row := range seq {
		assert.Equal(t, "Reversed", row.Get("Claim Status").String())
		break
	}
}

func TestBulkUpdate(t *testing.T) {
	store := newTestStore(t)

	results := store.Ledger().BulkUpdate([]CellUpdate{
		{Table: Sales, RowID: 0, Column: "Gross Premium", Value: "10"},
		{Table: Sales, RowID: 1, Column: "Gross Premium", Value: "ten"},
		{Table: Claims, RowID: 0, Column: "Part Type", Value: "Turbo"},
	})
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	require.NotNil(t, results[0].Edit)
	assert.False(t, results[1].Success)
	assert.True(t, IsValidationError(results[1].Err))
	assert.NotEmpty(t, results[1].Error)
	assert.Equal(t, 1, results[1].Index)
	assert.True(t, results[2].Success)

	assert.Equal(t, 2, store.Ledger().PendingCount())
	assert.Equal(t, 10.0, premium(t, store, 0))
	assert.Equal(t, 2000.0, premium(t, store, 1))
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue("1,250.50", schema.TypeNumber)
	require.NoError(t, err)
	f, _ := v.Float()
	assert.Equal(t, 1250.5, f)

	v, err = ParseValue("yes", schema.TypeBool)
	require.NoError(t, err)
	b, ok := v.Bool()
	assert.True(t, ok)
	assert.True(t, b)

	_, err = ParseValue("maybe", schema.TypeBool)
	assert.True(t, IsValidationError(err))

	v, err = ParseValue(" free text ", schema.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "free text", v.String())
}
