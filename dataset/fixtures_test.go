package dataset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var salesCSV = []byte(`Policy No,Dealer,Product,Make,Policy Sold Date,Gross Premium,Risk Premium
P1,A,Gold,Toyota,2024-01-10,1000,300
P2,B,Silver,Honda,2024-02-15,2000,600
P3,A,Gold,Ford,2024-02-20,1500,450
`)

var claimsCSV = []byte(`Policy No,Claim Status,Total Auth Amount,Labor,Parts,Part Type,Failure Date
P1,Approved,300,100,200,Engine,2024-03-01
P3,Rejected,120,20,100,Gearbox,2024-04-11
`)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := IngestCSV(context.Background(), salesCSV, claimsCSV)
	require.NoError(t, err)
	return store
}

// buildWorkbook writes an xlsx with the given sheets in order. Dates are
// written as time.Time so they are stored as serial numbers.
func buildWorkbook(t *testing.T, sheets map[string][][]any, order []string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			values := row
			require.NoError(t, f.SetSheetRow(name, cell, &values))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
