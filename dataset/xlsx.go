package dataset

import (
	"bytes"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/clarity-bi/clarity/schema"
)

// readXLSX reads every sheet with raw cell values so numbers keep full
// precision and dates arrive as serial day numbers.
func readXLSX(data []byte) ([]sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, newParseError(ErrCodeParseInvalidFile, "", "not a valid xlsx workbook", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	sheets := make([]sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, newParseError(ErrCodeParseInvalidFile, name, "unreadable sheet", err)
		}
		sheets = append(sheets, sheet{name: name, rows: rows})
	}
	return sheets, nil
}

// Serial day numbers accepted as dates (1900-01-01 .. 9999-12-31).
const (
	minSerialDate = 1
	maxSerialDate = 2958465
)

// convertSerialDates rewrites spreadsheet serial numbers in date-named
// columns to ISO dates, in place.
func convertSerialDates(headers []string, rows [][]string) {
	var cols []int
	for i, h := range headers {
		if schema.LooksLikeDateColumn(h) {
			cols = append(cols, i)
		}
	}
	if len(cols) == 0 {
		return
	}
	for _, row := range rows {
		for _, c := range cols {
			if c >= len(row) {
				continue
			}
			raw := strings.TrimSpace(row[c])
			serial, err := strconv.ParseFloat(raw, 64)
			if err != nil || serial < minSerialDate || serial > maxSerialDate {
				continue
			}
			t, err := excelize.ExcelDateToTime(serial, false)
			if err != nil {
				continue
			}
			if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
				row[c] = t.Format(DateLayout)
			} else {
				row[c] = t.Format("2006-01-02 15:04:05")
			}
		}
	}
}

// ============================================================================
// EXPORT
// ============================================================================

// ExportXLSX writes the effective rows of one table to a single-sheet
// workbook, header first. Edits are included.
func (s *Store) ExportXLSX(table TableName) ([]byte, error) {
	tv, err := s.View().Table(table)
	if err != nil {
		return nil, err
	}
	return WriteXLSX(string(table), tv.Columns(), func(yield func([]any) bool) {
		for _, row := range tv.Rows() {
			cells := make([]any, len(row.Values()))
			for i, v := range row.Values() {
				cells[i] = cellValue(v)
			}
			if !yield(cells) {
				return
			}
		}
	})
}

// WriteXLSX writes a header and rows to a workbook with one sheet.
func WriteXLSX(sheetName string, header []string, rows iter.Seq[[]any]) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &head); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheetName, 1, 1, style)
	}

	var writeErr error
	line := 2
	for cells := range rows {
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err == nil {
			err = f.SetSheetRow(sheetName, cell, &cells)
		}
		if err != nil {
			writeErr = fmt.Errorf("write row %d: %w", line, err)
			break
		}
		line++
	}
	if writeErr != nil {
		return nil, writeErr
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func cellValue(v Value) any {
	switch v.Kind() {
	case KindNumber:
		f, _ := v.Float()
		return f
	case KindBool:
		b, _ := v.Bool()
		return b
	case KindNull:
		return nil
	}
	return v.String()
}
