package dataset

import (
	"bytes"
	"encoding/csv"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readCSV reads one CSV file as a sheet of raw strings.
func readCSV(name string, data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, newParseError(ErrCodeParseEmpty, name, "file is empty", nil)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, newParseError(ErrCodeParseInvalidFile, name, "malformed CSV", err)
	}
	return rows, nil
}

// ExportCSV writes the effective rows of one table as CSV, header first.
func (s *Store) ExportCSV(table TableName) ([]byte, error) {
	tv, err := s.View().Table(table)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(tv.Columns()); err != nil {
		return nil, err
	}
	record := make([]string, len(tv.Columns()))
	for _, row := range tv.Rows() {
		for i, v := range row.Values() {
			record[i] = v.String()
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
