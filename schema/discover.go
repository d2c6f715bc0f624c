package schema

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ============================================================================
// INFERENCE: Heuristic column classification
// ============================================================================
// Classification pipeline per column:
//   1. Sample values → detect type (number, date, bool, string)
//   2. Header name patterns → strong role hints (dates, ids, measures)
//   3. Type + cardinality → role for everything the name did not decide
// ============================================================================

// InferOptions controls inference behavior.
type InferOptions struct {
	SampleSize int // Max rows to inspect (0 = all). Default: 1000
}

// DefaultInferOptions returns sensible defaults.
func DefaultInferOptions() InferOptions {
	return InferOptions{SampleSize: 1000}
}

// ErrNoColumns is returned when a CSV has an empty header row.
var ErrNoColumns = errors.New("schema: no columns")

// Infer classifies every header of a sheet using its data rows.
// Headers are trimmed; rows shorter than the header read as null.
func Infer(name string, headers []string, rows [][]string, opts ...InferOptions) Table {
	opt := DefaultInferOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	sample := rows
	if opt.SampleSize > 0 && len(sample) > opt.SampleSize {
		sample = sample[:opt.SampleSize]
	}

	table := Table{Name: name, RowCount: len(rows)}
	table.Columns = make([]Column, len(headers))
	for i, h := range headers {
		table.Columns[i] = analyzeColumn(strings.TrimSpace(h), i, sample)
	}
	return table
}

// DiscoverFromCSV infers a Table from CSV bytes (header row required).
func DiscoverFromCSV(name string, data []byte, opts ...InferOptions) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	if len(headers) == 0 {
		return nil, ErrNoColumns
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}
		rows = append(rows, row)
	}

	t := Infer(name, headers, rows, opts...)
	return &t, nil
}

// ============================================================================
// COLUMN ANALYSIS
// ============================================================================

func analyzeColumn(header string, index int, rows [][]string) Column {
	col := Column{
		Name:        header,
		Key:         toSnakeCase(header),
		DisplayName: toDisplayName(header),
	}

	values := make([]string, 0, len(rows))
	uniqueSet := make(map[string]bool)
	for _, row := range rows {
		if index >= len(row) || IsNull(row[index]) {
			col.NullCount++
			continue
		}
		v := strings.TrimSpace(row[index])
		values = append(values, v)
		uniqueSet[v] = true
	}
	col.UniqueCount = len(uniqueSet)
	col.SampleValues = collectSamples(uniqueSet, 10)

	col.Type = detectType(values)
	col.Role = classifyRole(col, values, len(rows))

	switch {
	case col.UniqueCount <= 10:
		col.CardinalityHint = "low"
	case col.UniqueCount <= 100:
		col.CardinalityHint = "medium"
	default:
		col.CardinalityHint = "high"
	}
	return col
}

// classifyRole decides measure vs dimension vs date vs id.
func classifyRole(col Column, values []string, totalRows int) Role {
	key := col.Key

	if col.Type == TypeDate || LooksLikeDateColumn(col.Name) {
		return RoleDate
	}
	if isIDName(key) {
		return RoleID
	}

	uniquePerRow := col.UniqueCount == totalRows && totalRows > 10

	switch col.Type {
	case TypeNumber:
		if key == "year" || key == "month" {
			return RoleDimension
		}
		if isMeasureName(key) {
			return RoleMeasure
		}
		if uniquePerRow && !hasDecimals(values) {
			return RoleID
		}
		if hasDecimals(values) {
			return RoleMeasure
		}
		// Few distinct integers relative to row count → coded dimension
		ratio := float64(col.UniqueCount) / float64(max(totalRows, 1))
		if col.UniqueCount < 20 && ratio < 0.3 {
			return RoleDimension
		}
		return RoleMeasure

	case TypeBool:
		return RoleDimension

	default:
		if uniquePerRow {
			return RoleID
		}
		if col.UniqueCount > totalRows/2 && col.UniqueCount > 50 {
			return RoleID
		}
		return RoleDimension
	}
}

var measureNameHints = []string{
	"premium", "amount", "cost", "price", "labor", "labour", "parts",
	"total", "fee", "commission", "revenue", "excess", "mileage",
}

func isMeasureName(key string) bool {
	for _, hint := range measureNameHints {
		if strings.Contains(key, hint) {
			return true
		}
	}
	return false
}

func isIDName(key string) bool {
	switch {
	case key == "id", key == "vin", key == "chassis_no":
		return true
	case strings.HasSuffix(key, "_id"),
		strings.HasSuffix(key, "_no"),
		strings.HasSuffix(key, "_number"),
		strings.HasSuffix(key, "no") && strings.HasPrefix(key, "policy"):
		return true
	}
	return false
}

// LooksLikeDateColumn reports whether a header names a date field.
// Spreadsheet readers use it to convert serial day numbers.
func LooksLikeDateColumn(name string) bool {
	k := toSnakeCase(name)
	return k == "date" || strings.HasSuffix(k, "_date") || strings.HasPrefix(k, "date_")
}

func hasDecimals(values []string) bool {
	for _, v := range values {
		if strings.Contains(v, ".") {
			return true
		}
	}
	return false
}

// ============================================================================
// TYPE DETECTION
// ============================================================================

// detectType inspects values to determine column type.
// Requires 80%+ of non-null values to match for number/date/bool.
func detectType(values []string) ColumnType {
	if len(values) == 0 {
		return TypeString
	}

	numCount, dateCount, boolCount := 0, 0, 0
	for _, v := range values {
		if _, ok := ParseNumber(v); ok {
			numCount++
		}
		if _, ok := ParseDate(v); ok {
			dateCount++
		}
		if _, ok := ParseBool(v); ok && !isDigit(v) {
			boolCount++
		}
	}

	threshold := int(float64(len(values)) * 0.8)
	if threshold == 0 {
		threshold = 1
	}

	switch {
	case boolCount >= threshold:
		return TypeBool
	case dateCount >= threshold:
		return TypeDate
	case numCount >= threshold:
		return TypeNumber
	}
	return TypeString
}

func isDigit(s string) bool {
	return s == "0" || s == "1"
}

// IsNull reports whether a raw cell means "no value".
func IsNull(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "null", "NULL", "N/A", "n/a", "NaN", "nan", "-":
		return true
	}
	return false
}

// ParseNumber parses a numeric cell, tolerating thousands separators,
// a leading currency symbol and surrounding spaces.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	s = strings.ReplaceAll(s, ",", "")
	for _, sym := range []string{"$", "€", "£", "R"} {
		s = strings.TrimPrefix(s, sym)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"01-02-06",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

// ParseDate parses a date cell against the supported layouts.
// Bare years are not dates; they stay numeric.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseBool parses true/false, yes/no and 1/0.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true, true
	case "false", "no", "n", "0":
		return false, true
	}
	return false, false
}

// ============================================================================
// STRING UTILITIES
// ============================================================================

// toSnakeCase converts "Column Name" or "columnName" → "column_name".
func toSnakeCase(s string) string {
	var result strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				result.WriteRune('_')
			}
		}
		result.WriteRune(r)
	}

	s = strings.ToLower(result.String())
	s = strings.NewReplacer(" ", "_", "-", "_", ".", "_", "/", "_").Replace(s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

// SnakeCase is the exported form of the key normalization used for Column.Key.
func SnakeCase(s string) string { return toSnakeCase(s) }

var titleCaser = cases.Title(language.English)

// toDisplayName cleans a header for human display.
// "gross_premium" → "Gross Premium", "Dealer AJA" stays as is.
func toDisplayName(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, " ") {
		return s
	}
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return titleCaser.String(strings.Join(strings.Fields(s), " "))
}

// collectSamples picks up to maxSamples representative values.
func collectSamples(uniqueSet map[string]bool, maxSamples int) []string {
	samples := make([]string, 0, len(uniqueSet))
	for v := range uniqueSet {
		samples = append(samples, v)
	}
	sort.Strings(samples)
	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}
	return samples
}
