package dataset

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/clarity-bi/clarity/schema"
)

// ============================================================================
// INGEST: Two-sheet workbook (or CSV pair) → Store
// ============================================================================
// Pipeline:
//   1. Sniff or trust the declared format
//   2. Read every sheet as raw strings
//   3. Pick the Sales and Claims sheets (by name, else by position)
//   4. Build both tables concurrently: header, typed rows, derived Year/Month
// ============================================================================

// Format is the declared or sniffed container of an upload.
type Format string

const (
	FormatAuto Format = "auto"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

var (
	zipMagic = []byte("PK\x03\x04")
	cfbMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// DetectFormat sniffs the container from magic bytes. Anything that is not
// a zip (xlsx) or compound file (xls) is assumed to be CSV text.
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX
	case bytes.HasPrefix(data, cfbMagic):
		return FormatXLS
	}
	return FormatCSV
}

// FormatFromFilename maps a file extension to a Format (auto if unknown).
func FormatFromFilename(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".xls":
		return FormatXLS
	case ".csv":
		return FormatCSV
	}
	return FormatAuto
}

type sheet struct {
	name string
	rows [][]string
}

// IngestOption configures Ingest.
type IngestOption func(*ingestConfig)

type ingestConfig struct {
	source string
	infer  schema.InferOptions
}

// WithSource records the upload's file name in the store metadata.
func WithSource(name string) IngestOption {
	return func(c *ingestConfig) { c.source = name }
}

// WithSampleSize bounds how many rows type inference inspects.
func WithSampleSize(n int) IngestOption {
	return func(c *ingestConfig) { c.infer.SampleSize = n }
}

func applyIngestOptions(opts []IngestOption) *ingestConfig {
	cfg := &ingestConfig{infer: schema.DefaultInferOptions()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Ingest parses a two-sheet workbook into a new Store. A single CSV cannot
// carry both sheets; use IngestCSV for a pair of files.
func Ingest(ctx context.Context, data []byte, format Format, opts ...IngestOption) (*Store, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, newParseError(ErrCodeParseEmpty, "", "file is empty", nil)
	}
	if format == FormatAuto || format == "" {
		format = DetectFormat(data)
	}

	var (
		sheets []sheet
		err    error
	)
	switch format {
	case FormatXLSX:
		sheets, err = readXLSX(data)
	case FormatXLS:
		sheets, err = readXLS(data)
	case FormatCSV:
		return nil, newParseError(ErrCodeParseSheetCount, "",
			"a single CSV holds one sheet; sales and claims are both required", nil)
	default:
		return nil, newParseError(ErrCodeParseUnsupported, "", "unsupported format "+string(format), nil)
	}
	if err != nil {
		return nil, err
	}

	salesSheet, claimsSheet, err := pickSheets(sheets)
	if err != nil {
		return nil, err
	}
	return build(ctx, salesSheet, claimsSheet, format, applyIngestOptions(opts))
}

// IngestCSV builds a Store from one CSV per table.
func IngestCSV(ctx context.Context, sales, claims []byte, opts ...IngestOption) (*Store, error) {
	salesRows, err := readCSV(string(Sales), sales)
	if err != nil {
		return nil, err
	}
	claimsRows, err := readCSV(string(Claims), claims)
	if err != nil {
		return nil, err
	}
	return build(ctx,
		sheet{name: string(Sales), rows: salesRows},
		sheet{name: string(Claims), rows: claimsRows},
		FormatCSV, applyIngestOptions(opts))
}

// pickSheets selects the Sales and Claims sheets: first name containing
// "sale" / "claim", otherwise the first and second sheet.
func pickSheets(sheets []sheet) (sheet, sheet, error) {
	if len(sheets) < 2 {
		return sheet{}, sheet{}, newParseError(ErrCodeParseSheetCount, "",
			"workbook needs a sales sheet and a claims sheet", nil)
	}

	salesIdx, claimsIdx := -1, -1
	for i, s := range sheets {
		name := strings.ToLower(s.name)
		if salesIdx < 0 && strings.Contains(name, "sale") {
			salesIdx = i
		}
		if claimsIdx < 0 && strings.Contains(name, "claim") {
			claimsIdx = i
		}
	}
	if salesIdx < 0 {
		salesIdx = 0
		if claimsIdx == 0 {
			salesIdx = 1
		}
	}
	if claimsIdx < 0 {
		claimsIdx = 1
		if salesIdx == 1 {
			claimsIdx = 0
		}
	}
	return sheets[salesIdx], sheets[claimsIdx], nil
}

func build(ctx context.Context, salesSheet, claimsSheet sheet, format Format, cfg *ingestConfig) (*Store, error) {
	var sales, claims *Table

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := buildTable(ctx, Sales, salesSheet, cfg)
		sales = t
		return err
	})
	g.Go(func() error {
		t, err := buildTable(ctx, Claims, claimsSheet, cfg)
		claims = t
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	store := NewStore(sales, claims)
	store.meta.Format = format
	store.meta.Source = cfg.source
	return store, nil
}

// buildTable locates the header (first non-blank row), drops blank rows and
// builds the typed table.
func buildTable(ctx context.Context, name TableName, s sheet, cfg *ingestConfig) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.rows) == 0 {
		return nil, newParseError(ErrCodeParseEmpty, s.name, "sheet is empty", nil)
	}

	header := -1
	for i, row := range s.rows {
		if !blankRow(row) {
			header = i
			break
		}
	}
	if header < 0 {
		return nil, newParseError(ErrCodeParseNoHeader, s.name, "no header row", nil)
	}

	data := make([][]string, 0, len(s.rows)-header-1)
	for i, row := range s.rows[header+1:] {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !blankRow(row) {
			data = append(data, row)
		}
	}

	return NewTable(name, s.rows[header], data, cfg.infer), nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
