package dataset

import (
	"errors"
	"fmt"
)

// Error codes carried by ParseError and ValidationError.
const (
	// Ingest errors
	ErrCodeParseUnsupported = "ERR_PARSE_UNSUPPORTED_FORMAT"
	ErrCodeParseInvalidFile = "ERR_PARSE_INVALID_FILE"
	ErrCodeParseEmpty       = "ERR_PARSE_EMPTY"
	ErrCodeParseNoHeader    = "ERR_PARSE_MISSING_HEADER"
	ErrCodeParseSheetCount  = "ERR_PARSE_SHEET_COUNT"

	// Cell edit errors
	ErrCodeValidationTable    = "ERR_VALIDATION_TABLE"
	ErrCodeValidationColumn   = "ERR_VALIDATION_COLUMN"
	ErrCodeValidationReadOnly = "ERR_VALIDATION_READ_ONLY"
	ErrCodeValidationNumber   = "ERR_VALIDATION_NUMBER"
	ErrCodeValidationDate     = "ERR_VALIDATION_DATE"
	ErrCodeValidationBool     = "ERR_VALIDATION_BOOL"
)

var (
	// ErrRowNotFound is returned when a row id is outside a table.
	ErrRowNotFound = errors.New("row not found")

	// ErrUnknownTable is returned for table names other than sales/claims.
	ErrUnknownTable = errors.New("unknown table")

	// ErrNoData is returned by operations that need a dataset before one
	// has been ingested.
	ErrNoData = errors.New("no dataset loaded")
)

// ParseError reports an ingest that could not interpret its input.
type ParseError struct {
	Code    string `json:"code"`
	Sheet   string `json:"sheet,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *ParseError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("parse %s: %s", e.Sheet, e.Message)
	}
	return "parse: " + e.Message
}

func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(code, sheet, message string, err error) *ParseError {
	return &ParseError{Code: code, Sheet: sheet, Message: message, Err: err}
}

// ValidationError reports a rejected cell edit. The store is untouched.
type ValidationError struct {
	Code    string    `json:"code"`
	Table   TableName `json:"table"`
	RowID   int       `json:"rowId"`
	Column  string    `json:"column"`
	Value   string    `json:"value,omitempty"`
	Message string    `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s row %d, column '%s': %s", e.Table, e.RowID, e.Column, e.Message)
	}
	return fmt.Sprintf("%s row %d: %s", e.Table, e.RowID, e.Message)
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
