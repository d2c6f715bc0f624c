package dataset

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/clarity-bi/clarity/schema"
)

// ============================================================================
// VALUE: Typed cell scalar
// ============================================================================
// Cells are coerced once at ingest from the inferred column type. Nothing
// downstream casts raw strings; readers ask for the representation they need
// and get ok=false when the cell does not hold it.
// ============================================================================

// Kind identifies which field of a Value is set.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	}
	return "null"
}

// DateLayout is the canonical text form of date cells.
const DateLayout = "2006-01-02"

// Value is a tagged union of the scalar cell types.
type Value struct {
	kind Kind
	s    string
	f    float64
	b    bool
	t    time.Time
}

func NullValue() Value            { return Value{} }
func StringValue(s string) Value  { return Value{kind: KindString, s: s} }
func NumberValue(f float64) Value { return Value{kind: KindNumber, f: f} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, b: b} }
func DateValue(t time.Time) Value { return Value{kind: KindDate, t: t} }
func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsNull() bool      { return v.kind == KindNull }

// Str returns the string payload; ok is false for non-string cells.
func (v Value) Str() (string, bool) {
	return v.s, v.kind == KindString
}

// Float returns the numeric payload; ok is false for non-number cells.
func (v Value) Float() (float64, bool) {
	return v.f, v.kind == KindNumber
}

// Time returns the date payload; ok is false for non-date cells.
func (v Value) Time() (time.Time, bool) {
	return v.t, v.kind == KindDate
}

// Bool returns the bool payload; ok is false for non-bool cells.
func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// String renders the cell for display and text matching. Null is "".
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.t.Format(DateLayout)
	}
	return ""
}

// Equal compares kind and payload. Dates compare by instant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindNumber:
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	case KindDate:
		return v.t.Equal(o.t)
	}
	return true
}

// Compare orders two non-null values of the same kind. Mixed kinds fall
// back to their text forms.
func Compare(a, b Value) int {
	if a.kind == b.kind {
		switch a.kind {
		case KindNumber:
			switch {
			case a.f < b.f:
				return -1
			case a.f > b.f:
				return 1
			}
			return 0
		case KindDate:
			return a.t.Compare(b.t)
		case KindBool:
			switch {
			case a.b == b.b:
				return 0
			case !a.b:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a.String(), b.String())
}

// MarshalJSON encodes the cell as a plain JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	case KindDate:
		return json.Marshal(v.t.Format(DateLayout))
	}
	return []byte("null"), nil
}

// Coerce converts a raw ingest cell to the column's type. Cells that do not
// parse keep their text as a string value so nothing is lost; numeric
// readers skip them.
func Coerce(raw string, typ schema.ColumnType) Value {
	if schema.IsNull(raw) {
		return NullValue()
	}
	raw = strings.TrimSpace(raw)
	switch typ {
	case schema.TypeNumber:
		if f, ok := schema.ParseNumber(raw); ok {
			return NumberValue(f)
		}
	case schema.TypeDate:
		if t, ok := schema.ParseDate(raw); ok {
			return DateValue(t)
		}
	case schema.TypeBool:
		if b, ok := schema.ParseBool(raw); ok {
			return BoolValue(b)
		}
	}
	return StringValue(raw)
}
