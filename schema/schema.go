package schema

// ============================================================================
// SCHEMA: Describes the columns of one ingested sheet
// ============================================================================
// Built by Infer at ingest time. The dataset package uses Type to coerce raw
// cells into typed values; Role is advisory and only feeds default widget
// selection and the assistant's data summary.
// ============================================================================

// ColumnType is the storage type values of a column are coerced to.
type ColumnType string

const (
	TypeString ColumnType = "string"
	TypeNumber ColumnType = "number"
	TypeDate   ColumnType = "date"
	TypeBool   ColumnType = "bool"
)

// Role is the semantic role of a column.
type Role string

const (
	RoleMeasure   Role = "measure"
	RoleDimension Role = "dimension"
	RoleDate      Role = "date"
	RoleID        Role = "id"
)

// Column describes a single column of a table.
type Column struct {
	Name            string     `json:"name"` // header exactly as ingested (trimmed)
	Key             string     `json:"key"`  // snake_case form of Name
	DisplayName     string     `json:"displayName"`
	Type            ColumnType `json:"type"`
	Role            Role       `json:"role"`
	UniqueCount     int        `json:"uniqueCount"`
	NullCount       int        `json:"nullCount"`
	SampleValues    []string   `json:"sampleValues,omitempty"`
	CardinalityHint string     `json:"cardinalityHint,omitempty"` // "low", "medium", "high"
	Derived         bool       `json:"derived,omitempty"`         // added at ingest (Year/Month)
}

// Table is the ordered column list of one sheet.
type Table struct {
	Name     string   `json:"name"`
	Columns  []Column `json:"columns"`
	RowCount int      `json:"rowCount"`
}

// Column returns the column with the given name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Names returns column names in sheet order.
func (t Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ByRole returns the columns with the given role, in sheet order.
func (t Table) ByRole(role Role) []Column {
	var out []Column
	for _, c := range t.Columns {
		if c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

// Measures returns the names of measure columns.
func (t Table) Measures() []string {
	return names(t.ByRole(RoleMeasure))
}

// Dimensions returns the names of dimension columns.
func (t Table) Dimensions() []string {
	return names(t.ByRole(RoleDimension))
}

func names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
