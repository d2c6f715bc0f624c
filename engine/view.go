package engine

import (
	"strings"
	"time"

	"github.com/clarity-bi/clarity/dataset"
	"github.com/clarity-bi/clarity/schema"
)

// ============================================================================
// FIELD VIEW: Column resolution over a dataset.TableView
// ============================================================================
// The engine never owns the rows. It reads effective values through a
// dataset.TableView and resolves the business fields it needs once per pass
// from candidate header names. A missing field resolves to -1 and reads as
// null, so absent columns drop out of sums and counts.
// ============================================================================

// Candidate header names for the business fields, first match wins.
var (
	PolicyColumns      = []string{"Policy No", "PolicyNo", "POLICY_NO", "Policy Number"}
	DealerColumns      = []string{"Dealer", "Dealer AJA"}
	ProductColumns     = []string{"Product", "Coverage"}
	MakeColumns        = []string{"Make", "Vehicle Make"}
	PremiumColumns     = []string{"Gross Premium", "Premium"}
	RiskPremiumColumns = []string{"Risk Premium"}
	ClaimAmountColumns = []string{"Total Auth Amount", "Claim Amount", "Amount"}
	LaborColumns       = []string{"Labor", "Labour", "Labor Cost"}
	PartsColumns       = []string{"Parts", "Parts Cost"}
	StatusColumns      = []string{"Claim Status", "Status"}
	PartTypeColumns    = []string{"Part Type"}
	SalesDateColumns   = []string{"Policy Sold Date", "Date", "Invoice Date"}
	ClaimDateColumns   = []string{"Failure Date", "Authorized Date", "Date"}
)

// FindColumn returns the index of the first candidate present in the table.
func FindColumn(tv *dataset.TableView, candidates []string) int {
	for _, c := range candidates {
		if i, ok := tv.ColumnIndex(c); ok {
			return i
		}
	}
	return -1
}

// fieldView binds one table to its resolved business fields.
type fieldView struct {
	tv *dataset.TableView

	policy      int
	dealer      int
	product     int
	vehicleMake int
	premium     int
	riskPremium int
	amount      int
	labor       int
	parts       int
	status      int
	partType    int
	date        int
	year        int
	month       int
	text        []int // string-typed columns, for search
}

func newFieldView(tv *dataset.TableView, dateCandidates []string) *fieldView {
	v := &fieldView{
		tv:          tv,
		policy:      FindColumn(tv, PolicyColumns),
		dealer:      FindColumn(tv, DealerColumns),
		product:     FindColumn(tv, ProductColumns),
		vehicleMake: FindColumn(tv, MakeColumns),
		premium:     FindColumn(tv, PremiumColumns),
		riskPremium: FindColumn(tv, RiskPremiumColumns),
		amount:      FindColumn(tv, ClaimAmountColumns),
		labor:       FindColumn(tv, LaborColumns),
		parts:       FindColumn(tv, PartsColumns),
		status:      FindColumn(tv, StatusColumns),
		partType:    FindColumn(tv, PartTypeColumns),
		date:        FindColumn(tv, dateCandidates),
		year:        FindColumn(tv, []string{"Year"}),
		month:       FindColumn(tv, []string{"Month"}),
	}
	cols := tv.Schema().Columns
	if v.date < 0 {
		for i, c := range cols {
			if c.Type == schema.TypeDate {
				v.date = i
				break
			}
		}
	}
	for i, c := range cols {
		if c.Type == schema.TypeString {
			v.text = append(v.text, i)
		}
	}
	return v
}

func newSalesView(tv *dataset.TableView) *fieldView  { return newFieldView(tv, SalesDateColumns) }
func newClaimsView(tv *dataset.TableView) *fieldView { return newFieldView(tv, ClaimDateColumns) }

func (v *fieldView) Len() int { return v.tv.Len() }

// Dimension reads a categorical cell as text; "" when absent or null.
func (v *fieldView) Dimension(row, col int) string {
	if col < 0 {
		return ""
	}
	return strings.TrimSpace(v.tv.Value(row, col).String())
}

// Measure reads a numeric cell; absent, null and non-numeric cells are 0.
func (v *fieldView) Measure(row, col int) float64 {
	if col < 0 {
		return 0
	}
	f, _ := v.tv.Value(row, col).Float()
	return f
}

// Date reads the row's designated date.
func (v *fieldView) Date(row int) (time.Time, bool) {
	if v.date < 0 {
		return time.Time{}, false
	}
	return v.tv.Value(row, v.date).Time()
}

// Period returns the row's (year, month), preferring the Year/Month columns
// and falling back to the date column.
func (v *fieldView) Period(row int) (year, month int, ok bool) {
	if v.year >= 0 && v.month >= 0 {
		y, okY := v.tv.Value(row, v.year).Float()
		m, okM := v.tv.Value(row, v.month).Float()
		if okY && okM && y > 0 && m >= 1 && m <= 12 {
			return int(y), int(m), true
		}
	}
	if d, ok := v.Date(row); ok {
		return d.Year(), int(d.Month()), true
	}
	return 0, 0, false
}

// Year returns the row's year component.
func (v *fieldView) Year(row int) (int, bool) {
	if v.year >= 0 {
		if y, ok := v.tv.Value(row, v.year).Float(); ok {
			return int(y), true
		}
	}
	if d, ok := v.Date(row); ok {
		return d.Year(), true
	}
	return 0, false
}

// Month returns the row's month component.
func (v *fieldView) Month(row int) (int, bool) {
	if v.month >= 0 {
		if m, ok := v.tv.Value(row, v.month).Float(); ok {
			return int(m), true
		}
	}
	if d, ok := v.Date(row); ok {
		return int(d.Month()), true
	}
	return 0, false
}

// hasPeriod reports whether the table can answer year/month questions.
func (v *fieldView) hasPeriod() bool {
	return v.year >= 0 || v.month >= 0 || v.date >= 0
}

// searchText concatenates the string-typed cells of a row, lower-cased.
func (v *fieldView) searchText(row int) string {
	var b strings.Builder
	for _, c := range v.text {
		s, ok := v.tv.Value(row, c).Str()
		if !ok {
			continue
		}
		b.WriteString(strings.ToLower(s))
		b.WriteByte('\x1f')
	}
	return b.String()
}

// policyKey normalizes a Policy No cell for joining.
func (v *fieldView) policyKey(row int) string {
	return v.Dimension(row, v.policy)
}

// ============================================================================
// JOIN: Claims → Sales by Policy No
// ============================================================================

// join maps each claims row to its Sales row, or -1 for orphans. The first
// Sales row wins when policy numbers repeat.
type join struct {
	saleOf []int
	claims map[int][]int // sales row → claims rows, in claims order
}

func buildJoin(sales, claims *fieldView) *join {
	j := &join{saleOf: make([]int, claims.Len()), claims: make(map[int][]int)}

	bySale := make(map[string]int, sales.Len())
	if sales.policy >= 0 {
		for r := 0; r < sales.Len(); r++ {
			key := sales.policyKey(r)
			if key == "" {
				continue
			}
			if _, seen := bySale[key]; !seen {
				bySale[key] = r
			}
		}
	}

	for c := 0; c < claims.Len(); c++ {
		j.saleOf[c] = -1
		if claims.policy < 0 {
			continue
		}
		if s, ok := bySale[claims.policyKey(c)]; ok {
			j.saleOf[c] = s
			j.claims[s] = append(j.claims[s], c)
		}
	}
	return j
}
