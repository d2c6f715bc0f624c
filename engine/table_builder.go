package engine

import (
	"bytes"
	"encoding/csv"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/clarity-bi/clarity/dataset"
)

// ============================================================================
// TABLE BUILDER: Produces TableData from aggregation outputs
// ============================================================================
// Tables are what export consumers read: formatted cells in output order,
// plus a totals row where summing makes sense. Percent cells are rounded
// here and nowhere earlier.
// ============================================================================

func textCol(key, label string) Column {
	return Column{Key: key, Label: label, Type: "text", Align: "left"}
}

func numberCol(key, label string) Column {
	return Column{Key: key, Label: label, Type: "number", Align: "right"}
}

func currencyCol(key, label string) Column {
	return Column{Key: key, Label: label, Type: "currency", Align: "right"}
}

func percentCol(key, label string) Column {
	return Column{Key: key, Label: label, Type: "percent", Align: "right"}
}

// BreakdownTable renders a dealer/product/make breakdown.
func BreakdownTable(title, groupLabel string, rows []Breakdown) *TableData {
	td := &TableData{
		Title: title,
		Columns: []Column{
			textCol("key", groupLabel),
			currencyCol("premium", "Premium"),
			numberCol("policies", "Policies"),
			numberCol("claimsCount", "Claims"),
			currencyCol("totalClaimAmount", "Claim Amount"),
			percentCol("lossRatio", "Loss Ratio"),
			percentCol("claimRate", "Claim Rate"),
		},
		Rows: make([][]string, 0, len(rows)),
	}

	var premium, claimed float64
	var policies, claims int
	for _, b := range rows {
		td.Rows = append(td.Rows, []string{
			b.Key,
			FormatAmount(b.Premium),
			FormatInt(b.Policies),
			FormatInt(b.ClaimsCount),
			FormatAmount(b.TotalClaimAmount),
			FormatPercent(b.LossRatio),
			FormatPercent(b.ClaimRate),
		})
		premium += b.Premium
		claimed += b.TotalClaimAmount
		policies += b.Policies
		claims += b.ClaimsCount
	}

	td.Summary = &Summary{
		Label: "Total",
		Values: map[string]string{
			"premium":          FormatAmount(premium),
			"policies":         FormatInt(policies),
			"claimsCount":      FormatInt(claims),
			"totalClaimAmount": FormatAmount(claimed),
			"lossRatio":        FormatPercent(Percent(claimed, premium)),
		},
	}
	return td
}

// CorrelationTable renders one correlation view.
func CorrelationTable(title, groupLabel string, rows []Correlation) *TableData {
	td := &TableData{
		Title: title,
		Columns: []Column{
			textCol("key", groupLabel),
			numberCol("policies", "Policies"),
			numberCol("withClaims", "With Claims"),
			currencyCol("totalPremium", "Premium"),
			currencyCol("totalClaimAmount", "Claim Amount"),
			percentCol("claimRate", "Claim Rate"),
			percentCol("lossRatio", "Loss Ratio"),
		},
		Rows: make([][]string, 0, len(rows)),
	}
	for _, c := range rows {
		td.Rows = append(td.Rows, []string{
			c.Key,
			FormatInt(c.Policies),
			FormatInt(c.WithClaims),
			FormatAmount(c.TotalPremium),
			FormatAmount(c.TotalClaimAmount),
			FormatPercent(c.ClaimRate),
			FormatPercent(c.LossRatio),
		})
	}
	return td
}

// SalesSeriesTable renders the monthly Sales series.
func SalesSeriesTable(points []SalesPoint) *TableData {
	td := &TableData{
		Title: "Monthly Sales",
		Columns: []Column{
			textCol("period", "Period"),
			currencyCol("premium", "Premium"),
			currencyCol("riskPremium", "Risk Premium"),
			numberCol("policies", "Policies"),
		},
		Rows: make([][]string, 0, len(points)),
	}
	for _, p := range points {
		td.Rows = append(td.Rows, []string{
			p.Period, FormatAmount(p.Premium), FormatAmount(p.RiskPremium), FormatInt(p.Policies),
		})
	}
	return td
}

// ClaimsSeriesTable renders the monthly Claims series.
func ClaimsSeriesTable(points []ClaimsPoint) *TableData {
	td := &TableData{
		Title: "Monthly Claims",
		Columns: []Column{
			textCol("period", "Period"),
			numberCol("count", "Claims"),
			currencyCol("totalAmount", "Total Amount"),
			currencyCol("laborCost", "Labor"),
			currencyCol("partsCost", "Parts"),
		},
		Rows: make([][]string, 0, len(points)),
	}
	for _, p := range points {
		td.Rows = append(td.Rows, []string{
			p.Period, FormatInt(p.Count), FormatAmount(p.TotalAmount),
			FormatAmount(p.LaborCost), FormatAmount(p.PartsCost),
		})
	}
	return td
}

// StatusTable renders the claim status distribution.
func StatusTable(statuses []StatusSlice) *TableData {
	td := &TableData{
		Title: "Claims by Status",
		Columns: []Column{
			textCol("status", "Status"),
			numberCol("count", "Claims"),
			currencyCol("totalAmount", "Total Amount"),
		},
		Rows: make([][]string, 0, len(statuses)),
	}
	for _, s := range statuses {
		td.Rows = append(td.Rows, []string{s.Status, FormatInt(s.Count), FormatAmount(s.TotalAmount)})
	}
	return td
}

// PartsTable renders the parts-cost analysis.
func PartsTable(parts []PartCost) *TableData {
	td := &TableData{
		Title: "Parts Cost",
		Columns: []Column{
			textCol("partType", "Part Type"),
			numberCol("count", "Claims"),
			currencyCol("totalAmount", "Total Amount"),
			currencyCol("avgCost", "Average Cost"),
		},
		Rows: make([][]string, 0, len(parts)),
	}
	for _, p := range parts {
		td.Rows = append(td.Rows, []string{
			p.PartType, FormatInt(p.Count), FormatAmount(p.TotalAmount), FormatAmount(p.AvgCost),
		})
	}
	return td
}

// ============================================================================
// REPORT SECTIONS
// ============================================================================

var reportSections = map[string]func(*Result) *TableData{
	"dealers":  func(r *Result) *TableData { return BreakdownTable("Dealer Performance", "Dealer", r.Dealers) },
	"products": func(r *Result) *TableData { return BreakdownTable("Product Mix", "Product", r.Products) },
	"makes":    func(r *Result) *TableData { return BreakdownTable("Vehicle Makes", "Make", r.Makes) },
	"sales":    func(r *Result) *TableData { return SalesSeriesTable(r.SalesMonthly) },
	"claims":   func(r *Result) *TableData { return ClaimsSeriesTable(r.ClaimsMonthly) },
	"status":   func(r *Result) *TableData { return StatusTable(r.ClaimStatus) },
	"parts":    func(r *Result) *TableData { return PartsTable(r.Parts) },

	"risk-dealers": func(r *Result) *TableData {
		return CorrelationTable("Dealer Risk", "Dealer", r.Correlations.ByDealer)
	},
	"risk-products": func(r *Result) *TableData {
		return CorrelationTable("Product Risk", "Product", r.Correlations.ByProduct)
	},
	"risk-makes": func(r *Result) *TableData {
		return CorrelationTable("Make Risk", "Make", r.Correlations.ByMake)
	},
	"risk-years": func(r *Result) *TableData {
		return CorrelationTable("Risk by Year", "Year", r.Correlations.ByYear)
	},
}

// ReportSections lists the section names ReportTable accepts, sorted.
func ReportSections() []string {
	return slices.Sorted(maps.Keys(reportSections))
}

// ReportTable renders one section of a result. ok is false for an unknown
// section.
func ReportTable(r *Result, section string) (*TableData, bool) {
	build, ok := reportSections[section]
	if !ok {
		return nil, false
	}
	return build(r), true
}

// ============================================================================
// EXPORT
// ============================================================================

// Header returns the column labels.
func (td *TableData) Header() []string {
	h := make([]string, len(td.Columns))
	for i, c := range td.Columns {
		h[i] = c.Label
	}
	return h
}

// CSV writes the table with a header row. The summary is not included.
func (td *TableData) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(td.Header()); err != nil {
		return nil, err
	}
	if err := w.WriteAll(td.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// XLSX writes the table to a one-sheet workbook named after its title.
// Number cells are written as numbers so spreadsheets can sum them.
func (td *TableData) XLSX() ([]byte, error) {
	sheet := td.Title
	if sheet == "" {
		sheet = "Sheet1"
	}
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	return dataset.WriteXLSX(sheet, td.Header(), func(yield func([]any) bool) {
		for _, row := range td.Rows {
			cells := make([]any, len(row))
			for i, s := range row {
				cells[i] = td.cell(i, s)
			}
			if !yield(cells) {
				return
			}
		}
	})
}

func (td *TableData) cell(col int, s string) any {
	if col >= len(td.Columns) || td.Columns[col].Type == "text" {
		return s
	}
	raw := strings.ReplaceAll(strings.TrimSuffix(s, "%"), ",", "")
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return s
}
