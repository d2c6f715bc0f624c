package engine

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ============================================================================
// AGGREGATORS: Grouping, Aggregation, and Sorting over a filtered pass
// ============================================================================
// Groups keep first-seen order; sorting is stable, so ties stay in the
// order their first row appeared in the Sales data. Nothing is ever sorted
// alphabetically. Sums are plain float64; rounding happens only in the
// FORMATTING section.
// ============================================================================

// grouper accumulates values per key in first-seen order.
type grouper[T any] struct {
	order []string
	byKey map[string]*T
}

func newGrouper[T any]() *grouper[T] {
	return &grouper[T]{byKey: make(map[string]*T)}
}

func (g *grouper[T]) get(key string) (*T, bool) {
	if acc, ok := g.byKey[key]; ok {
		return acc, false
	}
	acc := new(T)
	g.byKey[key] = acc
	g.order = append(g.order, key)
	return acc, true
}

func (g *grouper[T]) values() []T {
	out := make([]T, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, *g.byKey[k])
	}
	return out
}

// claimTotal is the filtered claims linked to one Sales row.
type claimTotal struct {
	count  int
	amount float64
}

func claimTotals(p *filtered) map[int]claimTotal {
	totals := make(map[int]claimTotal)
	for _, c := range p.claimIDs {
		s := p.join.saleOf[c]
		if s < 0 {
			continue
		}
		t := totals[s]
		t.count++
		t.amount += p.claims.Measure(c, p.claims.amount)
		totals[s] = t
	}
	return totals
}

// ============================================================================
// KPIs
// ============================================================================

func computeKPIs(p *filtered, perSale map[int]claimTotal) KPISnapshot {
	var k KPISnapshot
	dealers := make(map[string]bool)
	makes := make(map[string]bool)

	for _, s := range p.salesIDs {
		k.TotalPremium += p.sales.Measure(s, p.sales.premium)
		k.TotalRiskPremium += p.sales.Measure(s, p.sales.riskPremium)
		if perSale[s].count > 0 {
			k.PoliciesWithClaims++
		}
		if d := p.sales.Dimension(s, p.sales.dealer); d != "" {
			dealers[d] = true
		}
		if m := p.sales.Dimension(s, p.sales.vehicleMake); m != "" {
			makes[m] = true
		}
	}
	for _, c := range p.claimIDs {
		k.TotalClaimsAmount += p.claims.Measure(c, p.claims.amount)
	}

	k.TotalPolicies = len(p.salesIDs)
	k.TotalClaims = len(p.claimIDs)
	k.UniqueDealers = len(dealers)
	k.UniqueMakes = len(makes)
	k.LossRatio = Percent(k.TotalClaimsAmount, k.TotalPremium)
	k.ClaimRate = Percent(float64(k.TotalClaims), float64(k.TotalPolicies))
	k.AvgClaimCost = Ratio(k.TotalClaimsAmount, float64(k.TotalClaims))
	k.AvgPremium = Ratio(k.TotalPremium, float64(k.TotalPolicies))
	return k
}

// ============================================================================
// TIME SERIES
// ============================================================================

func salesMonthly(p *filtered) []SalesPoint {
	g := newGrouper[SalesPoint]()
	for _, s := range p.salesIDs {
		y, m, ok := p.sales.Period(s)
		if !ok {
			continue
		}
		pt, fresh := g.get(PeriodKey(y, m))
		if fresh {
			pt.Period, pt.Year, pt.Month = PeriodKey(y, m), y, m
		}
		pt.Premium += p.sales.Measure(s, p.sales.premium)
		pt.RiskPremium += p.sales.Measure(s, p.sales.riskPremium)
		pt.Policies++
	}
	points := g.values()
	sort.SliceStable(points, func(i, j int) bool { return points[i].Period < points[j].Period })
	return points
}

func claimsMonthly(p *filtered) []ClaimsPoint {
	g := newGrouper[ClaimsPoint]()
	for _, c := range p.claimIDs {
		var (
			y, m int
			ok   bool
		)
		if s := p.join.saleOf[c]; s >= 0 {
			y, m, ok = p.sales.Period(s)
		} else {
			y, m, ok = p.claims.Period(c)
		}
		if !ok {
			continue
		}
		pt, fresh := g.get(PeriodKey(y, m))
		if fresh {
			pt.Period, pt.Year, pt.Month = PeriodKey(y, m), y, m
		}
		pt.Count++
		pt.TotalAmount += p.claims.Measure(c, p.claims.amount)
		pt.LaborCost += p.claims.Measure(c, p.claims.labor)
		pt.PartsCost += p.claims.Measure(c, p.claims.parts)
	}
	points := g.values()
	sort.SliceStable(points, func(i, j int) bool { return points[i].Period < points[j].Period })
	return points
}

// PeriodKey formats a year and month as YYYY-MM.
func PeriodKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// ============================================================================
// BREAKDOWNS & CORRELATIONS
// ============================================================================

// breakdownBy groups filtered Sales rows by key(row), then adds each filtered
// claim to the group of the Sales row it links to. Rows with an empty key are
// left out.
func breakdownBy(p *filtered, perSale map[int]claimTotal, key func(row int) string) []Breakdown {
	g := newGrouper[Breakdown]()
	for _, s := range p.salesIDs {
		k := key(s)
		if k == "" {
			continue
		}
		b, fresh := g.get(k)
		if fresh {
			b.Key = k
		}
		b.Premium += p.sales.Measure(s, p.sales.premium)
		b.RiskPremium += p.sales.Measure(s, p.sales.riskPremium)
		b.Policies++
		if t := perSale[s]; t.count > 0 {
			b.ClaimsCount += t.count
			b.TotalClaimAmount += t.amount
			b.PoliciesWithClaims++
		}
	}
	// claims whose policy is outside the Sales selection still count for
	// that policy's group
	for _, s := range slices.Sorted(maps.Keys(perSale)) {
		if p.salesIn[s] {
			continue
		}
		k := key(s)
		if k == "" {
			continue
		}
		b, fresh := g.get(k)
		if fresh {
			b.Key = k
		}
		b.ClaimsCount += perSale[s].count
		b.TotalClaimAmount += perSale[s].amount
	}
	rows := g.values()
	for i := range rows {
		rows[i].LossRatio = Percent(rows[i].TotalClaimAmount, rows[i].Premium)
		rows[i].ClaimRate = Percent(float64(rows[i].ClaimsCount), float64(rows[i].Policies))
	}
	return rows
}

func columnKey(fv *fieldView, col int) func(int) string {
	return func(row int) string { return fv.Dimension(row, col) }
}

func yearKey(fv *fieldView) func(int) string {
	return func(row int) string {
		if y, ok := fv.Year(row); ok && y > 0 {
			return strconv.Itoa(y)
		}
		return ""
	}
}

func correlationsOf(rows []Breakdown) []Correlation {
	out := make([]Correlation, len(rows))
	for i, b := range rows {
		out[i] = Correlation{
			Key:              b.Key,
			Policies:         b.Policies,
			WithClaims:       b.PoliciesWithClaims,
			TotalPremium:     b.Premium,
			TotalClaimAmount: b.TotalClaimAmount,
			ClaimRate:        Percent(float64(b.PoliciesWithClaims), float64(b.Policies)),
			LossRatio:        b.LossRatio,
		}
	}
	return out
}

// ============================================================================
// CLAIM STATUS & PARTS
// ============================================================================

func claimStatus(p *filtered, cfg *config) []StatusSlice {
	g := newGrouper[StatusSlice]()
	for _, c := range p.claimIDs {
		status := p.claims.Dimension(c, p.claims.status)
		if status == "" {
			continue
		}
		st, fresh := g.get(status)
		if fresh {
			st.Status = status
			st.Color = cfg.StatusColor(status)
		}
		st.Count++
		st.TotalAmount += p.claims.Measure(c, p.claims.amount)
	}
	out := g.values()
	sortDesc(out, func(s StatusSlice) float64 { return float64(s.Count) })
	return out
}

func partsCost(p *filtered) []PartCost {
	g := newGrouper[PartCost]()
	for _, c := range p.claimIDs {
		part := p.claims.Dimension(c, p.claims.partType)
		if part == "" {
			continue
		}
		pc, fresh := g.get(part)
		if fresh {
			pc.PartType = part
		}
		pc.Count++
		pc.TotalAmount += p.claims.Measure(c, p.claims.amount)
	}
	out := g.values()
	for i := range out {
		out[i].AvgCost = Ratio(out[i].TotalAmount, float64(out[i].Count))
	}
	sortDesc(out, func(pc PartCost) float64 { return float64(pc.Count) })
	return out
}

// ============================================================================
// SORTING
// ============================================================================

// sortDesc orders items by metric, largest first; ties keep input order.
func sortDesc[T any](items []T, metric func(T) float64) {
	sort.SliceStable(items, func(i, j int) bool { return metric(items[i]) > metric(items[j]) })
}

func topN[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// ============================================================================
// FORMATTING UTILITIES
// ============================================================================

// Ratio divides, returning 0 for a zero denominator or a non-finite result.
func Ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	r := num / den
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Percent is Ratio scaled to 100.
func Percent(num, den float64) float64 {
	return Ratio(num, den) * 100
}

func toDecimal(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// RoundPercent rounds a percentage to one decimal place, half away from zero.
// Rounding a rounded value returns it unchanged.
func RoundPercent(v float64) float64 {
	return toDecimal(v).Round(1).InexactFloat64()
}

// FormatPercent renders a percentage with one decimal, e.g. "12.5%".
func FormatPercent(v float64) string {
	return toDecimal(v).StringFixed(1) + "%"
}

// FormatAmount renders an amount with two decimals and thousands separators.
func FormatAmount(amount float64) string {
	d := toDecimal(amount)
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	out := groupThousands(intPart) + "." + frac
	if d.IsNegative() && !d.Round(2).IsZero() {
		out = "-" + out
	}
	return out
}

// FormatCurrency prefixes FormatAmount with a currency symbol or code.
func FormatCurrency(amount float64, currency string) string {
	s := FormatAmount(amount)
	if currency == "" {
		return s
	}
	if strings.HasPrefix(s, "-") {
		return "-" + currency + " " + s[1:]
	}
	return currency + " " + s
}

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	return groupThousands(strconv.Itoa(n))
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
