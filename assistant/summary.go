package assistant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/clarity-bi/clarity/engine"
)

// ============================================================================
// DATA SUMMARY: the text context an assistant answers from
// ============================================================================
// Sections are fixed-width tables headed by "=== NAME ===" so a model can
// scan them for rankings and exact figures. Only aggregates are included;
// no individual record ever leaves the engine.
// ============================================================================

// Row caps for the longer sections.
const (
	SummaryDealerLimit = 15
	SummaryMakeLimit   = 15
	SummaryOptionLimit = 30
)

// NoDataSummary is returned when there is nothing to summarize.
const NoDataSummary = "No data loaded."

// BuildDataSummary renders res and the available filter values as plain text.
func BuildDataSummary(res *engine.Result, opts engine.FilterOptions) string {
	if res == nil {
		return NoDataSummary
	}

	var b strings.Builder
	writeKPIs(&b, res.KPIs)
	writeActiveFilters(&b, res.Filters)
	writeSalesMonthly(&b, res.SalesMonthly)
	writeDealers(&b, res.Dealers)
	writeProducts(&b, res.Products)
	writeMakes(&b, res.Makes)
	writeClaimStatus(&b, res.ClaimStatus)
	writeClaimsMonthly(&b, res.ClaimsMonthly)
	writeOptions(&b, opts)
	return strings.TrimRight(b.String(), "\n")
}

func section(b *strings.Builder, title string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(b, "=== %s ===\n", title)
}

func writeKPIs(b *strings.Builder, k engine.KPISnapshot) {
	section(b, "OVERALL KPIs")
	fmt.Fprintf(b, "Total Policies      : %s\n", engine.FormatInt(k.TotalPolicies))
	fmt.Fprintf(b, "Total Gross Premium : %s\n", engine.FormatAmount(k.TotalPremium))
	fmt.Fprintf(b, "Total Claims        : %s\n", engine.FormatInt(k.TotalClaims))
	fmt.Fprintf(b, "Total Claims Amount : %s\n", engine.FormatAmount(k.TotalClaimsAmount))
	fmt.Fprintf(b, "Claim Rate          : %s\n", engine.FormatPercent(k.ClaimRate))
	fmt.Fprintf(b, "Loss Ratio          : %s\n", engine.FormatPercent(k.LossRatio))
	fmt.Fprintf(b, "Avg Claim Cost      : %s\n", engine.FormatAmount(k.AvgClaimCost))
	fmt.Fprintf(b, "Avg Premium         : %s\n", engine.FormatAmount(k.AvgPremium))
	fmt.Fprintf(b, "Unique Dealers      : %d\n", k.UniqueDealers)
	fmt.Fprintf(b, "Unique Makes        : %d\n", k.UniqueMakes)
}

func writeActiveFilters(b *strings.Builder, f engine.FilterState) {
	keys := f.ActiveKeys()
	if len(keys) == 0 {
		return
	}
	section(b, "ACTIVE FILTERS")
	for _, k := range keys {
		fmt.Fprintf(b, "  %s: %s\n", k, f.Get(k))
	}
}

func writeSalesMonthly(b *strings.Builder, points []engine.SalesPoint) {
	if len(points) == 0 {
		return
	}
	section(b, "MONTHLY SALES (sorted by period)")
	fmt.Fprintf(b, "%-12s %14s %10s\n", "Period", "Premium", "Policies")
	b.WriteString(strings.Repeat("-", 38) + "\n")
	best, worst := points[0], points[0]
	for _, p := range points {
		fmt.Fprintf(b, "%-12s %14s %10s\n", p.Period, engine.FormatAmount(p.Premium), engine.FormatInt(p.Policies))
		if p.Premium > best.Premium {
			best = p
		}
		if p.Premium < worst.Premium {
			worst = p
		}
	}
	fmt.Fprintf(b, "\n-> Highest premium month : %s (%s)\n", best.Period, engine.FormatAmount(best.Premium))
	fmt.Fprintf(b, "-> Lowest  premium month : %s (%s)\n", worst.Period, engine.FormatAmount(worst.Premium))
}

func writeDealers(b *strings.Builder, dealers []engine.Breakdown) {
	if len(dealers) == 0 {
		return
	}
	section(b, "DEALER PERFORMANCE (top 15 by premium)")
	fmt.Fprintf(b, "%-30s %14s %10s %12s\n", "Dealer", "Premium", "Policies", "Loss Ratio")
	b.WriteString(strings.Repeat("-", 68) + "\n")
	for _, d := range dealers[:min(len(dealers), SummaryDealerLimit)] {
		fmt.Fprintf(b, "%-30s %14s %10s %12s\n",
			d.Key, engine.FormatAmount(d.Premium), engine.FormatInt(d.Policies), engine.FormatPercent(d.LossRatio))
	}
	fmt.Fprintf(b, "\n-> Top dealer by premium : %s (%s)\n", dealers[0].Key, engine.FormatAmount(dealers[0].Premium))
}

func writeProducts(b *strings.Builder, products []engine.Breakdown) {
	if len(products) == 0 {
		return
	}
	section(b, "PRODUCT MIX")
	fmt.Fprintf(b, "%-35s %14s %10s\n", "Product", "Premium", "Policies")
	b.WriteString(strings.Repeat("-", 61) + "\n")
	for _, p := range products {
		fmt.Fprintf(b, "%-35s %14s %10s\n", p.Key, engine.FormatAmount(p.Premium), engine.FormatInt(p.Policies))
	}
}

func writeMakes(b *strings.Builder, makes []engine.Breakdown) {
	if len(makes) == 0 {
		return
	}
	section(b, "TOP VEHICLE MAKES")
	fmt.Fprintf(b, "%-25s %10s %14s\n", "Make", "Policies", "Premium")
	b.WriteString(strings.Repeat("-", 51) + "\n")
	for _, m := range makes[:min(len(makes), SummaryMakeLimit)] {
		fmt.Fprintf(b, "%-25s %10s %14s\n", m.Key, engine.FormatInt(m.Policies), engine.FormatAmount(m.Premium))
	}
}

func writeClaimStatus(b *strings.Builder, statuses []engine.StatusSlice) {
	if len(statuses) == 0 {
		return
	}
	section(b, "CLAIMS BY STATUS")
	fmt.Fprintf(b, "%-15s %10s %16s\n", "Status", "Count", "Total Amount")
	b.WriteString(strings.Repeat("-", 43) + "\n")
	for _, s := range statuses {
		fmt.Fprintf(b, "%-15s %10s %16s\n", s.Status, engine.FormatInt(s.Count), engine.FormatAmount(s.TotalAmount))
	}
}

func writeClaimsMonthly(b *strings.Builder, points []engine.ClaimsPoint) {
	if len(points) == 0 {
		return
	}
	section(b, "MONTHLY CLAIMS TREND")
	fmt.Fprintf(b, "%-12s %14s %16s\n", "Period", "Claims Count", "Total Amount")
	b.WriteString(strings.Repeat("-", 44) + "\n")
	best := points[0]
	for _, p := range points {
		fmt.Fprintf(b, "%-12s %14s %16s\n", p.Period, engine.FormatInt(p.Count), engine.FormatAmount(p.TotalAmount))
		if p.TotalAmount > best.TotalAmount {
			best = p
		}
	}
	fmt.Fprintf(b, "\n-> Highest claims month : %s (%s)\n", best.Period, engine.FormatAmount(best.TotalAmount))
}

func writeOptions(b *strings.Builder, opts engine.FilterOptions) {
	section(b, "AVAILABLE FILTER VALUES")
	years := make([]string, len(opts.Years))
	for i, y := range opts.Years {
		years[i] = strconv.Itoa(y)
	}
	makes := opts.Makes[:min(len(opts.Makes), SummaryOptionLimit)]
	fmt.Fprintf(b, "Dealers        : %s\n", strings.Join(opts.Dealers, ", "))
	fmt.Fprintf(b, "Products       : %s\n", strings.Join(opts.Products, ", "))
	fmt.Fprintf(b, "Years          : %s\n", strings.Join(years, ", "))
	fmt.Fprintf(b, "Makes          : %s\n", strings.Join(makes, ", "))
	fmt.Fprintf(b, "Claim Statuses : %s\n", strings.Join(opts.ClaimStatuses, ", "))
	if opts.MinDate != "" {
		fmt.Fprintf(b, "Date Range     : %s to %s\n", opts.MinDate, opts.MaxDate)
	}
}
