package engine

import (
	"github.com/clarity-bi/clarity/dataset"
)

// ============================================================================
// EXECUTOR: One aggregation pass
// ============================================================================
// Entry point: Compute(view, filter, opts...)
//
// Pipeline:
//   1. Filter Sales, then Claims through the Policy No join
//   2. Sum linked claims per Sales row
//   3. KPIs
//   4. Monthly Sales and Claims series
//   5. Dealer / product / make breakdowns
//   6. Claim status distribution and parts cost
//   7. Correlation tables by dealer, product, make and year
//
// Compute reads a frozen dataset.View and never mutates it. It has no state
// of its own: the same view and filter always give the same Result, and an
// empty selection gives zero KPIs and empty tables rather than an error.
// ============================================================================

// Compute runs the full aggregation pipeline.
//
// Options:
//   - WithStatusColors(colors), WithDefaultStatusColor(color)
//   - WithMakeLimit(n), WithMakeCorrelationLimit(n)
func Compute(view *dataset.View, filter FilterState, opts ...Option) *Result {
	cfg := applyOptions(opts)

	p := filterBoth(view, filter)
	perSale := claimTotals(p)

	dealers := breakdownBy(p, perSale, columnKey(p.sales, p.sales.dealer))
	products := breakdownBy(p, perSale, columnKey(p.sales, p.sales.product))
	makes := breakdownBy(p, perSale, columnKey(p.sales, p.sales.vehicleMake))
	years := breakdownBy(p, perSale, yearKey(p.sales))

	byPremium := func(b Breakdown) float64 { return b.Premium }
	byPolicies := func(b Breakdown) float64 { return float64(b.Policies) }
	sortDesc(dealers, byPremium)
	sortDesc(products, byPremium)
	sortDesc(makes, byPolicies)
	sortDesc(years, byPolicies)

	return &Result{
		Filters:       filter,
		KPIs:          computeKPIs(p, perSale),
		SalesMonthly:  salesMonthly(p),
		ClaimsMonthly: claimsMonthly(p),
		Dealers:       dealers,
		Products:      products,
		Makes:         topN(makes, cfg.MakeLimit),
		ClaimStatus:   claimStatus(p, cfg),
		Parts:         partsCost(p),
		Correlations: Correlations{
			ByDealer:  correlationsOf(dealers),
			ByProduct: correlationsOf(products),
			ByMake:    topN(correlationsOf(makes), cfg.MakeCorrLimit),
			ByYear:    correlationsOf(years),
		},
	}
}

// ComputeKPIs runs only the filter and KPI steps.
func ComputeKPIs(view *dataset.View, filter FilterState) KPISnapshot {
	p := filterBoth(view, filter)
	return computeKPIs(p, claimTotals(p))
}
