package engine

import (
	"cmp"
	"slices"
	"sort"
	"time"

	"github.com/clarity-bi/clarity/dataset"
)

// ============================================================================
// REPORTS: Recent claims, budget vs achieved, filter options
// ============================================================================

// DefaultRecentLimit is the number of claims RecentClaims returns by default.
const DefaultRecentLimit = 50

// RecentClaims returns the filtered claims, newest first by failure (or
// authorization) date. Claims without a date come last in table order.
func RecentClaims(view *dataset.View, filter FilterState, limit int) []dataset.Row {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	p := filterBoth(view, filter)

	ids := slices.Clone(p.claimIDs)
	sort.SliceStable(ids, func(i, j int) bool {
		di, okI := p.claims.Date(ids[i])
		dj, okJ := p.claims.Date(ids[j])
		if okI != okJ {
			return okI
		}
		return okI && di.After(dj)
	})
	ids = topN(ids, limit)

	rows := make([]dataset.Row, 0, len(ids))
	for _, id := range ids {
		if row, err := view.Claims().Row(id); err == nil {
			rows = append(rows, row)
		}
	}
	return rows
}

// ============================================================================
// BUDGET
// ============================================================================

// StretchFactor sets targets at 115% of the achieved figure.
const StretchFactor = 1.15

// Fallback targets when nothing has been achieved yet.
const (
	DefaultRevenueTarget  = 1_000_000
	DefaultPoliciesTarget = 1000
)

// OnTrackThreshold is the achievement percentage that counts as on track.
const OnTrackThreshold = 90

// Budget statuses.
const (
	StatusOnTrack = "On Track"
	StatusAtRisk  = "At Risk"
)

// RevenueBudget compares achieved premium with its target.
type RevenueBudget struct {
	Actual      float64 `json:"actual"`
	Target      float64 `json:"target"`
	Achievement float64 `json:"achievement"`
	Status      string  `json:"status"`
}

// PoliciesBudget compares sold policies with their target.
type PoliciesBudget struct {
	Actual      int     `json:"actual"`
	Target      int     `json:"target"`
	Achievement float64 `json:"achievement"`
	Status      string  `json:"status"`
}

// Budget is the budget-vs-achieved view of one filter selection.
type Budget struct {
	Revenue  RevenueBudget  `json:"revenue"`
	Policies PoliciesBudget `json:"policies"`
}

// BudgetVsAchieved derives targets from the KPIs. Without a budget sheet the
// target is a stretch over the achieved value.
func BudgetVsAchieved(k KPISnapshot) Budget {
	revenueTarget := float64(DefaultRevenueTarget)
	if k.TotalPremium > 0 {
		revenueTarget = k.TotalPremium * StretchFactor
	}
	policiesTarget := DefaultPoliciesTarget
	if k.TotalPolicies > 0 {
		policiesTarget = int(float64(k.TotalPolicies) * StretchFactor)
	}

	revenue := Percent(k.TotalPremium, revenueTarget)
	policies := Percent(float64(k.TotalPolicies), float64(policiesTarget))
	return Budget{
		Revenue: RevenueBudget{
			Actual:      k.TotalPremium,
			Target:      revenueTarget,
			Achievement: revenue,
			Status:      budgetStatus(revenue),
		},
		Policies: PoliciesBudget{
			Actual:      k.TotalPolicies,
			Target:      policiesTarget,
			Achievement: policies,
			Status:      budgetStatus(policies),
		},
	}
}

func budgetStatus(achievement float64) string {
	if achievement >= OnTrackThreshold {
		return StatusOnTrack
	}
	return StatusAtRisk
}

// ============================================================================
// FILTER OPTIONS
// ============================================================================

// FilterOptions lists the distinct values of every filterable dimension.
type FilterOptions struct {
	Dealers       []string `json:"dealers"`
	Products      []string `json:"products"`
	Years         []int    `json:"years"`
	Months        []int    `json:"months"`
	Makes         []string `json:"makes"`
	Countries     []string `json:"countries,omitempty"`
	Coverages     []string `json:"coverages,omitempty"`
	VehicleTypes  []string `json:"vehicleTypes,omitempty"`
	BodyTypes     []string `json:"bodyTypes,omitempty"`
	ClaimStatuses []string `json:"claimStatuses"`
	PartTypes     []string `json:"partTypes"`
	MinDate       string   `json:"minDate,omitempty"`
	MaxDate       string   `json:"maxDate,omitempty"`
}

// Options computes the filter options of a view, ignoring any filter.
func Options(view *dataset.View) FilterOptions {
	sales := newSalesView(view.Sales())
	claims := newClaimsView(view.Claims())

	opts := FilterOptions{
		Dealers:       distinct(sales, sales.dealer),
		Products:      distinct(sales, FindColumn(sales.tv, []string{"Product"})),
		Makes:         distinct(sales, sales.vehicleMake),
		Countries:     distinct(sales, FindColumn(sales.tv, []string{"Country Name", "Country"})),
		Coverages:     distinct(sales, FindColumn(sales.tv, []string{"Coverage"})),
		VehicleTypes:  distinct(sales, FindColumn(sales.tv, []string{"Vehicle Type"})),
		BodyTypes:     distinct(sales, FindColumn(sales.tv, []string{"Body Type"})),
		ClaimStatuses: distinct(claims, claims.status),
		PartTypes:     distinct(claims, claims.partType),
	}
	if len(opts.Products) == 0 {
		opts.Products = opts.Coverages
	}

	years := make(map[int]bool)
	months := make(map[int]bool)
	var minDate, maxDate time.Time
	for r := 0; r < sales.Len(); r++ {
		if y, ok := sales.Year(r); ok && y > 0 {
			years[y] = true
		}
		if m, ok := sales.Month(r); ok && m >= 1 && m <= 12 {
			months[m] = true
		}
		if d, ok := sales.Date(r); ok {
			if minDate.IsZero() || d.Before(minDate) {
				minDate = d
			}
			if maxDate.IsZero() || d.After(maxDate) {
				maxDate = d
			}
		}
	}
	opts.Years = sortedKeys(years)
	opts.Months = sortedKeys(months)
	if !minDate.IsZero() {
		opts.MinDate = minDate.Format(dataset.DateLayout)
		opts.MaxDate = maxDate.Format(dataset.DateLayout)
	}
	return opts
}

// MaxSalesDate returns the latest Sales date in the view.
func MaxSalesDate(view *dataset.View) (time.Time, bool) {
	sales := newSalesView(view.Sales())
	var latest time.Time
	found := false
	for r := 0; r < sales.Len(); r++ {
		if d, ok := sales.Date(r); ok && (!found || d.After(latest)) {
			latest, found = d, true
		}
	}
	return latest, found
}

func distinct(fv *fieldView, col int) []string {
	out := []string{}
	if col < 0 {
		return out
	}
	seen := make(map[string]bool)
	for r := 0; r < fv.Len(); r++ {
		v := fv.Dimension(r, col)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func sortedKeys[K cmp.Ordered](set map[K]bool) []K {
	out := make([]K, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
