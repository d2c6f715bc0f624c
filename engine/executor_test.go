package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarity-bi/clarity/dataset"
)

// ============================================================================
// KPI TESTS
// ============================================================================

func TestComputeBasicKPIs(t *testing.T) {
	store := ingest(t, basicSales, basicClaims)

	k := Compute(store.View(), FilterState{}).KPIs
	assert.Equal(t, 3000.0, k.TotalPremium)
	assert.Equal(t, 300.0, k.TotalClaimsAmount)
	assert.Equal(t, 2, k.TotalPolicies)
	assert.Equal(t, 1, k.TotalClaims)
	assert.Equal(t, 10.0, RoundPercent(k.LossRatio))
	assert.Equal(t, 50.0, RoundPercent(k.ClaimRate))
	assert.Equal(t, 1, k.PoliciesWithClaims)
	assert.Equal(t, 2, k.UniqueDealers)
	assert.Equal(t, 300.0, k.AvgClaimCost)
	assert.Equal(t, 1500.0, k.AvgPremium)
}

func TestComputeFilterExcludesUnlinkedClaims(t *testing.T) {
	store := ingest(t, basicSales, basicClaims)

	k := Compute(store.View(), filterOf(KeyDealer, "B")).KPIs
	assert.Equal(t, 2000.0, k.TotalPremium)
	assert.Equal(t, 1, k.TotalPolicies)
	assert.Zero(t, k.TotalClaims)
	assert.Zero(t, k.TotalClaimsAmount)
	assert.Zero(t, k.LossRatio)
}

func TestComputeFollowsEditsAndReset(t *testing.T) {
	store := ingest(t, basicSales, basicClaims)

	_, err := store.UpdateCell(dataset.Sales, 0, "Gross Premium", "1500")
	require.NoError(t, err)
	assert.Equal(t, 3500.0, ComputeKPIs(store.View(), FilterState{}).TotalPremium)

	store.Reset()
	assert.Equal(t, 3000.0, ComputeKPIs(store.View(), FilterState{}).TotalPremium)
	assert.Empty(t, store.Ledger().ChangeLog())
}

func TestComputeEmptySelectionIsAllZero(t *testing.T) {
	store := newTestStore(t)

	r := Compute(store.View(), filterOf(KeyDealer, "Z"))
	assert.Equal(t, KPISnapshot{}, r.KPIs)
	assert.Empty(t, r.SalesMonthly)
	assert.Empty(t, r.ClaimsMonthly)
	assert.Empty(t, r.Dealers)
	assert.Empty(t, r.ClaimStatus)
	assert.Empty(t, r.Parts)
	assert.Empty(t, r.Correlations.ByYear)
}

func TestComputeIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	view := store.View()
	filter := filterOf(KeyProduct, "Gold")

	assert.Equal(t, Compute(view, filter), Compute(view, filter))
}

func TestComputeFullDataset(t *testing.T) {
	store := newTestStore(t)
	r := Compute(store.View(), FilterState{})

	k := r.KPIs
	assert.Equal(t, 6000.0, k.TotalPremium)
	assert.Equal(t, 1850.0, k.TotalRiskPremium)
	assert.Equal(t, 4, k.TotalPolicies)
	assert.Equal(t, 4, k.TotalClaims, "orphan claims count when no sales-side key is active")
	assert.Equal(t, 550.0, k.TotalClaimsAmount)
	assert.Equal(t, 2, k.PoliciesWithClaims)
	assert.Equal(t, 3, k.UniqueDealers)
	assert.Equal(t, 3, k.UniqueMakes)
	assert.Equal(t, 9.2, RoundPercent(k.LossRatio))
	assert.Equal(t, 100.0, k.ClaimRate)
	assert.Equal(t, 137.5, k.AvgClaimCost)
}

func TestComputeClaimsUseTheirOwnDate(t *testing.T) {
	store := newTestStore(t)
	r := Compute(store.View(), filterOf(KeyDateFrom, "2024-04-01", KeyDateTo, "2024-05-31"))

	k := r.KPIs
	assert.Zero(t, k.TotalPolicies, "no policy was sold in the window")
	assert.Equal(t, 3, k.TotalClaims)
	assert.Equal(t, 250.0, k.TotalClaimsAmount)
	assert.Zero(t, k.PoliciesWithClaims)

	require.Len(t, r.Dealers, 1)
	a := r.Dealers[0]
	assert.Equal(t, "A", a.Key)
	assert.Zero(t, a.Policies)
	assert.Equal(t, 2, a.ClaimsCount, "claims follow their policy's dealer")
	assert.Equal(t, 200.0, a.TotalClaimAmount)
}

// ============================================================================
// JOIN COMPLETENESS
// ============================================================================

func TestJoinCompleteness(t *testing.T) {
	store := newTestStore(t)
	view := store.View()

	tests := []struct {
		name   string
		filter FilterState
	}{
		{"no filter", FilterState{}},
		{"dealer and claim status", filterOf(KeyDealer, "A", KeyClaimStatus, "Approved")},
		{"product", filterOf(KeyProduct, "Gold")},
		{"date window", filterOf(KeyDateFrom, "2024-03-01", KeyDateTo, "2024-04-30")},
		{"year", filterOf(KeyYear, "2024")},
		{"search", filterOf(KeySearch, "toyota")},
		{"claims extension column", filterOf("Part Type", "Engine")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filterBoth(view, tt.filter)
			r := Compute(view, tt.filter)

			viaSales := 0
			for s := 0; s < p.sales.Len(); s++ {
				for _, c := range p.claimIDs {
					if p.join.saleOf[c] == s {
						viaSales++
					}
				}
			}
			orphans := 0
			for _, c := range p.claimIDs {
				if p.join.saleOf[c] < 0 {
					orphans++
				}
			}
			viaDealers := 0
			for _, d := range r.Dealers {
				viaDealers += d.ClaimsCount
			}

			assert.Equal(t, viaSales, viaDealers)
			assert.Equal(t, r.KPIs.TotalClaims-orphans, viaDealers)
		})
	}
}

// ============================================================================
// SERIES & BREAKDOWN TESTS
// ============================================================================

func TestMonthlySeries(t *testing.T) {
	store := newTestStore(t)
	r := Compute(store.View(), FilterState{})

	require.Len(t, r.SalesMonthly, 3)
	assert.Equal(t, SalesPoint{Period: "2024-01", Year: 2024, Month: 1, Premium: 1000, RiskPremium: 300, Policies: 1}, r.SalesMonthly[0])
	assert.Equal(t, SalesPoint{Period: "2024-02", Year: 2024, Month: 2, Premium: 3500, RiskPremium: 1050, Policies: 2}, r.SalesMonthly[1])
	assert.Equal(t, "2024-03", r.SalesMonthly[2].Period)

	// linked claims land in their policy's month, orphans in their own
	require.Len(t, r.ClaimsMonthly, 3)
	assert.Equal(t, ClaimsPoint{Period: "2024-01", Year: 2024, Month: 1, Count: 1, TotalAmount: 300, LaborCost: 100, PartsCost: 200}, r.ClaimsMonthly[0])
	assert.Equal(t, ClaimsPoint{Period: "2024-02", Year: 2024, Month: 2, Count: 2, TotalAmount: 200, LaborCost: 50, PartsCost: 150}, r.ClaimsMonthly[1])
	assert.Equal(t, "2024-05", r.ClaimsMonthly[2].Period)
	assert.Equal(t, 50.0, r.ClaimsMonthly[2].TotalAmount)
}

func TestBreakdownsSortAndTieOrder(t *testing.T) {
	store := newTestStore(t)
	r := Compute(store.View(), FilterState{})

	keys := func(rows []Breakdown) []string {
		out := make([]string, len(rows))
		for i, b := range rows {
			out[i] = b.Key
		}
		return out
	}

	assert.Equal(t, []string{"A", "B", "C"}, keys(r.Dealers))
	assert.Equal(t, []string{"Silver", "Gold"}, keys(r.Products))
	// Honda and Ford tie on policies; Honda was seen first
	assert.Equal(t, []string{"Toyota", "Honda", "Ford"}, keys(r.Makes))

	a := r.Dealers[0]
	assert.Equal(t, 2500.0, a.Premium)
	assert.Equal(t, 2, a.Policies)
	assert.Equal(t, 3, a.ClaimsCount)
	assert.Equal(t, 2, a.PoliciesWithClaims)
	assert.Equal(t, 500.0, a.TotalClaimAmount)
	assert.Equal(t, 20.0, a.LossRatio)
	assert.Equal(t, 150.0, a.ClaimRate)

	corr := r.Correlations.ByDealer[0]
	assert.Equal(t, "A", corr.Key)
	assert.Equal(t, 2, corr.WithClaims)
	assert.Equal(t, 100.0, corr.ClaimRate, "correlation claim rate counts policies, not claims")

	require.Len(t, r.Correlations.ByYear, 1)
	assert.Equal(t, "2024", r.Correlations.ByYear[0].Key)
	assert.Equal(t, 4, r.Correlations.ByYear[0].Policies)
}

func TestDealerPremiumTieKeepsFirstSeen(t *testing.T) {
	store := ingest(t, []byte(`Policy No,Dealer,Product,Gross Premium
P1,B,Gold,1000
P2,A,Silver,500
P3,C,Gold,2000
P4,A,Silver,500
`), basicClaims)
	r := Compute(store.View(), FilterState{})

	keys := make([]string, len(r.Dealers))
	for i, b := range r.Dealers {
		keys[i] = b.Key
	}
	// B and A tie on premium; B was seen first
	assert.Equal(t, []string{"C", "B", "A"}, keys)
	assert.Equal(t, "Gold", r.Products[0].Key)

	for range 3 {
		again := Compute(store.View(), FilterState{})
		assert.Equal(t, r.Dealers, again.Dealers)
	}
}

func TestMakeLimits(t *testing.T) {
	store := newTestStore(t)
	r := Compute(store.View(), FilterState{}, WithMakeLimit(1), WithMakeCorrelationLimit(2))

	require.Len(t, r.Makes, 1)
	assert.Equal(t, "Toyota", r.Makes[0].Key)
	assert.Len(t, r.Correlations.ByMake, 2)
}

func TestClaimStatusAndParts(t *testing.T) {
	store := newTestStore(t)
	r := Compute(store.View(), FilterState{})

	assert.Equal(t, []StatusSlice{
		{Status: "Approved", Count: 2, TotalAmount: 380, Color: "#10b981"},
		{Status: "Rejected", Count: 1, TotalAmount: 120, Color: "#ef4444"},
		{Status: "Pending", Count: 1, TotalAmount: 50, Color: "#3b82f6"},
	}, r.ClaimStatus)

	assert.Equal(t, []PartCost{
		{PartType: "Engine", Count: 2, TotalAmount: 380, AvgCost: 190},
		{PartType: "Gearbox", Count: 1, TotalAmount: 120, AvgCost: 120},
		{PartType: "Brakes", Count: 1, TotalAmount: 50, AvgCost: 50},
	}, r.Parts)
}

func TestStatusColorOptions(t *testing.T) {
	store := newTestStore(t)
	r := Compute(store.View(), FilterState{},
		WithStatusColors(map[string]string{"Pending": "#000000"}),
		WithDefaultStatusColor("#ffffff"),
	)

	colors := make(map[string]string)
	for _, s := range r.ClaimStatus {
		colors[s.Status] = s.Color
	}
	assert.Equal(t, "#10b981", colors["Approved"], "overrides merge with the defaults")
	assert.Equal(t, "#000000", colors["Pending"])

	cfg := applyOptions([]Option{WithDefaultStatusColor("#ffffff")})
	assert.Equal(t, "#ffffff", cfg.StatusColor("Escalated"))
	assert.Equal(t, DefaultStatusColor, applyOptions(nil).StatusColor("Escalated"))
}
