package engine

// ============================================================================
// ENGINE TYPES: Sales/Claims analytics outputs
// ============================================================================
// Everything Compute returns is plain data: no rendering hints beyond the
// fixed claim-status colors, no rounding (see FormatPercent/RoundPercent).
// JSON names match what dashboards and exports consume.
// ============================================================================

// ============================================================================
// RESULT: one recomputation
// ============================================================================

// Result is the full output of one aggregation pass.
type Result struct {
	Filters       FilterState   `json:"filters"`
	KPIs          KPISnapshot   `json:"kpis"`
	SalesMonthly  []SalesPoint  `json:"salesMonthly"`
	ClaimsMonthly []ClaimsPoint `json:"claimsMonthly"`
	Dealers       []Breakdown   `json:"dealers"`
	Products      []Breakdown   `json:"products"`
	Makes         []Breakdown   `json:"makes"`
	ClaimStatus   []StatusSlice `json:"claimStatus"`
	Parts         []PartCost    `json:"parts"`
	Correlations  Correlations  `json:"correlations"`
}

// KPISnapshot holds the scalar KPIs. Ratios are percentages and 0 when their
// denominator is 0.
type KPISnapshot struct {
	TotalPremium       float64 `json:"totalPremium"`
	TotalRiskPremium   float64 `json:"totalRiskPremium"`
	TotalClaimsAmount  float64 `json:"totalClaimsAmount"`
	TotalPolicies      int     `json:"totalPolicies"`
	TotalClaims        int     `json:"totalClaims"`
	ClaimRate          float64 `json:"claimRate"` // claims per 100 policies
	LossRatio          float64 `json:"lossRatio"`
	AvgClaimCost       float64 `json:"avgClaimCost"`
	AvgPremium         float64 `json:"avgPremium"`
	PoliciesWithClaims int     `json:"policiesWithClaims"`
	UniqueDealers      int     `json:"uniqueDealers"`
	UniqueMakes        int     `json:"uniqueMakes"`
}

// ============================================================================
// TIME SERIES
// ============================================================================

// SalesPoint is one month of the Sales series.
type SalesPoint struct {
	Period      string  `json:"period"` // YYYY-MM
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	Premium     float64 `json:"premium"`
	RiskPremium float64 `json:"riskPremium"`
	Policies    int     `json:"policies"`
}

// ClaimsPoint is one month of the Claims series, keyed by the linked sale's
// period (orphans use their own date).
type ClaimsPoint struct {
	Period      string  `json:"period"`
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	Count       int     `json:"count"`
	TotalAmount float64 `json:"totalAmount"`
	LaborCost   float64 `json:"laborCost"`
	PartsCost   float64 `json:"partsCost"`
}

// ============================================================================
// BREAKDOWNS
// ============================================================================

// Breakdown aggregates Sales rows sharing one dimension value, with their
// linked claims.
type Breakdown struct {
	Key                string  `json:"key"`
	Premium            float64 `json:"premium"`
	RiskPremium        float64 `json:"riskPremium"`
	Policies           int     `json:"policies"`
	ClaimsCount        int     `json:"claimsCount"`
	PoliciesWithClaims int     `json:"policiesWithClaims"`
	TotalClaimAmount   float64 `json:"totalClaimAmount"`
	LossRatio          float64 `json:"lossRatio"`
	ClaimRate          float64 `json:"claimRate"` // claimsCount / policies
}

// StatusSlice is one claim status in the distribution.
type StatusSlice struct {
	Status      string  `json:"status"`
	Count       int     `json:"count"`
	TotalAmount float64 `json:"totalAmount"`
	Color       string  `json:"color"`
}

// PartCost is one part type in the parts-cost analysis.
type PartCost struct {
	PartType    string  `json:"partType"`
	Count       int     `json:"count"`
	TotalAmount float64 `json:"totalAmount"`
	AvgCost     float64 `json:"avgCost"`
}

// Correlation is the risk view of one group: how many of its policies
// carry a claim.
type Correlation struct {
	Key              string  `json:"key"`
	Policies         int     `json:"policies"`
	WithClaims       int     `json:"withClaims"`
	TotalPremium     float64 `json:"totalPremium"`
	TotalClaimAmount float64 `json:"totalClaimAmount"`
	ClaimRate        float64 `json:"claimRate"` // withClaims / policies
	LossRatio        float64 `json:"lossRatio"`
}

// Correlations groups the four correlation tables.
type Correlations struct {
	ByDealer  []Correlation `json:"byDealer"`
	ByProduct []Correlation `json:"byProduct"`
	ByMake    []Correlation `json:"byMake"`
	ByYear    []Correlation `json:"byYear"`
}

// ============================================================================
// TABLE TYPES: tabular renditions for export
// ============================================================================

// TableData is a plain table: typed column headers and formatted cells.
type TableData struct {
	Title   string     `json:"title"`
	Columns []Column   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Summary *Summary   `json:"summary,omitempty"`
}

// Column defines a table column.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type"`  // "text", "number", "currency", "percent"
	Align string `json:"align"` // "left", "right"
}

// Summary provides totals for a table.
type Summary struct {
	Label  string            `json:"label"`
	Values map[string]string `json:"values"`
}
