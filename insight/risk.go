package insight

import (
	"math"
)

// Risk levels, lowest first.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Segment trend directions.
const (
	SegmentIncreasing = "increasing"
	SegmentStable     = "stable"
	SegmentDecreasing = "decreasing"
)

// segmentSlopeEpsilon is the claim-trend slope treated as flat.
const segmentSlopeEpsilon = 0.05

// Segment is one slice of the portfolio (a dealer, product or make) with its
// totals and a chronological claims series.
type Segment struct {
	Name    string    `json:"name"`
	Premium float64   `json:"premium"`
	Claims  float64   `json:"claims"`
	Trend   []float64 `json:"trend"`
}

// RiskAnalysis scores one segment.
type RiskAnalysis struct {
	Segment         string `json:"segment"`
	Level           string `json:"riskLevel"`
	Score           int    `json:"riskScore"`
	PredictedClaims int    `json:"predictedClaims"`
	Trend           string `json:"trend"`
	Recommendation  string `json:"recommendation"`
}

var recommendations = map[string]string{
	RiskCritical: "Immediate review required. Consider premium adjustment of 15-20% or restricting new policies.",
	RiskHigh:     "Monitor closely. Recommend premium increase of 5-10% and enhanced claim verification.",
	RiskMedium:   "Standard monitoring. Consider targeted marketing to maintain profitable mix.",
	RiskLow:      "Performing well. Opportunity for market expansion in this segment.",
}

// AnalyzeRisk scores each segment 0–100: its loss ratio in percent, plus ten
// times the claim-trend slope when claims are rising. A segment with claims
// but no premium scores 100. Output keeps input order.
func AnalyzeRisk(segments []Segment) []RiskAnalysis {
	out := make([]RiskAnalysis, 0, len(segments))
	for _, s := range segments {
		slope := LinearTrend(s.Trend).Slope

		var score float64
		switch {
		case s.Premium != 0:
			score = s.Claims / s.Premium * 100
		case s.Claims > 0:
			score = 100
		}
		if slope > 0 {
			score += slope * 10
		}
		if math.IsNaN(score) {
			score = 0
		}
		score = clamp(score, 0, 100)

		level := riskLevel(score)
		out = append(out, RiskAnalysis{
			Segment:         s.Name,
			Level:           level,
			Score:           int(math.Round(score)),
			PredictedClaims: int(math.Round(s.Claims * (1 + slope))),
			Trend:           segmentTrend(slope),
			Recommendation:  recommendations[level],
		})
	}
	return out
}

func riskLevel(score float64) string {
	switch {
	case score >= 70:
		return RiskCritical
	case score >= 55:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	}
	return RiskLow
}

func segmentTrend(slope float64) string {
	switch {
	case slope > segmentSlopeEpsilon:
		return SegmentIncreasing
	case slope < -segmentSlopeEpsilon:
		return SegmentDecreasing
	}
	return SegmentStable
}
