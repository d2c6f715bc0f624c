package insight

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarity-bi/clarity/engine"
)

// ============================================================================
// TREND TESTS
// ============================================================================

func TestLinearTrend(t *testing.T) {
	fit := LinearTrend([]float64{1, 3, 5, 7})
	assert.InDelta(t, 2.0, fit.Slope, 1e-12)
	assert.InDelta(t, 1.0, fit.Intercept, 1e-12)
	assert.InDelta(t, 1.0, fit.RSquared, 1e-12)

	noisy := LinearTrend([]float64{2, 1, 4, 3})
	assert.InDelta(t, 0.6, noisy.Slope, 1e-12)
	assert.Greater(t, noisy.RSquared, 0.0)
	assert.Less(t, noisy.RSquared, 1.0)
}

func TestLinearTrendDegenerate(t *testing.T) {
	assert.Equal(t, Trend{}, LinearTrend(nil))
	assert.Equal(t, Trend{Intercept: 7}, LinearTrend([]float64{7}))

	flat := LinearTrend([]float64{5, 5, 5})
	assert.Zero(t, flat.Slope)
	assert.Equal(t, 5.0, flat.Intercept)
	assert.Zero(t, flat.RSquared)
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		slope, eps float64
		want       string
	}{
		{1, 0.5, TrendWorsening},
		{-1, 0.5, TrendImproving},
		{0.5, 0.5, TrendStable},
		{-0.2, 0.5, TrendStable},
		{0.3, 0, TrendWorsening},
		{0.3, -1, TrendStable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyTrend(tt.slope, tt.eps), "slope %v eps %v", tt.slope, tt.eps)
	}
}

func TestSimpleMovingAverage(t *testing.T) {
	assert.Equal(t, 0.0, SimpleMovingAverage(nil, 3))
	assert.Equal(t, 5.0, SimpleMovingAverage([]float64{1, 5}, 3))
	assert.Equal(t, 5.0, SimpleMovingAverage([]float64{100, 2, 5, 8}, 3))
	assert.Equal(t, 4.0, SimpleMovingAverage([]float64{2, 4, 6}, 0))
}

// ============================================================================
// FORECAST & ANOMALY TESTS
// ============================================================================

func TestForecast(t *testing.T) {
	points := Forecast([]float64{10, 20, 30}, 3)
	require.Len(t, points, 3)

	margin := 1.96 * 8.16496580927726
	assert.Equal(t, "Period 1", points[0].Period)
	assert.InDelta(t, 40.0, points[0].Predicted, 1e-9)
	assert.InDelta(t, 40-margin, points[0].LowerBound, 1e-9)
	assert.InDelta(t, 40+margin, points[0].UpperBound, 1e-9)
	assert.InDelta(t, 0.85, points[0].Confidence, 1e-12)
	assert.InDelta(t, 60.0, points[2].Predicted, 1e-9)
	assert.InDelta(t, 0.75, points[2].Confidence, 1e-12)
}

func TestForecastFloorsAndLabels(t *testing.T) {
	points := Forecast([]float64{30, 20, 10}, 20, AfterPeriod("2024-11"))
	require.Len(t, points, 20)
	assert.Equal(t, "2024-12", points[0].Period)
	assert.Equal(t, "2025-01", points[1].Period)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.Predicted, 0.0)
		assert.GreaterOrEqual(t, p.LowerBound, 0.0)
		assert.GreaterOrEqual(t, p.Confidence, 0.0)
	}
	assert.Zero(t, points[19].Confidence)

	labelled := Forecast([]float64{1, 2}, 2, WithPeriodLabels("Jul"))
	assert.Equal(t, "Jul", labelled[0].Period)
	assert.Equal(t, "Period 2", labelled[1].Period)

	assert.Nil(t, Forecast(nil, 3))
	assert.Nil(t, Forecast([]float64{1}, 0))
}

func TestDetectAnomaliesFlagsSpike(t *testing.T) {
	anomalies := DetectAnomalies([]float64{100, 105, 98, 102, 400, 101}, 2)
	require.Len(t, anomalies, 1)
	assert.Equal(t, 4, anomalies[0].Index)
	assert.Equal(t, 400.0, anomalies[0].Value)
	assert.Equal(t, AnomalySpike, anomalies[0].Type)
	assert.InDelta(t, 2.2357, anomalies[0].ZScore, 1e-3)
}

func TestDetectAnomaliesDropAndFlat(t *testing.T) {
	anomalies := DetectAnomalies([]float64{100, 101, 99, 100, 0, 100}, 2)
	require.Len(t, anomalies, 1)
	assert.Equal(t, AnomalyDrop, anomalies[0].Type)

	assert.Empty(t, DetectAnomalies([]float64{3, 3, 3}, 1))
	assert.Empty(t, DetectAnomalies(nil, 2))
}

// ============================================================================
// PREDICTION TESTS
// ============================================================================

func months(values ...float64) []MonthlyPoint {
	periods := []string{"2024-09", "2024-10", "2024-11", "2024-12", "2025-01", "2025-02"}
	out := make([]MonthlyPoint, len(values))
	for i, v := range values {
		out[i] = MonthlyPoint{Period: periods[i], Value: v}
	}
	return out
}

func TestPredictLossRatio(t *testing.T) {
	premium := months(1000, 1000, 1000, 1000)
	claims := append(months(100, 200, 300, 400), MonthlyPoint{Period: "2023-01", Value: 999})

	p, err := PredictLossRatio(premium, claims, 3, DefaultTrendEpsilon)
	require.NoError(t, err)

	assert.Equal(t, 10.0, p.HistoricalSlope)
	assert.Equal(t, 1.0, p.RSquared)
	assert.Equal(t, TrendWorsening, p.Direction)
	assert.Equal(t, []MonthlyPoint{
		{Period: "2024-09", Value: 10},
		{Period: "2024-10", Value: 20},
		{Period: "2024-11", Value: 30},
		{Period: "2024-12", Value: 40},
	}, p.History)
	assert.Equal(t, []LossRatioForecast{
		{Period: "2025-01", PredictedLossRatio: 50, Trend: DirectionIncreasing},
		{Period: "2025-02", PredictedLossRatio: 60, Trend: DirectionIncreasing},
		{Period: "2025-03", PredictedLossRatio: 70, Trend: DirectionIncreasing},
	}, p.Forecast)
}

func TestPredictLossRatioClampsAndDefaults(t *testing.T) {
	p, err := PredictLossRatio(months(100, 100, 100, 0), months(90, 50, 10), 0, DefaultTrendEpsilon)
	require.NoError(t, err)
	require.Len(t, p.Forecast, DefaultForecastPeriods)
	assert.Equal(t, DirectionDecreasing, p.Forecast[0].Trend)
	assert.Equal(t, TrendImproving, p.Direction)
	assert.Zero(t, p.History[3].Value, "zero premium gives a zero ratio")
	for _, f := range p.Forecast {
		assert.GreaterOrEqual(t, f.PredictedLossRatio, 0.0)
	}
}

func TestPredictLossRatioNeedsThreeMonths(t *testing.T) {
	_, err := PredictLossRatio(months(1000, 1000), months(10, 20), 3, DefaultTrendEpsilon)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

// ============================================================================
// RISK & CARD TESTS
// ============================================================================

func TestAnalyzeRisk(t *testing.T) {
	out := AnalyzeRisk([]Segment{
		{Name: "A", Premium: 1000, Claims: 750, Trend: []float64{5, 5, 5}},
		{Name: "B", Premium: 1000, Claims: 500, Trend: []float64{1, 2, 3}},
		{Name: "C", Premium: 1000, Claims: 100, Trend: []float64{3, 2, 1}},
		{Name: "D", Premium: 0, Claims: 10},
		{Name: "E"},
	})
	require.Len(t, out, 5)

	assert.Equal(t, RiskCritical, out[0].Level)
	assert.Equal(t, 75, out[0].Score)
	assert.Equal(t, SegmentStable, out[0].Trend)
	assert.Equal(t, 750, out[0].PredictedClaims)

	// 50 + 10·slope(1)
	assert.Equal(t, 60, out[1].Score)
	assert.Equal(t, RiskHigh, out[1].Level)
	assert.Equal(t, SegmentIncreasing, out[1].Trend)
	assert.Equal(t, 1000, out[1].PredictedClaims)

	assert.Equal(t, RiskLow, out[2].Level)
	assert.Equal(t, SegmentDecreasing, out[2].Trend)
	assert.Contains(t, out[2].Recommendation, "market expansion")

	assert.Equal(t, 100, out[3].Score)
	assert.Equal(t, RiskLow, out[4].Level)
	assert.Zero(t, out[4].Score)
}

func TestInsights(t *testing.T) {
	cards := Insights(engine.KPISnapshot{LossRatio: 85, ClaimRate: 25, TotalClaims: 1200}, &Prediction{HistoricalSlope: 1.25})
	require.Len(t, cards, 3)
	assert.Equal(t, CardDanger, cards[0].Type)
	assert.Equal(t, "85.0%", cards[0].Metric)
	assert.Equal(t, CardWarning, cards[1].Type)
	assert.Equal(t, CardForecast, cards[2].Type)
	assert.Equal(t, "+1.3% /mo", cards[2].Metric)
	assert.Equal(t, ArrowDown, cards[2].Trend)

	cards = Insights(engine.KPISnapshot{LossRatio: 61, ClaimRate: 5, TotalClaims: 1200}, nil)
	require.Len(t, cards, 2)
	assert.Equal(t, CardWarning, cards[0].Type)
	assert.Equal(t, CardInfo, cards[1].Type)
	assert.Equal(t, "1,200 claims recorded across the filtered period.", cards[1].Description)

	cards = Insights(engine.KPISnapshot{}, &Prediction{HistoricalSlope: -2})
	require.Len(t, cards, 2)
	assert.Equal(t, CardSuccess, cards[0].Type)
	assert.Equal(t, "-2.0% /mo", cards[1].Metric)
	assert.Equal(t, ArrowUp, cards[1].Trend)
}
