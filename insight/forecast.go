package insight

import (
	"fmt"
	"math"
	"time"
)

// ============================================================================
// FORECAST & ANOMALIES
// ============================================================================

// ConfidenceZ is the normal quantile of the 95% forecast band.
const ConfidenceZ = 1.96

// DefaultForecastPeriods is the horizon used when none is given.
const DefaultForecastPeriods = 3

// ForecastPoint is one extrapolated step.
type ForecastPoint struct {
	Period     string  `json:"period"`
	Predicted  float64 `json:"predicted"`
	LowerBound float64 `json:"lowerBound"`
	UpperBound float64 `json:"upperBound"`
	Confidence float64 `json:"confidence"`
}

// ForecastOption configures Forecast labels.
type ForecastOption func(*forecastConfig)

type forecastConfig struct {
	labels []string
	after  string
}

// WithPeriodLabels names the forecast steps in order. Steps beyond the
// labels fall back to "Period N".
func WithPeriodLabels(labels ...string) ForecastOption {
	return func(c *forecastConfig) { c.labels = labels }
}

// AfterPeriod labels the steps as the YYYY-MM months following last.
func AfterPeriod(last string) ForecastOption {
	return func(c *forecastConfig) { c.after = last }
}

// Forecast extrapolates the linear fit of series for periods steps. The band
// is ±1.96 population standard deviations of the series; predictions and
// lower bounds are floored at 0. Confidence starts at 0.85 and loses 0.05
// per step, never going below 0. It is a display heuristic.
func Forecast(series []float64, periods int, opts ...ForecastOption) []ForecastPoint {
	if len(series) == 0 || periods <= 0 {
		return nil
	}
	cfg := &forecastConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	fit := LinearTrend(series)
	margin := ConfidenceZ * stdDev(series)
	n := len(series)

	out := make([]ForecastPoint, periods)
	for i := range periods {
		predicted := fit.At(float64(n + i))
		out[i] = ForecastPoint{
			Period:     cfg.label(i),
			Predicted:  math.Max(0, predicted),
			LowerBound: math.Max(0, predicted-margin),
			UpperBound: predicted + margin,
			Confidence: max(0, float64(85-5*i)/100),
		}
	}
	return out
}

func (c *forecastConfig) label(i int) string {
	if i < len(c.labels) {
		return c.labels[i]
	}
	if c.after != "" {
		if p, ok := NextPeriod(c.after, i+1); ok {
			return p
		}
	}
	return fmt.Sprintf("Period %d", i+1)
}

// NextPeriod returns the YYYY-MM key step months after period.
func NextPeriod(period string, step int) (string, bool) {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return "", false
	}
	return t.AddDate(0, step, 0).Format("2006-01"), true
}

// Anomaly types.
const (
	AnomalySpike = "spike"
	AnomalyDrop  = "drop"
)

// DefaultAnomalyZ is the z-score threshold used when none is given.
const DefaultAnomalyZ = 2.0

// Anomaly is a point whose z-score exceeds the threshold.
type Anomaly struct {
	Index  int     `json:"index"`
	Value  float64 `json:"value"`
	ZScore float64 `json:"zScore"`
	Type   string  `json:"type"`
}

// DetectAnomalies flags points with |z| > threshold, using the series mean
// and population standard deviation. A flat series has no anomalies. A
// threshold ≤ 0 selects DefaultAnomalyZ.
func DetectAnomalies(series []float64, threshold float64) []Anomaly {
	if threshold <= 0 {
		threshold = DefaultAnomalyZ
	}
	sd := stdDev(series)
	if sd == 0 {
		return nil
	}
	m := mean(series)

	var out []Anomaly
	for i, v := range series {
		z := (v - m) / sd
		if math.Abs(z) <= threshold {
			continue
		}
		typ := AnomalySpike
		if z < 0 {
			typ = AnomalyDrop
		}
		out = append(out, Anomaly{Index: i, Value: v, ZScore: z, Type: typ})
	}
	return out
}
