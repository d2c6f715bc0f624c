package insight

import (
	"math"
)

// ============================================================================
// TREND: Least-squares fit over an index-ordered series
// ============================================================================
// Every function here is pure and works on already-aggregated numbers. The
// x axis is the position in the series (0, 1, 2, ...), so gaps between
// periods are not weighted.
// ============================================================================

// Trend is an ordinary least-squares fit y = Slope·x + Intercept.
type Trend struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"rSquared"`
}

// At evaluates the fitted line at position x.
func (t Trend) At(x float64) float64 {
	return t.Slope*x + t.Intercept
}

// LinearTrend fits a line through series. An empty series gives the zero
// Trend; a single point or a flat x range gives slope 0 through the mean.
// RSquared is 0 when the series has no variance.
func LinearTrend(series []float64) Trend {
	n := float64(len(series))
	if n == 0 {
		return Trend{}
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	den := n*sumX2 - sumX*sumX
	if den == 0 {
		return Trend{Intercept: sumY / n}
	}
	slope := (n*sumXY - sumX*sumY) / den
	t := Trend{Slope: slope, Intercept: (sumY - slope*sumX) / n}

	mean := sumY / n
	var ssTot, ssRes float64
	for i, y := range series {
		ssTot += (y - mean) * (y - mean)
		r := y - t.At(float64(i))
		ssRes += r * r
	}
	if ssTot > 0 {
		t.RSquared = clamp(1-ssRes/ssTot, 0, 1)
	}
	return t
}

// Trend directions of a loss-ratio style metric, where rising is bad.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendWorsening = "worsening"
)

// DefaultTrendEpsilon is the slope magnitude, in points per period, below
// which a loss-ratio trend counts as stable.
const DefaultTrendEpsilon = 0.5

// ClassifyTrend names the direction of slope. |slope| ≤ epsilon is stable;
// a negative epsilon selects DefaultTrendEpsilon.
func ClassifyTrend(slope, epsilon float64) string {
	if epsilon < 0 {
		epsilon = DefaultTrendEpsilon
	}
	switch {
	case slope > epsilon:
		return TrendWorsening
	case slope < -epsilon:
		return TrendImproving
	}
	return TrendStable
}

// SimpleMovingAverage forecasts the next value as the mean of the last
// window values. A series shorter than window yields its last value; an
// empty series yields 0. window ≤ 0 averages the whole series.
func SimpleMovingAverage(series []float64, window int) float64 {
	if len(series) == 0 {
		return 0
	}
	if window <= 0 {
		window = len(series)
	}
	if len(series) < window {
		return series[len(series)-1]
	}
	return mean(series[len(series)-window:])
}

// ============================================================================
// STATISTICS
// ============================================================================

func mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// stdDev is the population standard deviation.
func stdDev(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	m := mean(series)
	var sq float64
	for _, v := range series {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(series)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
