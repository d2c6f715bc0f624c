package insight

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInsufficientData is returned when a series is too short to fit.
var ErrInsufficientData = errors.New("not enough data points for prediction")

// MinPredictionPoints is the shortest loss-ratio history PredictLossRatio fits.
const MinPredictionPoints = 3

// Forecast directions of the loss-ratio prediction.
const (
	DirectionIncreasing = "Increasing"
	DirectionDecreasing = "Decreasing"
)

// MonthlyPoint is one value of a monthly series keyed YYYY-MM.
type MonthlyPoint struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

// LossRatioForecast is one predicted month.
type LossRatioForecast struct {
	Period             string  `json:"period"`
	PredictedLossRatio float64 `json:"predictedLossRatio"`
	Trend              string  `json:"trend"`
}

// Prediction is the fitted loss-ratio history and its extrapolation.
type Prediction struct {
	HistoricalSlope float64             `json:"historicalSlope"`
	RSquared        float64             `json:"rSquared"`
	Direction       string              `json:"direction"`
	History         []MonthlyPoint      `json:"history"`
	Forecast        []LossRatioForecast `json:"forecast"`
}

// PredictLossRatio builds the monthly loss ratio (claims ÷ premium × 100)
// over the premium months, fits it and extrapolates periods months past the
// last one. Claim months without premium are ignored; a month with zero
// premium has a loss ratio of 0. Predictions are floored at 0 and rounded to
// two decimals, slope and R² to four. epsilon classifies Direction (see
// ClassifyTrend).
func PredictLossRatio(premium, claims []MonthlyPoint, periods int, epsilon float64) (*Prediction, error) {
	if periods <= 0 {
		periods = DefaultForecastPeriods
	}

	claimed := make(map[string]float64, len(claims))
	for _, c := range claims {
		claimed[c.Period] += c.Value
	}

	months := slices.Clone(premium)
	slices.SortStableFunc(months, func(a, b MonthlyPoint) int { return strings.Compare(a.Period, b.Period) })

	history := make([]MonthlyPoint, 0, len(months))
	series := make([]float64, 0, len(months))
	for _, m := range months {
		lr := 0.0
		if m.Value != 0 {
			lr = claimed[m.Period] / m.Value * 100
		}
		if math.IsNaN(lr) || math.IsInf(lr, 0) {
			lr = 0
		}
		history = append(history, MonthlyPoint{Period: m.Period, Value: round(lr, 2)})
		series = append(series, lr)
	}
	if len(series) < MinPredictionPoints {
		return nil, fmt.Errorf("%w: have %d months, need %d", ErrInsufficientData, len(series), MinPredictionPoints)
	}

	fit := LinearTrend(series)
	direction := DirectionDecreasing
	if fit.Slope > 0 {
		direction = DirectionIncreasing
	}

	last := months[len(months)-1].Period
	forecast := make([]LossRatioForecast, periods)
	for i := range periods {
		period, ok := NextPeriod(last, i+1)
		if !ok {
			period = fmt.Sprintf("Period %d", i+1)
		}
		forecast[i] = LossRatioForecast{
			Period:             period,
			PredictedLossRatio: round(math.Max(0, fit.At(float64(len(series)+i))), 2),
			Trend:              direction,
		}
	}

	return &Prediction{
		HistoricalSlope: round(fit.Slope, 4),
		RSquared:        round(fit.RSquared, 4),
		Direction:       ClassifyTrend(fit.Slope, epsilon),
		History:         history,
		Forecast:        forecast,
	}, nil
}

func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
