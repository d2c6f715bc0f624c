package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clarity-bi/clarity/assistant"
	"github.com/clarity-bi/clarity/dataset"
	"github.com/clarity-bi/clarity/engine"
	"github.com/clarity-bi/clarity/insight"
)

// ============================================================================
// ANALYTICS: reports and insight signals over a filter state
// ============================================================================
// Every method takes the filter state explicitly, so the HTTP layer can pass
// the applied filters merged with per-request overrides.
// ============================================================================

// Monthly series usable by Forecast and Anomalies.
const (
	MetricPremium    = "premium"
	MetricPolicies   = "policies"
	MetricClaims     = "claims"
	MetricClaimCount = "claim_count"
	MetricLossRatio  = "loss_ratio"
)

// Metrics lists the accepted metric names.
var Metrics = []string{MetricPremium, MetricPolicies, MetricClaims, MetricClaimCount, MetricLossRatio}

// Segment dimensions usable by Risk.
const (
	SegmentDealer  = "dealer"
	SegmentProduct = "product"
	SegmentMake    = "make"
)

var (
	// ErrUnknownMetric is returned for metric names outside Metrics.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrUnknownSegment is returned for Risk dimensions other than dealer,
	// product or make.
	ErrUnknownSegment = errors.New("unknown segment dimension")
)

// RecentClaims returns the newest filtered claims.
func (s *Session) RecentClaims(filter engine.FilterState) ([]dataset.Row, error) {
	view, err := s.View()
	if err != nil {
		return nil, err
	}
	return engine.RecentClaims(view, filter, s.cfg.recentLimit), nil
}

// Budget compares the filtered KPIs with their stretch targets.
func (s *Session) Budget(filter engine.FilterState) (engine.Budget, error) {
	view, err := s.View()
	if err != nil {
		return engine.Budget{}, err
	}
	return engine.BudgetVsAchieved(engine.ComputeKPIs(view, filter)), nil
}

// Predict fits the monthly loss ratio and extrapolates it. Fewer than three
// premium months yield insight.ErrInsufficientData.
func (s *Session) Predict(filter engine.FilterState) (*insight.Prediction, error) {
	res, err := s.Compute(filter)
	if err != nil {
		return nil, err
	}
	return s.predict(res)
}

func (s *Session) predict(res *engine.Result) (*insight.Prediction, error) {
	premium, _ := monthlySeries(res, MetricPremium)
	claims, _ := monthlySeries(res, MetricClaims)
	p, err := insight.PredictLossRatio(premium, claims, s.cfg.forecastPeriods, s.cfg.trendEpsilon)
	if err != nil {
		return nil, fmt.Errorf("predict loss ratio: %w", err)
	}
	return p, nil
}

// Insights returns the dashboard cards. Too little history only drops the
// forecast card.
func (s *Session) Insights(filter engine.FilterState) ([]insight.Card, error) {
	res, err := s.Compute(filter)
	if err != nil {
		return nil, err
	}
	prediction, err := s.predict(res)
	if err != nil && !errors.Is(err, insight.ErrInsufficientData) {
		return nil, err
	}
	return insight.Insights(res.KPIs, prediction), nil
}

// ForecastResult is a fitted monthly series with its extrapolation.
type ForecastResult struct {
	Metric   string                  `json:"metric"`
	History  []insight.MonthlyPoint  `json:"history"`
	Trend    insight.Trend           `json:"trend"`
	Forecast []insight.ForecastPoint `json:"forecast"`
}

// Forecast extrapolates one monthly metric for the configured horizon.
// periods ≤ 0 uses the session default.
func (s *Session) Forecast(filter engine.FilterState, metric string, periods int) (*ForecastResult, error) {
	res, err := s.Compute(filter)
	if err != nil {
		return nil, err
	}
	history, err := monthlySeries(res, metric)
	if err != nil {
		return nil, err
	}
	if periods <= 0 {
		periods = s.cfg.forecastPeriods
	}
	out := &ForecastResult{Metric: metric, History: history}
	if len(history) == 0 {
		return out, nil
	}
	values := seriesValues(history)
	out.Trend = insight.LinearTrend(values)
	out.Forecast = insight.Forecast(values, periods, insight.AfterPeriod(history[len(history)-1].Period))
	return out, nil
}

// AnomalyPoint is an anomaly located in its month.
type AnomalyPoint struct {
	Period string `json:"period"`
	insight.Anomaly
}

// Anomalies flags the months of one metric whose z-score exceeds the
// configured threshold.
func (s *Session) Anomalies(filter engine.FilterState, metric string) ([]AnomalyPoint, error) {
	res, err := s.Compute(filter)
	if err != nil {
		return nil, err
	}
	history, err := monthlySeries(res, metric)
	if err != nil {
		return nil, err
	}
	found := insight.DetectAnomalies(seriesValues(history), s.cfg.anomalyZ)
	out := make([]AnomalyPoint, len(found))
	for i, a := range found {
		out[i] = AnomalyPoint{Period: history[a.Index].Period, Anomaly: a}
	}
	return out, nil
}

// Risk scores every segment of one dimension. Each segment's claim trend is
// its monthly claim count, computed with the segment added to filter.
func (s *Session) Risk(ctx context.Context, filter engine.FilterState, dimension string) ([]insight.RiskAnalysis, error) {
	view, err := s.View()
	if err != nil {
		return nil, err
	}
	res := engine.Compute(view, filter, s.cfg.engineOpts...)

	var groups []engine.Breakdown
	var key string
	switch dimension {
	case SegmentDealer, "":
		groups, key = res.Dealers, engine.KeyDealer
	case SegmentProduct:
		groups, key = res.Products, engine.KeyProduct
	case SegmentMake:
		groups, key = res.Makes, engine.KeyMake
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSegment, dimension)
	}

	segments := make([]insight.Segment, len(groups))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.riskConcurrency)
	for i, grp := range groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sub := engine.Compute(view, filter.With(key, grp.Key), s.cfg.engineOpts...)
			trend := make([]float64, len(sub.ClaimsMonthly))
			for j, p := range sub.ClaimsMonthly {
				trend[j] = float64(p.Count)
			}
			segments[i] = insight.Segment{
				Name:    grp.Key,
				Premium: grp.Premium,
				Claims:  grp.TotalClaimAmount,
				Trend:   trend,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := insight.AnalyzeRisk(segments)
	s.log.Debug("risk analyzed", zap.String("dimension", key), zap.Int("segments", len(out)))
	return out, nil
}

// DataSummary renders the assistant's text context for filter.
func (s *Session) DataSummary(filter engine.FilterState) (string, error) {
	view, err := s.View()
	if err != nil {
		return "", err
	}
	res := engine.Compute(view, filter, s.cfg.engineOpts...)
	return assistant.BuildDataSummary(res, engine.Options(view)), nil
}

// ApplySuggestion applies the filters of an assistant suggestion directly
// (staged and applied). It reports whether the applied state changed.
func (s *Session) ApplySuggestion(sg assistant.Suggestion) (bool, error) {
	if _, err := s.current(); err != nil {
		return false, err
	}
	if !sg.HasFilters() {
		return false, nil
	}
	changed := s.filters.ApplyDirectly(sg.Filters)
	s.log.Info("assistant filters applied", zap.Any("filters", sg.Filters), zap.Bool("changed", changed))
	return changed, nil
}

// monthlySeries extracts one metric from the monthly series of res. The loss
// ratio is computed per premium month.
func monthlySeries(res *engine.Result, metric string) ([]insight.MonthlyPoint, error) {
	var out []insight.MonthlyPoint
	switch metric {
	case MetricPremium:
		for _, p := range res.SalesMonthly {
			out = append(out, insight.MonthlyPoint{Period: p.Period, Value: p.Premium})
		}
	case MetricPolicies:
		for _, p := range res.SalesMonthly {
			out = append(out, insight.MonthlyPoint{Period: p.Period, Value: float64(p.Policies)})
		}
	case MetricClaims:
		for _, p := range res.ClaimsMonthly {
			out = append(out, insight.MonthlyPoint{Period: p.Period, Value: p.TotalAmount})
		}
	case MetricClaimCount:
		for _, p := range res.ClaimsMonthly {
			out = append(out, insight.MonthlyPoint{Period: p.Period, Value: float64(p.Count)})
		}
	case MetricLossRatio:
		claimed := make(map[string]float64, len(res.ClaimsMonthly))
		for _, p := range res.ClaimsMonthly {
			claimed[p.Period] += p.TotalAmount
		}
		for _, p := range res.SalesMonthly {
			out = append(out, insight.MonthlyPoint{Period: p.Period, Value: engine.Percent(claimed[p.Period], p.Premium)})
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	return out, nil
}

func seriesValues(points []insight.MonthlyPoint) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values
}
