package session

import (
	"go.uber.org/zap"

	"github.com/clarity-bi/clarity/dataset"
	"github.com/clarity-bi/clarity/engine"
	"github.com/clarity-bi/clarity/insight"
)

// DefaultWindowMonths is the trailing window applied after an ingest.
const DefaultWindowMonths = 6

// DefaultRiskConcurrency bounds the per-segment computations of Risk.
const DefaultRiskConcurrency = 4

// Option configures a Session.
type Option func(*config)

type config struct {
	logger          *zap.Logger
	windowMonths    int
	engineOpts      []engine.Option
	ingestOpts      []dataset.IngestOption
	trendEpsilon    float64
	anomalyZ        float64
	forecastPeriods int
	recentLimit     int
	riskConcurrency int
}

func applyOptions(opts []Option) *config {
	cfg := &config{
		windowMonths:    DefaultWindowMonths,
		trendEpsilon:    insight.DefaultTrendEpsilon,
		anomalyZ:        insight.DefaultAnomalyZ,
		forecastPeriods: insight.DefaultForecastPeriods,
		recentLimit:     engine.DefaultRecentLimit,
		riskConcurrency: DefaultRiskConcurrency,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithLogger sets the logger. Nil means no logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithWindowMonths sets the trailing window applied after ingest; 0 applies
// no window.
func WithWindowMonths(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.windowMonths = n
		}
	}
}

// WithEngineOptions passes options to every engine computation.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(c *config) { c.engineOpts = append(c.engineOpts, opts...) }
}

// WithIngestOptions passes options to every ingest.
func WithIngestOptions(opts ...dataset.IngestOption) Option {
	return func(c *config) { c.ingestOpts = append(c.ingestOpts, opts...) }
}

// WithTrendEpsilon sets the loss-ratio slope classified as stable.
func WithTrendEpsilon(eps float64) Option {
	return func(c *config) {
		if eps >= 0 {
			c.trendEpsilon = eps
		}
	}
}

// WithAnomalyZ sets the z-score threshold of Anomalies.
func WithAnomalyZ(z float64) Option {
	return func(c *config) {
		if z > 0 {
			c.anomalyZ = z
		}
	}
}

// WithForecastPeriods sets the forecast horizon in months.
func WithForecastPeriods(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.forecastPeriods = n
		}
	}
}

// WithRecentLimit sets how many claims RecentClaims returns.
func WithRecentLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.recentLimit = n
		}
	}
}

// WithRiskConcurrency bounds how many segments Risk computes at once.
func WithRiskConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.riskConcurrency = n
		}
	}
}
