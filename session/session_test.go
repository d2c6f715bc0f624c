package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/clarity-bi/clarity/assistant"
	"github.com/clarity-bi/clarity/dataset"
	"github.com/clarity-bi/clarity/engine"
	"github.com/clarity-bi/clarity/insight"
)

var (
	salesCSV = []byte(`Policy No,Dealer,Product,Make,Policy Sold Date,Gross Premium
P1,A,Gold,Toyota,2024-01-10,1000
P2,B,Silver,Honda,2024-02-15,2000
P3,A,Gold,Ford,2024-02-20,1500
P4,C,Silver,Toyota,2024-03-05,1500
`)
	claimsCSV = []byte(`Policy No,Claim Status,Total Auth Amount,Failure Date
P1,Approved,300,2024-03-01
P3,Rejected,120,2024-04-11
P3,Approved,80,2024-05-02
P9,Pending,50,2024-05-20
`)
)

func loaded(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s := New(append([]Option{WithWindowMonths(0)}, opts...)...)
	_, err := s.IngestCSV(context.Background(), salesCSV, claimsCSV)
	require.NoError(t, err)
	return s
}

func TestIngestAppliesTrailingWindow(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	s := New(WithLogger(zap.New(core)))

	s.Filters().ApplyDirectly(map[string]string{"dealer": "B"})
	sum, err := s.IngestCSV(context.Background(), salesCSV, claimsCSV)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.SalesRowCount)
	assert.Equal(t, 4, sum.ClaimsRowCount)
	assert.Equal(t, []string{"A", "B", "C"}, sum.FilterOptions.Dealers)
	assert.NotEmpty(t, sum.Columns[dataset.Sales])
	require.NotNil(t, sum.Window)
	assert.Equal(t, Window{From: "2023-09-05", To: "2024-03-05"}, *sum.Window)

	applied := s.Filters().Applied()
	assert.False(t, applied.IsActive("dealer"), "ingest clears previous filters")
	assert.Equal(t, "2023-09-05", applied.Get(engine.KeyDateFrom))
	assert.Equal(t, "2024-03-05", applied.Get(engine.KeyDateTo))
	assert.False(t, s.Filters().Pending())

	entries := recorded.FilterMessage("dataset loaded").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(4), entries[0].ContextMap()["sales_rows"])

	snap, err := s.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Result.KPIs.TotalPolicies)
}

func TestIngestWithoutWindow(t *testing.T) {
	s := New(WithWindowMonths(0))
	sum, err := s.IngestCSV(context.Background(), salesCSV, claimsCSV)
	require.NoError(t, err)
	assert.Nil(t, sum.Window)
	assert.Zero(t, s.Filters().Applied().Len())
}

func TestFailedIngestKeepsPreviousData(t *testing.T) {
	s := loaded(t)

	_, err := s.Ingest(context.Background(), nil, dataset.FormatAuto)
	require.Error(t, err)
	assert.True(t, dataset.IsParseError(err))

	st := s.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, 4, st.SalesRowCount)
}

func TestOperationsRequireData(t *testing.T) {
	s := New()

	_, err := s.Recompute(context.Background())
	assert.ErrorIs(t, err, dataset.ErrNoData)
	_, err = s.Compute(engine.FilterState{})
	assert.ErrorIs(t, err, dataset.ErrNoData)
	_, err = s.UpdateCell(dataset.Sales, 0, "Dealer", "X")
	assert.ErrorIs(t, err, dataset.ErrNoData)
	_, err = s.BulkUpdate(nil)
	assert.ErrorIs(t, err, dataset.ErrNoData)
	_, err = s.Reset(true)
	assert.ErrorIs(t, err, dataset.ErrNoData)
	_, err = s.Export(dataset.Sales, "csv")
	assert.ErrorIs(t, err, dataset.ErrNoData)
	_, err = s.ApplySuggestion(assistant.Suggestion{Filters: map[string]string{"dealer": "A"}})
	assert.ErrorIs(t, err, dataset.ErrNoData)
	_, err = s.Risk(context.Background(), engine.FilterState{}, SegmentDealer)
	assert.ErrorIs(t, err, dataset.ErrNoData)

	st := s.Status()
	assert.False(t, st.Loaded)
	assert.Nil(t, st.Meta)
	assert.Equal(t, s.ID(), st.SessionID)
}

func TestRecomputePublishesLatest(t *testing.T) {
	s := loaded(t)
	ch, cancel := s.Subscribe()

	first, err := s.Recompute(context.Background())
	require.NoError(t, err)
	s.Filters().ApplyDirectly(map[string]string{"dealer": "A"})
	second, err := s.Recompute(context.Background())
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)

	got := <-ch
	assert.Equal(t, second.Seq, got.Seq, "an unread snapshot is replaced")
	assert.Equal(t, 2, got.Result.KPIs.TotalPolicies)
	assert.Equal(t, "A", got.Filters.Get("dealer"))
	assert.Same(t, second, s.Latest())

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	_, err = s.Recompute(context.Background())
	require.NoError(t, err)
}

func TestPublishRejectsOlderSequence(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.seq.Store(2)
	assert.True(t, s.publish(&Snapshot{Seq: 2}))
	assert.False(t, s.publish(&Snapshot{Seq: 1}))
	assert.False(t, s.publish(&Snapshot{Seq: 2}))

	// 3 finishes after 4 was issued but before 4 published
	older := s.seq.Add(1)
	s.seq.Add(1)
	assert.False(t, s.publish(&Snapshot{Seq: older}))
	assert.True(t, s.publish(&Snapshot{Seq: older + 1}))

	assert.Equal(t, older+1, (<-ch).Seq)
	assert.Equal(t, older+1, s.Latest().Seq)
}

func TestRecomputeCancelled(t *testing.T) {
	s := loaded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Recompute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, s.Latest())
}

func TestConcurrentRecomputeNeverPublishesOlder(t *testing.T) {
	s := loaded(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var published []uint64
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := s.Recompute(context.Background())
			if err != nil {
				assert.ErrorIs(t, err, ErrStale)
				return
			}
			mu.Lock()
			published = append(published, snap.Seq)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.NotEmpty(t, published)
	latest := s.Latest()
	require.NotNil(t, latest)
	for _, seq := range published {
		assert.LessOrEqual(t, seq, latest.Seq)
	}
}

func TestEditAndReset(t *testing.T) {
	s := loaded(t)

	edit, err := s.UpdateCell(dataset.Sales, 0, "Gross Premium", "5000")
	require.NoError(t, err)
	assert.Equal(t, 5000.0, mustFloat(t, edit.NewValue))

	snap, err := s.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, snap.Result.KPIs.TotalPremium)
	assert.Equal(t, 1, s.Status().PendingEdits)

	_, err = s.UpdateCell(dataset.Sales, 99, "Gross Premium", "1")
	assert.ErrorIs(t, err, dataset.ErrRowNotFound)

	results, err := s.BulkUpdate([]dataset.CellUpdate{
		{Table: dataset.Claims, RowID: 0, Column: "Claim Status", Value: "Rejected"},
		{Table: dataset.Sales, RowID: 0, Column: "Gross Premium", Value: "abc"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)

	log, err := s.ChangeLog()
	require.NoError(t, err)
	assert.Len(t, log, 2)

	_, err = s.Reset(false)
	assert.ErrorIs(t, err, ErrResetNotConfirmed)
	n, err := s.Reset(true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, err = s.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6000.0, snap.Result.KPIs.TotalPremium)
	log, err = s.ChangeLog()
	require.NoError(t, err)
	assert.Empty(t, log)
}

func mustFloat(t *testing.T, v dataset.Value) float64 {
	t.Helper()
	f, ok := v.Float()
	require.True(t, ok)
	return f
}

func TestExport(t *testing.T) {
	s := loaded(t)

	data, err := s.Export(dataset.Sales, "csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Policy No,Dealer"))

	data, err = s.Export(dataset.Claims, "xlsx")
	require.NoError(t, err)
	assert.Equal(t, dataset.FormatXLSX, dataset.DetectFormat(data))

	_, err = s.Export(dataset.Sales, "pdf")
	assert.ErrorIs(t, err, ErrUnsupportedExport)
}

func TestRawDataAndOptions(t *testing.T) {
	s := loaded(t)

	page, err := s.RawData(engine.RawQuery{Table: dataset.Claims, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Len(t, page.Rows, 2)

	opts, err := s.Options()
	require.NoError(t, err)
	assert.Equal(t, []string{"Approved", "Pending", "Rejected"}, opts.ClaimStatuses)
}

func TestPredictAndInsights(t *testing.T) {
	s := loaded(t)

	p, err := s.Predict(engine.FilterState{})
	require.NoError(t, err)
	require.Len(t, p.History, 3)
	assert.Equal(t, "2024-01", p.History[0].Period)
	assert.InDelta(t, 30.0, p.History[0].Value, 1e-9)
	require.Len(t, p.Forecast, insight.DefaultForecastPeriods)
	assert.Equal(t, "2024-04", p.Forecast[0].Period)
	assert.Equal(t, insight.TrendImproving, p.Direction)

	_, err = s.Predict(engine.NewFilterState(map[string]string{"dealer": "C"}))
	assert.ErrorIs(t, err, insight.ErrInsufficientData)

	cards, err := s.Insights(engine.NewFilterState(map[string]string{"dealer": "C"}))
	require.NoError(t, err)
	assert.NotEmpty(t, cards)

	withForecast, err := s.Insights(engine.FilterState{})
	require.NoError(t, err)
	assert.Greater(t, len(withForecast), len(cards))
}

func TestForecastAndAnomalies(t *testing.T) {
	s := loaded(t, WithForecastPeriods(2))

	f, err := s.Forecast(engine.FilterState{}, MetricPremium, 0)
	require.NoError(t, err)
	require.Len(t, f.History, 3)
	require.Len(t, f.Forecast, 2)
	assert.Equal(t, "2024-04", f.Forecast[0].Period)
	assert.Equal(t, "2024-05", f.Forecast[1].Period)
	assert.InDelta(t, 250.0, f.Trend.Slope, 1e-9)

	f, err = s.Forecast(engine.NewFilterState(map[string]string{"dealer": "Nobody"}), MetricClaims, 3)
	require.NoError(t, err)
	assert.Empty(t, f.History)
	assert.Empty(t, f.Forecast)

	_, err = s.Forecast(engine.FilterState{}, "velocity", 3)
	assert.ErrorIs(t, err, ErrUnknownMetric)

	anomalies, err := s.Anomalies(engine.FilterState{}, MetricPolicies)
	require.NoError(t, err)
	assert.Empty(t, anomalies)

	_, err = s.Anomalies(engine.FilterState{}, "")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestMonthlyLossRatioSeries(t *testing.T) {
	res := &engine.Result{
		SalesMonthly:  []engine.SalesPoint{{Period: "2024-01", Premium: 1000}, {Period: "2024-02", Premium: 0}},
		ClaimsMonthly: []engine.ClaimsPoint{{Period: "2024-01", TotalAmount: 250}, {Period: "2024-03", TotalAmount: 99}},
	}
	got, err := monthlySeries(res, MetricLossRatio)
	require.NoError(t, err)
	assert.Equal(t, []insight.MonthlyPoint{{Period: "2024-01", Value: 25}, {Period: "2024-02", Value: 0}}, got)
}

func TestRisk(t *testing.T) {
	s := loaded(t, WithRiskConcurrency(2))

	risks, err := s.Risk(context.Background(), engine.FilterState{}, SegmentDealer)
	require.NoError(t, err)
	require.Len(t, risks, 3)

	a := risks[0]
	assert.Equal(t, "A", a.Segment)
	assert.Equal(t, 30, a.Score, "20% loss ratio plus a rising claim count")
	assert.Equal(t, insight.RiskLow, a.Level)
	assert.Equal(t, insight.SegmentIncreasing, a.Trend)
	assert.Equal(t, 1000, a.PredictedClaims)

	assert.Equal(t, "B", risks[1].Segment)
	assert.Zero(t, risks[1].Score)

	products, err := s.Risk(context.Background(), engine.FilterState{}, SegmentProduct)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	_, err = s.Risk(context.Background(), engine.FilterState{}, "country")
	assert.ErrorIs(t, err, ErrUnknownSegment)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Risk(ctx, engine.FilterState{}, SegmentDealer)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestApplySuggestion(t *testing.T) {
	s := New()
	_, err := s.IngestCSV(context.Background(), salesCSV, claimsCSV)
	require.NoError(t, err)

	changed, err := s.ApplySuggestion(assistant.Suggestion{Text: "no action"})
	require.NoError(t, err)
	assert.False(t, changed)

	sg, err := assistant.ParseSuggestion("Dealer B.\n```action\n{\"filters\": {\"dealer\": \"B\"}}\n```")
	require.NoError(t, err)
	changed, err = s.ApplySuggestion(sg)
	require.NoError(t, err)
	assert.True(t, changed)

	applied := s.Filters().Applied()
	assert.Equal(t, "B", applied.Get("dealer"))
	assert.True(t, applied.IsActive(engine.KeyDateFrom), "suggestions merge into the window")
	assert.Equal(t, "B", s.Filters().Staged().Get("dealer"))

	summary, err := s.DataSummary(applied)
	require.NoError(t, err)
	assert.Contains(t, summary, "  dealer: B\n")
}

func TestBudgetAndRecentClaims(t *testing.T) {
	s := loaded(t, WithRecentLimit(2))

	b, err := s.Budget(engine.FilterState{})
	require.NoError(t, err)
	assert.Equal(t, 6000.0, b.Revenue.Actual)

	rows, err := s.RecentClaims(engine.FilterState{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "P9", rows[0].Get("Policy No").String())
}
