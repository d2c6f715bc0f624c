package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clarity-bi/clarity/dataset"
	"github.com/clarity-bi/clarity/engine"
	"github.com/clarity-bi/clarity/logger"
	"github.com/clarity-bi/clarity/schema"
)

// ============================================================================
// SESSION: one loaded dataset, its edits and its filters
// ============================================================================
// A Session owns the Store (tables + ledger) and the FilterModel, and turns
// the applied filters into engine Results. Every Recompute is tagged with a
// sequence number; only the latest one issued may publish. Subscribers get
// a channel holding the newest snapshot.
//
// Flow:
//   Ingest → ClearAll + trailing date window → Recompute → subscribers
//   UpdateCell / Reset → caller Recomputes
// ============================================================================

var (
	// ErrStale is returned by Recompute when a newer computation was issued
	// before this one finished. Its result is discarded.
	ErrStale = errors.New("stale computation discarded")

	// ErrResetNotConfirmed guards Reset against accidental calls.
	ErrResetNotConfirmed = errors.New("reset requires confirmation")

	// ErrUnsupportedExport is returned for export formats other than xlsx/csv.
	ErrUnsupportedExport = errors.New("unsupported export format")
)

// Snapshot is one published computation.
type Snapshot struct {
	Seq        uint64             `json:"seq"`
	Filters    engine.FilterState `json:"filters"`
	Result     *engine.Result     `json:"result"`
	ComputedAt time.Time          `json:"computedAt"`
}

// Window is the trailing date range applied after an ingest.
type Window struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// IngestSummary describes a successful ingest.
type IngestSummary struct {
	Meta           dataset.Meta                          `json:"meta"`
	SalesRowCount  int                                   `json:"salesRowCount"`
	ClaimsRowCount int                                   `json:"claimsRowCount"`
	Columns        map[dataset.TableName][]schema.Column `json:"columns"`
	FilterOptions  engine.FilterOptions                  `json:"filterOptions"`
	Window         *Window                               `json:"window,omitempty"`
}

// Status reports what the session currently holds.
type Status struct {
	SessionID      string             `json:"sessionId"`
	Loaded         bool               `json:"loaded"`
	Meta           *dataset.Meta      `json:"meta,omitempty"`
	SalesRowCount  int                `json:"salesRowCount"`
	ClaimsRowCount int                `json:"claimsRowCount"`
	PendingEdits   int                `json:"pendingEdits"`
	Applied        engine.FilterState `json:"applied"`
	Staged         engine.FilterState `json:"staged"`
	FiltersPending bool               `json:"filtersPending"`
}

// Session is safe for concurrent use.
type Session struct {
	id      string
	log     *zap.Logger
	cfg     *config
	filters *engine.FilterModel

	mu    sync.RWMutex
	store *dataset.Store

	seq atomic.Uint64

	subMu     sync.Mutex
	subs      map[int]chan Snapshot
	nextSub   int
	published uint64
	latest    *Snapshot
}

// New returns an empty session. Nothing can be computed until Ingest.
func New(opts ...Option) *Session {
	cfg := applyOptions(opts)
	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		filters: engine.NewFilterModel(),
		subs:    make(map[int]chan Snapshot),
	}
	s.log = logger.OrNop(cfg.logger).With(zap.String("session_id", s.id))
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Filters exposes the staged/applied filter model.
func (s *Session) Filters() *engine.FilterModel { return s.filters }

// ============================================================================
// INGEST
// ============================================================================

// Ingest parses a workbook and replaces the current dataset. On failure the
// previous dataset stays loaded. On success the filters are cleared and,
// when a window is configured, narrowed to the trailing months of Sales.
func (s *Session) Ingest(ctx context.Context, data []byte, format dataset.Format, opts ...dataset.IngestOption) (*IngestSummary, error) {
	start := time.Now()
	all := append(append([]dataset.IngestOption{}, s.cfg.ingestOpts...), opts...)
	store, err := dataset.Ingest(ctx, data, format, all...)
	if err != nil {
		s.log.Warn("ingest failed", zap.String("format", string(format)), zap.Int("bytes", len(data)), zap.Error(err))
		return nil, err
	}
	return s.install(store, start), nil
}

// IngestCSV loads Sales and Claims from two CSV documents.
func (s *Session) IngestCSV(ctx context.Context, sales, claims []byte, opts ...dataset.IngestOption) (*IngestSummary, error) {
	start := time.Now()
	all := append(append([]dataset.IngestOption{}, s.cfg.ingestOpts...), opts...)
	store, err := dataset.IngestCSV(ctx, sales, claims, all...)
	if err != nil {
		s.log.Warn("csv ingest failed", zap.Error(err))
		return nil, err
	}
	return s.install(store, start), nil
}

func (s *Session) install(store *dataset.Store, start time.Time) *IngestSummary {
	view := store.View()
	summary := &IngestSummary{
		Meta:           store.Meta(),
		SalesRowCount:  view.Sales().Len(),
		ClaimsRowCount: view.Claims().Len(),
		Columns:        store.Columns(),
		FilterOptions:  engine.Options(view),
	}

	s.mu.Lock()
	s.store = store
	s.mu.Unlock()

	s.filters.ClearAll()
	if s.cfg.windowMonths > 0 {
		if latest, ok := engine.MaxSalesDate(view); ok {
			summary.Window = &Window{
				From: latest.AddDate(0, -s.cfg.windowMonths, 0).Format(dataset.DateLayout),
				To:   latest.Format(dataset.DateLayout),
			}
			s.filters.ApplyDirectly(map[string]string{
				engine.KeyDateFrom: summary.Window.From,
				engine.KeyDateTo:   summary.Window.To,
			})
		}
	}

	fields := []zap.Field{
		zap.String("dataset_id", summary.Meta.ID),
		zap.String("format", string(summary.Meta.Format)),
		zap.Int("sales_rows", summary.SalesRowCount),
		zap.Int("claims_rows", summary.ClaimsRowCount),
		zap.Duration("elapsed", time.Since(start)),
	}
	if summary.Window != nil {
		fields = append(fields, zap.String("window_from", summary.Window.From), zap.String("window_to", summary.Window.To))
	}
	s.log.Info("dataset loaded", fields...)
	return summary
}

func (s *Session) current() (*dataset.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return nil, dataset.ErrNoData
	}
	return s.store, nil
}

// View snapshots the effective data.
func (s *Session) View() (*dataset.View, error) {
	store, err := s.current()
	if err != nil {
		return nil, err
	}
	return store.View(), nil
}

// ============================================================================
// COMPUTE
// ============================================================================

// Recompute runs the engine on the applied filters and publishes the
// result. If another Recompute was issued meanwhile, the result is dropped
// and ErrStale returned.
func (s *Session) Recompute(ctx context.Context) (*Snapshot, error) {
	seq := s.seq.Add(1)

	store, err := s.current()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filters := s.filters.Applied()
	start := time.Now()
	res := engine.Compute(store.View(), filters, s.cfg.engineOpts...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.seq.Load() != seq {
		s.log.Debug("stale computation discarded", zap.Uint64("seq", seq))
		return nil, ErrStale
	}

	snap := &Snapshot{Seq: seq, Filters: filters, Result: res, ComputedAt: time.Now()}
	if !s.publish(snap) {
		s.log.Debug("stale computation discarded", zap.Uint64("seq", seq))
		return nil, ErrStale
	}
	s.log.Debug("recomputed",
		zap.Uint64("seq", seq),
		zap.Strings("filters", filters.ActiveKeys()),
		zap.Int("policies", res.KPIs.TotalPolicies),
		zap.Duration("elapsed", time.Since(start)),
	)
	return snap, nil
}

// Compute runs the engine on an explicit filter state without publishing.
func (s *Session) Compute(filter engine.FilterState) (*engine.Result, error) {
	store, err := s.current()
	if err != nil {
		return nil, err
	}
	return engine.Compute(store.View(), filter, s.cfg.engineOpts...), nil
}

// Latest returns the last published snapshot, or nil.
func (s *Session) Latest() *Snapshot {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.latest
}

// Subscribe returns a channel that always holds the newest snapshot; an
// unread snapshot is replaced by a newer one. cancel closes the channel.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// publish hands snap to every subscriber unless a later sequence was issued
// or already went out.
func (s *Session) publish(snap *Snapshot) bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if snap.Seq <= s.published || snap.Seq != s.seq.Load() {
		return false
	}
	s.published = snap.Seq
	s.latest = snap
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- *snap
	}
	return true
}

// ============================================================================
// EDITS
// ============================================================================

// UpdateCell records one cell edit. Callers Recompute to see it.
func (s *Session) UpdateCell(table dataset.TableName, rowID int, column, raw string) (dataset.Edit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return dataset.Edit{}, dataset.ErrNoData
	}
	edit, err := s.store.UpdateCell(table, rowID, column, raw)
	if err != nil {
		s.log.Info("cell update rejected",
			zap.String("table", string(table)), zap.Int("row_id", rowID), zap.String("column", column), zap.Error(err))
		return dataset.Edit{}, err
	}
	s.log.Info("cell updated",
		zap.String("edit_id", edit.ID),
		zap.String("table", string(table)),
		zap.Int("row_id", rowID),
		zap.String("column", column),
		zap.String("old", edit.OldValue.String()),
		zap.String("new", edit.NewValue.String()),
	)
	return edit, nil
}

// BulkUpdate applies each update independently.
func (s *Session) BulkUpdate(updates []dataset.CellUpdate) ([]dataset.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil, dataset.ErrNoData
	}
	results := s.store.Ledger().BulkUpdate(updates)
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	s.log.Info("bulk update", zap.Int("requested", len(updates)), zap.Int("failed", failed))
	return results, nil
}

// ChangeLog lists the edits since ingest, oldest first.
func (s *Session) ChangeLog() ([]dataset.Edit, error) {
	store, err := s.current()
	if err != nil {
		return nil, err
	}
	return store.Ledger().ChangeLog(), nil
}

// Reset discards every edit. confirm must be true.
func (s *Session) Reset(confirm bool) (int, error) {
	if !confirm {
		return 0, ErrResetNotConfirmed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return 0, dataset.ErrNoData
	}
	n := s.store.Reset()
	s.log.Info("edits reset", zap.Int("discarded", n))
	return n, nil
}

// ============================================================================
// DATA ACCESS
// ============================================================================

// RawData pages through one table.
func (s *Session) RawData(q engine.RawQuery) (*engine.RawPage, error) {
	view, err := s.View()
	if err != nil {
		return nil, err
	}
	return engine.RawData(view, q)
}

// Options lists the filterable values of the loaded data.
func (s *Session) Options() (engine.FilterOptions, error) {
	view, err := s.View()
	if err != nil {
		return engine.FilterOptions{}, err
	}
	return engine.Options(view), nil
}

// Export renders the effective rows of table as "xlsx" or "csv".
func (s *Session) Export(table dataset.TableName, format string) ([]byte, error) {
	store, err := s.current()
	if err != nil {
		return nil, err
	}
	switch dataset.Format(format) {
	case dataset.FormatXLSX:
		return store.ExportXLSX(table)
	case dataset.FormatCSV:
		return store.ExportCSV(table)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedExport, format)
}

// Status never fails; an empty session reports Loaded false.
func (s *Session) Status() Status {
	st := Status{
		SessionID:      s.id,
		Applied:        s.filters.Applied(),
		Staged:         s.filters.Staged(),
		FiltersPending: s.filters.Pending(),
	}
	store, err := s.current()
	if err != nil {
		return st
	}
	meta := store.Meta()
	view := store.View()
	st.Loaded = true
	st.Meta = &meta
	st.SalesRowCount = view.Sales().Len()
	st.ClaimsRowCount = view.Claims().Len()
	st.PendingEdits = store.Ledger().PendingCount()
	return st
}
