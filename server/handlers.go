package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clarity-bi/clarity/assistant"
	"github.com/clarity-bi/clarity/dataset"
	"github.com/clarity-bi/clarity/engine"
	"github.com/clarity-bi/clarity/logger"
	"github.com/clarity-bi/clarity/session"
)

// ============================================================================
// FILTER PARAMS
// ============================================================================

// reservedParams are query parameters that are never filter keys.
var reservedParams = map[string]bool{
	"page": true, "limit": true, "sort_by": true, "sort_dir": true,
	"metric": true, "periods": true, "dimension": true, "format": true,
	"confirm": true, "question": true,
}

// queryFilters reads filter overrides from the query string. "All" clears a
// key for this request only.
func queryFilters(c *gin.Context) map[string]string {
	out := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if reservedParams[key] || len(values) == 0 {
			continue
		}
		out[key] = values[len(values)-1]
	}
	return out
}

// requestFilters is the applied state merged with the query overrides.
func (s *Server) requestFilters(c *gin.Context) engine.FilterState {
	return s.sess.Filters().Applied().Merge(queryFilters(c))
}

func (s *Server) compute(c *gin.Context) (*engine.Result, bool) {
	res, err := s.sess.Compute(s.requestFilters(c))
	if err != nil {
		handleError(c, err)
		return nil, false
	}
	return res, true
}

// recompute publishes a new snapshot after a filter or data change. Without
// data there is nothing to compute and the snapshot is nil. When a newer
// computation overtook this one, the change still stands and the response
// carries the latest published snapshot instead.
func (s *Server) recompute(c *gin.Context) (*session.Snapshot, bool) {
	snap, err := s.sess.Recompute(c.Request.Context())
	switch {
	case err == nil:
		return snap, true
	case errors.Is(err, dataset.ErrNoData):
		return nil, true
	case errors.Is(err, session.ErrStale):
		return s.sess.Latest(), true
	}
	handleError(c, err)
	return nil, false
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, fmt.Sprintf("%s must be an integer", key))
		return 0, false
	}
	return n, true
}

// ============================================================================
// UPLOAD & STATUS
// ============================================================================

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// upload accepts one workbook in "file", or a CSV pair in "sales" and
// "claims".
func (s *Server) upload(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromGin(c, s.log)

	var (
		summary *session.IngestSummary
		err     error
	)
	if fh, ferr := c.FormFile("file"); ferr == nil {
		data, rerr := readFormFile(fh)
		if rerr != nil {
			handleError(c, rerr)
			return
		}
		log.Info("workbook received", zap.String("filename", fh.Filename), zap.Int64("size", fh.Size))
		summary, err = s.sess.Ingest(ctx, data, dataset.FormatFromFilename(fh.Filename), dataset.WithSource(fh.Filename))
	} else {
		var tooLarge *http.MaxBytesError
		if errors.As(ferr, &tooLarge) {
			handleError(c, ferr)
			return
		}
		salesFH, serr := c.FormFile("sales")
		claimsFH, cerr := c.FormFile("claims")
		if serr != nil || cerr != nil {
			badRequest(c, `upload a workbook as "file" or two CSV files as "sales" and "claims"`)
			return
		}
		sales, rerr := readFormFile(salesFH)
		if rerr != nil {
			handleError(c, rerr)
			return
		}
		claims, rerr := readFormFile(claimsFH)
		if rerr != nil {
			handleError(c, rerr)
			return
		}
		summary, err = s.sess.IngestCSV(ctx, sales, claims, dataset.WithSource(salesFH.Filename+"+"+claimsFH.Filename))
	}
	if err != nil {
		handleError(c, err)
		return
	}

	snap, ok := s.recompute(c)
	if !ok {
		return
	}
	success(c, gin.H{"ingest": summary, "snapshot": snap})
}

func (s *Server) status(c *gin.Context) {
	success(c, s.sess.Status())
}

// ============================================================================
// FILTERS
// ============================================================================

func (s *Server) filterState() gin.H {
	m := s.sess.Filters()
	out := gin.H{
		"applied": m.Applied(),
		"staged":  m.Staged(),
		"pending": m.Pending(),
	}
	if opts, err := s.sess.Options(); err == nil {
		out["options"] = opts
	}
	return out
}

func (s *Server) getFilters(c *gin.Context) {
	success(c, s.filterState())
}

func (s *Server) getStaged(c *gin.Context) {
	success(c, s.sess.Filters().Staged())
}

type stagedRequest struct {
	Key     string            `json:"key"`
	Value   string            `json:"value"`
	Filters map[string]string `json:"filters"`
}

// setStaged edits the staged state only; nothing is recomputed.
func (s *Server) setStaged(c *gin.Context) {
	var req stagedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	if req.Key == "" && len(req.Filters) == 0 {
		badRequest(c, "key or filters is required")
		return
	}
	m := s.sess.Filters()
	if req.Key != "" {
		m.SetStaged(req.Key, req.Value)
	}
	if len(req.Filters) > 0 {
		m.MergeStaged(req.Filters)
	}
	success(c, s.filterState())
}

func (s *Server) applyFilters(c *gin.Context) {
	changed := s.sess.Filters().Apply()
	s.afterFilterChange(c, changed)
}

func (s *Server) applyDirect(c *gin.Context) {
	var partial map[string]string
	if err := c.ShouldBindJSON(&partial); err != nil {
		badRequest(c, "body must be an object of filter values")
		return
	}
	changed := s.sess.Filters().ApplyDirectly(partial)
	s.afterFilterChange(c, changed)
}

func (s *Server) clearFilter(c *gin.Context) {
	changed := s.sess.Filters().Clear(c.Param("key"))
	s.afterFilterChange(c, changed)
}

func (s *Server) clearFilters(c *gin.Context) {
	changed := s.sess.Filters().ClearAll()
	s.afterFilterChange(c, changed)
}

func (s *Server) afterFilterChange(c *gin.Context, changed bool) {
	out := s.filterState()
	out["changed"] = changed
	if changed {
		snap, ok := s.recompute(c)
		if !ok {
			return
		}
		out["snapshot"] = snap
	}
	success(c, out)
}

// ============================================================================
// ANALYTICS
// ============================================================================

func (s *Server) summary(c *gin.Context) {
	if res, ok := s.compute(c); ok {
		success(c, res.KPIs)
	}
}

func (s *Server) snapshot(c *gin.Context) {
	snap, err := s.sess.Recompute(c.Request.Context())
	if errors.Is(err, session.ErrStale) {
		snap, err = s.sess.Latest(), nil
	}
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, snap)
}

func (s *Server) salesMonthly(c *gin.Context) {
	if res, ok := s.compute(c); ok {
		success(c, res.SalesMonthly)
	}
}

func (s *Server) salesDealers(c *gin.Context) {
	if res, ok := s.compute(c); ok {
		success(c, res.Dealers)
	}
}

func (s *Server) salesProducts(c *gin.Context) {
	if res, ok := s.compute(c); ok {
		success(c, res.Products)
	}
}

func (s *Server) salesVehicles(c *gin.Context) {
	if res, ok := s.compute(c); ok {
		success(c, res.Makes)
	}
}

func (s *Server) claimsStatus(c *gin.Context) {
	if res, ok := s.compute(c); ok {
		success(c, res.ClaimStatus)
	}
}

func (s *Server) claimsParts(c *gin.Context) {
	if res, ok := s.compute(c); ok {
		success(c, res.Parts)
	}
}

func (s *Server) claimsTrends(c *gin.Context) {
	if res, ok := s.compute(c); ok {
		success(c, res.ClaimsMonthly)
	}
}

func (s *Server) claimsRecent(c *gin.Context) {
	rows, err := s.sess.RecentClaims(s.requestFilters(c))
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, rows)
}

func (s *Server) correlations(c *gin.Context) {
	if res, ok := s.compute(c); ok {
		success(c, res.Correlations)
	}
}

func (s *Server) budget(c *gin.Context) {
	b, err := s.sess.Budget(s.requestFilters(c))
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, b)
}

func (s *Server) predict(c *gin.Context) {
	p, err := s.sess.Predict(s.requestFilters(c))
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, p)
}

func (s *Server) insights(c *gin.Context) {
	cards, err := s.sess.Insights(s.requestFilters(c))
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, cards)
}

func (s *Server) risk(c *gin.Context) {
	risks, err := s.sess.Risk(c.Request.Context(), s.requestFilters(c), c.DefaultQuery("dimension", session.SegmentDealer))
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, risks)
}

func (s *Server) forecast(c *gin.Context) {
	periods, ok := intQuery(c, "periods", 0)
	if !ok {
		return
	}
	f, err := s.sess.Forecast(s.requestFilters(c), c.DefaultQuery("metric", session.MetricPremium), periods)
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, f)
}

func (s *Server) anomalies(c *gin.Context) {
	found, err := s.sess.Anomalies(s.requestFilters(c), c.DefaultQuery("metric", session.MetricClaims))
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, found)
}

// ============================================================================
// DATA MANAGER
// ============================================================================

// rawData pages one table. Only query filters apply here, matched against
// the table itself.
func (s *Server) rawData(c *gin.Context) {
	table, err := dataset.ParseTableName(c.Param("table"))
	if err != nil {
		handleError(c, err)
		return
	}
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", engine.DefaultRawLimit)
	if !ok {
		return
	}
	res, err := s.sess.RawData(engine.RawQuery{
		Table:   table,
		Page:    page,
		Limit:   limit,
		SortBy:  c.Query("sort_by"),
		SortDir: c.DefaultQuery("sort_dir", "asc"),
		Filters: engine.NewFilterState(queryFilters(c)),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, res)
}

type updateRequest struct {
	Table  string `json:"table" binding:"required"`
	RowID  *int   `json:"rowId" binding:"required"`
	Column string `json:"column" binding:"required"`
	Value  string `json:"value"`
}

func (s *Server) updateCell(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "table, rowId and column are required")
		return
	}
	table, err := dataset.ParseTableName(req.Table)
	if err != nil {
		handleError(c, err)
		return
	}
	edit, err := s.sess.UpdateCell(table, *req.RowID, req.Column, req.Value)
	if err != nil {
		handleError(c, err)
		return
	}
	snap, ok := s.recompute(c)
	if !ok {
		return
	}
	success(c, gin.H{"edit": edit, "snapshot": snap})
}

type bulkRequest struct {
	Updates []dataset.CellUpdate `json:"updates" binding:"required"`
}

func (s *Server) bulkUpdate(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "updates is required")
		return
	}
	for i, u := range req.Updates {
		table, err := dataset.ParseTableName(string(u.Table))
		if err != nil {
			handleError(c, err)
			return
		}
		req.Updates[i].Table = table
	}
	results, err := s.sess.BulkUpdate(req.Updates)
	if err != nil {
		handleError(c, err)
		return
	}
	snap, ok := s.recompute(c)
	if !ok {
		return
	}
	success(c, gin.H{"results": results, "snapshot": snap})
}

func (s *Server) reset(c *gin.Context) {
	n, err := s.sess.Reset(c.Query("confirm") == "true")
	if err != nil {
		handleError(c, err)
		return
	}
	snap, ok := s.recompute(c)
	if !ok {
		return
	}
	success(c, gin.H{"discarded": n, "snapshot": snap})
}

func (s *Server) changes(c *gin.Context) {
	log, err := s.sess.ChangeLog()
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, log)
}

// ============================================================================
// EXPORT
// ============================================================================

var contentTypes = map[string]string{
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"csv":  "text/csv; charset=utf-8",
}

func attachment(c *gin.Context, name, format string, data []byte) {
	filename := fmt.Sprintf("%s_%s.%s", name, time.Now().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentTypes[format], data)
}

func (s *Server) exportTable(c *gin.Context) {
	table, err := dataset.ParseTableName(c.Param("table"))
	if err != nil {
		handleError(c, err)
		return
	}
	format := c.DefaultQuery("format", "xlsx")
	data, err := s.sess.Export(table, format)
	if err != nil {
		handleError(c, err)
		return
	}
	attachment(c, string(table), format, data)
}

// exportReport renders one computed section as a CSV or xlsx table.
func (s *Server) exportReport(c *gin.Context) {
	section := c.Param("section")
	res, ok := s.compute(c)
	if !ok {
		return
	}
	td, ok := engine.ReportTable(res, section)
	if !ok {
		failure(c, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("unknown report section %q", section))
		return
	}

	format := c.DefaultQuery("format", "csv")
	var (
		data []byte
		err  error
	)
	switch format {
	case "csv":
		data, err = td.CSV()
	case "xlsx":
		data, err = td.XLSX()
	default:
		err = fmt.Errorf("%w: %q", session.ErrUnsupportedExport, format)
	}
	if err != nil {
		handleError(c, err)
		return
	}
	attachment(c, section, format, data)
}

// ============================================================================
// ASSISTANT
// ============================================================================

type suggestionRequest struct {
	Reply string `json:"reply" binding:"required"`
}

// suggestion parses an assistant reply and applies its filters.
func (s *Server) suggestion(c *gin.Context) {
	var req suggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "reply is required")
		return
	}
	sg, err := assistant.ParseSuggestion(req.Reply)
	if err != nil {
		handleError(c, err)
		return
	}
	changed, err := s.sess.ApplySuggestion(sg)
	if err != nil {
		handleError(c, err)
		return
	}
	out := gin.H{"suggestion": sg, "changed": changed}
	if changed {
		snap, ok := s.recompute(c)
		if !ok {
			return
		}
		out["snapshot"] = snap
	}
	success(c, out)
}

// assistantSummary returns the data context for the assistant, and the full
// prompt when a question is given.
func (s *Server) assistantSummary(c *gin.Context) {
	text, err := s.sess.DataSummary(s.requestFilters(c))
	if err != nil {
		handleError(c, err)
		return
	}
	out := gin.H{"summary": text}
	if q := c.Query("question"); q != "" {
		out["instructions"] = assistant.SystemInstructions()
		out["prompt"] = assistant.BuildPrompt(text, q)
	}
	success(c, out)
}
