package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clarity-bi/clarity/logger"
	"github.com/clarity-bi/clarity/session"
)

// ============================================================================
// SERVER: gin transport over one Session
// ============================================================================
// Routes mirror the dashboard's REST API. Analytics GETs read the applied
// filters, overridden per request by query parameters named after filter
// keys (?dealer=A&year=2024). Mutations that change what the dashboard shows
// recompute and return the new snapshot.
// ============================================================================

// Config tunes the HTTP layer.
type Config struct {
	Addr             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxUploadSize    int64
	CORSAllowOrigins []string
}

// DefaultConfig matches the config package defaults.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8000",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  60 * time.Second,
		MaxUploadSize: 50 << 20,
	}
}

// ShutdownTimeout bounds graceful shutdown in Run.
const ShutdownTimeout = 10 * time.Second

// Server exposes a Session over HTTP.
type Server struct {
	sess *session.Session
	log  *zap.Logger
	cfg  Config
}

// New wires a server. A nil logger disables logging.
func New(sess *session.Session, cfg Config, l *zap.Logger) *Server {
	return &Server{sess: sess, log: logger.OrNop(l), cfg: cfg}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(logger.Recovery(s.log), logger.GinMiddleware(s.log), CORS(s.cfg.CORSAllowOrigins))

	r.GET("/health", func(c *gin.Context) { success(c, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	api.POST("/upload", BodyLimit(s.cfg.MaxUploadSize), s.upload)
	api.GET("/status", s.status)

	filters := api.Group("/filters")
	filters.GET("", s.getFilters)
	filters.GET("/staged", s.getStaged)
	filters.POST("/staged", s.setStaged)
	filters.POST("/apply", s.applyFilters)
	filters.POST("/direct", s.applyDirect)
	filters.DELETE("/:key", s.clearFilter)
	filters.DELETE("", s.clearFilters)

	api.GET("/summary", s.summary)
	api.GET("/snapshot", s.snapshot)
	api.GET("/sales/monthly", s.salesMonthly)
	api.GET("/sales/dealers", s.salesDealers)
	api.GET("/sales/products", s.salesProducts)
	api.GET("/sales/vehicles", s.salesVehicles)
	api.GET("/claims/status", s.claimsStatus)
	api.GET("/claims/parts", s.claimsParts)
	api.GET("/claims/trends", s.claimsTrends)
	api.GET("/claims/recent", s.claimsRecent)
	api.GET("/correlations", s.correlations)
	api.GET("/budget", s.budget)
	api.GET("/predict", s.predict)
	api.GET("/insights", s.insights)
	api.GET("/risk", s.risk)
	api.GET("/forecast", s.forecast)
	api.GET("/anomalies", s.anomalies)

	data := api.Group("/data")
	data.GET("/changes", s.changes)
	data.GET("/:table", s.rawData)
	data.PUT("/update", s.updateCell)
	data.PUT("/bulk-update", s.bulkUpdate)
	data.POST("/reset", s.reset)

	api.GET("/export/:table", s.exportTable)
	api.GET("/report/:section", s.exportReport)

	api.POST("/assistant/suggestion", s.suggestion)
	api.GET("/assistant/summary", s.assistantSummary)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
