package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clarity-bi/clarity/assistant"
	"github.com/clarity-bi/clarity/dataset"
	"github.com/clarity-bi/clarity/insight"
	"github.com/clarity-bi/clarity/logger"
	"github.com/clarity-bi/clarity/session"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// Error codes not carried by a typed error.
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeNoData       = "ERR_NO_DATA"
	ErrCodeNotFound     = "ERR_NOT_FOUND"
	ErrCodeStale        = "ERR_STALE"
	ErrCodeNotConfirmed = "ERR_RESET_NOT_CONFIRMED"
	ErrCodeInsufficient = "ERR_INSUFFICIENT_DATA"
	ErrCodeBadAction    = "ERR_MALFORMED_ACTION"
	ErrCodeTooLarge     = "ERR_REQUEST_TOO_LARGE"
	ErrCodeInternal     = "ERR_INTERNAL"
)

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func failure(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{
		Error: &ErrorInfo{Code: code, Message: message, RequestID: c.Writer.Header().Get(logger.RequestIDHeader)},
	})
}

func badRequest(c *gin.Context, message string) {
	failure(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// handleError maps service errors onto status codes. Unknown errors are
// logged and reported as internal.
func handleError(c *gin.Context, err error) {
	var (
		parseErr *dataset.ParseError
		validErr *dataset.ValidationError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &parseErr):
		failure(c, http.StatusBadRequest, parseErr.Code, parseErr.Error())
	case errors.As(err, &validErr):
		failure(c, http.StatusUnprocessableEntity, validErr.Code, validErr.Error())
	case errors.As(err, &tooLarge):
		failure(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body exceeds the upload limit")
	case errors.Is(err, dataset.ErrNoData):
		failure(c, http.StatusBadRequest, ErrCodeNoData, "No data loaded. Upload a workbook first.")
	case errors.Is(err, dataset.ErrRowNotFound):
		failure(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, session.ErrStale):
		failure(c, http.StatusConflict, ErrCodeStale, err.Error())
	case errors.Is(err, session.ErrResetNotConfirmed):
		failure(c, http.StatusBadRequest, ErrCodeNotConfirmed, "pass confirm=true to discard all edits")
	case errors.Is(err, insight.ErrInsufficientData):
		failure(c, http.StatusUnprocessableEntity, ErrCodeInsufficient, err.Error())
	case errors.Is(err, assistant.ErrMalformedAction):
		failure(c, http.StatusUnprocessableEntity, ErrCodeBadAction, err.Error())
	case errors.Is(err, dataset.ErrUnknownTable),
		errors.Is(err, session.ErrUnknownMetric),
		errors.Is(err, session.ErrUnknownSegment),
		errors.Is(err, session.ErrUnsupportedExport):
		badRequest(c, err.Error())
	default:
		logger.FromGin(c, nil).Error("request failed", zap.Error(err))
		failure(c, http.StatusInternalServerError, ErrCodeInternal, "An unexpected error occurred")
	}
	_ = c.Error(err)
}
