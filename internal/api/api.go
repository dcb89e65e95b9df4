// Package api implements the HTTP control plane: mode toggles, enrollment
// requests, identity CRUD, ledger queries and overrides, settings, factory
// reset, the live preview stream, and the metrics endpoint.
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/facegate/facegate-go/internal/attendance"
	"github.com/facegate/facegate-go/internal/enroll"
	"github.com/facegate/facegate-go/internal/errors"
	"github.com/facegate/facegate-go/internal/logging"
	"github.com/facegate/facegate-go/internal/observability"
	"github.com/facegate/facegate-go/internal/recognize"
	"github.com/facegate/facegate-go/internal/storage"
	"github.com/facegate/facegate-go/internal/supervisor"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	gateway     *storage.Gateway
	attendance  *attendance.Controller
	coordinator *enroll.Coordinator
	pipeline    recognize.Pipeline
	timeSync    *supervisor.TimeSync
	metrics     *observability.Metrics

	apiLogger *slog.Logger
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithTimeSync lets the settings handler push UTC offset changes into the
// time syncer.
func WithTimeSync(ts *supervisor.TimeSync) Option {
	return func(c *Controller) { c.timeSync = ts }
}

// WithMetrics exposes the metrics registry on /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithStreamSource sets the frame source for the live preview stream.
func WithStreamSource(p recognize.Pipeline) Option {
	return func(c *Controller) { c.pipeline = p }
}

// New creates the API controller and registers all routes under /api/v1.
func New(e *echo.Echo, gateway *storage.Gateway, controller *attendance.Controller,
	coordinator *enroll.Coordinator, opts ...Option) *Controller {

	c := &Controller{
		Echo:        e,
		gateway:     gateway,
		attendance:  controller,
		coordinator: coordinator,
		apiLogger:   logging.ForService("api"),
	}
	for _, opt := range opts {
		opt(c)
	}

	e.Use(middleware.Recover())
	c.Group = e.Group("/api/v1")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.initControlRoutes()
	c.initEnrollmentRoutes()
	c.initIdentityRoutes()
	c.initAttendanceRoutes()
	c.initSettingsRoutes()
	c.initStreamRoutes()
	c.initSystemRoutes()
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates an API error response with a correlation id for
// log matching.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs the error and returns the JSON error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	c.apiLogger.Error("request failed",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", resp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP())
	return ctx.JSON(code, resp)
}

// statusForError maps error categories to HTTP status codes. Contention maps
// to 503: the storage mutex was busy and the caller should retry, which is
// the degraded-response contract rather than a hang.
func statusForError(err error) int {
	switch {
	case errors.HasCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.HasCategory(err, errors.CategoryConflict):
		return http.StatusConflict
	case errors.HasCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrContention):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrDegraded), errors.Is(err, storage.ErrNotMounted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
