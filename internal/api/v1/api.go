// Package v1 implements the JSON control API under /api/v1.
package v1

import (
	"context"
	"crypto/rand"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/lensnet-go/internal/bestshot"
	"github.com/tphakala/lensnet-go/internal/capture"
	"github.com/tphakala/lensnet-go/internal/datastore"
	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/highlight"
	"github.com/tphakala/lensnet-go/internal/inference"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/pipeline"
	"github.com/tphakala/lensnet-go/internal/privacy/faceblur"
)

// Camera is the slice of the live pipeline the API drives.
type Camera interface {
	Status() pipeline.Status
	Snapshot() *detection.LiveSnapshot
	SwitchModel(t inference.ModelType) error
	SwitchLens(id string) error
	SwitchFrontBack() error
	Devices() []capture.Device
	SetMinInterval(d time.Duration)
	SetHighlightRules(rules map[string]float64)
	HighlightRules() highlight.RuleSet
	SetAssistedCapture(enabled bool)
	SetFaceBlur(enabled bool)
	SetBlurStyle(style faceblur.Style)
	CapturePhoto(ctx context.Context) (pipeline.Photo, error)
	StartBestShot(ctx context.Context, p bestshot.Params) (string, error)
	StopBestShot(finalize bool) ([]bestshot.Candidate, error)
	BestShotProgress() bestshot.Progress
}

// Controller owns the /api/v1 routes.
type Controller struct {
	Echo   *echo.Echo
	Group  *echo.Group
	Camera Camera
	DS     datastore.Interface

	log    logger.Logger
	stream *streamHub

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithDataStore enables /captures and /sessions.
func WithDataStore(ds datastore.Interface) Option { return func(c *Controller) { c.DS = ds } }

func WithLogger(l logger.Logger) Option { return func(c *Controller) { c.log = l } }

// New registers the routes on e.
func New(e *echo.Echo, camera Camera, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		Echo:   e,
		Group:  e.Group("/api/v1"),
		Camera: camera,
		log:    logger.Global().Module("api"),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stream = newStreamHub(c.log)

	c.initCameraRoutes()
	c.initBestShotRoutes()
	c.initCaptureRoutes()
	c.initStreamRoutes()
	return c
}

// Shutdown ends open event streams.
func (c *Controller) Shutdown() {
	c.cancel()
	c.stream.closeAll()
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse builds an ErrorResponse with a fresh correlation id.
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

// HandleError logs err and writes an ErrorResponse with code.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("ip", ctx.RealIP()),
		logger.Int("code", code),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.log.Error(message, fields...)
	} else {
		c.log.Debug(message, fields...)
	}
	return ctx.JSON(code, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, inference.ErrUnknownModel),
		errors.Is(err, bestshot.ErrInvalidParams),
		errors.Is(err, faceblur.ErrUnknownStyle):
		return http.StatusBadRequest
	case errors.Is(err, capture.ErrUnknownDevice),
		errors.Is(err, datastore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrNotRunning),
		errors.Is(err, pipeline.ErrCaptureGated),
		errors.Is(err, bestshot.ErrSessionActive),
		errors.Is(err, bestshot.ErrNotActive),
		errors.Is(err, capture.ErrCaptureInProgress),
		errors.Is(err, capture.ErrNoCamera):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (c *Controller) fail(ctx echo.Context, err error, message string) error {
	return c.HandleError(ctx, err, message, statusFor(err))
}
