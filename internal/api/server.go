package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/lensnet-go/internal/api/middleware"
	v1 "github.com/tphakala/lensnet-go/internal/api/v1"
	"github.com/tphakala/lensnet-go/internal/buildinfo"
	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/datastore"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/observability"
)

// Server is the HTTP control server.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	log      logger.Logger

	camera    v1.Camera
	dataStore datastore.Interface
	metrics   *observability.Metrics
	build     buildinfo.BuildInfo

	apiController *v1.Controller
	startTime     time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithCamera attaches the live pipeline.
func WithCamera(c v1.Camera) ServerOption {
	return func(s *Server) { s.camera = c }
}

// WithDataStore enables the capture browsing endpoints.
func WithDataStore(ds datastore.Interface) ServerOption {
	return func(s *Server) { s.dataStore = ds }
}

// WithMetrics serves the registry at /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithBuildInfo reports version metadata from /health.
func WithBuildInfo(b buildinfo.BuildInfo) ServerOption {
	return func(s *Server) { s.build = b }
}

// WithLogger replaces the module logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// New creates the HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		settings:  settings,
		log:       GetLogger(),
		build:     (*buildinfo.Context)(nil),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.camera == nil {
		return nil, fmt.Errorf("api server requires a camera")
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Listen),
		logger.Bool("tls", config.TLSEnabled()),
		logger.Bool("datastore", s.dataStore != nil))
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == "/metrics" || c.Path() == "/health"
	}))

	s.echo.Use(mw.NewCORS(s.config.AllowedOrigins))
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(s.config.TLSEnabled()))
	s.echo.Use(mw.NewNoStore())
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	var opts []v1.Option
	if s.dataStore != nil {
		opts = append(opts, v1.WithDataStore(s.dataStore))
	}
	s.apiController = v1.New(s.echo, s.camera, append(opts, v1.WithLogger(s.log))...)
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"node":           s.settings.Main.Name,
		"version":        s.build.Version(),
		"build_date":     s.build.BuildDate(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := s.echo.Server
	srv.Handler = s.echo
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("address", ln.Addr().String()))
		var err error
		if s.config.TLSEnabled() {
			err = srv.ServeTLS(ln, s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.apiController.Shutdown()
	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("server shutdown complete")
	return nil
}

// APIController returns the v1 controller, which doubles as the event bus
// consumer feeding the live stream.
func (s *Server) APIController() *v1.Controller {
	return s.apiController
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
