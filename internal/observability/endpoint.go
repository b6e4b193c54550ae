package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Endpoint serves the Prometheus metrics over HTTP.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	log           logger.Logger
}

// NewEndpoint creates a metrics endpoint. It fails when telemetry is disabled.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Telemetry.Enabled {
		return nil, fmt.Errorf("telemetry not enabled in settings")
	}
	return &Endpoint{
		listenAddress: settings.Telemetry.Listen,
		metrics:       metrics,
		log:           logger.Global().Module("observability"),
	}, nil
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	e.server = &http.Server{
		Addr:              e.listenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("telemetry endpoint starting", logger.String("address", e.listenAddress))
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	e.log.Info("stopping telemetry endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("telemetry endpoint shutdown: %w", err)
	}
	return <-errCh
}
