// Package observability provides Prometheus metrics for LensNet-Go.
// Sentry error reporting is handled by the telemetry package.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/lensnet-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry     *prometheus.Registry
	Inference    *metrics.InferenceMetrics
	Pipeline     *metrics.PipelineMetrics
	BestShot     *metrics.BestShotMetrics
	MQTT         *metrics.MQTTMetrics
	Datastore    *metrics.DatastoreMetrics
	Notification *metrics.NotificationMetrics
}

// NewMetrics creates a registry and initializes every collector on it.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{registry: registry}
	var err error
	if m.Inference, err = metrics.NewInferenceMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create inference metrics: %w", err)
	}
	if m.Pipeline, err = metrics.NewPipelineMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	if m.BestShot, err = metrics.NewBestShotMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create best shot metrics: %w", err)
	}
	if m.MQTT, err = metrics.NewMQTTMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}
	if m.Datastore, err = metrics.NewDatastoreMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}
	if m.Notification, err = metrics.NewNotificationMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create notification metrics: %w", err)
	}
	return m, nil
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}
