package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Datastore operation names.
const (
	OpCaptureSave   = "capture_save"
	OpCaptureList   = "capture_list"
	OpCaptureGet    = "capture_get"
	OpCaptureDelete = "capture_delete"
	OpImageWrite    = "image_write"
)

// DatastoreMetrics contains metrics for capture persistence.
type DatastoreMetrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OperationErrors   *prometheus.CounterVec
	StoredCaptures    prometheus.Gauge

	registry *prometheus.Registry
}

// NewDatastoreMetrics creates and registers the datastore collectors.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register datastore metrics: %w", err)
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensnet_datastore_operations_total",
			Help: "Datastore operations partitioned by operation and status",
		},
		[]string{"operation", "status"},
	)
	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lensnet_datastore_operation_duration_seconds",
			Help:    "Datastore operation latency",
			Buckets: durationBuckets,
		},
		[]string{"operation"},
	)
	m.OperationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensnet_datastore_errors_total",
			Help: "Datastore errors partitioned by operation and category",
		},
		[]string{"operation", "error_type"},
	)
	m.StoredCaptures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensnet_datastore_captures",
			Help: "Number of capture records currently stored",
		},
	)
}

// RecordOperation records one datastore operation.
func (m *DatastoreMetrics) RecordOperation(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Operations.WithLabelValues(op, StatusError).Inc()
		m.OperationErrors.WithLabelValues(op, categorizeError(err)).Inc()
		return
	}
	m.Operations.WithLabelValues(op, StatusSuccess).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetStoredCaptures records the number of stored capture records.
func (m *DatastoreMetrics) SetStoredCaptures(n int64) {
	if m == nil {
		return
	}
	m.StoredCaptures.Set(float64(n))
}

// Describe implements the prometheus.Collector interface.
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Operations.Describe(ch)
	m.OperationDuration.Describe(ch)
	m.OperationErrors.Describe(ch)
	ch <- m.StoredCaptures.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Operations.Collect(ch)
	m.OperationDuration.Collect(ch)
	m.OperationErrors.Collect(ch)
	ch <- m.StoredCaptures
}
