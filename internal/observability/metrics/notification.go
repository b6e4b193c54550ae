package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics counts push notification deliveries.
type NotificationMetrics struct {
	Sent *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewNotificationMetrics creates and registers the notification collectors.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.Sent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensnet_notifications_total",
			Help: "Push notifications partitioned by service and status",
		},
		[]string{"service", "status"},
	)
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// RecordSend records a delivery attempt to service.
func (m *NotificationMetrics) RecordSend(service string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.Sent.WithLabelValues(service, status).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Sent.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Sent.Collect(ch)
}
