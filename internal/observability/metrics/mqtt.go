package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains all Prometheus metrics related to MQTT operations.
type MQTTMetrics struct {
	ConnectionStatus  prometheus.Gauge
	MessagesDelivered prometheus.Counter
	MessagesSkipped   prometheus.Counter
	Errors            prometheus.Counter
	ReconnectAttempts prometheus.Counter
	MessageSize       prometheus.Histogram
	PublishLatency    prometheus.Histogram

	registry *prometheus.Registry
}

// NewMQTTMetrics creates and registers the MQTT collectors.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

func (m *MQTTMetrics) initMetrics() {
	m.ConnectionStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lensnet_mqtt_connection_status",
		Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
	})
	m.MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lensnet_mqtt_messages_delivered_total",
		Help: "Total number of MQTT messages successfully delivered",
	})
	m.MessagesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lensnet_mqtt_messages_skipped_total",
		Help: "Live snapshots not published because of the publish rate limit",
	})
	m.Errors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lensnet_mqtt_errors_total",
		Help: "Total number of MQTT errors encountered",
	})
	m.ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lensnet_mqtt_reconnect_attempts_total",
		Help: "Total number of MQTT reconnection attempts",
	})
	m.MessageSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lensnet_mqtt_message_size_bytes",
		Help:    "Size of MQTT messages in bytes",
		Buckets: prometheus.ExponentialBuckets(64, 2, 10),
	})
	m.PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lensnet_mqtt_publish_latency_seconds",
		Help:    "Latency of MQTT publish operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})
}

// UpdateConnectionStatus records the broker connection state.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.ConnectionStatus.Set(1)
	} else {
		m.ConnectionStatus.Set(0)
	}
}

// IncrementReconnectAttempts counts a reconnection attempt.
func (m *MQTTMetrics) IncrementReconnectAttempts() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

// IncrementSkipped counts a rate limited snapshot.
func (m *MQTTMetrics) IncrementSkipped() {
	if m == nil {
		return
	}
	m.MessagesSkipped.Inc()
}

// RecordPublish records a publish attempt of size bytes that started at start.
func (m *MQTTMetrics) RecordPublish(size int, start time.Time, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Errors.Inc()
		return
	}
	m.MessagesDelivered.Inc()
	m.MessageSize.Observe(float64(size))
	m.PublishLatency.Observe(time.Since(start).Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ConnectionStatus.Desc()
	ch <- m.MessagesDelivered.Desc()
	ch <- m.MessagesSkipped.Desc()
	ch <- m.Errors.Desc()
	ch <- m.ReconnectAttempts.Desc()
	ch <- m.MessageSize.Desc()
	ch <- m.PublishLatency.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ConnectionStatus
	ch <- m.MessagesDelivered
	ch <- m.MessagesSkipped
	ch <- m.Errors
	ch <- m.ReconnectAttempts
	ch <- m.MessageSize
	ch <- m.PublishLatency
}
