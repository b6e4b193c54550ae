package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// BestShotMetrics contains metrics for best shot sessions.
type BestShotMetrics struct {
	Sessions        *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	Captures        *prometheus.CounterVec
	CandidatesKept  prometheus.Histogram
	CaptureDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewBestShotMetrics creates and registers the best shot collectors.
func NewBestShotMetrics(registry *prometheus.Registry) (*BestShotMetrics, error) {
	m := &BestShotMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register best shot metrics: %w", err)
	}
	return m, nil
}

func (m *BestShotMetrics) initMetrics() {
	m.Sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensnet_bestshot_sessions_total",
			Help: "Best shot sessions partitioned by outcome",
		},
		[]string{"outcome"},
	)
	m.ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensnet_bestshot_active",
			Help: "1 while a best shot session is running",
		},
	)
	m.Captures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensnet_bestshot_captures_total",
			Help: "Candidate photo captures partitioned by status",
		},
		[]string{"status"},
	)
	m.CandidatesKept = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lensnet_bestshot_candidates_returned",
			Help:    "Number of candidates returned when a session completes",
			Buckets: prometheus.LinearBuckets(0, 1, 6),
		},
	)
	m.CaptureDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lensnet_bestshot_capture_duration_seconds",
			Help:    "Time from capture request to a processed candidate",
			Buckets: durationBuckets,
		},
	)
}

// SessionStarted marks a session as running.
func (m *BestShotMetrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(1)
}

// SessionEnded records the outcome and number of returned candidates.
func (m *BestShotMetrics) SessionEnded(outcome string, returned int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(0)
	m.Sessions.WithLabelValues(outcome).Inc()
	m.CandidatesKept.Observe(float64(returned))
}

// RecordCapture records a candidate capture attempt.
func (m *BestShotMetrics) RecordCapture(seconds float64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Captures.WithLabelValues(StatusError).Inc()
		return
	}
	m.Captures.WithLabelValues(StatusSuccess).Inc()
	m.CaptureDuration.Observe(seconds)
}

// Describe implements the prometheus.Collector interface.
func (m *BestShotMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Sessions.Describe(ch)
	ch <- m.ActiveSessions.Desc()
	m.Captures.Describe(ch)
	ch <- m.CandidatesKept.Desc()
	ch <- m.CaptureDuration.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *BestShotMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Sessions.Collect(ch)
	ch <- m.ActiveSessions
	m.Captures.Collect(ch)
	ch <- m.CandidatesKept
	ch <- m.CaptureDuration
}
