package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics covers the frame throttle, live result aggregator and highlight state.
type PipelineMetrics struct {
	FramesTotal      *prometheus.CounterVec
	ThrottleState    *prometheus.GaugeVec
	ThrottleInterval prometheus.Gauge
	LiveResults      prometheus.Gauge
	RegistrySize     prometheus.Gauge
	RegistrySweeps   prometheus.Counter
	SnapshotsTotal   prometheus.Counter
	Highlighted      prometheus.Gauge

	registry *prometheus.Registry
}

// NewPipelineMetrics creates and registers the pipeline collectors.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensnet_frames_total",
			Help: "Frames offered to the throttle partitioned by decision",
		},
		[]string{"decision"},
	)
	m.ThrottleState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lensnet_throttle_state",
			Help: "1 for the current throttle state, 0 otherwise",
		},
		[]string{"state"},
	)
	m.ThrottleInterval = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensnet_throttle_interval_seconds",
			Help: "Current minimum spacing between inference submissions",
		},
	)
	m.LiveResults = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensnet_live_results",
			Help: "Number of results in the most recently published live snapshot",
		},
	)
	m.RegistrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensnet_detection_registry_size",
			Help: "Number of labels held in the detection registry",
		},
	)
	m.RegistrySweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lensnet_detection_registry_sweeps_total",
			Help: "Number of expiry sweeps over the detection registry",
		},
	)
	m.SnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lensnet_live_snapshots_total",
			Help: "Number of live snapshots published",
		},
	)
	m.Highlighted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensnet_highlighted",
			Help: "1 while the live results satisfy a highlight rule",
		},
	)
}

// RecordFrame counts one throttle decision.
func (m *PipelineMetrics) RecordFrame(decision string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(decision).Inc()
}

// SetThrottleState marks state as current among states.
func (m *PipelineMetrics) SetThrottleState(state string, states []string) {
	if m == nil {
		return
	}
	for _, s := range states {
		m.ThrottleState.WithLabelValues(s).Set(0)
	}
	m.ThrottleState.WithLabelValues(state).Set(1)
}

// SetThrottleInterval records the active minimum interval in seconds.
func (m *PipelineMetrics) SetThrottleInterval(seconds float64) {
	if m == nil {
		return
	}
	m.ThrottleInterval.Set(seconds)
}

// RecordSnapshot records a published live snapshot.
func (m *PipelineMetrics) RecordSnapshot(results, registrySize int) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.Inc()
	m.LiveResults.Set(float64(results))
	m.RegistrySize.Set(float64(registrySize))
}

// RecordSweep counts a registry sweep.
func (m *PipelineMetrics) RecordSweep() {
	if m == nil {
		return
	}
	m.RegistrySweeps.Inc()
}

// SetHighlighted records the highlight flag.
func (m *PipelineMetrics) SetHighlighted(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Highlighted.Set(1)
	} else {
		m.Highlighted.Set(0)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FramesTotal.Describe(ch)
	m.ThrottleState.Describe(ch)
	ch <- m.ThrottleInterval.Desc()
	ch <- m.LiveResults.Desc()
	ch <- m.RegistrySize.Desc()
	ch <- m.RegistrySweeps.Desc()
	ch <- m.SnapshotsTotal.Desc()
	ch <- m.Highlighted.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FramesTotal.Collect(ch)
	m.ThrottleState.Collect(ch)
	ch <- m.ThrottleInterval
	ch <- m.LiveResults
	ch <- m.RegistrySize
	ch <- m.RegistrySweeps
	ch <- m.SnapshotsTotal
	ch <- m.Highlighted
}
