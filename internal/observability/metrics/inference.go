package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InferenceMetrics contains Prometheus metrics for the inference adapter.
type InferenceMetrics struct {
	ClassifyDuration *prometheus.HistogramVec
	ClassifyTotal    *prometheus.CounterVec
	ClassifyErrors   *prometheus.CounterVec
	ModelLoadTotal   *prometheus.CounterVec
	ModelLoadErrors  *prometheus.CounterVec
	ModelLoadSeconds *prometheus.HistogramVec
	ModelCacheHits   *prometheus.CounterVec
	ActiveModel      *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewInferenceMetrics creates and registers the inference collectors.
func NewInferenceMetrics(registry *prometheus.Registry) (*InferenceMetrics, error) {
	m := &InferenceMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register inference metrics: %w", err)
	}
	return m, nil
}

func (m *InferenceMetrics) initMetrics() {
	m.ClassifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lensnet_classify_duration_seconds",
			Help:    "Time taken to classify one frame, including preprocessing",
			Buckets: durationBuckets,
		},
		[]string{"model"},
	)
	m.ClassifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensnet_classify_total",
			Help: "Total number of classification requests",
		},
		[]string{"model", "status"},
	)
	m.ClassifyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensnet_classify_errors_total",
			Help: "Total number of classification errors by category",
		},
		[]string{"model", "error_type"},
	)
	m.ModelLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensnet_model_load_total",
			Help: "Total number of model load attempts",
		},
		[]string{"model", "status"},
	)
	m.ModelLoadErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensnet_model_load_errors_total",
			Help: "Total number of model load errors by category",
		},
		[]string{"model", "error_type"},
	)
	m.ModelLoadSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lensnet_model_load_duration_seconds",
			Help:    "Time taken to load and initialize a model",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"model"},
	)
	m.ModelCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensnet_model_cache_hits_total",
			Help: "Model selections served from the loaded model cache",
		},
		[]string{"model"},
	)
	m.ActiveModel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lensnet_active_model",
			Help: "1 for the model currently used for classification, 0 otherwise",
		},
		[]string{"model"},
	)
}

// RecordClassify records one classification request.
func (m *InferenceMetrics) RecordClassify(model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ClassifyTotal.WithLabelValues(model, StatusError).Inc()
		m.ClassifyErrors.WithLabelValues(model, categorizeError(err)).Inc()
		return
	}
	m.ClassifyTotal.WithLabelValues(model, StatusSuccess).Inc()
	m.ClassifyDuration.WithLabelValues(model).Observe(d.Seconds())
}

// RecordModelLoad records a model load attempt.
func (m *InferenceMetrics) RecordModelLoad(model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ModelLoadTotal.WithLabelValues(model, StatusError).Inc()
		m.ModelLoadErrors.WithLabelValues(model, categorizeError(err)).Inc()
		return
	}
	m.ModelLoadTotal.WithLabelValues(model, StatusSuccess).Inc()
	m.ModelLoadSeconds.WithLabelValues(model).Observe(d.Seconds())
}

// RecordCacheHit counts a model selection that did not need a load.
func (m *InferenceMetrics) RecordCacheHit(model string) {
	if m == nil {
		return
	}
	m.ModelCacheHits.WithLabelValues(model).Inc()
}

// SetActiveModel marks model as active and clears every other known model.
func (m *InferenceMetrics) SetActiveModel(model string, known []string) {
	if m == nil {
		return
	}
	for _, k := range known {
		m.ActiveModel.WithLabelValues(k).Set(0)
	}
	m.ActiveModel.WithLabelValues(model).Set(1)
}

// Describe implements the prometheus.Collector interface.
func (m *InferenceMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ClassifyDuration.Describe(ch)
	m.ClassifyTotal.Describe(ch)
	m.ClassifyErrors.Describe(ch)
	m.ModelLoadTotal.Describe(ch)
	m.ModelLoadErrors.Describe(ch)
	m.ModelLoadSeconds.Describe(ch)
	m.ModelCacheHits.Describe(ch)
	m.ActiveModel.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *InferenceMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ClassifyDuration.Collect(ch)
	m.ClassifyTotal.Collect(ch)
	m.ClassifyErrors.Collect(ch)
	m.ModelLoadTotal.Collect(ch)
	m.ModelLoadErrors.Collect(ch)
	m.ModelLoadSeconds.Collect(ch)
	m.ModelCacheHits.Collect(ch)
	m.ActiveModel.Collect(ch)
}
