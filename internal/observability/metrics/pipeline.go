// Package metrics provides custom Prometheus metrics for the ingestion pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Upload outcome labels for the uploads counter.
const (
	OutcomeDetected         = "detected"
	OutcomeNoPlate          = "no_plate"
	OutcomeDegraded         = "degraded"
	OutcomeValidationFailed = "validation_failed"
	OutcomePersistFailed    = "persist_failed"
)

// PipelineMetrics contains all Prometheus metrics related to the
// ingestion-recognition-notification pipeline.
type PipelineMetrics struct {
	UploadsTotal        *prometheus.CounterVec
	RecognitionDuration prometheus.Histogram
	BroadcastFanout     prometheus.Histogram
	ConnectedObservers  prometheus.Gauge
	registry            *prometheus.Registry
}

// NewPipelineMetrics creates a new instance of PipelineMetrics.
// It requires a Prometheus registry to register the metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for PipelineMetrics.
func (m *PipelineMetrics) initMetrics() {
	m.UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platewatch_uploads_total",
		Help: "Total number of processed uploads by outcome",
	}, []string{"outcome"})

	m.RecognitionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "platewatch_recognition_duration_seconds",
		Help:    "Latency of recognition engine calls in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	m.BroadcastFanout = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "platewatch_broadcast_fanout",
		Help:    "Number of observers reached per published detection event",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	m.ConnectedObservers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "platewatch_connected_observers",
		Help: "Number of currently connected realtime observers",
	})
}

// RecordUpload increments the uploads counter for the given outcome label.
func (m *PipelineMetrics) RecordUpload(outcome string) {
	m.UploadsTotal.WithLabelValues(outcome).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.UploadsTotal.Describe(ch)
	m.RecognitionDuration.Describe(ch)
	m.BroadcastFanout.Describe(ch)
	m.ConnectedObservers.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.UploadsTotal.Collect(ch)
	m.RecognitionDuration.Collect(ch)
	m.BroadcastFanout.Collect(ch)
	m.ConnectedObservers.Collect(ch)
}
