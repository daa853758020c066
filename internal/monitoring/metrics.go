// Package monitoring exposes prometheus metrics for the scoring pipeline.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's prometheus instruments.
type Metrics struct {
	submissionsTotal *prometheus.CounterVec
	scoringDuration  prometheus.Histogram
	workerRetries    prometheus.Counter
	queueDepth       prometheus.Gauge
}

// New registers the pipeline metrics on the default registry. Call once per
// process.
func New() *Metrics {
	return &Metrics{
		submissionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "podium_submissions_total",
				Help: "Submissions by terminal scoring outcome.",
			},
			[]string{"status"},
		),
		scoringDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "podium_scoring_duration_seconds",
				Help:    "Wall time of one scoring attempt.",
				Buckets: prometheus.DefBuckets,
			},
		),
		workerRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "podium_worker_retries_total",
				Help: "Retry attempts across all scoring jobs.",
			},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "podium_queue_depth",
				Help: "Jobs waiting in the scoring queue.",
			},
		),
	}
}

// ObserveOutcome records a terminal scoring outcome and its duration.
func (m *Metrics) ObserveOutcome(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(status).Inc()
	m.scoringDuration.Observe(elapsed.Seconds())
}

// ObserveRetry records one retry attempt.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.workerRetries.Inc()
}

// SetQueueDepth records the current queue depth.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
