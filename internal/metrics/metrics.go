// Package metrics exposes Prometheus collectors for training and
// prediction.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "moodtrack"

// Retrain outcomes.
const (
	ResultTrained = "trained"
	ResultNoData  = "no_data"
	ResultError   = "error"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the process-wide collectors.
type Metrics struct {
	RetrainTotal    *prometheus.CounterVec
	RetrainDuration prometheus.Histogram
	ClusterCount    prometheus.Gauge
	FallbackTotal   *prometheus.CounterVec
	PredictedMood   prometheus.Histogram
}

// Get returns the collectors, registering them with the default registry
// on first use.
//
// Metrics:
//   - moodtrack_retrain_total{result}
//   - moodtrack_retrain_duration_seconds
//   - moodtrack_cluster_count
//   - moodtrack_fallback_total{operation,reason}
//   - moodtrack_predicted_mood
func Get() *Metrics {
	once.Do(func() {
		global = &Metrics{
			RetrainTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrain_total",
				Help:      "Retraining runs by outcome.",
			}, []string{"result"}),
			RetrainDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrain_duration_seconds",
				Help:      "Wall time of a retraining run.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			}),
			ClusterCount: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cluster_count",
				Help:      "Cluster count selected by the last successful retraining.",
			}),
			FallbackTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_total",
				Help:      "Answers served without a trained model.",
			}, []string{"operation", "reason"}),
			PredictedMood: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "predicted_mood",
				Help:      "Distribution of next-day mood predictions.",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			}),
		}
	})
	return global
}

// ObserveRetrain records one retraining run.
func (m *Metrics) ObserveRetrain(result string, seconds float64) {
	m.RetrainTotal.WithLabelValues(result).Inc()
	m.RetrainDuration.Observe(seconds)
}

// Fallback counts an answer served by a fallback path.
func (m *Metrics) Fallback(operation, reason string) {
	m.FallbackTotal.WithLabelValues(operation, reason).Inc()
}
