// Package metrics exposes the platform's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graphchem"

// Metrics bundles every collector the platform registers.  All components
// share one instance so that a single /metrics endpoint covers training and
// serving alike.
type Metrics struct {
	registry *prometheus.Registry

	TrainingEpochsTotal  prometheus.Counter
	TrainingBatchesTotal prometheus.Counter
	TrainingLoss         prometheus.Gauge
	EpochDuration        prometheus.Histogram
	ValidationAUC        *prometheus.GaugeVec

	FeaturizeFailuresTotal prometheus.Counter

	PredictRequestsTotal *prometheus.CounterVec
	PredictDuration      prometheus.Histogram
}

// New creates a Metrics instance backed by its own registry, so tests can
// create as many as they like without double-registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TrainingEpochsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_epochs_total",
			Help:      "Completed training epochs.",
		}),
		TrainingBatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_batches_total",
			Help:      "Processed training batches.",
		}),
		TrainingLoss: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_loss",
			Help:      "Most recent training batch loss.",
		}),
		EpochDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_epoch_duration_seconds",
			Help:      "Wall-clock duration of training epochs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ValidationAUC: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validation_roc_auc",
			Help:      "Validation ROC-AUC per task after the latest epoch.",
		}, []string{"task"}),
		FeaturizeFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "featurize_failures_total",
			Help:      "SMILES strings that failed featurization.",
		}),
		PredictRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predict_requests_total",
			Help:      "Prediction requests by outcome.",
		}, []string{"status"}),
		PredictDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "predict_duration_seconds",
			Help:      "Latency of prediction requests.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test assertions.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
