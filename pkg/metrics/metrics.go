// Package metrics registers the service's Prometheus collectors.
//
// Collectors register on prometheus.DefaultRegisterer at construction, so
// each constructor must be called once per process (tests swap the default
// registerer first). All methods are safe on a nil receiver.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DatabaseMetrics exports sql.DBStats as gauges
type DatabaseMetrics struct {
	openConnections prometheus.Gauge
	inUse           prometheus.Gauge
	idle            prometheus.Gauge
	waitCount       prometheus.Gauge
	waitDuration    prometheus.Gauge
}

func NewDatabaseMetrics(namespace string) *DatabaseMetrics {
	gauge := func(name, help string) prometheus.Gauge {
		return promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      name,
			Help:      help,
		})
	}
	return &DatabaseMetrics{
		openConnections: gauge("open_connections", "Number of established connections"),
		inUse:           gauge("in_use_connections", "Number of connections currently in use"),
		idle:            gauge("idle_connections", "Number of idle connections"),
		waitCount:       gauge("wait_count", "Total number of connections waited for"),
		waitDuration:    gauge("wait_duration_seconds", "Total time blocked waiting for a connection"),
	}
}

// UpdateDBStats copies the pool statistics of db into the gauges
func (m *DatabaseMetrics) UpdateDBStats(db *sql.DB) {
	if m == nil || db == nil {
		return
	}
	s := db.Stats()
	m.openConnections.Set(float64(s.OpenConnections))
	m.inUse.Set(float64(s.InUse))
	m.idle.Set(float64(s.Idle))
	m.waitCount.Set(float64(s.WaitCount))
	m.waitDuration.Set(s.WaitDuration.Seconds())
}

// ClassifierMetrics tracks classification and drift outcomes
type ClassifierMetrics struct {
	classifications *prometheus.CounterVec
	overrides       prometheus.Counter
	rejected        *prometheus.CounterVec
	duration        prometheus.Histogram
	textLength      prometheus.Histogram
	drift           *prometheus.CounterVec
	tasks           *prometheus.CounterVec
}

func NewClassifierMetrics(namespace string) *ClassifierMetrics {
	return &ClassifierMetrics{
		classifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classifications by resulting status",
		}, []string{"status"}),
		overrides: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_overrides_total",
			Help:      "Classifications short-circuited by an override category",
		}),
		rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_inputs_total",
			Help:      "Inputs rejected before classification, by reason",
		}, []string{"reason"}),
		duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_duration_seconds",
			Help:      "Time spent classifying a text",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		textLength: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "text_length_characters",
			Help:      "Length of classified texts",
			Buckets:   []float64{10, 100, 500, 1000, 5000, 10000, 50000},
		}),
		drift: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drift_observations_total",
			Help:      "Drift tracker results by direction",
		}, []string{"direction"}),
		tasks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_tasks_total",
			Help:      "Queue tasks processed by type and result",
		}, []string{"task_type", "result"}),
	}
}

func (m *ClassifierMetrics) ObserveClassification(status string, flagged bool, length int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(status).Inc()
	if flagged {
		m.overrides.Inc()
	}
	m.textLength.Observe(float64(length))
	m.duration.Observe(elapsed.Seconds())
}

func (m *ClassifierMetrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *ClassifierMetrics) ObserveDrift(direction string) {
	if m == nil {
		return
	}
	m.drift.WithLabelValues(direction).Inc()
}

func (m *ClassifierMetrics) ObserveTask(taskType, result string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(taskType, result).Inc()
}
