package play

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricPlaysCounted      = "play_events_counted_total"
	MetricPlaysDuplicate    = "play_events_duplicate_total"
	MetricPlaysBelowMinimum = "play_events_below_minimum_total"
	MetricRecordLatency     = "play_record_latency_seconds"
)

// Metrics contains Prometheus metrics for the play engine.
// All operations are thread-safe.
type Metrics struct {
	playsCounted      prometheus.Counter
	playsDuplicate    *prometheus.CounterVec
	playsBelowMinimum prometheus.Counter
	recordLatency     prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register them
// with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		playsCounted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPlaysCounted,
			Help: "Total number of play events that counted and incremented a track counter",
		}),
		playsDuplicate: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPlaysDuplicate,
				Help: "Total number of play events rejected as duplicates, by identity axis",
			},
			[]string{"axis"},
		),
		playsBelowMinimum: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPlaysBelowMinimum,
			Help: "Total number of play events below the minimum listen duration",
		}),
		recordLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRecordLatency,
			Help:    "Histogram of record-play latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.playsCounted,
		m.playsDuplicate,
		m.playsBelowMinimum,
		m.recordLatency,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncCounted increments the counted plays counter.
func (m *Metrics) IncCounted() {
	m.playsCounted.Inc()
}

// IncDuplicate increments the duplicate counter for the matching axis.
func (m *Metrics) IncDuplicate(axis string) {
	m.playsDuplicate.WithLabelValues(axis).Inc()
}

// IncBelowMinimum increments the below-minimum counter.
func (m *Metrics) IncBelowMinimum() {
	m.playsBelowMinimum.Inc()
}

// ObserveRecordLatency records the latency of a record-play call.
func (m *Metrics) ObserveRecordLatency(seconds float64) {
	m.recordLatency.Observe(seconds)
}
