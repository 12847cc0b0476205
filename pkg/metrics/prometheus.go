package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the Prometheus implementation of the domain Metrics
// interface: ingest volume, failures, freshest closes and operation
// timings.
type Recorder struct {
	barsStored  *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastClose   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New registers the recorder's collectors on the default registry,
// which is what the /metrics endpoint serves.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers on a caller-owned registry. Tests pass a fresh
// prometheus.NewRegistry so repeated construction never collides.
func NewWith(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		barsStored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vnflow_bars_stored_total",
			Help: "Daily bars written, by backend and symbol.",
		}, []string{"backend", "symbol"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vnflow_errors_total",
			Help: "Failures by kind.",
		}, []string{"type"}),
		lastClose: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vnflow_last_close",
			Help: "Last stored closing price per symbol.",
		}, []string{"symbol"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vnflow_operation_duration_seconds",
			Help:    "Operation timings in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (r *Recorder) RecordBarStored(backend, symbol string) {
	r.barsStored.WithLabelValues(backend, symbol).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastClose(symbol string, price float64) {
	r.lastClose.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
