package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	AnalysisLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vnflow",
			Subsystem: "analysis",
			Name:      "latency_seconds",
			Help:      "Latency of analysis operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	AnalysisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vnflow",
			Subsystem: "analysis",
			Name:      "errors_total",
			Help:      "Analysis failures by kind",
		},
		[]string{"kind"},
	)

	SignalClassTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vnflow",
			Subsystem: "analysis",
			Name:      "signal_class_total",
			Help:      "Signal classifications produced, by class",
		},
		[]string{"class"},
	)

	AdjustedScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vnflow",
			Subsystem: "analysis",
			Name:      "adjusted_score",
			Help:      "Last adjusted composite score per symbol",
		},
		[]string{"symbol"},
	)

	OverviewRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vnflow",
			Subsystem: "analysis",
			Name:      "overview_runs_total",
			Help:      "Completed market overview passes",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(AnalysisLatency, AnalysisErrors, SignalClassTotal, AdjustedScore, OverviewRuns)
	})
}
