package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vnflow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests served, by route template and status",
		},
		[]string{"route", "method", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vnflow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Request latency by route template",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"route", "method"},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vnflow",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Requests currently being served",
		},
	)

	httpResponseBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vnflow",
			Subsystem: "http",
			Name:      "response_bytes_total",
			Help:      "Bytes written, by route template",
		},
		[]string{"route"},
	)

	registerMetrics sync.Once
)

// Metrics records per-route Prometheus metrics. Echo's route template
// (c.Path) keys the labels, so /api/analyze?symbol=X stays one series.
func Metrics() echo.MiddlewareFunc {
	registerMetrics.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, httpInFlight, httpResponseBytes)
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			httpInFlight.Inc()
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)
			httpInFlight.Dec()

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
			httpResponseBytes.WithLabelValues(route).Add(float64(c.Response().Size))
			return err
		}
	}
}
