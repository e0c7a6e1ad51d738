package intercept

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// interceptMetrics contains Prometheus metrics for dispatch operations.
type interceptMetrics struct {
	exchangesTotal   *prometheus.CounterVec
	recordsTotal     prometheus.Counter
	errorsTotal      *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
}

var (
	interceptMetricsInstance *interceptMetrics
	interceptMetricsOnce     sync.Once
)

// initInterceptMetrics initializes the singleton metrics instance with the
// given registry. If registry is nil, metrics are registered with the default
// registerer. Subsequent calls are no-ops.
func initInterceptMetrics(registry *prometheus.Registry) {
	interceptMetricsOnce.Do(func() {
		var registerer prometheus.Registerer
		if registry != nil {
			registerer = registry
		} else {
			registerer = prometheus.DefaultRegisterer
		}
		factory := promauto.With(registerer)
		interceptMetricsInstance = &interceptMetrics{
			exchangesTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "tapedeck",
					Subsystem: "intercept",
					Name:      "exchanges_total",
					Help:      "Total number of dispatched exchanges",
				},
				[]string{"outcome"},
			),
			recordsTotal: factory.NewCounter(
				prometheus.CounterOpts{
					Namespace: "tapedeck",
					Subsystem: "intercept",
					Name:      "records_total",
					Help:      "Total number of interactions recorded to tape",
				},
			),
			errorsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "tapedeck",
					Subsystem: "intercept",
					Name:      "errors_total",
					Help:      "Total number of dispatch errors",
				},
				[]string{"error_type"},
			),
			upstreamDuration: factory.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "tapedeck",
					Subsystem: "intercept",
					Name:      "upstream_duration_seconds",
					Help:      "Duration of forwarded origin requests",
					Buckets: []float64{
						.001, .005, .01, .025,
						.05, .1, .25, .5,
						1, 2.5, 5, 10,
					},
				},
			),
		}
	})
}

// getInterceptMetrics returns the singleton metrics instance, lazily
// registering with the default registerer if needed.
func getInterceptMetrics() *interceptMetrics {
	initInterceptMetrics(nil)
	return interceptMetricsInstance
}
