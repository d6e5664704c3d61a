package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search engine Prometheus metrics.
var (
	SearchExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedsearch",
			Name:      "search_executions_total",
			Help:      "Total number of executed searches",
		},
		[]string{"outcome"}, // ok / warning / fatal / cancelled / invalid
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fedsearch",
			Name:      "search_duration_seconds",
			Help:      "Search execution duration including the first page",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	SubQueryErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedsearch",
			Name:      "subquery_errors_total",
			Help:      "Total number of failed per-resource sub-queries",
		},
		[]string{"backend"},
	)

	SearchPagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fedsearch",
			Name:      "search_pages_total",
			Help:      "Total number of result pages fetched after execution",
		},
	)

	SearchRowsLoadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fedsearch",
			Name:      "search_rows_loaded_total",
			Help:      "Total number of rows merged into result sets",
		},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchExecutionsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SubQueryErrorsTotal)
	prometheus.MustRegister(SearchPagesTotal)
	prometheus.MustRegister(SearchRowsLoadedTotal)
	searchMetricsRegistered = true
}
