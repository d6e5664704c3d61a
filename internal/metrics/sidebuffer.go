package metrics

import "github.com/prometheus/client_golang/prometheus"

// Side buffer Prometheus metrics.
var (
	SideBufferPutTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedsearch",
			Name:      "sidebuffer_put_total",
			Help:      "Result sets put aside",
		},
		[]string{"result"}, // stored / remapped / collision
	)

	SideBufferReintegrateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedsearch",
			Name:      "sidebuffer_reintegrate_total",
			Help:      "Reintegration attempts by outcome",
		},
		[]string{"result"}, // hit / absent / expired / owner / error
	)

	SideBufferSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fedsearch",
			Name:      "sidebuffer_swept_total",
			Help:      "Expired side buffer entries reclaimed by the sweeper",
		},
	)
)

var sideBufferMetricsRegistered bool

// RegisterSideBufferMetrics registers Prometheus side buffer metrics. Must be called once from main.
func RegisterSideBufferMetrics() {
	if sideBufferMetricsRegistered {
		return
	}
	prometheus.MustRegister(SideBufferPutTotal)
	prometheus.MustRegister(SideBufferReintegrateTotal)
	prometheus.MustRegister(SideBufferSweptTotal)
	sideBufferMetricsRegistered = true
}
