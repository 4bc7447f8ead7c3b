package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	engineLoadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "engine",
			Name:      "loads_total",
			Help:      "Total engine loads (idempotent hits excluded)",
		},
	)

	engineUnloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "engine",
			Name:      "unloads_total",
			Help:      "Total engine unloads, explicit or via swap/failure",
		},
	)

	gateWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chatd",
			Subsystem: "engine",
			Name:      "gate_wait_seconds",
			Help:      "Time spent waiting for the inference gate before admission",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(engineLoadsTotal, engineUnloadsTotal, gateWaitSeconds)
}
