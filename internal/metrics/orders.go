package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		orderTransitionsTotal,
		providerCallsTotal,
		providerCallLatencyMs,
	)
}

var (
	orderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions by source and target status.",
		},
		[]string{"from", "to"},
	)

	providerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_calls_total",
			Help: "Calls to upstream providers and functions by action and success.",
		},
		[]string{"action", "success"},
	)

	providerCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_latency_ms",
			Help:    "Upstream call latency distribution in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"action"},
	)
)

func IncTransition(from, to string) {
	orderTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

// ObserveCall учитывает один вызов внешней системы.
func ObserveCall(action string, started time.Time, err error) {
	a := norm(action)
	providerCallsTotal.WithLabelValues(a, strconv.FormatBool(err == nil)).Inc()
	providerCallLatencyMs.WithLabelValues(a).Observe(float64(time.Since(started).Milliseconds()))
}
