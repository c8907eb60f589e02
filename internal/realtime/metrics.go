package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	subscriptionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_subscriptions",
			Help: "Currently open realtime subscriptions.",
		},
	)
	publishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_published_total",
			Help: "Envelopes enqueued to subscriptions, by type.",
		},
		[]string{"type"},
	)
	droppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_dropped_total",
			Help: "Envelopes evicted from full subscription queues.",
		},
	)
)

func init() {
	prometheus.MustRegister(subscriptionsGauge, publishedTotal, droppedTotal)
}
