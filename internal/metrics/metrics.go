// Package metrics holds the prometheus collectors of the delivery service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_transitions_total",
			Help: "Committed delivery status changes",
		},
		[]string{"from", "to"},
	)

	Rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_rejections_total",
			Help: "Delivery operations rejected, by reason",
		},
		[]string{"reason"},
	)

	OutboxDispatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dispatch_total",
			Help: "Outbox entries dispatched, by kind and result",
		},
		[]string{"kind", "result"},
	)

	LedgerSubmitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_submit_duration_seconds",
			Help:    "Time spent submitting a ledger transaction until commit",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Transitions, Rejections, OutboxDispatch, LedgerSubmitDuration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
