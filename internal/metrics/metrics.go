package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SubscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgcatch_subscriptions_total",
			Help: "Message event subscriptions by operation",
		},
		[]string{"op"}, // created|deleted
	)

	CorrelationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgcatch_correlations_total",
			Help: "Catch point outcomes",
		},
		[]string{"outcome"}, // triggered|cancelled|no_subscription|failed
	)

	OutboxRelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgcatch_outbox_relayed_total",
			Help: "Outbox rows handed to Kafka",
		},
		[]string{"result"}, // published|failed
	)
)

var registerOnce sync.Once

// MustRegister registers collectors once; serve and workers may both call it.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			SubscriptionsTotal,
			CorrelationsTotal,
			OutboxRelayedTotal,
		)
	})
}
