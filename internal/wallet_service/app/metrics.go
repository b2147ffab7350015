package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fundingEventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "funding_events_total",
			Help:      "Total payment gateway webhook events processed.",
		},
		[]string{"gateway", "status"}, // status: credited, duplicate, ignored, reconciliation_required, signature_invalid, error
	)

	purchasesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "purchases_total",
			Help:      "Total purchase attempts by outcome.",
		},
		[]string{"service_type", "outcome"},
	)

	providerRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wallet",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of HTTP requests to the VTU provider.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider_name"},
	)

	ledgerMutationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "ledger_mutations_total",
			Help:      "Total committed ledger entries.",
		},
		[]string{"kind", "category"},
	)

	pinLockoutsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "pin_lockouts_total",
			Help:      "Total PIN lockouts triggered.",
		},
	)
)
