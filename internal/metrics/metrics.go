// Package metrics registers the Prometheus instruments for the webhook
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhook_webhooks_received_total",
			Help: "inbound webhook deliveries by provider",
		},
		[]string{"provider"},
	)

	WebhooksRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhook_webhooks_rejected_total",
			Help: "webhook deliveries rejected before processing",
		},
		[]string{"provider", "reason"},
	)

	OrdersConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhook_orders_confirmed_total",
			Help: "orders transitioned pending to paid",
		},
		[]string{"provider"},
	)

	DuplicateDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhook_duplicate_deliveries_total",
			Help: "deliveries short-circuited as already processed",
		},
		[]string{"provider"},
	)

	AmountAdvisories = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhook_amount_advisories_total",
			Help: "amount mismatches beyond tolerance recorded for review",
		},
		[]string{"provider"},
	)

	FulfillmentStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhook_fulfillment_step_failures_total",
			Help: "post-confirmation fulfillment steps that failed",
		},
		[]string{"step"},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhook_notifications_sent_total",
			Help: "notification channel attempts by outcome",
		},
		[]string{"channel", "outcome"},
	)
)

// Register installs all pipeline metrics on the default registry.
func Register() {
	prometheus.MustRegister(
		WebhooksReceived,
		WebhooksRejected,
		OrdersConfirmed,
		DuplicateDeliveries,
		AmountAdvisories,
		FulfillmentStepFailures,
		NotificationsSent,
	)
}
