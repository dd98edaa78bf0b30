package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomeSuccess   = "success"
)

var (
	// WebhookEventsTotal counts Stripe webhook deliveries by event type and outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prdbuilder",
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Stripe webhook deliveries by event type and outcome.",
	}, []string{"type", "outcome"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "prdbuilder",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})

	// CheckoutSessionsTotal counts checkout session requests by outcome.
	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prdbuilder",
		Subsystem: "billing",
		Name:      "checkout_sessions_total",
		Help:      "Checkout session requests by outcome.",
	}, []string{"outcome"})

	// SyncSubscriptionsTotal counts subscriptions handled by manual sync.
	SyncSubscriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prdbuilder",
		Subsystem: "billing",
		Name:      "sync_subscriptions_total",
		Help:      "Subscriptions processed by manual sync by outcome.",
	}, []string{"outcome"})

	// SubscriptionUpsertsTotal counts subscription upserts by write path.
	SubscriptionUpsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prdbuilder",
		Subsystem: "billing",
		Name:      "subscription_upserts_total",
		Help:      "Subscription upserts by source (checkout, webhook, sync).",
	}, []string{"source"})

	// SubscriptionsByStatus is refreshed from the admin metrics computation.
	SubscriptionsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "prdbuilder",
		Subsystem: "billing",
		Name:      "subscriptions_by_status",
		Help:      "Number of local subscriptions by status.",
	}, []string{"status"})
)
