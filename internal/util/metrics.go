package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Total number of webhook deliveries received",
	}, []string{"gateway", "event"})

	WebhookSignatureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_signature_failures_total",
		Help: "Total number of webhook deliveries rejected for bad signature",
	})

	WebhookDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_duplicates_total",
		Help: "Total number of redelivered webhook events folded as no-ops",
	})

	PaymentIntentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intents_total",
		Help: "Total number of gateway payment intents created",
	})

	PaymentsHeldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_held_total",
		Help: "Total number of orders moved into escrow hold",
	})

	PaymentsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Total number of failed gateway payment attempts",
	})

	ReleasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "releases_total",
		Help: "Total number of escrow releases by trigger",
	}, []string{"trigger"})

	ReleaseConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "release_conflicts_total",
		Help: "Total number of release attempts that lost the conditional update",
	})

	PayoutAmountReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_amount_released_total",
		Help: "Total amount (minor units) released to sellers",
	})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Total number of refunds by kind",
	}, []string{"kind"})

	DisputesOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "disputes_opened_total",
		Help: "Total number of disputes opened by buyers",
	})

	DisputesResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "disputes_resolved_total",
		Help: "Total number of disputes resolved by action",
	}, []string{"action"})

	AutoReleaseSweepLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auto_release_sweep_latency_seconds",
		Help:    "Latency of one auto-release sweep pass",
		Buckets: prometheus.DefBuckets,
	})

	AutoReleaseDueOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auto_release_due_orders",
		Help: "Orders past their auto-release deadline seen in the last sweep",
	})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of buyer notifications sent",
	}, []string{"kind", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
