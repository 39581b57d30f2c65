package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_created_total",
		Help: "Total number of checkout sessions created",
	})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of failed checkout attempts",
	}, []string{"reason"})

	VouchersImportedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vouchers_imported_total",
		Help: "Total number of voucher codes imported",
	})

	VouchersClaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vouchers_claimed_total",
		Help: "Total number of vouchers atomically claimed",
	})

	ClaimsExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claims_exhausted_total",
		Help: "Total number of claim attempts that found no available voucher",
	})

	ClaimLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voucher_claim_latency_seconds",
		Help:    "Latency of the atomic voucher claim statement",
		Buckets: prometheus.DefBuckets,
	})

	FulfillmentCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_completed_total",
		Help: "Total number of transactions fulfilled end to end",
	})

	FulfillmentFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_failed_total",
		Help: "Total number of paid transactions with no inventory to deliver",
	})

	FulfillmentDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_degraded_total",
		Help: "Total number of transactions where the claim succeeded but delivery failed",
	})

	FulfillmentSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_skipped_total",
		Help: "Total number of redelivered payment events skipped as already processed",
	})

	DeliveryAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_attempts_total",
		Help: "Total number of voucher email delivery attempts",
	})

	DeliveryFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_failed_total",
		Help: "Total number of failed voucher email delivery attempts",
	})

	DeliveryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "delivery_latency_seconds",
		Help:    "Latency of voucher email delivery",
		Buckets: prometheus.DefBuckets,
	})

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
