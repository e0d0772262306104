// Package metrics holds the Prometheus instruments shared by the server and
// the worker. Collectors register with the global registry, so importing
// this package is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DispatchSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_dispatch_sent_total",
			Help: "Campaigns delivered to the external sender.",
		})

	DispatchRetryTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_dispatch_retry_total",
			Help: "Send attempts that failed and were rescheduled.",
		})

	DispatchFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_dispatch_failed_total",
			Help: "Campaigns that reached a terminal failed state.",
		})

	QuotaDeferredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_quota_deferred_total",
			Help: "Dispatches pushed back because the tenant daily quota was exhausted.",
		})

	ClaimConflictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_claim_conflict_total",
			Help: "Claims lost to another worker instance.",
		})

	CredentialErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_credential_errors_total",
			Help: "Dispatches failed by credential resolution or decryption errors.",
		})

	SendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaign_send_duration_seconds",
			Help:    "Wall time of external sender calls.",
			Buckets: prometheus.DefBuckets,
		})
)

func init() {
	prometheus.MustRegister(
		DispatchSentTotal,
		DispatchRetryTotal,
		DispatchFailedTotal,
		QuotaDeferredTotal,
		ClaimConflictTotal,
		CredentialErrorsTotal,
		SendDuration,
	)
}
