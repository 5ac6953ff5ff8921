package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "smartreceipt"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// Receipt ingestion metrics
var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of AI scan attempts by outcome",
		},
		[]string{"outcome"}, // success, scan_failed, quota_exceeded
	)

	QuotaDenialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denials_total",
			Help:      "Total number of scan requests denied by the quota gate",
		},
	)

	ScannerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scanner_duration_seconds",
			Help:      "External scanner round-trip time distribution",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 20, 30},
		},
	)
)

// Webhook metrics
var (
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Total number of payment webhook deliveries by result",
		},
		[]string{"provider", "result"}, // accepted, duplicate, invalid_signature, error
	)
)

// Scan outcome label values.
const (
	OutcomeSuccess       = "success"
	OutcomeScanFailed    = "scan_failed"
	OutcomeQuotaExceeded = "quota_exceeded"
)
