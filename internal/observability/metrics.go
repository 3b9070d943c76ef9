package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "joloride"

var (
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "claims_total", Help: "Order claim attempts by result"},
		[]string{"result"},
	)
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "order_transitions_total", Help: "Committed order transitions by target status"},
		[]string{"status"},
	)
	TransitionLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "order_transition_latency_seconds", Help: "Order transition latency seconds"})

	LocationSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "location_samples_total", Help: "Location samples received by result"},
		[]string{"result"},
	)
	ReporterForwardFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "reporter_forward_failures_total", Help: "Location samples the reporter failed to deliver"})
	ReporterSamplesTotal    = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "reporter_samples_total", Help: "Position fixes seen by the reporter by source"},
		[]string{"source"},
	)

	TrackingPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "tracking_polls_total", Help: "Tracking consumer polls by result"},
		[]string{"result"},
	)
	TrackingSessions = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "tracking_sessions", Help: "Open live tracking sessions"})

	FeedSignalsDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "feed_signals_dropped_total", Help: "Change signals coalesced because a subscriber already had one pending"})
	FeedPublishErrors  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "feed_publish_errors_total", Help: "Order events that could not be published"})

	PaymentSettlements = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "payment_settlements_total", Help: "Payment settlements by action and result"},
		[]string{"action", "result"},
	)

	ArchivedSamples = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "archived_samples_total", Help: "Location samples archived by the consumer"})
	ArchiveErrors   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "archive_errors_total", Help: "Location samples the consumer failed to archive"})
	InvalidMessages = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "consumer_messages_invalid_total", Help: "Total invalid messages received"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
