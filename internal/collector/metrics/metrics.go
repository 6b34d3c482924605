package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_collector_events_total",
			Help: "Events received, by type and terminal audit status",
		},
		[]string{"event_type", "status"},
	)

	DuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_collector_duplicates_total",
			Help: "Requests short-circuited by the request-id fast path",
		},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hookline_collector_processing_duration_seconds",
			Help:    "Full ingestion duration, audit bookkeeping included",
			Buckets: prometheus.DefBuckets,
		},
	)

	DomainWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_collector_domain_write_errors_total",
			Help: "Domain writes that ended in FAILED or ERROR",
		},
	)

	AuditWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_collector_audit_write_errors_total",
			Help: "Audit row updates that failed",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_collector_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"token"},
	)
)
