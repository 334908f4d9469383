package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_mutations_total",
		Help: "Total mutations by entity kind, shape and outcome",
	}, []string{"kind", "shape", "outcome"})

	SchemaDriftRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_schema_drift_retries_total",
		Help: "Total fields stripped from payloads after schema-mismatch errors",
	}, []string{"kind"})

	PendingSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_pending_total",
		Help: "Optimistic writes left pending after commit timeout or retry exhaustion",
	}, []string{"kind"})

	FetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_fetch_latency_seconds",
		Help:    "Latency of entity collection fetches",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	BootstrapOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_bootstrap_outcome_total",
		Help: "Session bootstrap outcomes by authenticity",
	}, []string{"authenticity"})

	UploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_uploads_total",
		Help: "Total asset uploads attempted",
	})

	UploadFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_upload_fallbacks_total",
		Help: "Uploads that fell back to an embedded-data reference",
	}, []string{"reason"})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_settlements_total",
		Help: "Payment settlements by outcome",
	}, []string{"outcome"})

	RealtimeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_realtime_events_total",
		Help: "Remote change notifications applied to the cache",
	}, []string{"kind", "op"})

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
