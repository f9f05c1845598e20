package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SuggestionsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "suggestions_applied_total",
		Help: "Total number of suggestions applied, by suggestion type",
	}, []string{"type"})

	SuggestionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "suggestions_rejected_total",
		Help: "Total number of apply requests rejected before any mutation",
	}, []string{"reason"})

	CompositeProductsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "composite_products_created_total",
		Help: "Total number of bundle and promotion products created",
	}, []string{"product_type"})

	RemoteDriftTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remote_drift_total",
		Help: "Local mutations committed while the matching remote effect failed",
	}, []string{"operation"})

	RemoteCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platform_calls_total",
		Help: "Total number of calls made to remote commerce platforms",
	}, []string{"platform", "operation", "result"})

	RemoteCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platform_call_latency_seconds",
		Help:    "Latency of calls made to remote commerce platforms",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform", "operation"})

	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_runs_total",
		Help: "Total number of catalog synchronization passes",
	}, []string{"status"})

	ProductsSyncedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_products_synced_total",
		Help: "Total number of products upserted by synchronization",
	}, []string{"result"})

	SyncLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_sync_latency_seconds",
		Help:    "Latency of catalog synchronization passes",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
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
