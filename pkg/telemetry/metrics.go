package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Collectors for the sync, live and cache subsystems.
var (
	SyncBatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "borda_sync_batches_total",
		Help: "Cumulative number of sync batches served.",
	}, []string{"collection", "activity", "status"})
	SyncDocumentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "borda_sync_documents_total",
		Help: "Cumulative number of documents shipped over the sync channel.",
	}, []string{"collection", "status"})
	LiveEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "borda_live_events_total",
		Help: "Cumulative number of live events delivered to subscribers.",
	}, []string{"collection", "event"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "borda_cache_hits_total",
		Help: "Cumulative number of query cache hits.",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "borda_cache_misses_total",
		Help: "Cumulative number of query cache misses.",
	})
	CacheInvalidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "borda_cache_invalidations_total",
		Help: "Cumulative number of cache entries invalidated.",
	}, []string{"reason"})
	LiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "borda_live_connections",
		Help: "Number of live websocket connections currently open.",
	})
	LiveWatchers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "borda_live_watchers",
		Help: "Number of change stream watchers currently running.",
	})
)

// MustRegister registers all borda collectors with the default registerer.
// Call once at startup.
func MustRegister() {
	prometheus.MustRegister(
		SyncBatchesTotal,
		SyncDocumentsTotal,
		LiveEventsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheInvalidationsTotal,
		LiveConnections,
		LiveWatchers,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
