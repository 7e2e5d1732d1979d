// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Redirect metrics
	IncRedirectCacheHit()
	IncRedirectCacheMiss()
	ObserveRedirectDuration(duration time.Duration)

	// Mapping management metrics
	IncLinkCreated()
	IncLinkUpdated()
	IncLinkDeleted()

	// Click-tracking pipeline metrics
	IncAnalyticsEventPublished(status string) // status: "success" or "dropped"
	IncAnalyticsEventProcessed(status string) // status: "success", "failed", "skipped"
	ObserveAnalyticsBatchSize(size int)
	ObserveAnalyticsBatchDuration(duration time.Duration)
	SetAnalyticsQueueDepth(depth int64)
	ObserveAnalyticsIngestLag(lag time.Duration)

	// LLM enrichment metrics
	IncLLMRequest(status string) // status: "cache_hit", "success", "unhealthy", "failed"
	ObserveLLMDuration(duration time.Duration)

	// Metadata fetch metrics
	IncMetadataFetch(status string) // status: "success", "failed"

	// GeoIP lookup metrics
	IncGeoIPLookup(status string) // status: "success", "failed", "skipped"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
