package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	RedirectCacheHits       uint64
	RedirectCacheMisses     uint64
	RedirectDurationCount   uint64
	RedirectDurationTotalNs int64
	LinksCreated            uint64
	LinksUpdated            uint64
	LinksDeleted            uint64

	AnalyticsEventsPublished        uint64
	AnalyticsEventsDropped          uint64
	AnalyticsEventsProcessed        uint64
	AnalyticsEventsProcessedFailed  uint64
	AnalyticsEventsProcessedSkipped uint64
	AnalyticsBatchCount             uint64
	AnalyticsQueueDepth             int64
	AnalyticsBatchDurationCount     uint64
	AnalyticsBatchDurationTotalNs   int64
	AnalyticsIngestLagCount         uint64
	AnalyticsIngestLagTotalNs       int64

	LLMRequestsCacheHit     uint64
	LLMRequestsSuccess      uint64
	LLMRequestsUnhealthy    uint64
	LLMRequestsFailed       uint64
	LLMDurationCount        uint64
	LLMDurationTotalNs      int64

	MetadataFetchSuccess uint64
	MetadataFetchFailed  uint64

	GeoIPLookupSuccess uint64
	GeoIPLookupFailed  uint64
	GeoIPLookupSkipped uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	redirectCacheHits       uint64
	redirectCacheMisses     uint64
	redirectDurationCount   uint64
	redirectDurationTotalNs int64
	linksCreated            uint64
	linksUpdated            uint64
	linksDeleted            uint64

	analyticsEventsPublished      uint64
	analyticsEventsDropped        uint64
	analyticsEventsProcessed      uint64
	analyticsEventsFailed         uint64
	analyticsEventsSkipped        uint64
	analyticsBatchCount           uint64
	analyticsQueueDepth           int64
	analyticsBatchDurationCount   uint64
	analyticsBatchDurationTotalNs int64
	analyticsIngestLagCount       uint64
	analyticsIngestLagTotalNs     int64

	llmRequestsCacheHit  uint64
	llmRequestsSuccess   uint64
	llmRequestsUnhealthy uint64
	llmRequestsFailed    uint64
	llmDurationCount     uint64
	llmDurationTotalNs   int64

	metadataFetchSuccess uint64
	metadataFetchFailed  uint64

	geoIPLookupSuccess uint64
	geoIPLookupFailed  uint64
	geoIPLookupSkipped uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		RedirectCacheHits:               atomic.LoadUint64(&m.redirectCacheHits),
		RedirectCacheMisses:             atomic.LoadUint64(&m.redirectCacheMisses),
		RedirectDurationCount:           atomic.LoadUint64(&m.redirectDurationCount),
		RedirectDurationTotalNs:         atomic.LoadInt64(&m.redirectDurationTotalNs),
		LinksCreated:                    atomic.LoadUint64(&m.linksCreated),
		LinksUpdated:                    atomic.LoadUint64(&m.linksUpdated),
		LinksDeleted:                    atomic.LoadUint64(&m.linksDeleted),
		AnalyticsEventsPublished:        atomic.LoadUint64(&m.analyticsEventsPublished),
		AnalyticsEventsDropped:          atomic.LoadUint64(&m.analyticsEventsDropped),
		AnalyticsEventsProcessed:        atomic.LoadUint64(&m.analyticsEventsProcessed),
		AnalyticsEventsProcessedFailed:  atomic.LoadUint64(&m.analyticsEventsFailed),
		AnalyticsEventsProcessedSkipped: atomic.LoadUint64(&m.analyticsEventsSkipped),
		AnalyticsBatchCount:             atomic.LoadUint64(&m.analyticsBatchCount),
		AnalyticsQueueDepth:             atomic.LoadInt64(&m.analyticsQueueDepth),
		AnalyticsBatchDurationCount:     atomic.LoadUint64(&m.analyticsBatchDurationCount),
		AnalyticsBatchDurationTotalNs:   atomic.LoadInt64(&m.analyticsBatchDurationTotalNs),
		AnalyticsIngestLagCount:         atomic.LoadUint64(&m.analyticsIngestLagCount),
		AnalyticsIngestLagTotalNs:       atomic.LoadInt64(&m.analyticsIngestLagTotalNs),
		LLMRequestsCacheHit:             atomic.LoadUint64(&m.llmRequestsCacheHit),
		LLMRequestsSuccess:              atomic.LoadUint64(&m.llmRequestsSuccess),
		LLMRequestsUnhealthy:            atomic.LoadUint64(&m.llmRequestsUnhealthy),
		LLMRequestsFailed:               atomic.LoadUint64(&m.llmRequestsFailed),
		LLMDurationCount:                atomic.LoadUint64(&m.llmDurationCount),
		LLMDurationTotalNs:              atomic.LoadInt64(&m.llmDurationTotalNs),
		MetadataFetchSuccess:            atomic.LoadUint64(&m.metadataFetchSuccess),
		MetadataFetchFailed:             atomic.LoadUint64(&m.metadataFetchFailed),
		GeoIPLookupSuccess:              atomic.LoadUint64(&m.geoIPLookupSuccess),
		GeoIPLookupFailed:               atomic.LoadUint64(&m.geoIPLookupFailed),
		GeoIPLookupSkipped:              atomic.LoadUint64(&m.geoIPLookupSkipped),
	}
}

// IncRedirectCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncRedirectCacheHit() {
	atomic.AddUint64(&m.redirectCacheHits, 1)
}

// IncRedirectCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncRedirectCacheMiss() {
	atomic.AddUint64(&m.redirectCacheMisses, 1)
}

// ObserveRedirectDuration records redirect duration.
func (m *InMemoryRecorder) ObserveRedirectDuration(duration time.Duration) {
	atomic.AddUint64(&m.redirectDurationCount, 1)
	atomic.AddInt64(&m.redirectDurationTotalNs, duration.Nanoseconds())
}

// IncLinkCreated increments mapping created counter.
func (m *InMemoryRecorder) IncLinkCreated() {
	atomic.AddUint64(&m.linksCreated, 1)
}

// IncLinkUpdated increments mapping updated counter.
func (m *InMemoryRecorder) IncLinkUpdated() {
	atomic.AddUint64(&m.linksUpdated, 1)
}

// IncLinkDeleted increments mapping deleted counter.
func (m *InMemoryRecorder) IncLinkDeleted() {
	atomic.AddUint64(&m.linksDeleted, 1)
}

// IncAnalyticsEventPublished increments event published counter.
func (m *InMemoryRecorder) IncAnalyticsEventPublished(status string) {
	if status == "success" {
		atomic.AddUint64(&m.analyticsEventsPublished, 1)
	} else {
		atomic.AddUint64(&m.analyticsEventsDropped, 1)
	}
}

// IncAnalyticsEventProcessed increments event processed counter.
func (m *InMemoryRecorder) IncAnalyticsEventProcessed(status string) {
	switch status {
	case "success":
		atomic.AddUint64(&m.analyticsEventsProcessed, 1)
	case "failed":
		atomic.AddUint64(&m.analyticsEventsFailed, 1)
	case "skipped":
		atomic.AddUint64(&m.analyticsEventsSkipped, 1)
	}
}

// ObserveAnalyticsBatchSize records batch size.
func (m *InMemoryRecorder) ObserveAnalyticsBatchSize(size int) {
	atomic.AddUint64(&m.analyticsBatchCount, 1)
}

// ObserveAnalyticsBatchDuration records batch processing time.
func (m *InMemoryRecorder) ObserveAnalyticsBatchDuration(duration time.Duration) {
	atomic.AddUint64(&m.analyticsBatchDurationCount, 1)
	atomic.AddInt64(&m.analyticsBatchDurationTotalNs, duration.Nanoseconds())
}

// SetAnalyticsQueueDepth sets the current queue depth.
func (m *InMemoryRecorder) SetAnalyticsQueueDepth(depth int64) {
	atomic.StoreInt64(&m.analyticsQueueDepth, depth)
}

// ObserveAnalyticsIngestLag records ingest lag.
func (m *InMemoryRecorder) ObserveAnalyticsIngestLag(lag time.Duration) {
	atomic.AddUint64(&m.analyticsIngestLagCount, 1)
	atomic.AddInt64(&m.analyticsIngestLagTotalNs, lag.Nanoseconds())
}

// IncLLMRequest increments the LLM request counter by outcome.
func (m *InMemoryRecorder) IncLLMRequest(status string) {
	switch status {
	case "cache_hit":
		atomic.AddUint64(&m.llmRequestsCacheHit, 1)
	case "success":
		atomic.AddUint64(&m.llmRequestsSuccess, 1)
	case "unhealthy":
		atomic.AddUint64(&m.llmRequestsUnhealthy, 1)
	case "failed":
		atomic.AddUint64(&m.llmRequestsFailed, 1)
	}
}

// ObserveLLMDuration records LLM completion latency.
func (m *InMemoryRecorder) ObserveLLMDuration(duration time.Duration) {
	atomic.AddUint64(&m.llmDurationCount, 1)
	atomic.AddInt64(&m.llmDurationTotalNs, duration.Nanoseconds())
}

// IncMetadataFetch increments the metadata fetch counter by outcome.
func (m *InMemoryRecorder) IncMetadataFetch(status string) {
	if status == "success" {
		atomic.AddUint64(&m.metadataFetchSuccess, 1)
	} else {
		atomic.AddUint64(&m.metadataFetchFailed, 1)
	}
}

// IncGeoIPLookup increments the GeoIP lookup counter by outcome.
func (m *InMemoryRecorder) IncGeoIPLookup(status string) {
	switch status {
	case "success":
		atomic.AddUint64(&m.geoIPLookupSuccess, 1)
	case "skipped":
		atomic.AddUint64(&m.geoIPLookupSkipped, 1)
	default:
		atomic.AddUint64(&m.geoIPLookupFailed, 1)
	}
}
