package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncRedirectCacheHit()                          {}
func (n *NoopRecorder) IncRedirectCacheMiss()                         {}
func (n *NoopRecorder) ObserveRedirectDuration(duration time.Duration) {}
func (n *NoopRecorder) IncLinkCreated()                                {}
func (n *NoopRecorder) IncLinkUpdated()                                {}
func (n *NoopRecorder) IncLinkDeleted()                                {}
func (n *NoopRecorder) IncAnalyticsEventPublished(status string)       {}
func (n *NoopRecorder) IncAnalyticsEventProcessed(status string)       {}
func (n *NoopRecorder) ObserveAnalyticsBatchSize(size int)             {}
func (n *NoopRecorder) ObserveAnalyticsBatchDuration(duration time.Duration) {}
func (n *NoopRecorder) SetAnalyticsQueueDepth(depth int64)             {}
func (n *NoopRecorder) ObserveAnalyticsIngestLag(lag time.Duration)    {}
func (n *NoopRecorder) IncLLMRequest(status string)                   {}
func (n *NoopRecorder) ObserveLLMDuration(duration time.Duration)      {}
func (n *NoopRecorder) IncMetadataFetch(status string)                {}
func (n *NoopRecorder) IncGeoIPLookup(status string)                  {}
