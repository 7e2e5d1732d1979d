// Package clicktracker captures click occurrences off the redirect
// hot path and durably records them with device, geo and referrer
// enrichment.
package clicktracker

import "time"

// Snapshot is captured synchronously at redirect time, before the
// 302 is written, so enrichment never delays the response.
type Snapshot struct {
	EffectiveKey string
	ClientIP     string
	UserAgent    string
	Referer      string
	ClickedAt    time.Time
}
