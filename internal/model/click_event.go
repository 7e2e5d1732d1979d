// Package model defines domain entities for the application.
package model

import "time"

// DeviceType classifies the device that issued a click.
type DeviceType string

const (
	DeviceDesktop DeviceType = "Desktop"
	DeviceMobile  DeviceType = "Mobile"
	DeviceTablet  DeviceType = "Tablet"
	DeviceBot     DeviceType = "Bot"
	DeviceUnknown DeviceType = "Unknown"
)

// ClickEvent is an append-only record of a single redirect occurrence.
type ClickEvent struct {
	ID      string `json:"id"`       // ULID (time-sortable)
	EventID string `json:"event_id"` // idempotency key (Redis stream ID)

	MappingID int64  `json:"mapping_id"` // FK to mappings.id
	ShortKey  string `json:"short_key"`

	ClientIP  string `json:"client_ip,omitempty"` // ≤45 chars, IPv4/IPv6 string
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"` // raw, query/fragment-stripped; domain extraction happens at read time

	BrowserName string     `json:"browser_name,omitempty"`
	BrowserVer  string     `json:"browser_version,omitempty"`
	OSName      string     `json:"os_name,omitempty"`
	OSVersion   string     `json:"os_version,omitempty"`
	DeviceType  DeviceType `json:"device_type"`

	CountryCode string `json:"country_code,omitempty"` // ISO 3166-1 alpha-2
	CountryName string `json:"country_name,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	Timezone    string `json:"timezone,omitempty"`

	ClickedAt time.Time `json:"clicked_at"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalyticsSummary represents aggregated analytics for the API response.
type AnalyticsSummary struct {
	ShortKey       string `json:"short_key"`
	WindowDays     int    `json:"window_days"`
	TotalClicks    int64  `json:"total_clicks"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// AnalyticsResponse represents the full analytics API response.
type AnalyticsResponse struct {
	ShortKey string `json:"short_key"`
	Period   struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"period"`
	Summary   AnalyticsSummary `json:"summary"`
	Breakdown struct {
		Devices   []DeviceBreakdown   `json:"devices,omitempty"`
		Referrers []ReferrerBreakdown `json:"referrers,omitempty"`
		Countries []CountryBreakdown  `json:"countries,omitempty"`
	} `json:"breakdown"`
	GeneratedAt time.Time `json:"generated_at"`
}

// DeviceBreakdown represents clicks from a device type.
type DeviceBreakdown struct {
	DeviceType DeviceType `json:"device_type"`
	Clicks     int64      `json:"clicks"`
}

// ReferrerBreakdown represents clicks from a referrer domain.
type ReferrerBreakdown struct {
	Domain string `json:"domain"`
	Clicks int64  `json:"clicks"`
}

// CountryBreakdown represents clicks from a country.
type CountryBreakdown struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Clicks int64  `json:"clicks"`
}
