package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/penshort/penshort/internal/model"
)

// ClickStore persists click events and answers the analytics
// aggregate queries behind the /analytics endpoint.
type ClickStore struct {
	repo *Repository
}

// NewClickStore returns a ClickStore.
func NewClickStore(repo *Repository) *ClickStore {
	return &ClickStore{repo: repo}
}

// BulkInsert writes a batch of click events idempotently: a retried
// delivery of the same event_id is silently absorbed rather than
// double-counted.
func (s *ClickStore) BulkInsert(ctx context.Context, events []*model.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO click_events (
			event_id, mapping_id, short_key, client_ip, user_agent, referer,
			browser_name, browser_version, os_name, os_version, device_type,
			country_code, country_name, city, region, timezone,
			clicked_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, e := range events {
		batch.Queue(query,
			e.EventID, e.MappingID, e.ShortKey, e.ClientIP, e.UserAgent, e.Referer,
			e.BrowserName, e.BrowserVer, e.OSName, e.OSVersion, string(e.DeviceType),
			e.CountryCode, e.CountryName, e.City, e.Region, e.Timezone,
			e.ClickedAt,
		)
	}

	br := s.repo.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("bulk insert click events: %w", err)
		}
	}
	return nil
}

// GetAnalyticsSummary returns the total and unique-visitor click
// counts for shortKey over the trailing window.
func (s *ClickStore) GetAnalyticsSummary(ctx context.Context, shortKey string, days int) (*model.AnalyticsSummary, error) {
	query := `
		SELECT COUNT(*), COUNT(DISTINCT client_ip)
		FROM click_events
		WHERE short_key = $1 AND clicked_at >= NOW() - ($2 || ' days')::interval
	`
	var summary model.AnalyticsSummary
	err := s.repo.pool.QueryRow(ctx, query, shortKey, days).Scan(&summary.TotalClicks, &summary.UniqueVisitors)
	if err != nil {
		return nil, fmt.Errorf("get analytics summary: %w", err)
	}
	summary.ShortKey = shortKey
	summary.WindowDays = days
	return &summary, nil
}

// GetDeviceBreakdown groups clicks by device type over the window.
func (s *ClickStore) GetDeviceBreakdown(ctx context.Context, shortKey string, days int) ([]model.DeviceBreakdown, error) {
	query := `
		SELECT device_type, COUNT(*)
		FROM click_events
		WHERE short_key = $1 AND clicked_at >= NOW() - ($2 || ' days')::interval
		GROUP BY device_type
		ORDER BY COUNT(*) DESC
	`
	rows, err := s.repo.pool.Query(ctx, query, shortKey, days)
	if err != nil {
		return nil, fmt.Errorf("get device breakdown: %w", err)
	}
	defer rows.Close()

	var out []model.DeviceBreakdown
	for rows.Next() {
		var b model.DeviceBreakdown
		var deviceType string
		if err := rows.Scan(&deviceType, &b.Clicks); err != nil {
			return nil, fmt.Errorf("scan device breakdown: %w", err)
		}
		b.DeviceType = model.DeviceType(deviceType)
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetReferrerBreakdown groups clicks by referrer domain over the
// window. The referer column holds the full sanitized referer (query
// and fragment stripped, but scheme/host/path intact); domain
// extraction happens here, at read time, so the raw value stays
// available for any future breakdown that needs it.
func (s *ClickStore) GetReferrerBreakdown(ctx context.Context, shortKey string, days int, limit int) ([]model.ReferrerBreakdown, error) {
	query := `
		SELECT referer
		FROM click_events
		WHERE short_key = $1 AND clicked_at >= NOW() - ($2 || ' days')::interval
	`
	rows, err := s.repo.pool.Query(ctx, query, shortKey, days)
	if err != nil {
		return nil, fmt.Errorf("get referrer breakdown: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var referer string
		if err := rows.Scan(&referer); err != nil {
			return nil, fmt.Errorf("scan referrer breakdown: %w", err)
		}
		domain := model.ExtractRefererDomain(referer)
		if domain == "" {
			domain = "direct"
		}
		counts[domain]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.ReferrerBreakdown, 0, len(counts))
	for domain, clicks := range counts {
		out = append(out, model.ReferrerBreakdown{Domain: domain, Clicks: int64(clicks)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Clicks > out[j].Clicks })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetCountryBreakdown groups clicks by resolved country over the
// window.
func (s *ClickStore) GetCountryBreakdown(ctx context.Context, shortKey string, days int, limit int) ([]model.CountryBreakdown, error) {
	query := `
		SELECT COALESCE(NULLIF(country_code, ''), 'XX'), COALESCE(NULLIF(country_name, ''), 'Unknown'), COUNT(*)
		FROM click_events
		WHERE short_key = $1 AND clicked_at >= NOW() - ($2 || ' days')::interval
		GROUP BY country_code, country_name
		ORDER BY COUNT(*) DESC
		LIMIT $3
	`
	rows, err := s.repo.pool.Query(ctx, query, shortKey, days, limit)
	if err != nil {
		return nil, fmt.Errorf("get country breakdown: %w", err)
	}
	defer rows.Close()

	var out []model.CountryBreakdown
	for rows.Next() {
		var b model.CountryBreakdown
		if err := rows.Scan(&b.Code, &b.Name, &b.Clicks); err != nil {
			return nil, fmt.Errorf("scan country breakdown: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
