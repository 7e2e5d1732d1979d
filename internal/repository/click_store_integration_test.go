//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/penshort/penshort/internal/model"
	"github.com/penshort/penshort/internal/testutil"
)

func newClickStoreTestEnv(t *testing.T) (context.Context, *MappingStore, *ClickStore) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := testutil.ResetMappingsSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset mappings schema: %v", err)
	}
	if err := testutil.ResetClickEventsSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset click events schema: %v", err)
	}

	return ctx, NewMappingStore(repo), NewClickStore(repo)
}

func insertTestMapping(ctx context.Context, t *testing.T, mappings *MappingStore, shortKey string) int64 {
	t.Helper()
	m := testutil.NewTestMapping(t, shortKey)
	if err := mappings.Insert(ctx, m); err != nil {
		t.Fatalf("insert mapping: %v", err)
	}
	return m.ID
}

func TestIntegrationClickStore_BulkInsertIsIdempotent(t *testing.T) {
	ctx, mappings, clicks := newClickStoreTestEnv(t)

	shortKey := testutil.UniqueShortKey("clk")
	mappingID := insertTestMapping(ctx, t, mappings, shortKey)

	event := testutil.NewTestClickEvent(t, mappingID, shortKey)
	if err := clicks.BulkInsert(ctx, []*model.ClickEvent{event}); err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}
	// Redelivery of the same event_id (a Redis Streams retry after a
	// crashed ack) must not double-count.
	if err := clicks.BulkInsert(ctx, []*model.ClickEvent{event}); err != nil {
		t.Fatalf("BulkInsert() retry error = %v", err)
	}

	summary, err := clicks.GetAnalyticsSummary(ctx, shortKey, 30)
	if err != nil {
		t.Fatalf("GetAnalyticsSummary() error = %v", err)
	}
	if summary.TotalClicks != 1 {
		t.Errorf("TotalClicks = %d, want 1 after duplicate delivery", summary.TotalClicks)
	}
}

func TestIntegrationClickStore_BreakdownsReflectInsertedEvents(t *testing.T) {
	ctx, mappings, clicks := newClickStoreTestEnv(t)

	shortKey := testutil.UniqueShortKey("clk")
	mappingID := insertTestMapping(ctx, t, mappings, shortKey)

	events := []*model.ClickEvent{
		testutil.NewTestClickEvent(t, mappingID, shortKey),
		testutil.NewTestClickEvent(t, mappingID, shortKey),
	}
	events[0].CountryCode, events[0].CountryName = "US", "United States"
	events[0].Referer = "https://news.example.com/front-page"
	events[1].CountryCode, events[1].CountryName = "DE", "Germany"
	events[1].Referer = "https://news.example.com/world"

	if err := clicks.BulkInsert(ctx, events); err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}

	countries, err := clicks.GetCountryBreakdown(ctx, shortKey, 30, 10)
	if err != nil {
		t.Fatalf("GetCountryBreakdown() error = %v", err)
	}
	if len(countries) != 2 {
		t.Fatalf("len(countries) = %d, want 2", len(countries))
	}

	referrers, err := clicks.GetReferrerBreakdown(ctx, shortKey, 30, 10)
	if err != nil {
		t.Fatalf("GetReferrerBreakdown() error = %v", err)
	}
	if len(referrers) != 1 {
		t.Fatalf("len(referrers) = %d, want 1 distinct domain", len(referrers))
	}
	if referrers[0].Domain != "news.example.com" {
		t.Errorf("referrer domain = %q, want news.example.com", referrers[0].Domain)
	}

	devices, err := clicks.GetDeviceBreakdown(ctx, shortKey, 30)
	if err != nil {
		t.Fatalf("GetDeviceBreakdown() error = %v", err)
	}
	if len(devices) != 1 || devices[0].DeviceType != model.DeviceDesktop {
		t.Errorf("devices = %+v, want a single desktop bucket", devices)
	}
}
