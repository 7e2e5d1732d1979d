package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/penshort/penshort/internal/cache"
	"github.com/penshort/penshort/internal/clicktracker"
	"github.com/penshort/penshort/internal/config"
	"github.com/penshort/penshort/internal/handler/dto"
	"github.com/penshort/penshort/internal/metrics"
	"github.com/penshort/penshort/internal/repository"
	"github.com/penshort/penshort/internal/security"
	"github.com/penshort/penshort/internal/service"
	"github.com/penshort/penshort/internal/testutil"
)

func TestIntegrationRedirect_CacheMissThenHit(t *testing.T) {
	ctx, mappings, cacheClient, recorder, router := newRedirectTestEnv(t)

	key := testutil.UniqueShortKey("cache")
	m := testutil.NewTestMapping(t, key)
	m.Destination = "https://example.com/cache"
	if err := mappings.Insert(ctx, m); err != nil {
		t.Fatalf("insert mapping: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/"+key, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != int(m.RedirectType) {
		t.Fatalf("expected status %d, got %d", m.RedirectType, rec.Code)
	}
	if location := rec.Header().Get("Location"); location != m.Destination {
		t.Fatalf("expected Location %q, got %q", m.Destination, location)
	}
	if rec.Header().Get("Cache-Control") != "no-cache, no-store, must-revalidate" {
		t.Errorf("unexpected Cache-Control: %q", rec.Header().Get("Cache-Control"))
	}

	snap := recorder.Snapshot()
	if snap.RedirectCacheMisses != 1 || snap.RedirectCacheHits != 0 {
		t.Fatalf("unexpected cache counters: hits=%d misses=%d", snap.RedirectCacheHits, snap.RedirectCacheMisses)
	}

	if _, err := cacheClient.GetMapping(ctx, key); err != nil {
		t.Fatalf("expected cached mapping, got %v", err)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/"+key, nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)

	if rec2.Code != int(m.RedirectType) {
		t.Fatalf("expected status %d, got %d", m.RedirectType, rec2.Code)
	}

	snap2 := recorder.Snapshot()
	if snap2.RedirectCacheHits != 1 || snap2.RedirectCacheMisses != 1 {
		t.Fatalf("unexpected cache counters after hit: hits=%d misses=%d", snap2.RedirectCacheHits, snap2.RedirectCacheMisses)
	}
}

func TestIntegrationRedirect_Missing(t *testing.T) {
	_, _, _, _, router := newRedirectTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestIntegrationRedirect_Expired(t *testing.T) {
	ctx, mappings, _, _, router := newRedirectTestEnv(t)

	key := testutil.UniqueShortKey("expired")
	past := time.Now().UTC().Add(-time.Minute)
	m := testutil.NewTestMappingWithExpiry(t, key, past)
	if err := mappings.Insert(ctx, m); err != nil {
		t.Fatalf("insert mapping: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/"+key, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", rec.Code)
	}

	var payload dto.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "EXPIRED" {
		t.Fatalf("expected EXPIRED, got %q", payload.Code)
	}
}

func TestIntegrationRedirect_Inactive(t *testing.T) {
	ctx, mappings, _, _, router := newRedirectTestEnv(t)

	key := testutil.UniqueShortKey("inactive")
	m := testutil.NewTestMapping(t, key)
	m.IsActive = false
	if err := mappings.Insert(ctx, m); err != nil {
		t.Fatalf("insert mapping: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/"+key, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestIntegrationRedirect_PasswordGate(t *testing.T) {
	ctx, mappings, cacheClient, _, router := newRedirectTestEnv(t)

	guard := security.NewPasswordGuard()
	hash, err := guard.Hash("hunter2")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	key := testutil.UniqueShortKey("gated")
	m := testutil.NewTestMapping(t, key)
	m.Destination = "https://secret.test"
	m.PasswordHash = hash
	if err := mappings.Insert(ctx, m); err != nil {
		t.Fatalf("insert mapping: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/"+key, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no password: expected 401, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/"+key+"?password=wrong", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", rec2.Code)
	}

	req3 := httptest.NewRequest(http.MethodGet, "/"+key+"?password=hunter2", nil)
	rec3 := httptest.NewRecorder()
	router.ServeHTTP(rec3, req3)
	if rec3.Code != http.StatusFound {
		t.Fatalf("correct password: expected 302, got %d", rec3.Code)
	}
	if rec3.Header().Get("Location") != m.Destination {
		t.Errorf("unexpected Location: %q", rec3.Header().Get("Location"))
	}

	if _, err := cacheClient.GetMapping(ctx, key); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("gated mapping must never be cached, got %v", err)
	}
}

func TestIntegrationRedirect_Unlock(t *testing.T) {
	ctx, mappings, _, _, router := newRedirectTestEnv(t)

	guard := security.NewPasswordGuard()
	hash, err := guard.Hash("swordfish")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	key := testutil.UniqueShortKey("unlock")
	m := testutil.NewTestMapping(t, key)
	m.Destination = "https://secret.test/unlock"
	m.PasswordHash = hash
	if err := mappings.Insert(ctx, m); err != nil {
		t.Fatalf("insert mapping: %v", err)
	}

	body := `{"password":"swordfish"}`
	req := httptest.NewRequest(http.MethodPost, "/"+key+"/unlock", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if rec.Header().Get("Location") != m.Destination {
		t.Errorf("unexpected Location: %q", rec.Header().Get("Location"))
	}
}

func TestIntegrationRedirect_ExpiryBoundaryTime(t *testing.T) {
	ctx, mappings, _, _, router := newRedirectTestEnv(t)

	key := testutil.UniqueShortKey("boundary")
	expiry := time.Now().UTC().Add(500 * time.Millisecond)
	m := testutil.NewTestMappingWithExpiry(t, key, expiry)
	m.Destination = "https://example.com/boundary"
	if err := mappings.Insert(ctx, m); err != nil {
		t.Fatalf("insert mapping: %v", err)
	}

	req1 := httptest.NewRequest(http.MethodGet, "/"+key, nil)
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusFound {
		t.Errorf("before expiry: expected 302, got %d", rec1.Code)
	}

	time.Sleep(600 * time.Millisecond)

	req2 := httptest.NewRequest(http.MethodGet, "/"+key, nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusGone {
		t.Errorf("after expiry: expected 410, got %d", rec2.Code)
	}
}

func newRedirectTestEnv(t *testing.T) (context.Context, *repository.MappingStore, *cache.Cache, *metrics.InMemoryRecorder, *chi.Mux) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	repo, err := repository.New(ctx, dbURL)
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
		t.Fatalf("reset schema: %v", err)
	}

	cacheClient, err := cache.New(ctx, redisURL, 0, 0)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = cacheClient.Close() })
	if err := testutil.FlushRedis(ctx, cacheClient.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	mappings := repository.NewMappingStore(repo)
	recorder := metrics.NewInMemory()
	cfg := &config.Config{HotCacheTTLHours: 24}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	resolver := service.NewResolver(mappings, cacheClient, security.NewPasswordGuard(), cfg, logger, recorder)
	tracker := clicktracker.NewTracker(cacheClient.Client(), logger, recorder)
	redirectHandler := NewRedirectHandler(resolver, tracker, logger)

	router := chi.NewRouter()
	router.Get("/{key}", redirectHandler.Redirect)
	router.Post("/{key}/unlock", redirectHandler.Unlock)

	return ctx, mappings, cacheClient, recorder, router
}
