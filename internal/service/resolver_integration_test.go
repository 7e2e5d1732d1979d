//go:build integration

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/penshort/penshort/internal/cache"
	"github.com/penshort/penshort/internal/config"
	"github.com/penshort/penshort/internal/metrics"
	"github.com/penshort/penshort/internal/model"
	"github.com/penshort/penshort/internal/repository"
	"github.com/penshort/penshort/internal/security"
	"github.com/penshort/penshort/internal/testutil"
)

func newResolverTestEnv(t *testing.T) (context.Context, *repository.MappingStore, *Resolver) {
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
		t.Fatalf("reset mappings schema: %v", err)
	}

	redisCache, err := cache.New(ctx, redisURL, 0, 0)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = redisCache.Close() })
	if err := testutil.FlushRedis(ctx, redisCache.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	mappings := repository.NewMappingStore(repo)
	cfg := &config.Config{HotCacheTTLHours: 24}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := NewResolver(mappings, redisCache, security.NewPasswordGuard(), cfg, logger, metrics.NewNoop())

	return ctx, mappings, resolver
}

func insertTestMapping(ctx context.Context, t *testing.T, mappings *repository.MappingStore, m *model.Mapping) *model.Mapping {
	t.Helper()
	if err := mappings.Insert(ctx, m); err != nil {
		t.Fatalf("insert mapping: %v", err)
	}
	return m
}

func TestIntegrationResolve_OpenMapping_CacheMissThenHit(t *testing.T) {
	ctx, mappings, resolver := newResolverTestEnv(t)

	key := testutil.UniqueShortKey("open")
	m := testutil.NewTestMapping(t, key)
	m.Destination = "https://example.com/open"
	insertTestMapping(ctx, t, mappings, m)

	resolved, cacheHit, err := resolver.Resolve(ctx, key, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cacheHit {
		t.Error("first resolve should be a cache miss")
	}
	if resolved.Destination != "https://example.com/open" {
		t.Errorf("Destination = %q", resolved.Destination)
	}

	_, cacheHit2, err := resolver.Resolve(ctx, key, "")
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if !cacheHit2 {
		t.Error("second resolve should be a cache hit")
	}
}

func TestIntegrationResolve_Missing(t *testing.T) {
	ctx, _, resolver := newResolverTestEnv(t)

	_, _, err := resolver.Resolve(ctx, "does-not-exist", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrNotFound", err)
	}
}

func TestIntegrationResolve_Inactive(t *testing.T) {
	ctx, mappings, resolver := newResolverTestEnv(t)

	key := testutil.UniqueShortKey("inactive")
	m := testutil.NewTestMapping(t, key)
	m.IsActive = false
	insertTestMapping(ctx, t, mappings, m)

	_, _, err := resolver.Resolve(ctx, key, "")
	if !errors.Is(err, ErrInactive) {
		t.Fatalf("Resolve() error = %v, want ErrInactive", err)
	}
}

func TestIntegrationResolve_Expired(t *testing.T) {
	ctx, mappings, resolver := newResolverTestEnv(t)

	key := testutil.UniqueShortKey("expired")
	past := time.Now().UTC().Add(-time.Hour)
	m := testutil.NewTestMappingWithExpiry(t, key, past)
	insertTestMapping(ctx, t, mappings, m)

	_, _, err := resolver.Resolve(ctx, key, "")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("Resolve() error = %v, want ErrExpired", err)
	}
}

func TestIntegrationResolve_GatedRequiresPassword(t *testing.T) {
	ctx, mappings, resolver := newResolverTestEnv(t)

	guard := security.NewPasswordGuard()
	hash, err := guard.Hash("correcthorse")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	key := testutil.UniqueShortKey("gated")
	m := testutil.NewTestMapping(t, key)
	m.Destination = "https://example.com/gated"
	m.PasswordHash = hash
	insertTestMapping(ctx, t, mappings, m)

	_, _, err = resolver.Resolve(ctx, key, "")
	if !errors.Is(err, ErrNeedsPassword) {
		t.Fatalf("Resolve() error = %v, want ErrNeedsPassword", err)
	}

	_, _, err = resolver.Resolve(ctx, key, "wrong-password")
	if !errors.Is(err, ErrBadPassword) {
		t.Fatalf("Resolve() error = %v, want ErrBadPassword", err)
	}

	resolved, cacheHit, err := resolver.Resolve(ctx, key, "correcthorse")
	if err != nil {
		t.Fatalf("Resolve() with correct password error = %v", err)
	}
	if cacheHit {
		t.Error("gated mappings must never be served from cache")
	}
	if resolved.Destination != "https://example.com/gated" {
		t.Errorf("Destination = %q", resolved.Destination)
	}
}
