// Package testutil provides shared fixtures and helpers for integration
// tests that need a real Postgres/Redis instance.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/penshort/penshort/internal/model"
	"github.com/redis/go-redis/v9"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

func resetSchema(ctx context.Context, pool *pgxpool.Pool, migrationName string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downPath := filepath.Join(root, "migrations", migrationName+".down.sql")
	upPath := filepath.Join(root, "migrations", migrationName+".up.sql")

	downSQL, err := os.ReadFile(downPath)
	if err != nil {
		return fmt.Errorf("read %s down migration: %w", migrationName, err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		return fmt.Errorf("apply %s down migration: %w", migrationName, err)
	}

	upSQL, err := os.ReadFile(upPath)
	if err != nil {
		return fmt.Errorf("read %s up migration: %w", migrationName, err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		return fmt.Errorf("apply %s up migration: %w", migrationName, err)
	}

	return nil
}

// ResetMappingsSchema drops and recreates the mappings schema for tests.
func ResetMappingsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000002_mappings")
}

// ResetClickEventsSchema drops and recreates the click_events schema for tests.
func ResetClickEventsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000003_click_events")
}

// ResetAnnotationsSchema drops and recreates the annotations schema for tests.
func ResetAnnotationsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000004_annotations")
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestMapping creates a test mapping with sensible defaults.
func NewTestMapping(t testing.TB, shortKey string) *model.Mapping {
	t.Helper()
	now := time.Now().UTC()
	return &model.Mapping{
		ShortKey:     shortKey,
		Destination:  "https://example.com/" + shortKey,
		RedirectType: model.RedirectTemporary,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestMappingWithExpiry creates a test mapping with an expiry time.
func NewTestMappingWithExpiry(t testing.TB, shortKey string, expiresAt time.Time) *model.Mapping {
	t.Helper()
	m := NewTestMapping(t, shortKey)
	m.ExpiresAt = &expiresAt
	return m
}

// NewTestClickEvent creates a test click event with sensible defaults.
func NewTestClickEvent(t testing.TB, mappingID int64, shortKey string) *model.ClickEvent {
	t.Helper()
	now := time.Now().UTC()
	return &model.ClickEvent{
		ID:         UniqueID("click"),
		EventID:    UniqueID("evt"),
		MappingID:  mappingID,
		ShortKey:   shortKey,
		ClientIP:   "203.0.113.1",
		UserAgent:  "Mozilla/5.0 (test)",
		DeviceType: model.DeviceDesktop,
		ClickedAt:  now,
		CreatedAt:  now,
	}
}

// UniqueShortKey generates a unique short key for tests: prefix plus at
// most 10 digits, so prefixes of up to 10 chars fit the 20-char
// short_key column.
func UniqueShortKey(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano()%1e10)
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
