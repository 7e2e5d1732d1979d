//go:build integration

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/penshort/penshort/internal/metrics"
	"github.com/penshort/penshort/internal/repository"
	"github.com/penshort/penshort/internal/testutil"
)

func newAnnotationTestEnv(t *testing.T) *repository.AnnotationStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := testutil.ResetAnnotationsSchema(ctx, pool); err != nil {
		t.Fatalf("reset annotations schema: %v", err)
	}

	repo := repository.NewFromPool(pool)
	return repository.NewAnnotationStore(repo)
}

func TestIntegrationAnalyze_FreshRequest_CachesResult(t *testing.T) {
	store := newAnnotationTestEnv(t)

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/generate":
			_ = json.NewEncoder(w).Encode(generateResponse{
				Response: `{"summary": "A reference site for the Go programming language.", "category": "Technology", "tags": ["go", "docs"], "safety_score": 0.95, "is_safe": true, "safety_reasons": [], "alias_suggestions": ["godoc"]}`,
			})
		}
	}))
	defer llmSrv.Close()

	c := New(llmSrv.URL, "llama3", store, metrics.NewNoop(), 0)

	result, err := c.Analyze(context.Background(), "https://go.dev", "The Go Programming Language", "")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.FromCache {
		t.Error("first Analyze() call should not be served from cache")
	}
	if result.Annotation.Category != "Technology" {
		t.Errorf("Category = %q, want Technology", result.Annotation.Category)
	}

	second, err := c.Analyze(context.Background(), "https://go.dev", "The Go Programming Language", "")
	if err != nil {
		t.Fatalf("second Analyze() error = %v", err)
	}
	if !second.FromCache {
		t.Error("second Analyze() call should be served from cache")
	}
}

func TestIntegrationAnalyze_UnhealthyServer_ReturnsNeutralDefault(t *testing.T) {
	store := newAnnotationTestEnv(t)

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer llmSrv.Close()

	c := New(llmSrv.URL, "llama3", store, metrics.NewNoop(), 0)

	result, err := c.Analyze(context.Background(), "https://example.com", "", "")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.FromCache {
		t.Error("unhealthy-path result should not be marked fromCache")
	}
	if result.Annotation.Category != "Other" {
		t.Errorf("Category = %q, want Other for neutral default", result.Annotation.Category)
	}
	if !result.Annotation.IsSafe {
		t.Error("neutral default should be marked safe")
	}
}
