package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/penshort/penshort/internal/metrics"
	"github.com/penshort/penshort/internal/model"
)

func TestProbe_HealthyServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("probe hit unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3", nil, metrics.NewNoop(), 0)
	if !c.probe(context.Background()) {
		t.Error("probe() = false, want true for healthy server")
	}
}

func TestProbe_UnreachableServer(t *testing.T) {
	c := New("http://127.0.0.1:1", "llama3", nil, metrics.NewNoop(), 0)
	if c.probe(context.Background()) {
		t.Error("probe() = true, want false for unreachable server")
	}
}

func TestComplete_ReturnsResponseField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("completion hit unexpected path %q", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Options.Temperature != 0 {
			t.Errorf("Temperature = %v, want 0", req.Options.Temperature)
		}
		if req.Options.TopP != 0.9 {
			t.Errorf("TopP = %v, want 0.9", req.Options.TopP)
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: `{"category": "Technology"}`})
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3", nil, metrics.NewNoop(), 0)
	out, err := c.complete(context.Background(), "analyze this")
	if err != nil {
		t.Fatalf("complete() error = %v", err)
	}
	if out != `{"category": "Technology"}` {
		t.Errorf("complete() = %q", out)
	}
}

func TestComplete_SingleAttemptOnSuccess(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "ok"})
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3", nil, metrics.NewNoop(), 0)
	out, err := c.complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("complete() error = %v", err)
	}
	if out != "ok" {
		t.Errorf("complete() = %q, want ok", out)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for a succeeding server", attempts)
	}
}

func TestIsHealthy_CachesWithinTTL(t *testing.T) {
	probes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3", nil, metrics.NewNoop(), 0)
	c.healthy.Store(false)
	c.healthyAt.Store(0)

	if !c.isHealthy(context.Background()) {
		t.Fatal("isHealthy() = false after successful probe")
	}
	if !c.isHealthy(context.Background()) {
		t.Fatal("isHealthy() should stay true within TTL")
	}
	if probes != 1 {
		t.Errorf("probes = %d, want 1 (second call should hit the cache)", probes)
	}
}

func TestNeutralDefault_SafeOther(t *testing.T) {
	a := neutralDefault("https://example.com", model.AnnotationTTL)
	if a.Category != "Other" {
		t.Errorf("Category = %q, want Other", a.Category)
	}
	if !a.IsSafe {
		t.Error("IsSafe = false, want true")
	}
	if a.SafetyScore != 0.8 {
		t.Errorf("SafetyScore = %v, want 0.8", a.SafetyScore)
	}
	if a.ExpiresAt.Sub(a.AnalyzedAt) <= 0 {
		t.Error("ExpiresAt should be after AnalyzedAt")
	}
	if time.Since(a.AnalyzedAt) > time.Minute {
		t.Error("AnalyzedAt should be close to now")
	}
}

func TestHashURL_Deterministic(t *testing.T) {
	a := hashURL("https://example.com/page")
	b := hashURL("https://example.com/page")
	if a != b {
		t.Error("hashURL should be deterministic")
	}
	if a == hashURL("https://example.com/other") {
		t.Error("hashURL should differ for different URLs")
	}
}

func TestBuildPrompt_IncludesTaxonomyAndFields(t *testing.T) {
	p := buildPrompt("https://example.com", "Example Title", "Example description")
	if !contains(p, "https://example.com") || !contains(p, "Example Title") || !contains(p, "Example description") {
		t.Errorf("prompt missing expected fields: %q", p)
	}
	if !contains(p, "Technology") {
		t.Error("prompt should include the fixed category taxonomy")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (substr == "" || indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
