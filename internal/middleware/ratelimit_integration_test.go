//go:build integration

package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/penshort/penshort/internal/cache"
	"github.com/penshort/penshort/internal/testutil"
)

// TestIPRateLimitConcurrency verifies IP-based rate limiting concurrency
// against the fixed-window limiter backing the redirect endpoint.
func TestIPRateLimitConcurrency(t *testing.T) {
	ctx := context.Background()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	cacheClient, err := cache.New(ctx, redisURL, 0, 0)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = cacheClient.Close() })
	if err := testutil.FlushRedis(ctx, cacheClient.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	testIP := "192.168.1.100"
	limit := 5
	window := time.Minute

	var allowed, rejected int64
	var wg sync.WaitGroup

	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := cacheClient.CheckIPRateLimit(ctx, testIP, limit, window)
			if err != nil {
				t.Errorf("CheckIPRateLimit error: %v", err)
				return
			}
			if result.Allowed {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&rejected, 1)
			}
		}()
	}

	wg.Wait()

	t.Logf("IP rate limit: %d allowed, %d rejected", allowed, rejected)

	if allowed > int64(limit) {
		t.Errorf("too many requests allowed: %d (want <= %d)", allowed, limit)
	}
	if rejected == 0 {
		t.Error("expected some requests to be rejected")
	}
}

// TestRateLimitIPMiddleware exercises the middleware end to end: headers
// on every response, 429 with Retry-After once the window is exhausted.
func TestRateLimitIPMiddleware(t *testing.T) {
	ctx := context.Background()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	cacheClient, err := cache.New(ctx, redisURL, 0, 0)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = cacheClient.Close() })
	if err := testutil.FlushRedis(ctx, cacheClient.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	cfg := RateLimitConfig{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Cache:   cacheClient,
		Enabled: true,
		Limit:   2,
		Window:  time.Minute,
	}

	var calls int
	handler := RateLimitIP(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/abc123", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		return req.WithContext(ctx)
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newReq())
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("request %d: X-RateLimit-Limit = %q, want 2", i, rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq())
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
	if calls != 2 {
		t.Errorf("handler called %d times, want 2", calls)
	}
}

// TestRateLimitHeaders verifies rate limit headers are set correctly.
func TestRateLimitHeaders(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setRateLimitHeaders(w, 60, 45, time.Now().Add(time.Minute))
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("X-RateLimit-Limit = %q, want 60", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "45" {
		t.Errorf("X-RateLimit-Remaining = %q, want 45", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

// Test429Response verifies the rate limit error response format.
func Test429Response(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRateLimitError(rec, 5*time.Second)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Error("expected JSON content type")
	}
	if rec.Body.Len() == 0 {
		t.Error("expected error body")
	}
}

// TestClientIP verifies the header precedence order from §4.4.
func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		xri    string
		remote string
		want   string
	}{
		{name: "x-forwarded-for single", xff: "203.0.113.1", remote: "10.0.0.1:1234", want: "203.0.113.1"},
		{name: "x-forwarded-for multiple takes first", xff: "203.0.113.1, 10.0.0.2", remote: "10.0.0.1:1234", want: "203.0.113.1"},
		{name: "x-real-ip used when no xff", xri: "198.51.100.9", remote: "10.0.0.1:1234", want: "198.51.100.9"},
		{name: "falls back to remote addr", remote: "10.0.0.1:1234", want: "10.0.0.1:1234"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/abc123", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xri != "" {
				req.Header.Set("X-Real-IP", tc.xri)
			}
			if got := ClientIP(req); got != tc.want {
				t.Errorf("ClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
