package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func rateLimitedRequest(rl *RateLimiter, ip string) *httptest.ResponseRecorder {
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	for i := 0; i < 2; i++ {
		rec := rateLimitedRequest(rl, "10.0.0.1")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := rateLimitedRequest(rl, "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After on rejection")
	}
}

func TestRateLimiterHeaders(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	rec := rateLimitedRequest(rl, "10.0.0.2")
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "3" {
		t.Fatalf("expected limit header 3, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Fatalf("expected remaining header 2, got %q", got)
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	if rec := rateLimitedRequest(rl, "10.0.0.3"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := rateLimitedRequest(rl, "10.0.0.3"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for same IP, got %d", rec.Code)
	}
	if rec := rateLimitedRequest(rl, "10.0.0.4"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for different IP, got %d", rec.Code)
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond)

	if rec := rateLimitedRequest(rl, "10.0.0.5"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := rateLimitedRequest(rl, "10.0.0.5"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	time.Sleep(60 * time.Millisecond)

	if rec := rateLimitedRequest(rl, "10.0.0.5"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after window reset, got %d", rec.Code)
	}
}

func TestRateLimiterEvictsStaleWindows(t *testing.T) {
	rl := NewRateLimiter(5, 10*time.Millisecond)

	for _, ip := range []string{"10.1.0.1", "10.1.0.2", "10.1.0.3"} {
		rateLimitedRequest(rl, ip)
	}

	time.Sleep(20 * time.Millisecond)

	// The next request triggers the sweep; only its own window survives.
	rateLimitedRequest(rl, "10.1.0.9")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.windows) != 1 {
		t.Fatalf("expected 1 live window after sweep, got %d", len(rl.windows))
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected forwarded IP, got %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := clientIP(req); got != "192.0.2.1" {
		t.Fatalf("expected remote addr host, got %q", got)
	}
}
