package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter is an in-process fixed-window limiter keyed by client IP.
// It complements the engine's Redis throttles for single-instance
// deployments; counters are not shared across processes.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*ipWindow
	lastGC  time.Time
}

type ipWindow struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter allows limit requests per IP per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*ipWindow),
		lastGC:  time.Now(),
	}
}

// Middleware enforces the limit and sets X-RateLimit-Limit,
// X-RateLimit-Remaining, and on rejection Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, retryAfter, ok := rl.take(clientIP(r), time.Now())

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)+1))
			writeFail(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) take(ip string, now time.Time) (remaining int, retryAfter time.Duration, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Sweep expired windows opportunistically, at most once per window.
	if now.Sub(rl.lastGC) >= rl.window {
		for key, win := range rl.windows {
			if !win.resetAt.After(now) {
				delete(rl.windows, key)
			}
		}
		rl.lastGC = now
	}

	win := rl.windows[ip]
	if win == nil || !win.resetAt.After(now) {
		win = &ipWindow{resetAt: now.Add(rl.window)}
		rl.windows[ip] = win
	}

	if win.count >= rl.limit {
		return 0, win.resetAt.Sub(now), false
	}

	win.count++
	return rl.limit - win.count, 0, true
}
