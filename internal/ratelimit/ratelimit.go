// Package ratelimit implements a token-bucket rate limiter keyed by
// client IP. It is applied to the unauthenticated auth endpoints to slow
// down credential stuffing and registration abuse.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter is a token-bucket rate limiter. Each key gets its own bucket
// holding up to rate tokens, refilled continuously over the window.
// A rate of zero or less disables limiting entirely.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Limiter allowing rate requests per key per window.
func New(rate int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// getBucket returns the bucket for key, creating a full one on first use.
// Caller must hold l.mu.
func (l *Limiter) getBucket(key string) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			tokens:     float64(l.rate),
			lastRefill: l.now(),
		}
		l.buckets[key] = b
	}
	return b
}

// refill adds tokens accrued since the last refill, capped at the rate.
// Caller must hold l.mu.
func (l *Limiter) refill(b *bucket) {
	now := l.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}

	refillRate := float64(l.rate) / l.window.Seconds()
	b.tokens += elapsed.Seconds() * refillRate
	if b.tokens > float64(l.rate) {
		b.tokens = float64(l.rate)
	}
	b.lastRefill = now
}

// Allow reports whether a request under key may proceed, consuming one
// token if so.
func (l *Limiter) Allow(key string) bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(key)
	l.refill(b)

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Status returns the limit, the number of whole tokens remaining for key,
// and the time at which the bucket will be full again. It does not consume
// a token.
func (l *Limiter) Status(key string) (limit, remaining int, resetAt time.Time) {
	if l.rate <= 0 {
		return 0, 0, l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(key)
	l.refill(b)

	remaining = int(b.tokens)
	missing := float64(l.rate) - b.tokens
	if missing < 0 {
		missing = 0
	}
	refillRate := float64(l.rate) / l.window.Seconds()
	resetAt = l.now().Add(time.Duration(missing / refillRate * float64(time.Second)))

	return l.rate, remaining, resetAt
}

// ClientIP extracts the originating client IP from a request, preferring
// the first hop of X-Forwarded-For when a proxy set it.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
