package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// Middleware enforces the limiter per client IP, setting X-RateLimit-*
// headers on every response. Requests over the limit get a 429. Each
// onReject callback fires once per rejected request, for metrics.
func Middleware(limiter *Limiter, onReject ...func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter.rate <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := ClientIP(r)

			limit, remaining, resetAt := limiter.Status(key)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !limiter.Allow(key) {
				for _, fn := range onReject {
					fn()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{
					Code:    "rate_limited",
					Message: "Rate limit exceeded. Try again later.",
				}})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
