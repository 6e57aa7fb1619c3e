package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mlaroche/boussole/internal/authz"
	"github.com/mlaroche/boussole/internal/hierarchy"
	"github.com/mlaroche/boussole/internal/identity"
	"github.com/mlaroche/boussole/internal/metrics"
	"github.com/mlaroche/boussole/internal/okr"
	"github.com/mlaroche/boussole/internal/ratelimit"
)

// Pinger reports database connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Accounts       *identity.Service
	Units          *hierarchy.Service
	OKRs           *okr.Service
	Sessions       authz.SessionLookup
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Metrics
	DB             Pinger
	AllowedOrigins []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// Handlers.
	auth := newAuthHandler(deps.Accounts, deps.Metrics)
	units := newHierarchyHandler(deps.Units, deps.Accounts)
	okrs := newOKRHandler(deps.OKRs, deps.Metrics)
	stats := newAnalyticsHandler(deps.OKRs)

	// Health check.
	r.Get("/health", healthHandler(deps.DB))

	// Prometheus exposition.
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(vr chi.Router) {
		// Public auth endpoints, rate-limited by client IP.
		vr.Group(func(pr chi.Router) {
			if deps.Limiter != nil {
				var onReject []func()
				if deps.Metrics != nil {
					onReject = append(onReject, deps.Metrics.IncRateLimitRejection)
				}
				pr.Use(ratelimit.Middleware(deps.Limiter, onReject...))
			}

			pr.Post("/auth/register", auth.Register)
			pr.Post("/auth/login", auth.Login)
		})

		// Session-authed endpoints.
		vr.Group(func(sr chi.Router) {
			sr.Use(authz.RequireSession(deps.Sessions))

			sr.Post("/auth/logout", auth.Logout)
			sr.Get("/auth/me", auth.Me)

			sr.Get("/organizations", units.ListOrganizations)
			sr.Get("/departments", units.ListDepartments)
			sr.Get("/teams", units.ListTeams)
			sr.Get("/teams/{id}/members", units.ListTeamMembers)

			sr.Post("/okrs", okrs.Create)
			sr.Get("/okrs", okrs.List)
			sr.Get("/okrs/mine", okrs.Mine)
			sr.Get("/okrs/{id}", okrs.Get)
			sr.Put("/okrs/{id}/progress", okrs.UpdateProgress)
			sr.Delete("/okrs/{id}", okrs.Delete)

			sr.Get("/analytics/overview", stats.Overview)
			sr.Get("/analytics/dashboard", stats.Dashboard)
		})

		// Admin endpoints (hierarchy setup and ops views).
		vr.Route("/admin", func(ar chi.Router) {
			ar.Use(authz.RequireAdmin(deps.Sessions))

			ar.Post("/organizations", units.CreateOrganization)
			ar.Post("/departments", units.CreateDepartment)
			ar.Post("/teams", units.CreateTeam)

			if deps.Metrics != nil {
				ar.Get("/metrics", deps.Metrics.Handler())
			}
		})
	})

	return r
}

// healthHandler reports liveness and database connectivity.
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":   "degraded",
					"database": "unreachable",
				})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"database": "connected",
		})
	}
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// metricsMiddleware records request counters, latencies and sizes labelled
// by the matched chi route pattern.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			status := strconv.Itoa(ww.Status())

			m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
			if r.ContentLength > 0 {
				m.HTTPRequestSize.WithLabelValues(r.Method, pattern).Observe(float64(r.ContentLength))
			}
			m.HTTPResponseSize.WithLabelValues(r.Method, pattern).Observe(float64(ww.BytesWritten()))
		})
	}
}
