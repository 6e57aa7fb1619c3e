package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the Boussole server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Auth metrics.
	AuthSuccessesTotal *prometheus.CounterVec
	AuthFailuresTotal  *prometheus.CounterVec

	// Rate limiting.
	RateLimitRejectionsTotal prometheus.Counter

	// OKR lifecycle metrics.
	OKRMutationsTotal *prometheus.CounterVec

	// Session sweeper.
	SessionsSweptTotal prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boussole_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boussole_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		HTTPRequestSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boussole_http_request_size_bytes",
			Help:    "HTTP request size in bytes.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path_pattern"}),

		HTTPResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boussole_http_response_size_bytes",
			Help:    "HTTP response size in bytes.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path_pattern"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boussole_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"flow"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boussole_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"flow"}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boussole_ratelimit_rejections_total",
			Help: "Total number of requests rejected by the auth rate limiter.",
		}),

		OKRMutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boussole_okr_mutations_total",
			Help: "Total number of OKR mutations by action.",
		}, []string{"action"}),

		SessionsSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boussole_sessions_swept_total",
			Help: "Total number of expired sessions removed by the sweeper.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boussole_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.AuthSuccessesTotal,
		m.AuthFailuresTotal,
		m.RateLimitRejectionsTotal,
		m.OKRMutationsTotal,
		m.SessionsSweptTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// IncAuthSuccess increments the auth success counter for the given flow.
func (m *Metrics) IncAuthSuccess(flow string) {
	m.AuthSuccessesTotal.WithLabelValues(flow).Inc()
}

// IncAuthFailure increments the auth failure counter for the given flow.
func (m *Metrics) IncAuthFailure(flow string) {
	m.AuthFailuresTotal.WithLabelValues(flow).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection() {
	m.RateLimitRejectionsTotal.Inc()
}

// IncOKRMutation increments the OKR mutation counter for the given action.
func (m *Metrics) IncOKRMutation(action string) {
	m.OKRMutationsTotal.WithLabelValues(action).Inc()
}

// AddSessionsSwept records sessions removed by an expiry sweep.
func (m *Metrics) AddSessionsSwept(n int64) {
	m.SessionsSweptTotal.Add(float64(n))
}
