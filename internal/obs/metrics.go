package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	AuthRejections *prometheus.CounterVec
	TokensRevoked  *prometheus.CounterVec
	LoginAttempts  *prometheus.CounterVec
}

// NewMetrics creates collectors registered on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		AuthRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_rejections_total",
			Help: "Requests rejected at the session boundary, by reason.",
		}, []string{"reason"}),
		TokensRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_tokens_revoked_total",
			Help: "Tokens added to the revocation registry, by kind.",
		}, []string{"kind"}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts, by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.AuthRejections,
		m.TokensRevoked,
		m.LoginAttempts,
	)
	return m
}

// Registerer exposes the registry so other components can add collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency labelled by route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			labels := []string{c.Request().Method, path, strconv.Itoa(status)}
			m.httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			m.httpRequestsTotal.WithLabelValues(labels...).Inc()
			return err
		}
	}
}

// RecordAuthRejection counts a request rejected at the session boundary.
func (m *Metrics) RecordAuthRejection(reason string) {
	m.AuthRejections.WithLabelValues(reason).Inc()
}

// RecordRevocation counts a token added to the revocation registry.
func (m *Metrics) RecordRevocation(kind string) {
	m.TokensRevoked.WithLabelValues(kind).Inc()
}

// RecordLogin counts a login attempt by outcome.
func (m *Metrics) RecordLogin(outcome string) {
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}
