package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeInactive  = "inactive"
	OutcomeBlocked   = "blocked"
	OutcomeExpired   = "expired"
	OutcomeInvalid   = "invalid"
	OutcomeRevoked   = "revoked"
	OutcomeForbidden = "forbidden"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Authentication metrics
	authLoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"method", "outcome"}, // method: password/google
	)

	authLoginDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_login_duration_seconds",
			Help:    "Login duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method"},
	)

	authJWTValidatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_jwt_validated_total",
			Help: "Total number of access token validations",
		},
		[]string{"outcome"},
	)

	authRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refresh_total",
			Help: "Total number of refresh token exchanges",
		},
		[]string{"outcome"},
	)

	authRateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
	)

	portalRedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_redirects_total",
			Help: "Portal page requests redirected by the route authorizer",
		},
		[]string{"action"},
	)
)

// ObserveHTTP records one served request
func ObserveHTTP(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLoginAttempt records a login attempt metric
func RecordLoginAttempt(method, outcome string, duration time.Duration) {
	authLoginAttemptsTotal.WithLabelValues(method, outcome).Inc()
	authLoginDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordJWTValidation records an access token validation
func RecordJWTValidation(outcome string) {
	authJWTValidatedTotal.WithLabelValues(outcome).Inc()
}

// RecordRefresh records a refresh exchange
func RecordRefresh(outcome string) {
	authRefreshTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimitHit records a rate limit hit
func RecordRateLimitHit() {
	authRateLimitHitsTotal.Inc()
}

// RecordPortalRedirect records a redirect issued by the page gate
func RecordPortalRedirect(action string) {
	portalRedirectsTotal.WithLabelValues(action).Inc()
}
