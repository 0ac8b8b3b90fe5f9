// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PatreonLogins   *prometheus.CounterVec
	PatreonSync     *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PatreonLogins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deckvault_patreon_logins_total",
			Help: "Successful Patreon logins by tier, role and whether the account was new.",
		}, []string{"tier", "role", "new_account"}),
		PatreonSync: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deckvault_patreon_sync_total",
			Help: "Patreon link attempts by resolved tier and status.",
		}, []string{"tier", "status"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deckvault_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deckvault_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordLogin counts a completed login.
func (m *Metrics) RecordLogin(tier, role string, isNew bool) {
	m.PatreonLogins.WithLabelValues(tier, role, strconv.FormatBool(isNew)).Inc()
}

// RecordSync counts a link attempt; status is "success" or "failure".
func (m *Metrics) RecordSync(tier, status string) {
	m.PatreonSync.WithLabelValues(tier, status).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}
