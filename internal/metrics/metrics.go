// Package metrics holds the Prometheus collectors of the authentication service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics contains the service counters. A nil *Metrics records nothing.
type Metrics struct {
	LoginsTotal          *prometheus.CounterVec
	OTPTotal             *prometheus.CounterVec
	TokensIssuedTotal    *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	RateLimitedTotal     prometheus.Counter
}

// NewMetrics creates and registers the service metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authsvc_logins_total",
				Help: "Login attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		OTPTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authsvc_otp_total",
				Help: "OTP operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authsvc_tokens_issued_total",
				Help: "Bearer tokens minted by kind",
			},
			[]string{"kind"},
		),
		NotificationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authsvc_notification_failures_total",
				Help: "Notifications that could not be delivered by channel",
			},
			[]string{"channel"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authsvc_rate_limited_total",
				Help: "Requests rejected by the per-client rate limiter",
			},
		),
	}

	reg.MustRegister(
		m.LoginsTotal,
		m.OTPTotal,
		m.TokensIssuedTotal,
		m.NotificationFailures,
		m.RateLimitedTotal,
	)
	return m
}

// NewRegistry returns a registry with the Go and process collectors and the
// service metrics registered
func NewRegistry() (*prometheus.Registry, *Metrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry, NewMetrics(registry)
}

// Login counts a login attempt
func (m *Metrics) Login(method, outcome string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(method, outcome).Inc()
}

// OTP counts an OTP operation
func (m *Metrics) OTP(operation, outcome string) {
	if m == nil {
		return
	}
	m.OTPTotal.WithLabelValues(operation, outcome).Inc()
}

// TokenIssued counts a minted token
func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(kind).Inc()
}

// NotificationFailed counts an undelivered notification
func (m *Metrics) NotificationFailed(channel string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(channel).Inc()
}

// RateLimited counts a rejected request
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}
