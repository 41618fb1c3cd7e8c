// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Auth event names used as the "event" label.
const (
	EventRegister       = "register"
	EventLogin          = "login"
	EventForgotPassword = "forgot_password"
	EventResetPassword  = "reset_password"
	EventChangePassword = "change_password"
)

// Metrics contains the custom Prometheus metrics for latchkey.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	AuthEventsTotal     *prometheus.CounterVec
	EmailDeliveries     *prometheus.CounterVec
	RateLimitRejections *prometheus.CounterVec
}

// NewMetrics creates and registers the custom metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchkey_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "latchkey_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchkey_auth_events_total",
				Help: "Total number of auth operations by event and result",
			},
			[]string{"event", "result"},
		),
		EmailDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchkey_email_deliveries_total",
				Help: "Total number of finished email deliveries by result",
			},
			[]string{"result"},
		),
		RateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchkey_ratelimit_rejections_total",
				Help: "Total number of requests rejected by a rate limit rule",
			},
			[]string{"rule"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthEventsTotal,
		m.EmailDeliveries,
		m.RateLimitRejections,
	)
	return m
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordAuthEvent records the outcome of an auth operation. result is a
// short stable string such as "success" or an error code.
func (m *Metrics) RecordAuthEvent(event, result string) {
	if m == nil {
		return
	}
	m.AuthEventsTotal.WithLabelValues(event, result).Inc()
}

// RecordEmailDelivery counts a finished delivery. It matches
// notify.DeliveryObserver.
func (m *Metrics) RecordEmailDelivery(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.EmailDeliveries.WithLabelValues(result).Inc()
}

// RecordRateLimited counts a rejection by rule.
func (m *Metrics) RecordRateLimited(rule string) {
	if m == nil {
		return
	}
	m.RateLimitRejections.WithLabelValues(rule).Inc()
}
