// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is registered once per process on a caller-owned registry.
type Metrics struct {
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	SharesTotal                *prometheus.CounterVec
	DevicesTotal               *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SharesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailbox_shares_total",
				Help: "Mailbox transitions by event (sent, acknowledged, cancelled).",
			},
			[]string{"event"},
		),
		DevicesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_devices_total",
				Help: "Device auth calls by result (new, existing).",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.HTTPRequestsTotal, m.HTTPRequestDurationSeconds, m.SharesTotal, m.DevicesTotal)
	}
	return m
}

// ShareEvent increments the mailbox counter. Safe on a nil receiver.
func (m *Metrics) ShareEvent(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SharesTotal.WithLabelValues(event).Add(float64(n))
}

// DeviceAuth records a device auth outcome. Safe on a nil receiver.
func (m *Metrics) DeviceAuth(isNew bool) {
	if m == nil {
		return
	}
	result := "existing"
	if isNew {
		result = "new"
	}
	m.DevicesTotal.WithLabelValues(result).Inc()
}
