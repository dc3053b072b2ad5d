// Package metrics exposes the bridge's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a dedicated Registry with the standard process and Go
// collectors registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Bridge holds the bridge's own metrics.
type Bridge struct {
	FramesSent         prometheus.Counter
	FramesReceived     prometheus.Counter
	FrameErrors        prometheus.Counter     // decode/format failures
	ExchangeFailures   prometheus.Counter     // failed debug exchanges
	TimeoutsTotal      prometheus.Counter     // transport I/O budget exhaustions
	ReconnectAttempts  prometheus.Counter     // dial attempts while reconnecting
	NotificationsTotal *prometheus.CounterVec // labels: kind
	LinkUp             prometheus.Gauge
	BackoffSeconds     prometheus.Gauge
}

// NewBridge registers and returns the bridge metrics.
func NewBridge(reg *prometheus.Registry) *Bridge {
	m := &Bridge{
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmulink_frames_sent_total",
			Help: "Total bus frames sent to the peer.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmulink_frames_received_total",
			Help: "Total bus frames received from the peer.",
		}),
		FrameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmulink_frame_errors_total",
			Help: "Total malformed frames observed.",
		}),
		ExchangeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmulink_exchange_failures_total",
			Help: "Total failed frame exchanges.",
		}),
		TimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmulink_timeouts_total",
			Help: "Total transport operations that exhausted their I/O budget.",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmulink_reconnect_attempts_total",
			Help: "Total dial attempts made while reconnecting.",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vmulink_notifications_total",
			Help: "Link notifications by kind.",
		}, []string{"kind"}),
		LinkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vmulink_link_up",
			Help: "1 while the link is in the connected state.",
		}),
		BackoffSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vmulink_backoff_seconds",
			Help: "Current reconnect backoff delay.",
		}),
	}
	reg.MustRegister(
		m.FramesSent, m.FramesReceived, m.FrameErrors, m.ExchangeFailures,
		m.TimeoutsTotal, m.ReconnectAttempts,
		m.NotificationsTotal, m.LinkUp, m.BackoffSeconds,
	)
	return m
}
