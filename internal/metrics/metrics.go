// Package metrics holds the gateway's Prometheus collectors and the
// /stats system snapshot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Vendor call metrics
	VendorCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qmt_vendor_call_duration_seconds",
		Help:    "Latency of blocking vendor calls by method",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"method"})

	VendorTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qmt_vendor_call_timeouts_total",
		Help: "Vendor calls abandoned on deadline expiry by method",
	}, []string{"method"})

	// Lifecycle gauges
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qmt_sessions_active",
		Help: "Current number of connected trading sessions",
	})

	ActiveSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qmt_subscriptions_active",
		Help: "Current number of live quote subscriptions",
	})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qmt_streams_active",
		Help: "Current number of attached client streams",
	})

	// Fan-out drop counters
	StreamDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qmt_stream_drops_total",
		Help: "Ticks dropped from full per-stream queues by subscription",
	}, []string{"subscription_id"})

	CallbackDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qmt_callbacks_dispatched_total",
		Help: "Trading callbacks delivered to subscriber queues",
	})

	CallbackDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qmt_callback_drops_total",
		Help: "Trading callbacks dropped from full subscriber queues",
	})

	// Transport counters
	WSConnections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qmt_ws_connections_total",
		Help: "WebSocket connections accepted by channel",
	}, []string{"channel"})

	WSRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qmt_ws_rejected_total",
		Help: "WebSocket connections rejected by reason",
	}, []string{"reason"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qmt_http_requests_total",
		Help: "HTTP requests by path family and status",
	}, []string{"family", "status"})

	RPCRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qmt_rpc_requests_total",
		Help: "Binary RPC requests by method and status code",
	}, []string{"method", "code"})
)

// Register installs every collector on the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		VendorCallDuration,
		VendorTimeouts,
		ActiveSessions,
		ActiveSubscriptions,
		ActiveStreams,
		StreamDrops,
		CallbackDispatched,
		CallbackDrops,
		WSConnections,
		WSRejected,
		HTTPRequests,
		RPCRequests,
	)
}

// ObserveVendorCall records one vendor call latency.
func ObserveVendorCall(method string, d time.Duration) {
	VendorCallDuration.WithLabelValues(method).Observe(d.Seconds())
}
