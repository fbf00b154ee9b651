package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPCMetrics records JSON-RPC traffic. Methods are labelled by their
// namespace prefix ("stake", "admin", "bank", ...) and full name.
type RPCMetrics struct {
	calls       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	throttled   *prometheus.CounterVec
	subscribers prometheus.Gauge
}

var (
	rpcMetricsOnce sync.Once
	rpcMetrics     *RPCMetrics
)

// RPC returns the process-wide JSON-RPC collectors, registering them on first
// use.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		labels := []string{"module", "method"}
		rpcMetrics = &RPCMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "metanode",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "JSON-RPC requests by module, method and outcome.",
			}, append(labels, "outcome")),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "metanode",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "JSON-RPC errors by module, method and error code.",
			}, append(labels, "code")),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "metanode",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "JSON-RPC handler latency.",
				Buckets:   prometheus.DefBuckets,
			}, labels),
			throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "metanode",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"reason"}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "metanode",
				Subsystem: "rpc",
				Name:      "stream_subscribers",
				Help:      "Open websocket event subscriptions.",
			}),
		}
		prometheus.MustRegister(rpcMetrics.calls, rpcMetrics.failures, rpcMetrics.duration,
			rpcMetrics.throttled, rpcMetrics.subscribers)
	})
	return rpcMetrics
}

func methodModule(method string) string {
	if prefix, _, ok := strings.Cut(method, "_"); ok && prefix != "" {
		return prefix
	}
	return "unknown"
}

// Observe records one call. code is the JSON-RPC error code, zero on success.
func (m *RPCMetrics) Observe(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	module := methodModule(method)
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.failures.WithLabelValues(module, method, strconv.Itoa(code)).Inc()
	}
	m.calls.WithLabelValues(module, method, outcome).Inc()
	m.duration.WithLabelValues(module, method).Observe(elapsed.Seconds())
}

// Throttled counts a rate-limited request.
func (m *RPCMetrics) Throttled(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttled.WithLabelValues(reason).Inc()
}

// StreamOpened and StreamClosed track websocket subscriptions.
func (m *RPCMetrics) StreamOpened() {
	if m != nil {
		m.subscribers.Inc()
	}
}

func (m *RPCMetrics) StreamClosed() {
	if m != nil {
		m.subscribers.Dec()
	}
}
