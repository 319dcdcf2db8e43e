// Package metrics provides Prometheus instrumentation for the simulation
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BidsTotal counts bids accepted, partitioned by kind ("rm" or "customer").
	BidsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_bids_total",
		Help: "Total number of bids accepted",
	}, []string{"kind"})

	// AllocationsTotal counts allocation runs, partitioned by kind.
	AllocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_allocations_total",
		Help: "Total number of allocation runs",
	}, []string{"kind"})

	// SettlementsTotal counts settled team-months.
	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_settlements_total",
		Help: "Total number of team-month settlements",
	})

	// SettlementLatency tracks the duration of a full settlement batch.
	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_settlement_latency_seconds",
		Help:    "Settlement batch latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// LiquidationsTotal counts quarter liquidation runs.
	LiquidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_liquidations_total",
		Help: "Total number of quarter liquidations",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sim_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route cardinality is bounded by
		// the fixed API surface.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
