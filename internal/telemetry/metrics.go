// Package telemetry provides application-level observability for tunecrate.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<TC_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text
// exposition format and is intended to be scraped by a Prometheus server.
// It is NOT served by the Gin router, so it is never reachable through the
// API-key gate.
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/stream/*fileName)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied file names.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Streaming metrics, recorded by the stream relay handler.
//
// StreamRequestsTotal distinguishes ranged from full-body requests so seek
// behaviour of clients is visible.  StreamBytesRelayed counts bytes actually
// written to clients, including partial transfers cut short by disconnects.
//
// Example PromQL queries:
//   - Bandwidth out (MB/s):    rate(stream_bytes_relayed_total[5m]) / 1e6
//   - Ranged request share:    sum(rate(stream_requests_total{ranged="true"}[1h])) / sum(rate(stream_requests_total[1h]))
var (
	StreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_requests_total",
			Help: "Total number of audio stream requests, by whether a Range header was present.",
		},
		[]string{"ranged"},
	)

	StreamBytesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_bytes_relayed_total",
			Help: "Total number of audio bytes relayed from object storage to clients.",
		},
	)
)

// Library metrics, recorded by the songs handlers.
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "song_uploads_total",
			Help: "Total number of song upload attempts, by outcome (success, rejected, error).",
		},
		[]string{"outcome"},
	)

	DeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "song_deletes_total",
			Help: "Total number of song delete attempts, by outcome (success, error).",
		},
		[]string{"outcome"},
	)
)

// Upstream metrics, recorded by the B2 client.
//
// B2AuthRefreshesTotal should tick roughly once per session TTL; a higher rate
// indicates the token cache is being invalidated by upstream 401s.
//
// Example PromQL queries:
//   - Auth churn:              increase(b2_auth_refreshes_total[24h])
//   - p95 B2 call latency:     histogram_quantile(0.95, sum by (op, le) (rate(b2_api_call_duration_seconds_bucket[5m])))
var (
	B2AuthRefreshesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "b2_auth_refreshes_total",
			Help: "Total number of B2 account authorizations performed.",
		},
	)

	B2APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "b2_api_call_duration_seconds",
			Help:    "Histogram of B2 API call latencies, by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	B2APICallErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b2_api_call_errors_total",
			Help: "Total number of failed B2 API calls, by operation.",
		},
		[]string{"op"},
	)
)
