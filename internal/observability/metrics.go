// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Mint metrics
	MintsTotal        *prometheus.CounterVec
	MintDuration      prometheus.Histogram
	IdempotentReplays prometheus.Counter
	HoldsCreated      prometheus.Counter

	// Transfer metrics
	TransfersTotal   *prometheus.CounterVec
	TransferDuration prometheus.Histogram

	// Oracle metrics
	PriceSnapshotsTotal *prometheus.CounterVec
	LastEthUsdPrice     prometheus.Gauge

	// Node metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastConfirmedMint prometheus.Gauge
	UptimeSeconds     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ethusd_bridge"
	}

	return &Metrics{
		// Mint metrics
		MintsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "executions_total",
			Help:      "Total number of mint executions by outcome",
		}, []string{"outcome"}),
		MintDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "duration_seconds",
			Help:      "End-to-end mint duration including confirmation wait",
			Buckets:   []float64{1, 5, 10, 30, 60, 90, 120, 300},
		}),
		IdempotentReplays: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "idempotent_replays_total",
			Help:      "Total number of mints served from a stored or in-flight result",
		}),
		HoldsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "holds_created_total",
			Help:      "Total number of holds created",
		}),

		// Transfer metrics
		TransfersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "executions_total",
			Help:      "Total number of transfers by token and status",
		}, []string{"token", "status"}),
		TransferDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "duration_seconds",
			Help:      "End-to-end transfer duration including confirmation wait",
			Buckets:   []float64{1, 5, 10, 30, 60, 90, 120, 300},
		}),

		// Oracle metrics
		PriceSnapshotsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "snapshots_total",
			Help:      "Total number of price snapshots taken by source",
		}, []string{"source"}),
		LastEthUsdPrice: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "last_eth_usd_price",
			Help:      "Most recent ETH/USD price attached to a hold",
		}),

		// Node metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ethereum",
			Name:      "rpc_call_latency_seconds",
			Help:      "Ethereum RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ethereum",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of Ethereum RPC call errors",
		}, []string{"method"}),

		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed, labeled by status code",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP requests",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30, 120},
		}, []string{"method", "endpoint"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastConfirmedMint: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_confirmed_mint_timestamp",
			Help:      "Unix timestamp of the last confirmed mint",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordMint records a finished mint execution.
func RecordMint(outcome string, durationSeconds float64) {
	DefaultMetrics.MintsTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.MintDuration.Observe(durationSeconds)
}

// RecordIdempotentReplay increments the replay counter.
func RecordIdempotentReplay() {
	DefaultMetrics.IdempotentReplays.Inc()
}

// RecordHoldCreated increments the holds created counter.
func RecordHoldCreated() {
	DefaultMetrics.HoldsCreated.Inc()
}

// RecordTransfer records a finished transfer.
func RecordTransfer(token, status string, durationSeconds float64) {
	DefaultMetrics.TransfersTotal.WithLabelValues(token, status).Inc()
	DefaultMetrics.TransferDuration.Observe(durationSeconds)
}

// RecordSnapshot records one oracle read and the price it produced.
func RecordSnapshot(source string, price float64) {
	DefaultMetrics.PriceSnapshotsTotal.WithLabelValues(source).Inc()
	DefaultMetrics.LastEthUsdPrice.Set(price)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, endpoint, status string, seconds float64) {
	DefaultMetrics.HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordConfirmedMint updates the health gauge with the confirmation time.
func RecordConfirmedMint(unixSeconds int64) {
	DefaultMetrics.LastConfirmedMint.Set(float64(unixSeconds))
}
