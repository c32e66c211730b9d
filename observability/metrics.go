package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// TippingMetrics tracks ledger operations as seen by the node.
type TippingMetrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	volume     prometheus.Counter
	faucet     prometheus.Counter
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	tippingMetricsOnce sync.Once
	tippingRegistry    *TippingMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipchain",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipchain",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tipchain",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipchain",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by rate limiting or auth.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a JSON-RPC call. code is the JSON-RPC error
// code, or zero on success.
func (m *moduleMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" or "unauthorized".
func (m *moduleMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Tipping returns the lazily-initialised ledger metrics registry.
func Tipping() *TippingMetrics {
	tippingMetricsOnce.Do(func() {
		tippingRegistry = &TippingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipchain",
				Subsystem: "tipping",
				Name:      "requests_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipchain",
				Subsystem: "tipping",
				Name:      "errors_total",
				Help:      "Rejected ledger operations segmented by error kind.",
			}, []string{"kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tipchain",
				Subsystem: "tipping",
				Name:      "request_duration_seconds",
				Help:      "Time spent validating and committing ledger operations.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			}, []string{"method"}),
			volume: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tipchain",
				Subsystem: "tipping",
				Name:      "tips_volume_total",
				Help:      "Sum of accepted tip amounts in base units.",
			}),
			faucet: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tipchain",
				Subsystem: "faucet",
				Name:      "airdrops_total",
				Help:      "Count of faucet credits.",
			}),
		}
		prometheus.MustRegister(
			tippingRegistry.operations,
			tippingRegistry.errors,
			tippingRegistry.latency,
			tippingRegistry.volume,
			tippingRegistry.faucet,
		)
	})
	return tippingRegistry
}

// Observe records one ledger operation. kind is empty on success.
func (m *TippingMetrics) Observe(method, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if kind != "" {
		outcome = "rejected"
		m.errors.WithLabelValues(kind).Inc()
	}
	m.operations.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// AddVolume adds an accepted tip amount to the volume counter.
func (m *TippingMetrics) AddVolume(amount uint64) {
	if m == nil {
		return
	}
	m.volume.Add(float64(amount))
}

// RecordAirdrop counts a faucet credit.
func (m *TippingMetrics) RecordAirdrop() {
	if m == nil {
		return
	}
	m.faucet.Inc()
}
