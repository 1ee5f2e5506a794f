package gateway

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks gateway-level counters using atomic operations for
// lock-free concurrency, mirroring the teacher's atomic.Int64 snapshot
// idiom, and mirrors the same counters into Prometheus collectors for
// GET /metrics. The atomic fields back the cheap JSON view at GET /stats;
// the Prometheus side is what an operator's scrape target actually reads.
type Metrics struct {
	requests     atomic.Int64
	completions  atomic.Int64
	errors       atomic.Int64
	blocked      atomic.Int64
	rejected     atomic.Int64
	totalTokens  atomic.Int64
	totalLatency atomic.Int64 // nanoseconds

	promRequests   *prometheus.CounterVec
	promBlocked    *prometheus.CounterVec
	promRejected   prometheus.Counter
	promErrors     *prometheus.CounterVec
	promLatency    *prometheus.HistogramVec
	promInFlight   *prometheus.GaugeVec
	promQueueDepth *prometheus.GaugeVec
}

// NewMetrics registers the gateway's Prometheus collectors against reg. A
// nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		promRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmguard",
			Name:      "requests_total",
			Help:      "Requests received, by endpoint dialect.",
		}, []string{"dialect", "endpoint"}),
		promBlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmguard",
			Name:      "scan_blocked_total",
			Help:      "Requests blocked by the scanner pipeline, by side.",
		}, []string{"side"}),
		promRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "llmguard",
			Name:      "admission_rejected_total",
			Help:      "Requests rejected by the admission controller (queue full).",
		}),
		promErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmguard",
			Name:      "upstream_errors_total",
			Help:      "Upstream-originated error responses, by kind.",
		}, []string{"kind"}),
		promLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "llmguard",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"dialect"}),
		promInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "llmguard",
			Name:      "admission_in_flight",
			Help:      "Current in-flight generation requests, by model.",
		}, []string{"model"}),
		promQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "llmguard",
			Name:      "admission_queue_depth",
			Help:      "Current admission wait-queue depth, by model.",
		}, []string{"model"}),
	}
}

// RecordRequest records one inbound request for dialect/endpoint.
func (m *Metrics) RecordRequest(dialect, endpoint string) {
	m.requests.Add(1)
	if m.promRequests != nil {
		m.promRequests.WithLabelValues(dialect, endpoint).Inc()
	}
}

// RecordCompletion records a successful generation, with token count and
// end-to-end latency.
func (m *Metrics) RecordCompletion(dialect string, tokens int, latency time.Duration) {
	m.completions.Add(1)
	m.totalTokens.Add(int64(tokens))
	m.totalLatency.Add(int64(latency))
	if m.promLatency != nil {
		m.promLatency.WithLabelValues(dialect).Observe(latency.Seconds())
	}
}

// RecordBlocked records a scan violation on the given side ("input" or "output").
func (m *Metrics) RecordBlocked(side string) {
	m.blocked.Add(1)
	if m.promBlocked != nil {
		m.promBlocked.WithLabelValues(side).Inc()
	}
}

// RecordRejected records an admission queue_full rejection.
func (m *Metrics) RecordRejected() {
	m.rejected.Add(1)
	if m.promRejected != nil {
		m.promRejected.Inc()
	}
}

// RecordError records an upstream-originated error response, categorized
// by kind (e.g. "upstream_unavailable", "upstream_timeout", "upstream_error").
func (m *Metrics) RecordError(kind string) {
	m.errors.Add(1)
	if m.promErrors != nil {
		m.promErrors.WithLabelValues(kind).Inc()
	}
}

// SetQueueGauges mirrors an admission snapshot into the Prometheus gauges.
// Called on each /stats or /metrics scrape rather than on every
// acquire/release, since gauges only need to be current at read time.
func (m *Metrics) SetQueueGauges(model string, inFlight, queueDepth int) {
	if m.promInFlight != nil {
		m.promInFlight.WithLabelValues(model).Set(float64(inFlight))
	}
	if m.promQueueDepth != nil {
		m.promQueueDepth.WithLabelValues(model).Set(float64(queueDepth))
	}
}

// Snapshot returns a consistent point-in-time view of the atomic counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	completions := m.completions.Load()
	snap := MetricsSnapshot{
		Requests:    m.requests.Load(),
		Completions: completions,
		Errors:      m.errors.Load(),
		Blocked:     m.blocked.Load(),
		Rejected:    m.rejected.Load(),
		TotalTokens: m.totalTokens.Load(),
	}
	if completions > 0 {
		snap.AvgLatency = time.Duration(m.totalLatency.Load() / completions)
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view for GET /stats.
type MetricsSnapshot struct {
	Requests    int64         `json:"requests"`
	Completions int64         `json:"completions"`
	Errors      int64         `json:"errors"`
	Blocked     int64         `json:"blocked"`
	Rejected    int64         `json:"rejected"`
	TotalTokens int64         `json:"total_tokens"`
	AvgLatency  time.Duration `json:"avg_latency_ns"`
}
