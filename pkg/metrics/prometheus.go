// Package metrics provides Prometheus metrics for the attestation and reward engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Engine outcomes
	attestations     *prometheus.CounterVec
	spins            *prometheus.CounterVec
	couponsIssued    prometheus.Counter
	couponRedeems    *prometheus.CounterVec
	couponCollisions prometheus.Counter
	issueRetries     prometheus.Counter
	tokensMinted     *prometheus.CounterVec

	// Ledger I/O
	ledgerLatency  *prometheus.HistogramVec
	ledgerErrors   *prometheus.CounterVec
	ledgerPruned   *prometheus.CounterVec
	transientRetry *prometheus.CounterVec
	ledgerRows     *prometheus.GaugeVec

	// Risk pipeline
	riskQueueSize      prometheus.Gauge
	riskQueueCapacity  prometheus.Gauge
	riskEnqueued       prometheus.Counter
	riskDropped        *prometheus.CounterVec
	riskProcessed      prometheus.Counter
	riskWorkerErrors   prometheus.Counter
	riskWorkerCount    prometheus.Gauge
	riskProcessLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // service registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "attest",
		subsystem:        "engine",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.attestations = m.counterVec("attestations_total", "Attestation attempts by outcome code", "outcome")
	m.spins = m.counterVec("spins_total", "Spin requests by outcome (allowed, denied, error)", "outcome")
	m.couponsIssued = m.counter("coupons_issued_total", "Coupons issued by successful spins")
	m.couponRedeems = m.counterVec("coupon_redemptions_total", "Coupon redemption attempts by outcome code", "outcome")
	m.couponCollisions = m.counter("coupon_code_collisions_total", "Coupon code clashes resolved by drawing a fresh code")
	m.issueRetries = m.counter("coupon_issue_retries_total", "Coupon issuance retries after a cooldown was advanced")
	m.tokensMinted = m.counterVec("tokens_minted_total", "Tokens minted by the issuer by type", "type")

	m.ledgerLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "ledger_op_latency_milliseconds",
		Help:        "Latency of ledger primitives in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"ledger", "op"})
	m.ledgerErrors = m.counterVec("ledger_errors_total", "Transient ledger failures", "ledger", "op")
	m.ledgerPruned = m.counterVec("ledger_pruned_total", "Rows removed by the retention janitor", "ledger")
	m.transientRetry = m.counterVec("transient_retries_total", "Internal retries of transient ledger failures", "op")
	m.ledgerRows = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "ledger_rows",
		Help:        "Rows currently held per ledger",
		ConstLabels: m.customLabels,
	}, []string{"ledger"})

	m.riskQueueSize = m.gauge("risk_queue_size", "Current number of queued risk events")
	m.riskQueueCapacity = m.gauge("risk_queue_capacity", "Capacity of the risk event queue")
	m.riskEnqueued = m.counter("risk_events_enqueued_total", "Risk events accepted by the queue")
	m.riskDropped = m.counterVec("risk_events_dropped_total", "Risk events dropped before processing", "reason")
	m.riskProcessed = m.counter("risk_events_processed_total", "Risk events applied to the risk ledger")
	m.riskWorkerErrors = m.counter("risk_worker_errors_total", "Risk worker failures")
	m.riskWorkerCount = m.gauge("risk_worker_count", "Number of risk workers")
	m.riskProcessLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "risk_process_latency_milliseconds",
		Help:        "Time to apply one risk event in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.rateLimited = m.counterVec("http_rate_limited_total", "Requests rejected by the per-client limiter", "endpoint")
}

// RecordAttestation counts one attestation attempt with its outcome code.
func RecordAttestation(outcome string) {
	if globalManager.enabled {
		globalManager.attestations.WithLabelValues(outcome).Inc()
	}
}

// RecordSpin counts one spin with its outcome.
func RecordSpin(outcome string) {
	if globalManager.enabled {
		globalManager.spins.WithLabelValues(outcome).Inc()
	}
}

// RecordCouponIssued counts one issued coupon.
func RecordCouponIssued() {
	if globalManager.enabled {
		globalManager.couponsIssued.Inc()
	}
}

// RecordCouponRedeem counts one redemption attempt with its outcome code.
func RecordCouponRedeem(outcome string) {
	if globalManager.enabled {
		globalManager.couponRedeems.WithLabelValues(outcome).Inc()
	}
}

// RecordCouponCollision counts a coupon code clash.
func RecordCouponCollision() {
	if globalManager.enabled {
		globalManager.couponCollisions.Inc()
	}
}

// RecordIssueRetry counts a coupon issuance retry.
func RecordIssueRetry() {
	if globalManager.enabled {
		globalManager.issueRetries.Inc()
	}
}

// RecordTokenMinted counts a minted token by type.
func RecordTokenMinted(tokenType string) {
	if globalManager.enabled {
		globalManager.tokensMinted.WithLabelValues(tokenType).Inc()
	}
}

// ObserveLedger records the latency of a ledger primitive.
func ObserveLedger(ledger, op string, started time.Time) {
	if globalManager.enabled {
		globalManager.ledgerLatency.WithLabelValues(ledger, op).Observe(float64(time.Since(started).Microseconds()) / 1000)
	}
}

// RecordLedgerError counts a transient ledger failure.
func RecordLedgerError(ledger, op string) {
	if globalManager.enabled {
		globalManager.ledgerErrors.WithLabelValues(ledger, op).Inc()
	}
}

// RecordLedgerPruned counts rows removed by retention.
func RecordLedgerPruned(ledger string, n int64) {
	if globalManager.enabled && n > 0 {
		globalManager.ledgerPruned.WithLabelValues(ledger).Add(float64(n))
	}
}

// RecordTransientRetry counts an internal retry of op.
func RecordTransientRetry(op string) {
	if globalManager.enabled {
		globalManager.transientRetry.WithLabelValues(op).Inc()
	}
}

// UpdateLedgerRows sets the row gauge for one ledger.
func UpdateLedgerRows(ledger string, n int64) {
	if globalManager.enabled {
		globalManager.ledgerRows.WithLabelValues(ledger).Set(float64(n))
	}
}

// UpdateRiskQueue sets the risk queue gauges.
func UpdateRiskQueue(size, capacity int) {
	if globalManager.enabled {
		globalManager.riskQueueSize.Set(float64(size))
		globalManager.riskQueueCapacity.Set(float64(capacity))
	}
}

// RecordRiskEnqueued counts an accepted risk event.
func RecordRiskEnqueued() {
	if globalManager.enabled {
		globalManager.riskEnqueued.Inc()
	}
}

// RecordRiskDropped counts a dropped risk event with the reason.
func RecordRiskDropped(reason string) {
	if globalManager.enabled {
		globalManager.riskDropped.WithLabelValues(reason).Inc()
	}
}

// RecordRiskProcessed counts an applied risk event and its latency.
func RecordRiskProcessed(latency time.Duration) {
	if globalManager.enabled {
		globalManager.riskProcessed.Inc()
		globalManager.riskProcessLatency.Observe(float64(latency.Microseconds()) / 1000)
	}
}

// RecordRiskWorkerError counts a risk worker failure.
func RecordRiskWorkerError() {
	if globalManager.enabled {
		globalManager.riskWorkerErrors.Inc()
	}
}

// UpdateRiskWorkerCount sets the number of risk workers.
func UpdateRiskWorkerCount(n int) {
	if globalManager.enabled {
		globalManager.riskWorkerCount.Set(float64(n))
	}
}

// RecordHTTPRequest records one HTTP request and its duration in milliseconds.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited(endpoint string) {
	if globalManager.enabled {
		globalManager.rateLimited.WithLabelValues(endpoint).Inc()
	}
}

// GetRegistry returns the registry that holds the service metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RefreshInterval returns how often gauges should be refreshed by background loops.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}
