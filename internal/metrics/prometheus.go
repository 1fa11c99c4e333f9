package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exposes metrics through a prometheus.Registerer.
type PrometheusRecorder struct {
	eventsSubmitted   *prometheus.CounterVec
	gatewayQueueDepth prometheus.Gauge
	lookups           *prometheus.CounterVec
	lookupDuration    *prometheus.HistogramVec
	providerAttempts  *prometheus.CounterVec
	providerExhausted *prometheus.CounterVec
	ledgerDebits      *prometheus.CounterVec
	ledgerRefunds     *prometheus.CounterVec
	auditPublished    *prometheus.CounterVec
	auditProcessed    *prometheus.CounterVec
	auditBatchSize    prometheus.Histogram
}

// NewPrometheus returns a Recorder registered against reg.
// Pass prometheus.DefaultRegisterer in production.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		eventsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lookupd_events_submitted_total",
			Help: "Inbound events by submit result.",
		}, []string{"result"}),
		gatewayQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lookupd_gateway_queue_depth",
			Help: "Events waiting in the gateway work queue.",
		}),
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lookupd_lookups_total",
			Help: "Lookups by category and outcome.",
		}, []string{"category", "outcome"}),
		lookupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lookupd_lookup_duration_seconds",
			Help:    "End-to-end lookup duration by category.",
			Buckets: prometheus.DefBuckets,
		}, []string{"category"}),
		providerAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lookupd_provider_attempts_total",
			Help: "Provider attempts by category and per-attempt result.",
		}, []string{"category", "result"}),
		providerExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lookupd_provider_exhausted_total",
			Help: "Lookups that exhausted every candidate endpoint.",
		}, []string{"category"}),
		ledgerDebits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lookupd_ledger_debits_total",
			Help: "Ledger debits by pool.",
		}, []string{"pool"}),
		ledgerRefunds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lookupd_ledger_refunds_total",
			Help: "Ledger refunds by pool.",
		}, []string{"pool"}),
		auditPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lookupd_audit_published_total",
			Help: "Audit records published to the stream.",
		}, []string{"status"}),
		auditProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lookupd_audit_processed_total",
			Help: "Audit records processed by the writer.",
		}, []string{"status"}),
		auditBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lookupd_audit_batch_size",
			Help:    "Audit writer batch sizes.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}

// IncEventSubmitted increments the submit-result counter.
func (p *PrometheusRecorder) IncEventSubmitted(result string) {
	p.eventsSubmitted.WithLabelValues(result).Inc()
}

// SetGatewayQueueDepth records the current gateway queue depth.
func (p *PrometheusRecorder) SetGatewayQueueDepth(depth int64) {
	p.gatewayQueueDepth.Set(float64(depth))
}

// IncLookup increments the lookup outcome counter.
func (p *PrometheusRecorder) IncLookup(category, outcome string) {
	p.lookups.WithLabelValues(category, outcome).Inc()
}

// ObserveLookupDuration records end-to-end lookup duration.
func (p *PrometheusRecorder) ObserveLookupDuration(category string, duration time.Duration) {
	p.lookupDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// IncProviderAttempt increments the per-attempt result counter.
func (p *PrometheusRecorder) IncProviderAttempt(category, result string) {
	p.providerAttempts.WithLabelValues(category, result).Inc()
}

// IncProviderExhausted increments the exhaustion counter.
func (p *PrometheusRecorder) IncProviderExhausted(category string) {
	p.providerExhausted.WithLabelValues(category).Inc()
}

// IncLedgerDebit increments the debit counter for a pool.
func (p *PrometheusRecorder) IncLedgerDebit(pool string) {
	p.ledgerDebits.WithLabelValues(pool).Inc()
}

// IncLedgerRefund increments the refund counter for a pool.
func (p *PrometheusRecorder) IncLedgerRefund(pool string) {
	p.ledgerRefunds.WithLabelValues(pool).Inc()
}

// IncAuditPublished increments the audit publish counter.
func (p *PrometheusRecorder) IncAuditPublished(status string) {
	p.auditPublished.WithLabelValues(status).Inc()
}

// IncAuditProcessed increments the audit processing counter.
func (p *PrometheusRecorder) IncAuditProcessed(status string) {
	p.auditProcessed.WithLabelValues(status).Inc()
}

// ObserveAuditBatchSize records an audit batch size.
func (p *PrometheusRecorder) ObserveAuditBatchSize(size int) {
	p.auditBatchSize.Observe(float64(size))
}
