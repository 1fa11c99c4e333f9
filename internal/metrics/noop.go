package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncEventSubmitted is a no-op.
func (n *NoopRecorder) IncEventSubmitted(result string) {}

// SetGatewayQueueDepth is a no-op.
func (n *NoopRecorder) SetGatewayQueueDepth(depth int64) {}

// IncLookup is a no-op.
func (n *NoopRecorder) IncLookup(category, outcome string) {}

// ObserveLookupDuration is a no-op.
func (n *NoopRecorder) ObserveLookupDuration(category string, duration time.Duration) {}

// IncProviderAttempt is a no-op.
func (n *NoopRecorder) IncProviderAttempt(category, result string) {}

// IncProviderExhausted is a no-op.
func (n *NoopRecorder) IncProviderExhausted(category string) {}

// IncLedgerDebit is a no-op.
func (n *NoopRecorder) IncLedgerDebit(pool string) {}

// IncLedgerRefund is a no-op.
func (n *NoopRecorder) IncLedgerRefund(pool string) {}

// IncAuditPublished is a no-op.
func (n *NoopRecorder) IncAuditPublished(status string) {}

// IncAuditProcessed is a no-op.
func (n *NoopRecorder) IncAuditProcessed(status string) {}

// ObserveAuditBatchSize is a no-op.
func (n *NoopRecorder) ObserveAuditBatchSize(size int) {}
