// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Gateway metrics
	IncEventSubmitted(result string) // result: "accepted", "not_ready", "failed"
	SetGatewayQueueDepth(depth int64)

	// Lookup pipeline metrics
	IncLookup(category, outcome string) // outcome: "valid", "empty", "error", "rate_limited", "insufficient"
	ObserveLookupDuration(category string, duration time.Duration)

	// Provider metrics
	IncProviderAttempt(category, result string) // result: "ok", "blocked", "http_error", "transport_error"
	IncProviderExhausted(category string)

	// Ledger metrics
	IncLedgerDebit(pool string) // pool: "free", "balance"
	IncLedgerRefund(pool string)

	// Audit pipeline metrics
	IncAuditPublished(status string) // status: "success" or "dropped"
	IncAuditProcessed(status string) // status: "success", "failed", "skipped"
	ObserveAuditBatchSize(size int)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
