package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	EventsSubmitted     map[string]uint64
	GatewayQueueDepth   int64
	Lookups             map[string]uint64 // "category/outcome"
	ProviderAttempts    map[string]uint64 // "category/result"
	ProviderExhausted   map[string]uint64
	LedgerDebits        map[string]uint64
	LedgerRefunds       map[string]uint64
	AuditPublished      map[string]uint64
	AuditProcessed      map[string]uint64
	AuditBatchCount     uint64
	AuditBatchSizeTotal uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu                sync.Mutex
	eventsSubmitted   map[string]uint64
	lookups           map[string]uint64
	providerAttempts  map[string]uint64
	providerExhausted map[string]uint64
	ledgerDebits      map[string]uint64
	ledgerRefunds     map[string]uint64
	auditPublished    map[string]uint64
	auditProcessed    map[string]uint64

	gatewayQueueDepth   int64
	auditBatchCount     uint64
	auditBatchSizeTotal uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		eventsSubmitted:   make(map[string]uint64),
		lookups:           make(map[string]uint64),
		providerAttempts:  make(map[string]uint64),
		providerExhausted: make(map[string]uint64),
		ledgerDebits:      make(map[string]uint64),
		ledgerRefunds:     make(map[string]uint64),
		auditPublished:    make(map[string]uint64),
		auditProcessed:    make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		EventsSubmitted:     copyMap(m.eventsSubmitted),
		GatewayQueueDepth:   atomic.LoadInt64(&m.gatewayQueueDepth),
		Lookups:             copyMap(m.lookups),
		ProviderAttempts:    copyMap(m.providerAttempts),
		ProviderExhausted:   copyMap(m.providerExhausted),
		LedgerDebits:        copyMap(m.ledgerDebits),
		LedgerRefunds:       copyMap(m.ledgerRefunds),
		AuditPublished:      copyMap(m.auditPublished),
		AuditProcessed:      copyMap(m.auditProcessed),
		AuditBatchCount:     m.auditBatchCount,
		AuditBatchSizeTotal: m.auditBatchSizeTotal,
	}
}

func copyMap(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *InMemoryRecorder) inc(target map[string]uint64, key string) {
	m.mu.Lock()
	target[key]++
	m.mu.Unlock()
}

// IncEventSubmitted increments the submit-result counter.
func (m *InMemoryRecorder) IncEventSubmitted(result string) {
	m.inc(m.eventsSubmitted, result)
}

// SetGatewayQueueDepth records the current gateway queue depth.
func (m *InMemoryRecorder) SetGatewayQueueDepth(depth int64) {
	atomic.StoreInt64(&m.gatewayQueueDepth, depth)
}

// IncLookup increments the lookup outcome counter.
func (m *InMemoryRecorder) IncLookup(category, outcome string) {
	m.inc(m.lookups, category+"/"+outcome)
}

// ObserveLookupDuration is tracked only as a counter in memory.
func (m *InMemoryRecorder) ObserveLookupDuration(category string, duration time.Duration) {}

// IncProviderAttempt increments the per-attempt result counter.
func (m *InMemoryRecorder) IncProviderAttempt(category, result string) {
	m.inc(m.providerAttempts, category+"/"+result)
}

// IncProviderExhausted increments the exhaustion counter.
func (m *InMemoryRecorder) IncProviderExhausted(category string) {
	m.inc(m.providerExhausted, category)
}

// IncLedgerDebit increments the debit counter for a pool.
func (m *InMemoryRecorder) IncLedgerDebit(pool string) {
	m.inc(m.ledgerDebits, pool)
}

// IncLedgerRefund increments the refund counter for a pool.
func (m *InMemoryRecorder) IncLedgerRefund(pool string) {
	m.inc(m.ledgerRefunds, pool)
}

// IncAuditPublished increments the audit publish counter.
func (m *InMemoryRecorder) IncAuditPublished(status string) {
	m.inc(m.auditPublished, status)
}

// IncAuditProcessed increments the audit processing counter.
func (m *InMemoryRecorder) IncAuditProcessed(status string) {
	m.inc(m.auditProcessed, status)
}

// ObserveAuditBatchSize records an audit batch size.
func (m *InMemoryRecorder) ObserveAuditBatchSize(size int) {
	m.mu.Lock()
	m.auditBatchCount++
	m.auditBatchSizeTotal += uint64(size)
	m.mu.Unlock()
}
