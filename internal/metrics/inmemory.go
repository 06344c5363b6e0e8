package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	MeteredRequests         map[string]uint64
	UpstreamDurationCount   uint64
	UpstreamDurationTotalNs int64
	TokensDebited           int64
	DebitShortfalls         uint64
	UsageRecordFailures     uint64
	BillingEvents           map[string]uint64
}

// InMemoryRecorder stores metrics in memory. It backs the /metrics endpoint
// and tests.
type InMemoryRecorder struct {
	mu              sync.Mutex
	meteredRequests map[string]uint64
	billingEvents   map[string]uint64

	upstreamDurationCount   uint64
	upstreamDurationTotalNs int64
	tokensDebited           int64
	debitShortfalls         uint64
	usageRecordFailures     uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		meteredRequests: make(map[string]uint64),
		billingEvents:   make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	requests := make(map[string]uint64, len(m.meteredRequests))
	for k, v := range m.meteredRequests {
		requests[k] = v
	}
	billing := make(map[string]uint64, len(m.billingEvents))
	for k, v := range m.billingEvents {
		billing[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		MeteredRequests:         requests,
		UpstreamDurationCount:   atomic.LoadUint64(&m.upstreamDurationCount),
		UpstreamDurationTotalNs: atomic.LoadInt64(&m.upstreamDurationTotalNs),
		TokensDebited:           atomic.LoadInt64(&m.tokensDebited),
		DebitShortfalls:         atomic.LoadUint64(&m.debitShortfalls),
		UsageRecordFailures:     atomic.LoadUint64(&m.usageRecordFailures),
		BillingEvents:           billing,
	}
}

// IncMeteredRequest counts a finished metered request by outcome.
func (m *InMemoryRecorder) IncMeteredRequest(outcome string) {
	m.mu.Lock()
	m.meteredRequests[outcome]++
	m.mu.Unlock()
}

// ObserveUpstreamDuration records upstream call latency.
func (m *InMemoryRecorder) ObserveUpstreamDuration(duration time.Duration) {
	atomic.AddUint64(&m.upstreamDurationCount, 1)
	atomic.AddInt64(&m.upstreamDurationTotalNs, duration.Nanoseconds())
}

// AddTokensDebited adds to the charged token total.
func (m *InMemoryRecorder) AddTokensDebited(tokens int64) {
	atomic.AddInt64(&m.tokensDebited, tokens)
}

// IncDebitShortfall counts debits clamped at zero balance.
func (m *InMemoryRecorder) IncDebitShortfall() {
	atomic.AddUint64(&m.debitShortfalls, 1)
}

// IncUsageRecordFailed counts usage events that could not be stored.
func (m *InMemoryRecorder) IncUsageRecordFailed() {
	atomic.AddUint64(&m.usageRecordFailures, 1)
}

// IncBillingEvent counts a billing event by outcome.
func (m *InMemoryRecorder) IncBillingEvent(outcome string) {
	m.mu.Lock()
	m.billingEvents[outcome]++
	m.mu.Unlock()
}
