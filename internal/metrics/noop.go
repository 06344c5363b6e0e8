package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncMeteredRequest is a no-op.
func (n *NoopRecorder) IncMeteredRequest(outcome string) {}

// ObserveUpstreamDuration is a no-op.
func (n *NoopRecorder) ObserveUpstreamDuration(duration time.Duration) {}

// AddTokensDebited is a no-op.
func (n *NoopRecorder) AddTokensDebited(tokens int64) {}

// IncDebitShortfall is a no-op.
func (n *NoopRecorder) IncDebitShortfall() {}

// IncUsageRecordFailed is a no-op.
func (n *NoopRecorder) IncUsageRecordFailed() {}

// IncBillingEvent is a no-op.
func (n *NoopRecorder) IncBillingEvent(outcome string) {}
