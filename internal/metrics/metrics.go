// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Metered request outcomes.
const (
	OutcomeCompleted           = "completed"
	OutcomeInsufficientBalance = "insufficient_balance"
	OutcomeUpstreamFailed      = "upstream_failed"
	OutcomeError               = "error"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Metering pipeline
	IncMeteredRequest(outcome string)
	ObserveUpstreamDuration(duration time.Duration)
	AddTokensDebited(tokens int64)
	IncDebitShortfall()
	IncUsageRecordFailed()

	// Billing pipeline. outcome is a model.BillingOutcome or "failed".
	IncBillingEvent(outcome string)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
