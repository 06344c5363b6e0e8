package model

import "time"

// UsageStatus is the completion status of a metered call attempt.
type UsageStatus string

// Usage status constants.
const (
	UsageCompleted UsageStatus = "completed"
	UsageFailed    UsageStatus = "failed"
)

// OperationLLMQuery is the operation kind for chat completion requests.
const OperationLLMQuery = "llm_query"

// UsageEvent is an immutable audit record of one metered call attempt.
type UsageEvent struct {
	ID         string      `json:"id"` // ULID (time-sortable)
	AccountID  string      `json:"account_id"`
	Operation  string      `json:"operation"`
	Model      string      `json:"model"`
	TokensUsed int64       `json:"tokens_used"`
	LatencyMs  int64       `json:"latency_ms"`
	Status     UsageStatus `json:"status"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
