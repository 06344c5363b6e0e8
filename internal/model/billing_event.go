package model

// BillingEventKind tags the decoded variant of a billing notification.
type BillingEventKind string

// Billing event kinds.
const (
	BillingSubscriptionActivated BillingEventKind = "subscription_activated"
	BillingSubscriptionCancelled BillingEventKind = "subscription_cancelled"
	BillingSubscriptionRenewed   BillingEventKind = "subscription_renewed"
	BillingUnrecognized          BillingEventKind = "unrecognized"
)

// BillingEvent is a verified billing notification mapped to a known variant.
// Only the fields relevant to Kind are populated.
type BillingEvent struct {
	// ID is the provider-assigned event id, empty if the provider sent none.
	ID   string
	Kind BillingEventKind
	// ProviderType is the raw type tag, kept for logging.
	ProviderType string

	CustomerEmail  string
	CustomerID     string
	SubscriptionID string
}

// BillingOutcome reports what applying a billing event did.
type BillingOutcome string

// Billing outcomes.
const (
	BillingApplied    BillingOutcome = "applied"
	BillingIgnored    BillingOutcome = "ignored"
	BillingUnresolved BillingOutcome = "unresolved"
	BillingDuplicate  BillingOutcome = "duplicate"
)
