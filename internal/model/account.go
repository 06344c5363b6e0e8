// Package model defines domain entities for the application.
package model

import "time"

// Tier is a named subscription level.
type Tier string

// Tier constants.
const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierPro
}

// Account is the billable entity holding a consumable token balance.
// TokensRemaining is never negative at rest.
type Account struct {
	ID                    string    `json:"id"`
	Email                 string    `json:"email"`
	Tier                  Tier      `json:"tier"`
	TokensRemaining       int64     `json:"tokens_remaining"`
	BillingCustomerID     *string   `json:"billing_customer_id,omitempty"`
	BillingSubscriptionID *string   `json:"billing_subscription_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// HasBalance reports whether the account can start a metered request.
func (a *Account) HasBalance() bool {
	return a.TokensRemaining > 0
}

// DebitResult describes the outcome of an atomic balance decrement.
type DebitResult struct {
	// Requested is the usage figure the caller asked to charge.
	Requested int64
	// Charged is what was actually removed from the balance.
	Charged int64
	// Remaining is the persisted balance after the debit.
	Remaining int64
}

// Shortfall is the part of Requested that could not be charged
// because the balance reached zero.
func (d *DebitResult) Shortfall() int64 {
	return d.Requested - d.Charged
}

// Identity is a user resolved from a bearer credential.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// ProfileResponse is the caller-facing view of an account.
type ProfileResponse struct {
	ID              string        `json:"id"`
	Email           string        `json:"email"`
	Tier            Tier          `json:"tier"`
	TokensRemaining int64         `json:"tokens_remaining"`
	Allowance       int64         `json:"allowance"`
	RecentUsage     []*UsageEvent `json:"recent_usage"`
}
