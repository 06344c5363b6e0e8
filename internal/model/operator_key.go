package model

import (
	"slices"
	"time"
)

// Scope constants for operator key authorization.
const (
	ScopeRead  = "read"
	ScopeAdmin = "admin"
)

// ValidScopes contains all valid scope values.
var ValidScopes = []string{ScopeRead, ScopeAdmin}

// OperatorKey is a credential for the operator console.
type OperatorKey struct {
	ID         string     `json:"id"`
	KeyHash    string     `json:"-"` // Never serialize
	KeyPrefix  string     `json:"key_prefix"`
	Scopes     []string   `json:"scopes"`
	Name       string     `json:"name,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsRevoked returns true if the key has been revoked.
func (k *OperatorKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// OperatorContext holds the authenticated operator for a request.
// This is injected into the request context by the operator auth middleware.
type OperatorContext struct {
	KeyID     string
	KeyPrefix string
	Name      string
	Scopes    []string
}

// HasScope checks if the operator has a specific scope.
// Admin scope implies all other scopes.
func (o *OperatorContext) HasScope(scope string) bool {
	if slices.Contains(o.Scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(o.Scopes, scope)
}
