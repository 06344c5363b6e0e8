package service

import (
	"context"
	"time"

	"github.com/tollgate/tollgate/internal/model"
	"github.com/tollgate/tollgate/internal/repository"
	"github.com/tollgate/tollgate/internal/upstream"
)

// AccountStore is the persistent account state. DebitAccount must be a
// single atomic decrement that never leaves a negative balance.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	FindAccountBySubscriptionID(ctx context.Context, subscriptionID string) (*model.Account, error)
	DebitAccount(ctx context.Context, id string, amount int64) (*model.DebitResult, error)
	UpdateAccount(ctx context.Context, id string, u repository.AccountUpdate) (*model.Account, error)
}

// UsageStore is the append-only usage log.
type UsageStore interface {
	InsertUsageEvent(ctx context.Context, e *model.UsageEvent) error
	ListUsageEvents(ctx context.Context, accountID string, limit int) ([]*model.UsageEvent, error)
}

// Completer performs one upstream chat completion.
type Completer interface {
	Complete(ctx context.Context, req upstream.Request) (*upstream.Response, error)
}

// EventLedger remembers billing event IDs that are being or have been applied.
type EventLedger interface {
	MarkBillingEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ReleaseBillingEvent(ctx context.Context, eventID string) error
}

var (
	_ AccountStore = (*repository.Repository)(nil)
	_ UsageStore   = (*repository.Repository)(nil)
	_ Completer    = (*upstream.Client)(nil)
)
