package service

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tollgate/tollgate/internal/model"
)

// UsageRecorder appends immutable usage events.
type UsageRecorder struct {
	store UsageStore
}

// NewUsageRecorder creates a new UsageRecorder.
func NewUsageRecorder(store UsageStore) *UsageRecorder {
	return &UsageRecorder{store: store}
}

// Append stores e, assigning an ID and timestamp when unset.
// A failure is ErrStorage; nothing already committed is undone.
func (r *UsageRecorder) Append(ctx context.Context, e *model.UsageEvent) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Operation == "" {
		e.Operation = model.OperationLLMQuery
	}

	if err := r.store.InsertUsageEvent(ctx, e); err != nil {
		return fmt.Errorf("%w: append usage event: %v", ErrStorage, err)
	}
	return nil
}

// List returns an account's most recent events, newest first.
func (r *UsageRecorder) List(ctx context.Context, accountID string, limit int) ([]*model.UsageEvent, error) {
	events, err := r.store.ListUsageEvents(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list usage events: %v", ErrStorage, err)
	}
	return events, nil
}
