// Package memstore is an in-memory implementation of the account and usage
// stores. It backs unit tests and local runs without PostgreSQL.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tollgate/tollgate/internal/model"
	"github.com/tollgate/tollgate/internal/repository"
)

// Store keeps accounts and usage events in memory.
// Debits and updates are serialized by a single mutex, which gives the same
// atomicity as the conditional UPDATE in the PostgreSQL repository.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
	events   []*model.UsageEvent

	// Failure injection. A non-nil error is returned instead of performing
	// the operation.
	DebitErr  error
	InsertErr error
	UpdateErr error
	GetErr    error
}

// New creates an empty store.
func New() *Store {
	return &Store{accounts: make(map[string]*model.Account)}
}

// Put inserts or replaces an account.
func (s *Store) Put(a *model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.accounts[a.ID] = &cp
}

// GetAccount returns a copy of the account with the given ID.
func (s *Store) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// FindAccountByEmail matches email case-insensitively.
func (s *Store) FindAccountByEmail(_ context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

// FindAccountBySubscriptionID returns the account holding subscriptionID.
func (s *Store) FindAccountBySubscriptionID(_ context.Context, subscriptionID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.BillingSubscriptionID != nil && *a.BillingSubscriptionID == subscriptionID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

// DebitAccount subtracts up to amount tokens, clamping at zero.
func (s *Store) DebitAccount(_ context.Context, id string, amount int64) (*model.DebitResult, error) {
	if amount < 0 {
		return nil, repository.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DebitErr != nil {
		return nil, s.DebitErr
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}

	charged := min(amount, a.TokensRemaining)
	a.TokensRemaining -= charged
	s.touch(a)

	return &model.DebitResult{
		Requested: amount,
		Charged:   charged,
		Remaining: a.TokensRemaining,
	}, nil
}

// UpdateAccount applies a partial billing-state update.
func (s *Store) UpdateAccount(_ context.Context, id string, u repository.AccountUpdate) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}

	if u.Tier != nil {
		a.Tier = *u.Tier
	}
	if u.TokensRemaining != nil {
		a.TokensRemaining = *u.TokensRemaining
	}
	if u.BillingCustomerID != nil {
		v := *u.BillingCustomerID
		a.BillingCustomerID = &v
	}
	switch {
	case u.ClearSubscription:
		a.BillingSubscriptionID = nil
	case u.BillingSubscriptionID != nil:
		v := *u.BillingSubscriptionID
		a.BillingSubscriptionID = &v
	}
	s.touch(a)

	cp := *a
	return &cp, nil
}

// InsertUsageEvent appends an event.
func (s *Store) InsertUsageEvent(_ context.Context, e *model.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

// ListUsageEvents returns an account's events, newest first.
func (s *Store) ListUsageEvents(_ context.Context, accountID string, limit int) ([]*model.UsageEvent, error) {
	if limit <= 0 {
		limit = repository.DefaultUsageListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.UsageEvent
	for _, e := range s.events {
		if e.AccountID == accountID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns a snapshot of every recorded event in insertion order.
func (s *Store) Events() []*model.UsageEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.UsageEvent, len(s.events))
	for i, e := range s.events {
		cp := *e
		out[i] = &cp
	}
	return out
}

// touch advances updated_at monotonically.
func (s *Store) touch(a *model.Account) {
	now := time.Now().UTC()
	if now.After(a.UpdatedAt) {
		a.UpdatedAt = now
	}
}
