package service

import (
	"context"

	"github.com/tollgate/tollgate/internal/model"
)

// DefaultRecentUsage is how many usage events a profile includes.
const DefaultRecentUsage = 20

// ProfileService assembles account views for callers and operators.
type ProfileService struct {
	ledger   *QuotaLedger
	recorder *UsageRecorder
	billing  BillingConfig
}

// NewProfileService creates a new ProfileService.
func NewProfileService(ledger *QuotaLedger, recorder *UsageRecorder, billing BillingConfig) *ProfileService {
	return &ProfileService{ledger: ledger, recorder: recorder, billing: billing}
}

// Get returns the account with its tier allowance and recent usage.
func (s *ProfileService) Get(ctx context.Context, accountID string, recent int) (*model.ProfileResponse, error) {
	acct, err := s.ledger.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if recent <= 0 {
		recent = DefaultRecentUsage
	}
	events, err := s.recorder.List(ctx, accountID, recent)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*model.UsageEvent{}
	}

	return &model.ProfileResponse{
		ID:              acct.ID,
		Email:           acct.Email,
		Tier:            acct.Tier,
		TokensRemaining: acct.TokensRemaining,
		Allowance:       s.billing.Allowance(acct.Tier),
		RecentUsage:     events,
	}, nil
}

// Account returns the raw account snapshot.
func (s *ProfileService) Account(ctx context.Context, accountID string) (*model.Account, error) {
	return s.ledger.Account(ctx, accountID)
}

// Usage returns up to limit recent usage events for an account.
func (s *ProfileService) Usage(ctx context.Context, accountID string, limit int) ([]*model.UsageEvent, error) {
	if _, err := s.ledger.Account(ctx, accountID); err != nil {
		return nil, err
	}
	events, err := s.recorder.List(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*model.UsageEvent{}
	}
	return events, nil
}
