package service

import (
	"context"
	"log/slog"

	"github.com/tollgate/tollgate/internal/metrics"
	"github.com/tollgate/tollgate/internal/model"
)

// DefaultUsageCost is charged when the upstream reply carries no usage.
const DefaultUsageCost int64 = 500

// QuotaLedger owns the sufficient-funds check and the debit.
type QuotaLedger struct {
	accounts AccountStore
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewQuotaLedger creates a new QuotaLedger.
func NewQuotaLedger(accounts AccountStore, logger *slog.Logger, recorder metrics.Recorder) *QuotaLedger {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &QuotaLedger{
		accounts: accounts,
		logger:   logger.With("component", "quota_ledger"),
		metrics:  recorder,
	}
}

// Account returns the account without judging its balance.
func (l *QuotaLedger) Account(ctx context.Context, userID string) (*model.Account, error) {
	acct, err := l.accounts.GetAccount(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return acct, nil
}

// CheckBalance returns a point-in-time snapshot of the account, failing with
// ErrInsufficientBalance when nothing is left to spend.
func (l *QuotaLedger) CheckBalance(ctx context.Context, userID string) (*model.Account, error) {
	acct, err := l.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !acct.HasBalance() {
		return nil, ErrInsufficientBalance
	}
	return acct, nil
}

// Debit atomically charges amount tokens, clamped to the current balance.
// The result carries the persisted balance.
func (l *QuotaLedger) Debit(ctx context.Context, userID string, amount int64) (*model.DebitResult, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	res, err := l.accounts.DebitAccount(ctx, userID, amount)
	if err != nil {
		return nil, mapStoreError(err)
	}

	l.metrics.AddTokensDebited(res.Charged)
	if short := res.Shortfall(); short > 0 {
		l.metrics.IncDebitShortfall()
		l.logger.Warn("usage exceeded remaining balance",
			"account_id", userID,
			"requested", res.Requested,
			"charged", res.Charged,
			"shortfall", short,
		)
	}
	return res, nil
}
