package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tollgate/tollgate/internal/model"
)

// Common errors for account repository operations.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidAmount   = errors.New("debit amount must be non-negative")
)

const accountColumns = `id, email, tier, tokens_remaining, billing_customer_id, billing_subscription_id, created_at, updated_at`

// AccountUpdate is a partial update of an account's billing state.
// Nil fields are left untouched. All assignments are absolute.
type AccountUpdate struct {
	Tier                  *model.Tier
	TokensRemaining       *int64
	BillingCustomerID     *string
	BillingSubscriptionID *string
	// ClearSubscription sets billing_subscription_id to NULL and wins over
	// BillingSubscriptionID.
	ClearSubscription bool
}

// CreateAccount inserts a new account. Used by tests and provisioning tools;
// the service itself never creates accounts.
func (r *Repository) CreateAccount(ctx context.Context, a *model.Account) error {
	query := `
		INSERT INTO accounts (id, email, tier, tokens_remaining, billing_customer_id, billing_subscription_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		a.ID,
		a.Email,
		string(a.Tier),
		a.TokensRemaining,
		a.BillingCustomerID,
		a.BillingSubscriptionID,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetAccount retrieves an account by its ID.
func (r *Repository) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

// FindAccountByEmail retrieves an account by email, case-insensitively.
func (r *Repository) FindAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

// FindAccountBySubscriptionID retrieves the account holding a billing subscription.
func (r *Repository) FindAccountBySubscriptionID(ctx context.Context, subscriptionID string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE billing_subscription_id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, subscriptionID))
}

// DebitAccount subtracts up to amount tokens from the account in a single
// statement. The charge is clamped to the current balance so the stored
// value never goes below zero. The returned result carries the persisted
// post-debit balance.
func (r *Repository) DebitAccount(ctx context.Context, id string, amount int64) (*model.DebitResult, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	// The CTE takes the row lock so prev reflects the value the UPDATE
	// subtracts from, even under concurrent debits.
	query := `
		WITH prev AS (
			SELECT tokens_remaining FROM accounts WHERE id = $1 FOR UPDATE
		)
		UPDATE accounts a
		SET tokens_remaining = a.tokens_remaining - LEAST(a.tokens_remaining, $2),
		    updated_at = GREATEST(a.updated_at, now())
		FROM prev
		WHERE a.id = $1
		RETURNING prev.tokens_remaining, a.tokens_remaining
	`

	var before, after int64
	err := r.pool.QueryRow(ctx, query, id, amount).Scan(&before, &after)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to debit account: %w", err)
	}

	return &model.DebitResult{
		Requested: amount,
		Charged:   before - after,
		Remaining: after,
	}, nil
}

// UpdateAccount applies a partial billing-state update and returns the
// resulting account.
func (r *Repository) UpdateAccount(ctx context.Context, id string, u AccountUpdate) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET tier = COALESCE($2, tier),
		    tokens_remaining = COALESCE($3, tokens_remaining),
		    billing_customer_id = COALESCE($4, billing_customer_id),
		    billing_subscription_id = CASE WHEN $6::boolean THEN NULL ELSE COALESCE($5, billing_subscription_id) END,
		    updated_at = GREATEST(updated_at, now())
		WHERE id = $1
		RETURNING ` + accountColumns

	var tier *string
	if u.Tier != nil {
		t := string(*u.Tier)
		tier = &t
	}

	return scanAccount(r.pool.QueryRow(ctx, query,
		id,
		tier,
		u.TokensRemaining,
		u.BillingCustomerID,
		u.BillingSubscriptionID,
		u.ClearSubscription,
	))
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	var tier string

	err := row.Scan(
		&a.ID,
		&a.Email,
		&tier,
		&a.TokensRemaining,
		&a.BillingCustomerID,
		&a.BillingSubscriptionID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	a.Tier = model.Tier(tier)
	return &a, nil
}
