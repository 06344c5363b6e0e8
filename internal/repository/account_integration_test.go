//go:build integration

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tollgate/tollgate/internal/model"
	"github.com/tollgate/tollgate/internal/testutil"
)

// ============================================================================
// Account Repository Integration Tests
// ============================================================================

func TestIntegrationAccountRepository_GetAccount(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	acct := testutil.NewTestAccount(t, 1000)
	if err := repo.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	got, err := repo.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got.TokensRemaining != 1000 {
		t.Errorf("TokensRemaining = %d, want 1000", got.TokensRemaining)
	}
	if got.Tier != model.TierFree {
		t.Errorf("Tier = %q, want free", got.Tier)
	}

	if _, err := repo.GetAccount(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestIntegrationAccountRepository_FindByEmailCaseInsensitive(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	acct := testutil.NewTestAccount(t, 10)
	acct.Email = "Mixed.Case@Example.com"
	if err := repo.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	got, err := repo.FindAccountByEmail(ctx, "mixed.case@example.com")
	if err != nil {
		t.Fatalf("FindAccountByEmail failed: %v", err)
	}
	if got.ID != acct.ID {
		t.Errorf("ID = %q, want %q", got.ID, acct.ID)
	}
}

func TestIntegrationAccountRepository_FindBySubscriptionID(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	acct := testutil.NewTestProAccount(t, 500000, "sub_find")
	if err := repo.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	got, err := repo.FindAccountBySubscriptionID(ctx, "sub_find")
	if err != nil {
		t.Fatalf("FindAccountBySubscriptionID failed: %v", err)
	}
	if got.ID != acct.ID {
		t.Errorf("ID = %q, want %q", got.ID, acct.ID)
	}

	if _, err := repo.FindAccountBySubscriptionID(ctx, "sub_missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestIntegrationAccountRepository_DebitAccount(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	acct := testutil.NewTestAccount(t, 1000)
	if err := repo.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	res, err := repo.DebitAccount(ctx, acct.ID, 300)
	if err != nil {
		t.Fatalf("DebitAccount failed: %v", err)
	}
	if res.Charged != 300 || res.Remaining != 700 {
		t.Errorf("got charged=%d remaining=%d, want 300/700", res.Charged, res.Remaining)
	}

	// Overdraw clamps at zero.
	res, err = repo.DebitAccount(ctx, acct.ID, 5000)
	if err != nil {
		t.Fatalf("DebitAccount failed: %v", err)
	}
	if res.Charged != 700 || res.Remaining != 0 || res.Shortfall() != 4300 {
		t.Errorf("got charged=%d remaining=%d shortfall=%d", res.Charged, res.Remaining, res.Shortfall())
	}

	if _, err := repo.DebitAccount(ctx, acct.ID, -1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := repo.DebitAccount(ctx, "missing", 1); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestIntegrationAccountRepository_ConcurrentDebitsNeverNegative(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	acct := testutil.NewTestAccount(t, 1000)
	if err := repo.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		charged int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.DebitAccount(ctx, acct.ID, 100)
			if err != nil {
				t.Errorf("DebitAccount failed: %v", err)
				return
			}
			mu.Lock()
			charged += res.Charged
			mu.Unlock()
		}()
	}
	wg.Wait()

	got, err := repo.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got.TokensRemaining != 0 {
		t.Errorf("TokensRemaining = %d, want 0", got.TokensRemaining)
	}
	if charged != 1000 {
		t.Errorf("total charged = %d, want 1000", charged)
	}
}

func TestIntegrationAccountRepository_UpdateAccount(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	acct := testutil.NewTestAccount(t, 10)
	if err := repo.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	tier := model.TierPro
	tokens := int64(500000)
	customer := "cus_1"
	sub := "sub_1"
	got, err := repo.UpdateAccount(ctx, acct.ID, AccountUpdate{
		Tier:                  &tier,
		TokensRemaining:       &tokens,
		BillingCustomerID:     &customer,
		BillingSubscriptionID: &sub,
	})
	if err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}
	if got.Tier != model.TierPro || got.TokensRemaining != 500000 {
		t.Errorf("unexpected state: tier=%q tokens=%d", got.Tier, got.TokensRemaining)
	}
	if got.BillingSubscriptionID == nil || *got.BillingSubscriptionID != "sub_1" {
		t.Errorf("subscription not set: %v", got.BillingSubscriptionID)
	}
	if got.UpdatedAt.Before(acct.UpdatedAt.Add(-time.Second)) {
		t.Errorf("UpdatedAt went backwards: %v < %v", got.UpdatedAt, acct.UpdatedAt)
	}

	free := model.TierFree
	freeTokens := int64(10000)
	got, err = repo.UpdateAccount(ctx, acct.ID, AccountUpdate{
		Tier:              &free,
		TokensRemaining:   &freeTokens,
		ClearSubscription: true,
	})
	if err != nil {
		t.Fatalf("UpdateAccount (cancel) failed: %v", err)
	}
	if got.BillingSubscriptionID != nil {
		t.Errorf("expected subscription cleared, got %q", *got.BillingSubscriptionID)
	}
	if got.BillingCustomerID == nil || *got.BillingCustomerID != "cus_1" {
		t.Error("customer id should be untouched")
	}

	if _, err := repo.UpdateAccount(ctx, "missing", AccountUpdate{Tier: &free}); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

// ============================================================================
// Usage Event Repository Integration Tests
// ============================================================================

func TestIntegrationUsageEventRepository_InsertAndList(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	acct := testutil.NewTestAccount(t, 10)
	if err := repo.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	base := time.Now().UTC().Add(-time.Minute)
	for i, status := range []model.UsageStatus{model.UsageCompleted, model.UsageFailed} {
		e := &model.UsageEvent{
			ID:         testutil.UniqueID("evt"),
			AccountID:  acct.ID,
			Operation:  model.OperationLLMQuery,
			Model:      "m",
			TokensUsed: int64(10 * (1 - i)),
			LatencyMs:  42,
			Status:     status,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if status == model.UsageFailed {
			e.Error = "upstream status 503"
		}
		if err := repo.InsertUsageEvent(ctx, e); err != nil {
			t.Fatalf("InsertUsageEvent failed: %v", err)
		}
	}

	events, err := repo.ListUsageEvents(ctx, acct.ID, 10)
	if err != nil {
		t.Fatalf("ListUsageEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Status != model.UsageFailed || events[0].Error == "" {
		t.Errorf("newest event should be the failed one, got %+v", events[0])
	}
	if events[1].Error != "" {
		t.Errorf("completed event should carry no error, got %q", events[1].Error)
	}
}

// ============================================================================
// Operator Key Repository Integration Tests
// ============================================================================

func TestIntegrationOperatorKeyRepository_Lifecycle(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	key := testutil.NewTestOperatorKey(t)
	key.Scopes = []string{model.ScopeRead, model.ScopeAdmin}
	if err := repo.CreateOperatorKey(ctx, key); err != nil {
		t.Fatalf("CreateOperatorKey failed: %v", err)
	}

	keys, err := repo.GetOperatorKeysByPrefix(ctx, key.KeyPrefix)
	if err != nil {
		t.Fatalf("GetOperatorKeysByPrefix failed: %v", err)
	}
	if len(keys) != 1 || len(keys[0].Scopes) != 2 {
		t.Fatalf("unexpected keys: %+v", keys)
	}

	if err := repo.UpdateOperatorKeyLastUsed(ctx, key.ID); err != nil {
		t.Fatalf("UpdateOperatorKeyLastUsed failed: %v", err)
	}
	got, err := repo.GetOperatorKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetOperatorKeyByID failed: %v", err)
	}
	if got.LastUsedAt == nil {
		t.Error("LastUsedAt should be set")
	}

	if err := repo.RevokeOperatorKey(ctx, key.ID); err != nil {
		t.Fatalf("RevokeOperatorKey failed: %v", err)
	}
	if err := repo.RevokeOperatorKey(ctx, key.ID); !errors.Is(err, ErrOperatorKeyNotFound) {
		t.Errorf("second revoke: expected ErrOperatorKeyNotFound, got %v", err)
	}

	keys, err = repo.GetOperatorKeysByPrefix(ctx, key.KeyPrefix)
	if err != nil {
		t.Fatalf("GetOperatorKeysByPrefix failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("revoked key should not be returned, got %d", len(keys))
	}
}

func newRepoTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL, PoolConfig{MaxConns: 25})
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}
