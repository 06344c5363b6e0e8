package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tollgate/tollgate/internal/metrics"
	"github.com/tollgate/tollgate/internal/model"
	"github.com/tollgate/tollgate/internal/repository"
)

// Billing policy defaults.
const (
	DefaultProAllowance  int64 = 500000
	DefaultFreeAllowance int64 = 10000
	DefaultDedupTTL            = 72 * time.Hour
)

// BillingConfig holds allowance policy and event de-duplication settings.
type BillingConfig struct {
	ProAllowance  int64
	FreeAllowance int64
	DedupTTL      time.Duration
}

// withDefaults fills unset fields. A zero allowance is never intended: it
// would reset every account it touches to an empty balance.
func (c BillingConfig) withDefaults() BillingConfig {
	if c.ProAllowance <= 0 {
		c.ProAllowance = DefaultProAllowance
	}
	if c.FreeAllowance <= 0 {
		c.FreeAllowance = DefaultFreeAllowance
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = DefaultDedupTTL
	}
	return c
}

// Allowance returns the balance a tier is reset to.
func (c BillingConfig) Allowance(tier model.Tier) int64 {
	if tier == model.TierPro {
		return c.ProAllowance
	}
	return c.FreeAllowance
}

// BillingReconciler applies verified billing events to accounts. Every
// transition is an absolute assignment, so applying an event again, or
// concurrently, converges to the same state.
type BillingReconciler struct {
	accounts AccountStore
	events   EventLedger
	cfg      BillingConfig
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewBillingReconciler creates a reconciler. events may be nil to disable
// event-ID de-duplication.
func NewBillingReconciler(accounts AccountStore, events EventLedger, cfg BillingConfig, logger *slog.Logger, m metrics.Recorder) *BillingReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &BillingReconciler{
		accounts: accounts,
		events:   events,
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "billing"),
		metrics:  m,
	}
}

// Config returns the allowance policy in effect.
func (b *BillingReconciler) Config() BillingConfig {
	return b.cfg
}

// Apply applies ev. Unknown event types and unresolvable accounts are
// acknowledged no-ops. A returned error means the event was not applied and
// the provider should redeliver it.
func (b *BillingReconciler) Apply(ctx context.Context, ev model.BillingEvent) (model.BillingOutcome, error) {
	log := b.logger.With("event_id", ev.ID, "event_type", ev.ProviderType)

	if ev.Kind == model.BillingUnrecognized {
		log.Debug("billing event ignored")
		b.metrics.IncBillingEvent(string(model.BillingIgnored))
		return model.BillingIgnored, nil
	}

	marked := false
	if b.events != nil && ev.ID != "" {
		fresh, err := b.events.MarkBillingEvent(ctx, ev.ID, b.cfg.DedupTTL)
		switch {
		case err != nil:
			// The ledger is an optimisation; transitions are idempotent anyway.
			log.Warn("billing event ledger unavailable", "error", err)
		case !fresh:
			log.Info("billing event already processed")
			b.metrics.IncBillingEvent(string(model.BillingDuplicate))
			return model.BillingDuplicate, nil
		default:
			marked = true
		}
	}

	outcome, err := b.apply(ctx, ev, log)
	// Only an applied event may suppress redelivery. An unresolved one can
	// succeed later, once the account exists.
	if marked && (err != nil || outcome != model.BillingApplied) {
		if rerr := b.events.ReleaseBillingEvent(context.WithoutCancel(ctx), ev.ID); rerr != nil {
			log.Warn("failed to release billing event mark", "error", rerr)
		}
	}
	if err != nil {
		b.metrics.IncBillingEvent("failed")
		log.Error("billing event not applied", "error", err)
		return "", err
	}

	b.metrics.IncBillingEvent(string(outcome))
	return outcome, nil
}

func (b *BillingReconciler) apply(ctx context.Context, ev model.BillingEvent, log *slog.Logger) (model.BillingOutcome, error) {
	acct, err := b.resolve(ctx, ev)
	if errors.Is(err, repository.ErrAccountNotFound) {
		log.Warn("billing event target account not found",
			"customer_email", ev.CustomerEmail,
			"subscription_id", ev.SubscriptionID,
		)
		return model.BillingUnresolved, nil
	}
	if err != nil {
		return "", mapStoreError(err)
	}

	update := b.transition(ev)
	updated, err := b.accounts.UpdateAccount(ctx, acct.ID, update)
	if errors.Is(err, repository.ErrAccountNotFound) {
		log.Warn("billing event target account disappeared", "account_id", acct.ID)
		return model.BillingUnresolved, nil
	}
	if err != nil {
		return "", mapStoreError(err)
	}

	log.Info("billing event applied",
		"account_id", updated.ID,
		"tier", updated.Tier,
		"tokens_remaining", updated.TokensRemaining,
	)
	return model.BillingApplied, nil
}

// resolve finds the target account. Missing lookup keys resolve to nothing.
func (b *BillingReconciler) resolve(ctx context.Context, ev model.BillingEvent) (*model.Account, error) {
	switch ev.Kind {
	case model.BillingSubscriptionActivated:
		if ev.CustomerEmail == "" {
			return nil, repository.ErrAccountNotFound
		}
		return b.accounts.FindAccountByEmail(ctx, ev.CustomerEmail)
	default:
		if ev.SubscriptionID == "" {
			return nil, repository.ErrAccountNotFound
		}
		return b.accounts.FindAccountBySubscriptionID(ctx, ev.SubscriptionID)
	}
}

// transition returns the absolute state an event assigns.
func (b *BillingReconciler) transition(ev model.BillingEvent) repository.AccountUpdate {
	var u repository.AccountUpdate
	switch ev.Kind {
	case model.BillingSubscriptionActivated:
		u.Tier = tierPtr(model.TierPro)
		u.TokensRemaining = int64Ptr(b.cfg.ProAllowance)
		u.BillingCustomerID = nonEmpty(ev.CustomerID)
		u.BillingSubscriptionID = nonEmpty(ev.SubscriptionID)
	case model.BillingSubscriptionCancelled:
		u.Tier = tierPtr(model.TierFree)
		u.TokensRemaining = int64Ptr(b.cfg.FreeAllowance)
		u.ClearSubscription = true
	case model.BillingSubscriptionRenewed:
		u.Tier = tierPtr(model.TierPro)
		u.TokensRemaining = int64Ptr(b.cfg.ProAllowance)
	}
	return u
}

func tierPtr(t model.Tier) *model.Tier { return &t }

func int64Ptr(v int64) *int64 { return &v }

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
