package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tollgate/tollgate/internal/metrics"
	"github.com/tollgate/tollgate/internal/model"
	"github.com/tollgate/tollgate/internal/repository/memstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memLedger is an in-memory EventLedger.
type memLedger struct {
	mu      sync.Mutex
	seen    map[string]bool
	markErr error
}

func newMemLedger() *memLedger {
	return &memLedger{seen: make(map[string]bool)}
}

func (l *memLedger) MarkBillingEvent(_ context.Context, id string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.markErr != nil {
		return false, l.markErr
	}
	if l.seen[id] {
		return false, nil
	}
	l.seen[id] = true
	return true, nil
}

func (l *memLedger) ReleaseBillingEvent(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, id)
	return nil
}

func (l *memLedger) marked(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[id]
}

type meteringEnv struct {
	store    *memstore.Store
	metrics  *metrics.InMemoryRecorder
	ledger   *QuotaLedger
	recorder *UsageRecorder
}

func newMeteringEnv(t *testing.T, accounts ...*model.Account) *meteringEnv {
	t.Helper()
	store := memstore.New()
	for _, a := range accounts {
		store.Put(a)
	}
	rec := metrics.NewInMemory()
	return &meteringEnv{
		store:    store,
		metrics:  rec,
		ledger:   NewQuotaLedger(store, discardLogger(), rec),
		recorder: NewUsageRecorder(store),
	}
}

func (e *meteringEnv) service(c Completer, cfg MeteringConfig) *MeteringService {
	return NewMeteringService(e.ledger, e.recorder, c, cfg, discardLogger(), e.metrics)
}

func (e *meteringEnv) balance(t *testing.T, id string) int64 {
	t.Helper()
	a, err := e.store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccount(%s): %v", id, err)
	}
	return a.TokensRemaining
}

func account(id string, tokens int64) *model.Account {
	return &model.Account{
		ID:              id,
		Email:           id + "@example.com",
		Tier:            model.TierFree,
		TokensRemaining: tokens,
	}
}
