package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/metrics"
	"github.com/tollgate/tollgate/internal/model"
	"github.com/tollgate/tollgate/internal/repository/memstore"
	"github.com/tollgate/tollgate/internal/service"
	"github.com/tollgate/tollgate/internal/upstream/upstreamtest"
)

var errTest = errors.New("store unavailable")

var testBilling = service.BillingConfig{ProAllowance: 500000, FreeAllowance: 10000}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bufferLogger returns a JSON logger writing into buf.
func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

type testEnv struct {
	store    *memstore.Store
	metrics  *metrics.InMemoryRecorder
	ledger   *service.QuotaLedger
	recorder *service.UsageRecorder
}

func newTestEnv(t *testing.T, accounts ...*model.Account) *testEnv {
	t.Helper()
	store := memstore.New()
	for _, a := range accounts {
		store.Put(a)
	}
	rec := metrics.NewInMemory()
	return &testEnv{
		store:    store,
		metrics:  rec,
		ledger:   service.NewQuotaLedger(store, discardLogger(), rec),
		recorder: service.NewUsageRecorder(store),
	}
}

func (e *testEnv) meteringHandler(c *upstreamtest.Completer) *MeteringHandler {
	svc := service.NewMeteringService(e.ledger, e.recorder, c, service.MeteringConfig{}, discardLogger(), e.metrics)
	return NewMeteringHandler(svc, discardLogger())
}

func (e *testEnv) profiles() *service.ProfileService {
	return service.NewProfileService(e.ledger, e.recorder, testBilling)
}

func (e *testEnv) account(t *testing.T, id string) *model.Account {
	t.Helper()
	a, err := e.store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccount(%s): %v", id, err)
	}
	return a
}

func newAccount(id string, tokens int64) *model.Account {
	return &model.Account{
		ID:              id,
		Email:           id + "@example.com",
		Tier:            model.TierFree,
		TokensRemaining: tokens,
	}
}

// asUser attaches a resolved identity the way the Identity middleware does.
func asUser(r *http.Request, userID string) *http.Request {
	ctx := auth.ContextWithIdentity(r.Context(), &model.Identity{UserID: userID})
	return r.WithContext(ctx)
}
