package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tollgate/tollgate/internal/model"
)

// withURLParam routes a request through chi so URLParam resolves.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func seedUsage(t *testing.T, env *testEnv, accountID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := env.recorder.Append(context.Background(), &model.UsageEvent{
			AccountID:  accountID,
			Model:      "m",
			TokensUsed: int64(i + 1),
			Status:     model.UsageCompleted,
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
}

func TestAdminHandler_GetAccount(t *testing.T) {
	env := newTestEnv(t, newAccount("u1", 77))
	h := NewAdminHandler(env.profiles(), discardLogger())

	rec := httptest.NewRecorder()
	h.GetAccount(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/admin/accounts/u1", nil), "id", "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var acct model.Account
	if err := json.NewDecoder(rec.Body).Decode(&acct); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if acct.ID != "u1" || acct.TokensRemaining != 77 {
		t.Errorf("unexpected account: %+v", acct)
	}

	rec = httptest.NewRecorder()
	h.GetAccount(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/admin/accounts/nope", nil), "id", "nope"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestAdminHandler_ListUsage(t *testing.T) {
	env := newTestEnv(t, newAccount("u1", 77))
	seedUsage(t, env, "u1", 5)
	h := NewAdminHandler(env.profiles(), discardLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/accounts/u1/usage?limit=3", nil)
	h.ListUsage(rec, withURLParam(req, "id", "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp UsageListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 3 || len(resp.Events) != 3 {
		t.Errorf("expected 3 events, got %d", resp.Total)
	}
}

func TestAdminHandler_ListUsage_InvalidLimit(t *testing.T) {
	env := newTestEnv(t, newAccount("u1", 77))
	h := NewAdminHandler(env.profiles(), discardLogger())

	for _, limit := range []string{"0", "-4", "abc"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin/accounts/u1/usage?limit="+limit, nil)
		h.ListUsage(rec, withURLParam(req, "id", "u1"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected status 400, got %d", limit, rec.Code)
		}
	}
}

func TestAdminHandler_ListUsage_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	h := NewAdminHandler(env.profiles(), discardLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/accounts/ghost/usage", nil)
	h.ListUsage(rec, withURLParam(req, "id", "ghost"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestProfileHandler_Get(t *testing.T) {
	env := newTestEnv(t, newAccount("u1", 77))
	seedUsage(t, env, "u1", 2)
	h := NewProfileHandler(env.profiles(), discardLogger())

	rec := httptest.NewRecorder()
	h.Get(rec, asUser(httptest.NewRequest(http.MethodGet, "/v1/profile", nil), "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp model.ProfileResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TokensRemaining != 77 || resp.Allowance != 10000 || len(resp.RecentUsage) != 2 {
		t.Errorf("unexpected profile: %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/v1/profile", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 without identity, got %d", rec.Code)
	}
}
