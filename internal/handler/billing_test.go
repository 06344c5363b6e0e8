package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tollgate/tollgate/internal/model"
	"github.com/tollgate/tollgate/internal/service"
	"github.com/tollgate/tollgate/internal/webhook"
)

const testWebhookSecret = "whsec_test"

func newBillingHandler(env *testEnv, logs *bytes.Buffer) *BillingHandler {
	logger := discardLogger()
	if logs != nil {
		logger = bufferLogger(logs)
	}
	reconciler := service.NewBillingReconciler(env.store, nil, testBilling, logger, env.metrics)
	return NewBillingHandler(webhook.NewVerifier(testWebhookSecret, 0), reconciler, logger)
}

func signedRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(payload))
	req.Header.Set(webhook.SignatureHeader, webhook.SignHeader(secret, time.Now().Unix(), []byte(payload)))
	return req
}

func checkoutPayload(email string) string {
	return `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{` +
		`"mode":"subscription","customer_email":"` + email + `","customer":"cus_1","subscription":"sub_1"}}}`
}

func TestBillingHandler_Activation(t *testing.T) {
	env := newTestEnv(t, newAccount("u1", 42))
	h := newBillingHandler(env, nil)

	rec := httptest.NewRecorder()
	h.Receive(rec, signedRequest(t, testWebhookSecret, checkoutPayload("u1@example.com")))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp receivedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Received || resp.Outcome != string(model.BillingApplied) {
		t.Errorf("unexpected response: %+v", resp)
	}

	a := env.account(t, "u1")
	if a.Tier != model.TierPro || a.TokensRemaining != 500000 {
		t.Errorf("unexpected account state: tier=%s tokens=%d", a.Tier, a.TokensRemaining)
	}
}

func TestBillingHandler_MissingSignature(t *testing.T) {
	env := newTestEnv(t, newAccount("u1", 42))
	h := newBillingHandler(env, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(checkoutPayload("u1@example.com")))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
	if rec.Body.String() != "No signature" {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
}

func TestBillingHandler_RejectedSignatureMutatesNothing(t *testing.T) {
	payload := checkoutPayload("u1@example.com")
	stale := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(payload))
	stale.Header.Set(webhook.SignatureHeader,
		webhook.SignHeader(testWebhookSecret, time.Now().Add(-time.Hour).Unix(), []byte(payload)))

	malformed := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(payload))
	malformed.Header.Set(webhook.SignatureHeader, "garbage")

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"wrong secret", signedRequest(t, "whsec_other", payload)},
		{"stale timestamp", stale},
		{"malformed header", malformed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, newAccount("u1", 42))
			before := *env.account(t, "u1")
			h := newBillingHandler(env, nil)

			rec := httptest.NewRecorder()
			h.Receive(rec, tt.req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
			if !strings.HasPrefix(rec.Body.String(), "Webhook Error: ") {
				t.Errorf("unexpected body: %q", rec.Body.String())
			}
			after := env.account(t, "u1")
			if after.Tier != before.Tier || after.TokensRemaining != before.TokensRemaining || !after.UpdatedAt.Equal(before.UpdatedAt) {
				t.Errorf("account mutated: before=%+v after=%+v", before, *after)
			}
		})
	}
}

func TestBillingHandler_UnknownEmailAcknowledged(t *testing.T) {
	env := newTestEnv(t, newAccount("u1", 42))
	before := *env.account(t, "u1")
	var logs bytes.Buffer
	h := newBillingHandler(env, &logs)

	rec := httptest.NewRecorder()
	h.Receive(rec, signedRequest(t, testWebhookSecret, checkoutPayload("stranger@example.com")))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp receivedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Received || resp.Outcome != string(model.BillingUnresolved) {
		t.Errorf("unexpected response: %+v", resp)
	}

	after := env.account(t, "u1")
	if after.Tier != before.Tier || after.TokensRemaining != before.TokensRemaining {
		t.Errorf("account mutated: %+v", *after)
	}

	if n := strings.Count(logs.String(), "billing event target account not found"); n != 1 {
		t.Errorf("expected exactly one not-found log entry, got %d\n%s", n, logs.String())
	}
}

func TestBillingHandler_UnrecognizedEventAcknowledged(t *testing.T) {
	env := newTestEnv(t, newAccount("u1", 42))
	h := newBillingHandler(env, nil)

	payload := `{"id":"evt_9","type":"customer.created","data":{"object":{"id":"cus_9"}}}`
	rec := httptest.NewRecorder()
	h.Receive(rec, signedRequest(t, testWebhookSecret, payload))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"received":true`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestBillingHandler_MalformedEvent(t *testing.T) {
	env := newTestEnv(t)
	h := newBillingHandler(env, nil)

	rec := httptest.NewRecorder()
	h.Receive(rec, signedRequest(t, testWebhookSecret, `{"id":"evt_1"}`))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestBillingHandler_StoreFailureAsksForRedelivery(t *testing.T) {
	env := newTestEnv(t, newAccount("u1", 42))
	env.store.UpdateErr = errTest
	h := newBillingHandler(env, nil)

	rec := httptest.NewRecorder()
	h.Receive(rec, signedRequest(t, testWebhookSecret, checkoutPayload("u1@example.com")))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}

func TestBillingHandler_ActivateDebitCancel(t *testing.T) {
	env := newTestEnv(t, newAccount("u1", 42))
	h := newBillingHandler(env, nil)

	rec := httptest.NewRecorder()
	h.Receive(rec, signedRequest(t, testWebhookSecret, checkoutPayload("u1@example.com")))
	if rec.Code != http.StatusOK {
		t.Fatalf("activation: expected 200, got %d", rec.Code)
	}

	if _, err := env.ledger.Debit(context.Background(), "u1", 1234); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}

	cancel := `{"id":"evt_2","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_1"}}}`
	rec = httptest.NewRecorder()
	h.Receive(rec, signedRequest(t, testWebhookSecret, cancel))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancellation: expected 200, got %d", rec.Code)
	}

	a := env.account(t, "u1")
	if a.Tier != model.TierFree || a.TokensRemaining != 10000 || a.BillingSubscriptionID != nil {
		t.Errorf("unexpected state after cancel: %+v", *a)
	}
}
