package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tollgate/tollgate/internal/middleware"
	"github.com/tollgate/tollgate/internal/service"
	"github.com/tollgate/tollgate/internal/webhook"
)

// BillingHandler receives signed billing webhooks.
type BillingHandler struct {
	verifier   *webhook.Verifier
	reconciler *service.BillingReconciler
	logger     *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(verifier *webhook.Verifier, reconciler *service.BillingReconciler, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		verifier:   verifier,
		reconciler: reconciler,
		logger:     logger.With("component", "billing_webhook"),
	}
}

type receivedResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

// Receive handles POST /webhooks/billing.
//
// Nothing is decoded or applied until the signature over the raw body has
// been verified.
func (h *BillingHandler) Receive(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get(webhook.SignatureHeader)
	if header == "" {
		writeText(w, http.StatusBadRequest, "No signature")
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeText(w, http.StatusRequestEntityTooLarge, "Webhook Error: payload too large")
			return
		}
		writeText(w, http.StatusBadRequest, "Webhook Error: unreadable body")
		return
	}

	if err := h.verifier.Verify(payload, header); err != nil {
		h.logger.Warn("billing webhook rejected",
			"reason", err.Error(),
			"ip", r.RemoteAddr,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeText(w, http.StatusBadRequest, "Webhook Error: "+err.Error())
		return
	}

	ev, err := webhook.ParseEvent(payload)
	if err != nil {
		h.logger.Warn("billing webhook undecodable",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeText(w, http.StatusBadRequest, "Webhook Error: "+err.Error())
		return
	}

	outcome, err := h.reconciler.Apply(r.Context(), ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "billing event not applied")
		return
	}

	writeJSON(w, http.StatusOK, receivedResponse{Received: true, Outcome: string(outcome)})
}
