package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/middleware"
	"github.com/tollgate/tollgate/internal/service"
	"github.com/tollgate/tollgate/internal/upstream"
)

// MeteringHandler serves metered chat completions.
type MeteringHandler struct {
	svc    *service.MeteringService
	logger *slog.Logger
}

// NewMeteringHandler creates a new MeteringHandler.
func NewMeteringHandler(svc *service.MeteringService, logger *slog.Logger) *MeteringHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MeteringHandler{svc: svc, logger: logger}
}

// CompletionRequest is the caller's request body.
type CompletionRequest struct {
	Messages  []upstream.Message `json:"messages"`
	Model     string             `json:"model,omitempty"`
	MaxTokens *int               `json:"max_tokens,omitempty"`
}

// Metadata is appended to the upstream reply under "_metadata".
type Metadata struct {
	TokensUsed      int64 `json:"tokens_used"`
	TokensRemaining int64 `json:"tokens_remaining"`
}

// Complete handles POST /v1/chat/completions.
// Must run behind the Identity middleware.
func (h *MeteringHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Quota is answered before the body, as for a well-formed request.
		if aerr := h.svc.Admit(r.Context(), userID); aerr != nil {
			h.handleServiceError(w, r, aerr)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	in := service.CompletionRequest{
		Messages:  req.Messages,
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}

	result, err := h.svc.Complete(r.Context(), userID, in)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	body, err := withMetadata(result.Upstream.Body, Metadata{
		TokensUsed:      result.TokensUsed,
		TokensRemaining: result.TokensRemaining,
	})
	if err != nil {
		// Already charged; the caller still gets the reply without metadata.
		h.logger.Error("failed to attach usage metadata",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		body = result.Upstream.Body
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// withMetadata returns the upstream JSON object with a "_metadata" member.
// Every other member is passed through byte for byte.
func withMetadata(body json.RawMessage, meta Metadata) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = make(map[string]json.RawMessage, 1)
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	obj["_metadata"] = raw
	return json.Marshal(obj)
}

func (h *MeteringHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance), errors.Is(err, service.ErrAccountNotFound):
		writeError(w, http.StatusPaymentRequired, "Insufficient tokens")
	case errors.Is(err, service.ErrUpstream):
		writeError(w, http.StatusInternalServerError, "upstream request failed")
	default:
		h.logger.Error("metered request failed",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
