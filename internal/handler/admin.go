package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tollgate/tollgate/internal/middleware"
	"github.com/tollgate/tollgate/internal/model"
	"github.com/tollgate/tollgate/internal/repository"
	"github.com/tollgate/tollgate/internal/service"
)

const maxUsageLimit = 500

// AdminHandler provides operator endpoints for support and debugging.
type AdminHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
	started  time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(profiles *service.ProfileService, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		profiles: profiles,
		logger:   logger.With("component", "admin"),
		started:  time.Now(),
	}
}

// UsageListResponse is a page of usage events.
type UsageListResponse struct {
	Events []*model.UsageEvent `json:"events"`
	Total  int                 `json:"total"`
}

// GetAccount handles GET /admin/accounts/{id}.
func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateAccountID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	acct, err := h.profiles.Account(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err, id)
		return
	}

	writeJSON(w, http.StatusOK, acct)
}

// ListUsage handles GET /admin/accounts/{id}/usage?limit={n}.
func (h *AdminHandler) ListUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateAccountID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := repository.DefaultUsageListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxUsageLimit)
	}

	events, err := h.profiles.Usage(r.Context(), id, limit)
	if err != nil {
		h.handleServiceError(w, err, id)
		return
	}

	writeJSON(w, http.StatusOK, UsageListResponse{Events: events, Total: len(events)})
}

// StatsResponse represents operational statistics.
type StatsResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Timestamp: time.Now().UTC(),
		Service:   "tollgate",
		Version:   Version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *AdminHandler) handleServiceError(w http.ResponseWriter, err error, accountID string) {
	if errors.Is(err, service.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	h.logger.Error("admin lookup failed", "account_id", accountID, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
