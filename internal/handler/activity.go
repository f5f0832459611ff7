package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/dialpool/internal/auth"
	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/service"
)

// ActivityHandler serves a user's read-only view of their own account.
type ActivityHandler struct {
	accounts service.AccountService
	logger   *slog.Logger
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(accounts service.AccountService, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// RegisterRoutes registers activity routes.
func (h *ActivityHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/user-activity/{userId}/summary", requireUser(http.HandlerFunc(h.Summary)))
	mux.Handle("GET /api/user-activity/{userId}/numbers", requireUser(http.HandlerFunc(h.Numbers)))
}

// Summary returns the account summary with today's counters.
func (h *ActivityHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.self(w, r)
	if !ok {
		return
	}

	summary, err := h.accounts.Summary(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Numbers pages through the shown or saved list.
//
// Query parameters: type (shown|saved), limit, startAfter.
func (h *ActivityHandler) Numbers(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.self(w, r)
	if !ok {
		return
	}

	kind := domain.NumberListKind(r.URL.Query().Get("type"))
	if kind != domain.NumberListShown && kind != domain.NumberListSaved {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.activity_numbers", `Query parameter "type" must be "shown" or "saved".`))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	page, err := h.accounts.ListNumbers(r.Context(), userID, kind, r.URL.Query().Get("startAfter"), limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// self returns the path user ID when it matches the caller.
func (h *ActivityHandler) self(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.PathValue("userId")
	if userID == "" || userID != auth.GetUserID(r) {
		ErrorResponse(w, r, h.logger, domain.Forbidden("handler.activity", "You can only access your own user data."))
		return "", false
	}
	return userID, true
}
