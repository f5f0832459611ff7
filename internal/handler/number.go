package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/dialpool/internal/auth"
	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/service"
)

// NumberHandler serves the allocation and self-service number endpoints.
type NumberHandler struct {
	allocation service.AllocationService
	accounts   service.AccountService
	logger     *slog.Logger
}

// NewNumberHandler creates a new NumberHandler.
func NewNumberHandler(allocation service.AllocationService, accounts service.AccountService, logger *slog.Logger) *NumberHandler {
	return &NumberHandler{
		allocation: allocation,
		accounts:   accounts,
		logger:     logger,
	}
}

// RegisterRoutes registers number routes. limitAllocate wraps only get-number.
func (h *NumberHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireUser func(http.Handler) http.Handler,
	limitAllocate func(http.Handler) http.Handler,
) {
	mux.Handle("GET /api/get-number", requireUser(limitAllocate(http.HandlerFunc(h.GetNumber))))
	mux.Handle("POST /api/save-number", requireUser(http.HandlerFunc(h.SaveNumber)))
	mux.Handle("POST /api/select-country", requireUser(http.HandlerFunc(h.SelectCountry)))
}

// =============================================================================
// GET /api/get-number
// =============================================================================

// GetNumberResponse is returned on a successful allocation.
type GetNumberResponse struct {
	Number string `json:"number"`
}

// GetNumber allocates one number for the authenticated user.
func (h *NumberHandler) GetNumber(w http.ResponseWriter, r *http.Request) {
	const op = "handler.get_number"

	tier := strings.TrimSpace(r.URL.Query().Get("tier"))
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if tier == "" || country == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "tier and country are required."))
		return
	}

	number, err := h.allocation.Allocate(r.Context(), auth.GetUserID(r), domain.Tier(tier), country)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, GetNumberResponse{Number: number})
}

// =============================================================================
// POST /api/save-number
// =============================================================================

// SaveNumberRequest is the body of POST /api/save-number.
type SaveNumberRequest struct {
	Number string `json:"number"`
}

// AccountResponse acknowledges a change and returns the updated account view.
type AccountResponse struct {
	Message string                `json:"message"`
	Summary domain.AccountSummary `json:"summary"`
}

// SaveNumber adds a number to the authenticated user's saved list.
func (h *NumberHandler) SaveNumber(w http.ResponseWriter, r *http.Request) {
	const op = "handler.save_number"

	var req SaveNumberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	number := strings.TrimSpace(req.Number)
	if number == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "number is required."))
		return
	}

	summary, err := h.accounts.SaveNumber(r.Context(), auth.GetUserID(r), number)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, AccountResponse{Message: "Number saved successfully.", Summary: *summary})
}

// =============================================================================
// POST /api/select-country
// =============================================================================

// SelectCountryRequest is the body of POST /api/select-country.
type SelectCountryRequest struct {
	Country string `json:"country"`
}

// SelectCountry sets the authenticated user's country.
func (h *NumberHandler) SelectCountry(w http.ResponseWriter, r *http.Request) {
	var req SelectCountryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	summary, err := h.accounts.SelectCountry(r.Context(), auth.GetUserID(r), req.Country)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, AccountResponse{Message: "Country selected.", Summary: *summary})
}
