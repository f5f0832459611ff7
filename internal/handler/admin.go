package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/dialpool/internal/auth"
	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/service"
)

// AdminHandler handles the administrative JSON API.
type AdminHandler struct {
	admin  service.AdminService
	ingest service.IngestService
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin service.AdminService, ingest service.IngestService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		ingest: ingest,
		logger: logger,
	}
}

// RegisterRoutes registers admin routes.
//
// requireSuperAdmin guards account management. requireAdmin (admin or
// super_admin) guards inventory ingestion.
func (h *AdminHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireSuperAdmin func(http.Handler) http.Handler,
	requireAdmin func(http.Handler) http.Handler,
) {
	mux.Handle("POST /api/admin/upgrade-tier", requireSuperAdmin(http.HandlerFunc(h.UpgradeTier)))
	mux.Handle("PUT /api/admin/users/{userId}", requireSuperAdmin(http.HandlerFunc(h.ManageUser)))
	mux.Handle("GET /api/admin/users", requireSuperAdmin(http.HandlerFunc(h.ListUsers)))
	mux.Handle("POST /api/admin/upload-batch", requireAdmin(http.HandlerFunc(h.UploadBatch)))
	mux.Handle("POST /api/admin/import-batch", requireAdmin(http.HandlerFunc(h.ImportBatch)))
}

// =============================================================================
// Views
// =============================================================================

// UserView is the administrative view of an account.
type UserView struct {
	ID                string     `json:"id"`
	Email             string     `json:"email,omitempty"`
	Tier              string     `json:"tier"`
	Role              *string    `json:"role"`
	SelectedCountry   *string    `json:"selected_country"`
	CountryLockDate   *time.Time `json:"country_lock_date"`
	DailyNumbersShown int        `json:"daily_numbers_shown"`
	ShownNumbers      []string   `json:"shown_numbers"`
	SavedNumbers      []string   `json:"saved_numbers"`
	LastActivityDate  *time.Time `json:"last_activity_date"`
	HasSeenGuide      bool       `json:"hasSeenGuide"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toUserView(a *domain.Account) UserView {
	v := UserView{
		ID:                a.UserID,
		Email:             a.Email,
		Tier:              string(a.Tier),
		CountryLockDate:   a.CountryLockDate,
		DailyNumbersShown: a.DailyNumbersShown,
		ShownNumbers:      a.ShownNumbers,
		SavedNumbers:      a.SavedNumbers,
		LastActivityDate:  a.LastActivityDate,
		HasSeenGuide:      a.HasSeenGuide,
		CreatedAt:         a.CreatedAt,
	}
	if a.Role != domain.RoleNone {
		role := string(a.Role)
		v.Role = &role
	}
	if a.SelectedCountry != "" {
		country := a.SelectedCountry
		v.SelectedCountry = &country
	}
	if v.ShownNumbers == nil {
		v.ShownNumbers = []string{}
	}
	if v.SavedNumbers == nil {
		v.SavedNumbers = []string{}
	}
	return v
}

// =============================================================================
// POST /api/admin/upgrade-tier
// =============================================================================

// UpgradeTierRequest is the body of POST /api/admin/upgrade-tier.
type UpgradeTierRequest struct {
	UserID  string `json:"userId"`
	NewTier string `json:"newTier"`
}

// UpgradeTier moves a user to a new tier.
func (h *AdminHandler) UpgradeTier(w http.ResponseWriter, r *http.Request) {
	const op = "handler.upgrade_tier"

	var req UpgradeTierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.NewTier) == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "userId and newTier are required."))
		return
	}

	tier := domain.Tier(strings.TrimSpace(req.NewTier))
	summary, err := h.admin.ChangeTier(r.Context(), req.UserID, tier)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, AccountResponse{
		Message: fmt.Sprintf("User %s successfully upgraded to %q.", req.UserID, tier),
		Summary: *summary,
	})
}

// =============================================================================
// PUT /api/admin/users/{userId}
// =============================================================================

// ManageUserRequest is the body of PUT /api/admin/users/{userId}.
// An explicit null role clears the role; an absent role leaves it untouched.
type ManageUserRequest struct {
	Tier  *string         `json:"tier"`
	Role  json.RawMessage `json:"role"`
	Email *string         `json:"email"`
}

// ManageUserResponse acknowledges a user update.
type ManageUserResponse struct {
	Message string   `json:"message"`
	User    UserView `json:"user"`
}

func (req ManageUserRequest) update() (domain.AccountUpdate, error) {
	const op = "handler.manage_user"

	var update domain.AccountUpdate
	if req.Tier != nil {
		tier := domain.Tier(strings.TrimSpace(*req.Tier))
		update.Tier = &tier
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		update.Email = &email
	}
	if len(req.Role) > 0 {
		role := domain.RoleNone
		if string(req.Role) != "null" {
			var s string
			if err := json.Unmarshal(req.Role, &s); err != nil {
				return update, domain.NewValidationError(op, "role", `Invalid role value. Must be "admin", "super_admin", or null.`)
			}
			role = domain.Role(s)
		}
		update.Role = &role
	}
	return update, nil
}

// ManageUser applies tier, role and email changes to one user.
func (h *AdminHandler) ManageUser(w http.ResponseWriter, r *http.Request) {
	var req ManageUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	update, err := req.update()
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	account, err := h.admin.ManageUser(r.Context(), r.PathValue("userId"), update)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ManageUserResponse{
		Message: "User updated successfully.",
		User:    toUserView(account),
	})
}

// =============================================================================
// GET /api/admin/users
// =============================================================================

// ListUsersResponse is one page of users ordered by ID.
type ListUsersResponse struct {
	Users    []UserView `json:"users"`
	LastUser *string    `json:"lastUser"`
	HasMore  bool       `json:"hasMore"`
}

// ListUsers pages through accounts. Query parameters: limit, startAfter.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	page, err := h.admin.ListUsers(r.Context(), r.URL.Query().Get("startAfter"), limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := ListUsersResponse{
		Users:   make([]UserView, 0, len(page.Accounts)),
		HasMore: page.HasMore,
	}
	for i := range page.Accounts {
		resp.Users = append(resp.Users, toUserView(&page.Accounts[i]))
	}
	if page.LastUser != "" {
		last := page.LastUser
		resp.LastUser = &last
	}

	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Batch ingestion
// =============================================================================

// UploadBatchRequest is the body of POST /api/admin/upload-batch.
type UploadBatchRequest struct {
	Country       string   `json:"country"`
	Tier          string   `json:"tier"`
	Numbers       []string `json:"numbers"`
	SourceBatchID string   `json:"source_batch_id"`
}

// ImportBatchRequest is the body of POST /api/admin/import-batch.
type ImportBatchRequest struct {
	Country       string `json:"country"`
	Tier          string `json:"tier"`
	ObjectKey     string `json:"object_key"`
	SourceBatchID string `json:"source_batch_id"`
}

// BatchResponse reports the outcome of an ingestion.
type BatchResponse struct {
	Message string `json:"message"`
	domain.BatchResult
}

// UploadBatch ingests numbers carried in the request body.
func (h *AdminHandler) UploadBatch(w http.ResponseWriter, r *http.Request) {
	const op = "handler.upload_batch"

	var req UploadBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Country == "" || req.Tier == "" || req.Numbers == nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Country, tier, and an array of numbers are required."))
		return
	}

	result, err := h.ingest.UploadBatch(r.Context(), domain.BatchParams{
		Country:       req.Country,
		Tier:          domain.Tier(req.Tier),
		Numbers:       req.Numbers,
		SourceBatchID: req.SourceBatchID,
		UploadedBy:    auth.GetUserID(r),
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, batchResponse(result))
}

// ImportBatch ingests a newline-delimited list stored in object storage.
func (h *AdminHandler) ImportBatch(w http.ResponseWriter, r *http.Request) {
	const op = "handler.import_batch"

	var req ImportBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Country == "" || req.Tier == "" || req.ObjectKey == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Country, tier, and object_key are required."))
		return
	}

	result, err := h.ingest.ImportBatch(r.Context(), req.ObjectKey, domain.BatchParams{
		Country:       req.Country,
		Tier:          domain.Tier(req.Tier),
		SourceBatchID: req.SourceBatchID,
		UploadedBy:    auth.GetUserID(r),
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, batchResponse(result))
}

func batchResponse(result *domain.BatchResult) BatchResponse {
	return BatchResponse{
		Message:     fmt.Sprintf("Successfully uploaded %d numbers. %d duplicates skipped.", result.Uploaded, result.Skipped),
		BatchResult: *result,
	}
}
