package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/service"
	"github.com/google/uuid"
)

// ContactHandler serves customer-service contacts.
type ContactHandler struct {
	contacts service.ContactService
	logger   *slog.Logger
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(contacts service.ContactService, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{
		contacts: contacts,
		logger:   logger,
	}
}

// RegisterRoutes registers contact routes. The active contact is public.
func (h *ContactHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireSuperAdmin func(http.Handler) http.Handler,
	requireAdmin func(http.Handler) http.Handler,
) {
	mux.HandleFunc("GET /api/customer-service/active", h.Active)
	mux.Handle("GET /api/admin/customer-service-contacts", requireAdmin(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/admin/customer-service-contacts", requireSuperAdmin(http.HandlerFunc(h.Create)))
	mux.Handle("PUT /api/admin/customer-service-contacts/{contactId}", requireSuperAdmin(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/admin/customer-service-contacts/{contactId}", requireSuperAdmin(http.HandlerFunc(h.Delete)))
}

// ActiveContactResponse is the public view of the active contact.
type ActiveContactResponse struct {
	Number      string `json:"number"`
	Description string `json:"description"`
}

// Active returns the most recently updated active contact.
func (h *ContactHandler) Active(w http.ResponseWriter, r *http.Request) {
	contact, err := h.contacts.Active(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ActiveContactResponse{Number: contact.Number, Description: contact.Description})
}

// ListContactsResponse wraps the contact listing.
type ListContactsResponse struct {
	Contacts []domain.Contact `json:"contacts"`
}

// List returns every contact.
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.contacts.List(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	writeJSON(w, http.StatusOK, ListContactsResponse{Contacts: contacts})
}

// ContactRequest is the body of contact create and update requests.
type ContactRequest struct {
	Number      *string `json:"number"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

// ContactResponse acknowledges a contact change.
type ContactResponse struct {
	Message string         `json:"message"`
	ID      uuid.UUID      `json:"id"`
	Contact domain.Contact `json:"contact"`
}

// Create adds a contact.
func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params := domain.CreateContactParams{IsActive: req.IsActive}
	if req.Number != nil {
		params.Number = *req.Number
	}
	if req.Description != nil {
		params.Description = *req.Description
	}

	contact, err := h.contacts.Create(r.Context(), params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, ContactResponse{Message: "Contact added successfully.", ID: contact.ID, Contact: *contact})
}

// Update changes the provided fields of a contact.
func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contactID(w, r)
	if !ok {
		return
	}

	var req ContactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	contact, err := h.contacts.Update(r.Context(), domain.UpdateContactParams{
		ID:          id,
		Number:      req.Number,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ContactResponse{Message: "Contact updated successfully.", ID: contact.ID, Contact: *contact})
}

// Delete removes a contact.
func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contactID(w, r)
	if !ok {
		return
	}

	if err := h.contacts.Delete(r.Context(), id); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Contact deleted successfully."})
}

func (h *ContactHandler) contactID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("contactId"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.contact_id", "Contact ID is invalid."))
		return uuid.Nil, false
	}
	return id, true
}
