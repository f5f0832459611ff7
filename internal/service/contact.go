package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/store"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ContactService manages the customer-service contacts shown to users.
type ContactService interface {
	List(ctx context.Context) ([]domain.Contact, error)
	// Active returns the most recently updated active contact.
	Active(ctx context.Context) (*domain.Contact, error)
	Create(ctx context.Context, params domain.CreateContactParams) (*domain.Contact, error)
	Update(ctx context.Context, params domain.UpdateContactParams) (*domain.Contact, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// =============================================================================
// Implementation
// =============================================================================

type contactService struct {
	store  store.Store
	clock  Clock
	logger *slog.Logger
}

// NewContactService creates a new ContactService.
func NewContactService(st store.Store, clock Clock, logger *slog.Logger) ContactService {
	return &contactService{
		store:  st,
		clock:  clock,
		logger: logger,
	}
}

func (s *contactService) List(ctx context.Context) ([]domain.Contact, error) {
	const op = "contact.list"

	contacts, err := s.store.ListContacts(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list contacts")
	}
	return contacts, nil
}

func (s *contactService) Active(ctx context.Context) (*domain.Contact, error) {
	const op = "contact.active"

	c, err := s.store.ActiveContact(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.Errorf(domain.ENOTFOUND, op, "No active customer service contact.")
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load active contact")
	}
	return c, nil
}

func (s *contactService) Create(ctx context.Context, params domain.CreateContactParams) (*domain.Contact, error) {
	const op = "contact.create"

	number := strings.TrimSpace(params.Number)
	if number == "" {
		return nil, domain.Invalid(op, "number is required")
	}
	active := true
	if params.IsActive != nil {
		active = *params.IsActive
	}

	now := s.clock.Now()
	c, err := s.store.CreateContact(ctx, domain.Contact{
		ID:          uuid.New(),
		Number:      number,
		Description: strings.TrimSpace(params.Description),
		IsActive:    active,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create contact")
	}

	s.logger.Info("Contact created", "op", op, "contact_id", c.ID, "active", c.IsActive)
	return c, nil
}

func (s *contactService) Update(ctx context.Context, params domain.UpdateContactParams) (*domain.Contact, error) {
	const op = "contact.update"

	if params.Empty() {
		return nil, domain.Invalid(op, "No valid fields to update.")
	}
	if params.Number != nil {
		n := strings.TrimSpace(*params.Number)
		if n == "" {
			return nil, domain.Invalid(op, "number must not be empty")
		}
		params.Number = &n
	}

	c, err := s.store.UpdateContact(ctx, params, s.clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.NotFound(op, "contact", params.ID.String())
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to update contact")
	}

	s.logger.Info("Contact updated", "op", op, "contact_id", c.ID)
	return c, nil
}

func (s *contactService) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "contact.delete"

	err := s.store.DeleteContact(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFound(op, "contact", id.String())
	}
	if err != nil {
		return domain.Internal(err, op, "failed to delete contact")
	}

	s.logger.Info("Contact deleted", "op", op, "contact_id", id)
	return nil
}
