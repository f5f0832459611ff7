package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/store"
)

// Page size bounds for the administrative user listing.
const (
	DefaultUserPageSize = 50
	MaxUserPageSize     = 200
)

// =============================================================================
// Interface Definition
// =============================================================================

// AdminService defines the super-admin account operations.
type AdminService interface {
	// ChangeTier moves a user to newTier and resets the daily counters and the country lock.
	ChangeTier(ctx context.Context, userID string, newTier domain.Tier) (*domain.AccountSummary, error)

	// ManageUser applies tier, role and email changes. At least one must be set.
	ManageUser(ctx context.Context, userID string, update domain.AccountUpdate) (*domain.Account, error)

	// ListUsers pages through accounts ordered by user ID.
	ListUsers(ctx context.Context, startAfter string, limit int) (*domain.AccountPage, error)
}

// =============================================================================
// Implementation
// =============================================================================

type adminService struct {
	store     store.Store
	publisher Publisher
	clock     Clock
	logger    *slog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(st store.Store, pub Publisher, clock Clock, logger *slog.Logger) AdminService {
	return &adminService{
		store:     st,
		publisher: pub,
		clock:     clock,
		logger:    logger,
	}
}

// ChangeTier resets the account for the new tier.
func (s *adminService) ChangeTier(ctx context.Context, userID string, newTier domain.Tier) (*domain.AccountSummary, error) {
	const op = "admin.change_tier"

	if userID == "" {
		return nil, domain.Invalid(op, "userId is required")
	}
	if !newTier.Valid() {
		return nil, domain.Invalid(op, "newTier must be one of tier1, tier2, tier3")
	}

	var (
		summary domain.AccountSummary
		oldTier domain.Tier
		now     time.Time
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		now = s.clock.Now()
		account, err := tx.GetAccount(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound(op, "user", userID)
		}
		if err != nil {
			return err
		}
		if account.Tier == newTier {
			return domain.Conflict(op, "User is already on "+string(newTier)+".")
		}

		oldTier = account.Tier
		account.ResetForTier(newTier, now)
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}
		summary = account.Summary()
		return nil
	})
	if err != nil {
		return nil, txError(op, err, accountConflict)
	}

	s.logger.Info("Tier changed", "op", op, "user_id", userID, "from", oldTier, "to", newTier)
	publish(s.publisher, s.logger, domain.AccountEvent{
		Type:       domain.EventTierChanged,
		UserID:     userID,
		Summary:    summary,
		OccurredAt: now,
	})
	return &summary, nil
}

// ManageUser validates every field before touching the account.
func (s *adminService) ManageUser(ctx context.Context, userID string, update domain.AccountUpdate) (*domain.Account, error) {
	const op = "admin.manage_user"

	if userID == "" {
		return nil, domain.Invalid(op, "userId is required")
	}
	if update.Tier == nil && update.Role == nil && update.Email == nil {
		return nil, domain.Invalid(op, "No valid fields to update.")
	}

	var verr *domain.ValidationError
	invalid := func(field, message string) {
		if verr == nil {
			verr = domain.NewValidationError(op, field, message)
			return
		}
		verr.Fields[field] = message
	}
	if update.Tier != nil && !update.Tier.Valid() {
		invalid("tier", "must be one of tier1, tier2, tier3")
	}
	if update.Role != nil && !update.Role.Valid() {
		invalid("role", "must be admin, super_admin or null")
	}
	var email string
	if update.Email != nil {
		email = strings.TrimSpace(*update.Email)
		if !validEmail(email) {
			invalid("email", "must be a valid email address")
		}
	}
	if verr != nil {
		return nil, verr
	}

	var (
		updated *domain.Account
		now     time.Time
		event   = domain.EventAccountUpdated
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		now = s.clock.Now()
		account, err := tx.GetAccount(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound(op, "user", userID)
		}
		if err != nil {
			return err
		}

		if update.Tier != nil && *update.Tier != account.Tier {
			account.ResetForTier(*update.Tier, now)
			event = domain.EventTierChanged
		}
		if update.Role != nil {
			account.Role = *update.Role
		}
		if update.Email != nil {
			account.Email = email
		}
		account.UpdatedAt = now

		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, txError(op, err, accountConflict)
	}

	s.logger.Info("User updated", "op", op, "user_id", userID, "tier", updated.Tier, "role", updated.Role)
	publish(s.publisher, s.logger, domain.AccountEvent{
		Type:       event,
		UserID:     userID,
		Summary:    updated.Summary(),
		OccurredAt: now,
	})
	return updated, nil
}

// ListUsers returns one page of accounts.
func (s *adminService) ListUsers(ctx context.Context, startAfter string, limit int) (*domain.AccountPage, error) {
	const op = "admin.list_users"

	if limit <= 0 {
		limit = DefaultUserPageSize
	}
	limit = min(limit, MaxUserPageSize)

	page, err := s.store.ListAccounts(ctx, startAfter, limit)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list users")
	}
	return &page, nil
}

func validEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
