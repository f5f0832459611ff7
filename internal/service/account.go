package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/store"
)

// Page size bounds for self-service number listings.
const (
	DefaultNumberPageSize = 20
	MaxNumberPageSize     = 100
)

// =============================================================================
// Interface Definition
// =============================================================================

// AccountService defines the self-service account operations.
type AccountService interface {
	// SaveNumber adds number to the user's saved list. Saved numbers are never offered
	// to the same user again.
	SaveNumber(ctx context.Context, userID, number string) (*domain.AccountSummary, error)

	// SelectCountry sets the user's country, enforcing the tier's country lock.
	SelectCountry(ctx context.Context, userID, country string) (*domain.AccountSummary, error)

	// Summary returns the current view of the account with today's counters.
	Summary(ctx context.Context, userID string) (*domain.AccountSummary, error)

	// ListNumbers pages through the shown or saved list.
	ListNumbers(ctx context.Context, userID string, kind domain.NumberListKind, startAfter string, limit int) (*domain.NumberPage, error)

	// Role returns the user's administrative role. Unknown users have RoleNone.
	Role(ctx context.Context, userID string) (domain.Role, error)
}

// =============================================================================
// Implementation
// =============================================================================

type accountService struct {
	store     store.Store
	publisher Publisher
	clock     Clock
	logger    *slog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(st store.Store, pub Publisher, clock Clock, logger *slog.Logger) AccountService {
	return &accountService{
		store:     st,
		publisher: pub,
		clock:     clock,
		logger:    logger,
	}
}

// SaveNumber appends number to the saved list.
func (s *accountService) SaveNumber(ctx context.Context, userID, number string) (*domain.AccountSummary, error) {
	const op = "account.save_number"

	number = strings.TrimSpace(number)
	if number == "" {
		return nil, domain.Invalid(op, "number is required")
	}

	var (
		summary domain.AccountSummary
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
		if account.HasSaved(number) {
			return domain.Conflict(op, "Number is already saved.")
		}

		domain.ApplyRollover(account, now, s.clock.Location)
		account.SavedNumbers = append(account.SavedNumbers, number)
		account.UpdatedAt = now
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}
		summary = account.Summary()
		return nil
	})
	if err != nil {
		return nil, txError(op, err, accountConflict)
	}

	s.logger.Info("Number saved", "op", op, "user_id", userID, "total_saved", summary.TotalSavedNumbers)
	publish(s.publisher, s.logger, domain.AccountEvent{
		Type:       domain.EventNumberSaved,
		UserID:     userID,
		Number:     number,
		Summary:    summary,
		OccurredAt: now,
	})
	return &summary, nil
}

// SelectCountry applies the country lock and stores the new selection.
func (s *accountService) SelectCountry(ctx context.Context, userID, country string) (*domain.AccountSummary, error) {
	const op = "account.select_country"

	country, ok := domain.ParseCountry(country)
	if !ok {
		return nil, domain.Invalid(op, "country is not supported")
	}

	var (
		summary domain.AccountSummary
		now     time.Time
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		now = s.clock.Now()
		account, err := loadOrCreateAccount(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		domain.ApplyRollover(account, now, s.clock.Location)
		if err := domain.CheckCountryChange(op, account, country, now, s.clock.Location); err != nil {
			return err
		}

		if account.SelectedCountry != country {
			account.SelectedCountry = country
			account.CountryLockDate = &now
		} else if account.CountryLockDate == nil || domain.CountryLockExpired(account, now, s.clock.Location) {
			// Re-selecting the same country after the month rolled starts a new lock.
			account.CountryLockDate = &now
		}
		account.UpdatedAt = now
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}
		summary = account.Summary()
		return nil
	})
	if err != nil {
		return nil, txError(op, err, accountConflict)
	}

	s.logger.Info("Country selected", "op", op, "user_id", userID, "country", country)
	publish(s.publisher, s.logger, domain.AccountEvent{
		Type:       domain.EventCountrySelected,
		UserID:     userID,
		Summary:    summary,
		OccurredAt: now,
	})
	return &summary, nil
}

// Summary reads the account outside a transaction and applies rollover to the copy.
func (s *accountService) Summary(ctx context.Context, userID string) (*domain.AccountSummary, error) {
	const op = "account.summary"

	account, err := s.load(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	summary := account.Summary()
	return &summary, nil
}

// ListNumbers pages through the requested list.
func (s *accountService) ListNumbers(ctx context.Context, userID string, kind domain.NumberListKind, startAfter string, limit int) (*domain.NumberPage, error) {
	const op = "account.list_numbers"

	if limit <= 0 {
		limit = DefaultNumberPageSize
	}
	limit = min(limit, MaxNumberPageSize)

	account, err := s.load(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	var list []string
	switch kind {
	case domain.NumberListShown:
		list = account.ShownNumbers
	case domain.NumberListSaved:
		list = account.SavedNumbers
	default:
		return nil, domain.Invalid(op, "type must be shown or saved")
	}

	page := domain.PageNumbers(list, startAfter, limit)
	return &page, nil
}

// Role returns RoleNone for users without an account.
func (s *accountService) Role(ctx context.Context, userID string) (domain.Role, error) {
	const op = "account.role"

	account, err := s.store.GetAccount(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.RoleNone, nil
	}
	if err != nil {
		return domain.RoleNone, domain.Internal(err, op, "failed to load account")
	}
	return account.Role, nil
}

func (s *accountService) load(ctx context.Context, op, userID string) (*domain.Account, error) {
	account, err := s.store.GetAccount(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.NotFound(op, "user", userID)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load account")
	}
	domain.ApplyRollover(account, s.clock.Now(), s.clock.Location)
	return account, nil
}
